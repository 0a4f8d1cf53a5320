package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucaslui/minermonitor/internal/model"
)

func TestPartitionOf_UsesUTC(t *testing.T) {
	sp := time.FixedZone("BRT", -3*3600)
	date, hour := PartitionOf(time.Date(2025, 3, 10, 22, 30, 0, 0, sp))
	assert.Equal(t, "2025-03-11", date)
	assert.Equal(t, "01", hour)
}

func TestPointsPath(t *testing.T) {
	assert.Equal(t, "helmets/h1/days/2025-03-10/hours/07/points", PointsPath("h1", "2025-03-10", "07"))
	assert.Len(t, Hours(), 24)
	assert.Equal(t, "00", Hours()[0])
	assert.Equal(t, "23", Hours()[23])
}

func TestMemory_AppendAndQuery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	coll := PointsPath("h1", "2025-03-10", "07")

	for _, ts := range []string{"2025-03-10T07:30:00.000Z", "2025-03-10T07:10:00.000Z", "2025-03-10T07:20:00.000Z"} {
		id, err := m.Append(ctx, coll, model.HistoryRecord{Ts: ts, Date: "2025-03-10", Hour: "07"})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}
	_, err := m.Append(ctx, coll, model.HistoryRecord{Ts: "2025-03-10T07:00:00.000Z", Date: "2025-03-10", Hour: "08"})
	require.NoError(t, err)

	recs, err := m.Query(ctx, "/"+coll+"/", []Filter{{Field: "date", Value: "2025-03-10"}, {Field: "hour", Value: "07"}}, OrderByTs)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "2025-03-10T07:10:00.000Z", recs[0].Ts)
	assert.Equal(t, "2025-03-10T07:30:00.000Z", recs[2].Ts)
	assert.NotEqual(t, recs[0].ID, recs[1].ID)

	assert.Equal(t, 4, m.Count())
}

func TestMemory_QueryRejectsUnknownFields(t *testing.T) {
	m := NewMemory()
	_, err := m.Query(context.Background(), "x", []Filter{{Field: "color", Value: "red"}}, "")
	assert.Error(t, err)
	_, err = m.Query(context.Background(), "x", nil, "color")
	assert.Error(t, err)
}

func TestBuildFlux(t *testing.T) {
	q := buildFlux("helmets", "helmets/h1/days/2025-03-10/hours/07/points",
		[]Filter{{Field: "date", Value: "2025-03-10"}, {Field: "emergency", Value: "true"}})

	assert.Contains(t, q, `from(bucket: "helmets")`)
	assert.Contains(t, q, `r.collection == "helmets/h1/days/2025-03-10/hours/07/points"`)
	assert.Contains(t, q, `r.date == "2025-03-10"`)
	assert.NotContains(t, q, "r.emergency")
	assert.Contains(t, q, `sort(columns: ["_time"])`)
}

func TestBuildPoint(t *testing.T) {
	rec := model.HistoryRecord{ID: "abc", Ts: "2025-03-10T07:10:00.000Z", Date: "2025-03-10", Hour: "07", Temp: 21}
	p, err := buildPoint("c", rec)
	require.NoError(t, err)
	assert.Equal(t, measurement, p.Name())
	assert.Equal(t, time.Date(2025, 3, 10, 7, 10, 0, 0, time.UTC), p.Time().UTC())

	_, err = buildPoint("c", model.HistoryRecord{Ts: "yesterday"})
	assert.Error(t, err)
}

func TestObjectPaths(t *testing.T) {
	assert.Equal(t, "helmets/h1/points/abc.json", objectName("/helmets/h1/points/", "abc"))
	assert.Equal(t, "exports/year=2025/month=03/day=10/f.parquet",
		BuildObjectPath("exports", time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC), "f.parquet"))
}
