package archive

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/lucaslui/minermonitor/internal/model"
)

const measurement = "helmet_point"

// Influx keeps each record as one point. Collection, id, date and hour are tags, so the
// partition filters run server-side.
type Influx struct {
	Client   influxdb2.Client
	WriteAPI api.WriteAPIBlocking
	QueryAPI api.QueryAPI
	bucket   string
}

func NewInflux(url, token, org, bucket string) *Influx {
	client := influxdb2.NewClient(url, token)
	return &Influx{
		Client:   client,
		WriteAPI: client.WriteAPIBlocking(org, bucket),
		QueryAPI: client.QueryAPI(org),
		bucket:   bucket,
	}
}

func (db *Influx) Close() {
	if db != nil && db.Client != nil {
		db.Client.Close()
	}
}

func (db *Influx) Append(ctx context.Context, collection string, rec model.HistoryRecord) (string, error) {
	rec.ID = uuid.NewString()
	p, err := buildPoint(strings.Trim(collection, "/"), rec)
	if err != nil {
		return "", err
	}
	if err := db.WriteAPI.WritePoint(ctx, p); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func buildPoint(collection string, rec model.HistoryRecord) (*write.Point, error) {
	ts, err := time.Parse(time.RFC3339Nano, rec.Ts)
	if err != nil {
		return nil, fmt.Errorf("record %s: bad ts %q: %w", rec.ID, rec.Ts, err)
	}
	tags := map[string]string{
		"collection": collection,
		"id":         rec.ID,
		"date":       rec.Date,
		"hour":       rec.Hour,
	}
	fields := map[string]interface{}{
		"lat":       rec.Lat,
		"lng":       rec.Lng,
		"temp":      rec.Temp,
		"emergency": rec.Emergency,
		"active":    rec.Active,
		"ts":        rec.Ts,
	}
	return write.NewPoint(measurement, tags, fields, ts), nil
}

func (db *Influx) Query(ctx context.Context, collection string, filters []Filter, orderBy string) ([]model.HistoryRecord, error) {
	if err := validate(filters, orderBy); err != nil {
		return nil, err
	}
	res, err := db.QueryAPI.Query(ctx, buildFlux(db.bucket, strings.Trim(collection, "/"), filters))
	if err != nil {
		return nil, err
	}
	defer res.Close()

	var recs []model.HistoryRecord
	for res.Next() {
		r := res.Record()
		recs = append(recs, model.HistoryRecord{
			ID:        asString(r.ValueByKey("id")),
			Date:      asString(r.ValueByKey("date")),
			Hour:      asString(r.ValueByKey("hour")),
			Ts:        asString(r.ValueByKey("ts")),
			Lat:       asFloat(r.ValueByKey("lat")),
			Lng:       asFloat(r.ValueByKey("lng")),
			Temp:      asFloat(r.ValueByKey("temp")),
			Emergency: asBool(r.ValueByKey("emergency")),
			Active:    asBool(r.ValueByKey("active")),
		})
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	// ts/emergency/active are fields, matched here
	return filterAndSort(recs, filters, orderBy), nil
}

func buildFlux(bucket, collection string, filters []Filter) string {
	preds := []string{
		fmt.Sprintf("r._measurement == %s", strconv.Quote(measurement)),
		fmt.Sprintf("r.collection == %s", strconv.Quote(collection)),
	}
	for _, f := range filters {
		if f.Field == "date" || f.Field == "hour" {
			preds = append(preds, fmt.Sprintf("r.%s == %s", f.Field, strconv.Quote(f.Value)))
		}
	}
	return fmt.Sprintf(`from(bucket: %s)
  |> range(start: 0)
  |> filter(fn: (r) => %s)
  |> pivot(rowKey: ["_time", "id"], columnKey: ["_field"], valueColumn: "_value")
  |> group()
  |> sort(columns: ["_time"])`, strconv.Quote(bucket), strings.Join(preds, " and "))
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	}
	return 0
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}
