package export

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/lucaslui/minermonitor/internal/archive"
	"github.com/lucaslui/minermonitor/internal/config"
	"github.com/lucaslui/minermonitor/internal/history"
	"github.com/lucaslui/minermonitor/internal/model"
)

type memUploader struct {
	objects map[string][]byte
	types   map[string]string
}

func (u *memUploader) Upload(_ context.Context, name string, r io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(b)) != size {
		return io.ErrShortWrite
	}
	u.objects[name] = b
	u.types[name] = contentType
	return nil
}

func TestToExportRecord(t *testing.T) {
	row, err := ToExportRecord("h1", model.HistoryRecord{
		ID: "r1", Ts: "2025-03-10T07:00:00.250Z", Date: "2025-03-10", Hour: "07",
		Lat: -23.5, Lng: -46.6, Temp: 31, Emergency: true, Active: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "h1", row.HelmetID)
	assert.Equal(t, "r1", row.RecordID)
	assert.Equal(t, time.Date(2025, 3, 10, 7, 0, 0, 250e6, time.UTC).UnixMilli(), row.Timestamp)
	assert.Equal(t, 31.0, row.Temp)
	assert.True(t, row.Emergency)

	_, err = ToExportRecord("h1", model.HistoryRecord{Ts: "yesterday"})
	assert.Error(t, err)
}

func TestObjectPath(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "exports/helmet=h1/year=2025/month=03/day=10/part.parquet", ObjectPath("exports", "h1", day, "part.parquet"))
}

func TestCodec(t *testing.T) {
	assert.Equal(t, "ZSTD", codec("ZSTD").String())
	assert.Equal(t, "GZIP", codec("GZIP").String())
	assert.Equal(t, "SNAPPY", codec("").String())
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	arch := archive.NewMemory()
	for _, r := range []model.HistoryRecord{
		{Ts: "2025-03-10T07:00:00.000Z", Date: "2025-03-10", Hour: "07", Temp: 20},
		{Ts: "2025-03-10T08:00:00.000Z", Date: "2025-03-10", Hour: "08", Temp: 22},
		{Ts: "broken", Date: "2025-03-10", Hour: "08"},
	} {
		_, err := arch.Append(ctx, archive.PointsPath("h1", r.Date, r.Hour), r)
		require.NoError(t, err)
	}

	tmp := t.TempDir()
	up := &memUploader{objects: map[string][]byte{}, types: map[string]string{}}
	e := &Exporter{
		Reader:      history.NewReader(arch),
		Uploader:    up,
		BasePath:    "exports",
		Compression: "SNAPPY",
		TmpDir:      tmp,
		Logger:      config.DiscardLogger(),
	}

	res, err := e.Export(ctx, "h1", "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Regexp(t, `^exports/helmet=h1/year=2025/month=03/day=10/part-.*\.parquet$`, res.Object)
	assert.Equal(t, "application/octet-stream", up.types[res.Object])

	left, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, left, "temporary file removed")

	// Read the uploaded bytes back through the parquet reader.
	file := filepath.Join(t.TempDir(), "out.parquet")
	require.NoError(t, os.WriteFile(file, up.objects[res.Object], 0o600))
	fr, err := local.NewLocalFileReader(file)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(model.ExportRecord), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	assert.Equal(t, int64(2), pr.GetNumRows())

	rows := make([]model.ExportRecord, 2)
	require.NoError(t, pr.Read(&rows))
	assert.Equal(t, "h1", rows[0].HelmetID)
	assert.Equal(t, 20.0, rows[0].Temp)
	assert.True(t, bytes.HasPrefix(up.objects[res.Object], []byte("PAR1")))
}

func TestExport_EmptyDay(t *testing.T) {
	up := &memUploader{objects: map[string][]byte{}, types: map[string]string{}}
	e := &Exporter{
		Reader:   history.NewReader(archive.NewMemory()),
		Uploader: up,
		BasePath: "exports",
		Logger:   config.DiscardLogger(),
	}
	res, err := e.Export(context.Background(), "h1", "2025-03-10")
	require.NoError(t, err)
	assert.Zero(t, res.Rows)
	assert.Empty(t, up.objects)

	_, err = e.Export(context.Background(), "h1", "10/03/2025")
	assert.Error(t, err)
}
