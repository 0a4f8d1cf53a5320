// Package export writes one helmet-day of archived readings as a parquet file to the
// object store.
package export

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lucaslui/minermonitor/internal/archive"
	"github.com/lucaslui/minermonitor/internal/model"
)

type Uploader interface {
	Upload(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
}

type DayReader interface {
	Day(ctx context.Context, id model.HelmetID, date string) ([]model.HistoryRecord, error)
}

type Result struct {
	Object string
	Rows   int
}

type Exporter struct {
	Reader      DayReader
	Uploader    Uploader
	BasePath    string
	Compression string
	TmpDir      string
	Logger      *log.Logger
}

// ObjectPath places a day file under {base}/helmet={id}/year=/month=/day=.
func ObjectPath(base string, id model.HelmetID, day time.Time, file string) string {
	return archive.BuildObjectPath(fmt.Sprintf("%s/helmet=%s", base, id), day, file)
}

func ToExportRecord(id model.HelmetID, r model.HistoryRecord) (model.ExportRecord, error) {
	ts, err := time.Parse(time.RFC3339Nano, r.Ts)
	if err != nil {
		return model.ExportRecord{}, fmt.Errorf("record %s: bad ts %q: %w", r.ID, r.Ts, err)
	}
	return model.ExportRecord{
		HelmetID:  string(id),
		RecordID:  r.ID,
		Timestamp: model.ToMillis(ts),
		Date:      r.Date,
		Hour:      r.Hour,
		Lat:       r.Lat,
		Lng:       r.Lng,
		Temp:      r.Temp,
		Emergency: r.Emergency,
		Active:    r.Active,
	}, nil
}

// Export writes the day to a temporary parquet file, uploads it and removes the file.
// A day without readings uploads nothing and returns zero rows.
func (e *Exporter) Export(ctx context.Context, id model.HelmetID, date string) (Result, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return Result{}, fmt.Errorf("date %q: %w", date, err)
	}
	recs, err := e.Reader.Day(ctx, id, date)
	if err != nil {
		return Result{}, err
	}
	if len(recs) == 0 {
		e.Logger.Printf("[export] %s %s has no readings, nothing exported", id, date)
		return Result{}, nil
	}

	fn := fmt.Sprintf("part-%s-%s.parquet", time.Now().UTC().Format("2006-01-02T15-04-05Z"), uuid.NewString())
	dir := e.TmpDir
	if dir == "" {
		dir = os.TempDir()
	}
	tmp := filepath.Join(dir, fn)
	defer os.Remove(tmp)

	pw, closeFn, err := NewLocalParquetWriter[model.ExportRecord](tmp, 4, e.Compression)
	if err != nil {
		return Result{}, err
	}
	rows := 0
	for _, r := range recs {
		row, err := ToExportRecord(id, r)
		if err != nil {
			e.Logger.Printf("[export] %s skipping: %v", id, err)
			continue
		}
		if err := pw.Write(row); err != nil {
			_ = closeFn()
			return Result{}, err
		}
		rows++
	}
	if err := closeFn(); err != nil {
		return Result{}, err
	}

	f, err := os.Open(tmp)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return Result{}, err
	}

	obj := ObjectPath(e.BasePath, id, day, fn)
	if err := e.Uploader.Upload(ctx, obj, f, fi.Size(), "application/octet-stream"); err != nil {
		return Result{}, fmt.Errorf("upload %s: %w", obj, err)
	}
	e.Logger.Printf("[export] %s %s: %d rows -> %s", id, date, rows, obj)
	return Result{Object: obj, Rows: rows}, nil
}
