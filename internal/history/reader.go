// Package history reads archived helmet readings back per hour and per day.
package history

import (
	"context"
	"fmt"

	"github.com/lucaslui/minermonitor/internal/archive"
	"github.com/lucaslui/minermonitor/internal/model"
)

type Reader struct {
	archive archive.Store
}

func NewReader(arch archive.Store) *Reader { return &Reader{archive: arch} }

// Hour returns one hour partition in timestamp order.
func (r *Reader) Hour(ctx context.Context, id model.HelmetID, date, hour string) ([]model.HistoryRecord, error) {
	coll := archive.PointsPath(id, date, hour)
	recs, err := r.archive.Query(ctx, coll, []archive.Filter{
		{Field: "date", Value: date},
		{Field: "hour", Value: hour},
	}, archive.OrderByTs)
	if err != nil {
		return nil, model.StoreError("query", coll, err)
	}
	return recs, nil
}

// Day concatenates the 24 hour partitions of a date.
func (r *Reader) Day(ctx context.Context, id model.HelmetID, date string) ([]model.HistoryRecord, error) {
	var out []model.HistoryRecord
	for _, h := range archive.Hours() {
		recs, err := r.Hour(ctx, id, date, h)
		if err != nil {
			return out, fmt.Errorf("day %s hour %s: %w", date, h, err)
		}
		out = append(out, recs...)
	}
	return out, nil
}
