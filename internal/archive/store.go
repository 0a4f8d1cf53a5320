// Package archive is the queryable history store the sync job moves readings into.
package archive

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lucaslui/minermonitor/internal/model"
)

// Filter is an equality match on one record field: date, hour, ts, emergency or active.
type Filter struct {
	Field string
	Value string
}

const OrderByTs = "ts"

type Store interface {
	// Append writes rec as a new document and returns its generated id.
	Append(ctx context.Context, collection string, rec model.HistoryRecord) (string, error)
	// Query returns the documents of a collection matching every filter, sorted
	// ascending by orderBy ("" keeps backend order).
	Query(ctx context.Context, collection string, filters []Filter, orderBy string) ([]model.HistoryRecord, error)
}

// PointsPath is the hour partition of one helmet's readings.
func PointsPath(id model.HelmetID, date, hour string) string {
	return fmt.Sprintf("helmets/%s/days/%s/hours/%s/points", id, date, hour)
}

// PartitionOf derives the UTC date and hour partitions of an instant.
func PartitionOf(t time.Time) (date, hour string) {
	u := t.UTC()
	return u.Format("2006-01-02"), u.Format("15")
}

// Hours lists the 24 hour partitions of a day.
func Hours() []string {
	out := make([]string, 24)
	for h := range out {
		out[h] = fmt.Sprintf("%02d", h)
	}
	return out
}

func fieldValue(rec model.HistoryRecord, field string) (string, bool) {
	switch field {
	case "date":
		return rec.Date, true
	case "hour":
		return rec.Hour, true
	case "ts":
		return rec.Ts, true
	case "emergency":
		return fmt.Sprintf("%t", rec.Emergency), true
	case "active":
		return fmt.Sprintf("%t", rec.Active), true
	}
	return "", false
}

func validate(filters []Filter, orderBy string) error {
	for _, f := range filters {
		if _, ok := fieldValue(model.HistoryRecord{}, f.Field); !ok {
			return fmt.Errorf("unsupported filter field %q", f.Field)
		}
	}
	if _, ok := fieldValue(model.HistoryRecord{}, orderBy); orderBy != "" && !ok {
		return fmt.Errorf("unsupported order field %q", orderBy)
	}
	return nil
}

func matches(rec model.HistoryRecord, filters []Filter) bool {
	for _, f := range filters {
		if v, _ := fieldValue(rec, f.Field); v != f.Value {
			return false
		}
	}
	return true
}

func sortBy(recs []model.HistoryRecord, orderBy string) {
	if orderBy == "" {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		a, _ := fieldValue(recs[i], orderBy)
		b, _ := fieldValue(recs[j], orderBy)
		return a < b
	})
}

// filterAndSort is shared by the backends that cannot filter server-side.
func filterAndSort(recs []model.HistoryRecord, filters []Filter, orderBy string) []model.HistoryRecord {
	out := make([]model.HistoryRecord, 0, len(recs))
	for _, r := range recs {
		if matches(r, filters) {
			out = append(out, r)
		}
	}
	sortBy(out, orderBy)
	return out
}
