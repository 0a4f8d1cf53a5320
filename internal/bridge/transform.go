// Package bridge moves buffered helmet history from the live store into the archive.
package bridge

import (
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lucaslui/minermonitor/internal/archive"
	"github.com/lucaslui/minermonitor/internal/model"
	"github.com/lucaslui/minermonitor/internal/telemetry"
)

// TsLayout is fixed width so that ts strings sort chronologically.
const TsLayout = "2006-01-02T15:04:05.000Z07:00"

const entrySchema = `{
  "type": "object",
  "required": ["timestamp"],
  "properties": {
    "timestamp": {"type": "string", "minLength": 1}
  }
}`

var historyEntrySchema = jsonschema.MustCompileString("history-entry.json", entrySchema)

type pendingEntry struct {
	key   string
	value any
}

// pendingEntries lists a history buffer in the store's order: push keys ascending for
// objects, index order for arrays.
func pendingEntries(raw any) []pendingEntry {
	var out []pendingEntry
	switch t := raw.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, pendingEntry{key: k, value: t[k]})
		}
	case []any:
		for i, v := range t {
			if v == nil {
				continue
			}
			out = append(out, pendingEntry{key: strconv.Itoa(i), value: v})
		}
	}
	return out
}

// ToRecord turns one buffered reading into its archive document. Missing optional
// readings get archive defaults; active defaults to true.
func ToRecord(key string, raw any) (model.HistoryRecord, error) {
	if err := historyEntrySchema.Validate(raw); err != nil {
		return model.HistoryRecord{}, &model.MalformedRecordError{Key: key, Reason: firstLine(err.Error())}
	}
	entry, ok := raw.(map[string]any)
	if !ok {
		return model.HistoryRecord{}, &model.MalformedRecordError{Key: key, Reason: "not an object"}
	}

	ts, _ := entry["timestamp"].(string)
	t, err := telemetry.ParseTimestamp(ts)
	if err != nil {
		return model.HistoryRecord{}, &model.MalformedRecordError{Key: key, Reason: "unparseable timestamp " + strconv.Quote(ts)}
	}

	rec := model.HistoryRecord{
		Lat:       orZero(telemetry.Number(entry["latitude"])),
		Lng:       orZero(telemetry.Number(entry["longitude"])),
		Temp:      orZero(telemetry.Number(entry["temperature"])),
		Emergency: telemetry.Bool(entry["emergency"]),
		Active:    true,
		Ts:        t.UTC().Format(TsLayout),
	}
	if a, ok := entry["active"].(bool); ok {
		rec.Active = a
	}
	rec.Date, rec.Hour = archive.PartitionOf(t)
	return rec, nil
}

func orZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
