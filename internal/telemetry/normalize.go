// Package telemetry turns the raw helmets tree into typed snapshots and classifies
// each helmet's liveness.
package telemetry

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/lucaslui/minermonitor/internal/model"
)

// Normalize builds the fleet snapshot from the decoded helmets subtree. Anything that is
// not an object keyed by helmet id yields an empty snapshot.
func Normalize(raw any) model.Snapshot {
	snap := model.Snapshot{}
	helmets, ok := raw.(map[string]any)
	if !ok {
		return snap
	}
	for id, node := range helmets {
		h, ok := node.(map[string]any)
		if !ok {
			continue
		}
		current, _ := h["current"].(map[string]any)
		commands, _ := h["commands"].(map[string]any)
		snap[model.HelmetID(id)] = normalizeState(current, commands)
	}
	return snap
}

func normalizeState(current, commands map[string]any) model.CurrentState {
	st := model.CurrentState{
		Latitude:         Number(current["latitude"]),
		Longitude:        Number(current["longitude"]),
		Temperature:      Number(current["temperature"]),
		SensorEmergency:  Bool(current["emergency"]),
		CommandEmergency: Bool(commands["emergency"]),
		Active:           Bool(current["active"]),
	}
	st.Emergency = DisplayedEmergency(st.SensorEmergency, st.CommandEmergency)

	if ts, ok := current["timestamp"].(string); ok {
		st.RawTimestamp = ts
		if t, err := ParseTimestamp(ts); err == nil {
			st.Timestamp = t
		}
	}
	return st
}

// DisplayedEmergency is the single rule joining the sensor bit and the command channel.
func DisplayedEmergency(sensor, command bool) bool { return sensor || command }

// Zone-less layouts are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the zone-less ISO-8601 forms in timestampLayouts.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// Number reads a JSON-ish numeric value. Absent or non-numeric input gives nil.
func Number(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return nil
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = n
	default:
		return nil
	}
	return &f
}

func Bool(v any) bool {
	b, _ := v.(bool)
	return b
}
