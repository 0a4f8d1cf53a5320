package alerting

import (
	"time"

	"github.com/lucaslui/minermonitor/internal/model"
	"github.com/lucaslui/minermonitor/internal/telemetry"
)

// OfflineDetector remembers the last online/offline verdict per helmet so that an
// offline alert fires on the online→offline edge only.
type OfflineDetector struct {
	after  time.Duration
	online map[model.HelmetID]bool
	seeded bool
}

func NewOfflineDetector(after time.Duration) *OfflineDetector {
	if after <= 0 {
		after = telemetry.OfflineAfter
	}
	return &OfflineDetector{after: after, online: map[model.HelmetID]bool{}}
}

func (d *OfflineDetector) Seeded() bool { return d.seeded }

// Seed fills the table from the first snapshot without raising anything. It only
// acts once; later calls return false.
func (d *OfflineDetector) Seed(snap model.Snapshot, now time.Time) bool {
	if d.seeded {
		return false
	}
	d.seeded = true
	for id, st := range snap {
		if !st.HasTimestamp() {
			continue
		}
		d.online[id] = !telemetry.IsStale(st, now, d.after)
	}
	return true
}

// Evaluate updates the table and returns one alert per helmet that just went silent.
// Helmets in emergency are never offline for alerting, however old their reading.
func (d *OfflineDetector) Evaluate(snap model.Snapshot, now time.Time) []model.Alert {
	var edges []model.Alert
	for _, id := range snap.IDs() {
		st := snap[id]
		if !st.HasTimestamp() {
			continue
		}
		isOffline := telemetry.IsStale(st, now, d.after) && !st.Emergency
		wasOnline, seen := d.online[id]
		if !seen {
			wasOnline = true
		}
		if isOffline && wasOnline {
			edges = append(edges, model.Alert{Kind: model.AlertOffline, HelmetID: id, State: st, RaisedAt: now})
		}
		d.online[id] = !isOffline
	}
	return edges
}

// WasOnline exposes the table entry for a helmet.
func (d *OfflineDetector) WasOnline(id model.HelmetID) (online, known bool) {
	online, known = d.online[id]
	return online, known
}
