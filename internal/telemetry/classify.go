package telemetry

import (
	"time"

	"github.com/lucaslui/minermonitor/internal/model"
)

const (
	// OfflineAfter is how old a reading may get before the helmet counts as silent.
	OfflineAfter = 2 * time.Minute
	// MapStaleAfter is the looser threshold of the map view.
	MapStaleAfter = 5 * time.Minute
)

// IsStale reports whether the reading is older than after. A helmet that never
// reported a timestamp is stale.
func IsStale(st model.CurrentState, now time.Time, after time.Duration) bool {
	if !st.HasTimestamp() {
		return true
	}
	return now.Sub(st.Timestamp) > after
}

// Classify is the status badge of a helmet card.
func Classify(st model.CurrentState, now time.Time) model.Status {
	return ClassifyWith(st, now, OfflineAfter)
}

func ClassifyWith(st model.CurrentState, now time.Time, after time.Duration) model.Status {
	switch {
	case st.Emergency:
		return model.StatusEmergency
	case IsStale(st, now, after):
		return model.StatusInactive
	default:
		return model.StatusActive
	}
}

// MapStatus is the pin status of the map view. It reports unknown when the helmet
// never sent a timestamp.
func MapStatus(st model.CurrentState, now time.Time) model.Status {
	switch {
	case st.Emergency:
		return model.StatusEmergency
	case !st.HasTimestamp():
		return model.StatusUnknown
	case now.Sub(st.Timestamp) > MapStaleAfter:
		return model.StatusInactive
	default:
		return model.StatusActive
	}
}

type Thresholds struct {
	High float64
	Low  float64
}

var DefaultThresholds = Thresholds{High: 50, Low: 15}

// TemperatureCritical only matches a reading that is present.
func (t Thresholds) TemperatureCritical(st model.CurrentState) bool {
	if st.Temperature == nil {
		return false
	}
	v := *st.Temperature
	return v > t.High || v < t.Low
}
