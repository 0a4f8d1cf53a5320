package history

import (
	"sort"

	"github.com/lucaslui/minermonitor/internal/model"
)

// Summarize aggregates one day of readings. Records must be in timestamp order;
// an emergency episode is counted on every false to true transition.
func Summarize(date string, recs []model.HistoryRecord) model.DaySummary {
	s := model.DaySummary{Date: date, TotalPoints: len(recs), Hours: []string{}}
	if len(recs) == 0 {
		return s
	}

	var sum float64
	prevEmergency := false
	hours := map[string]struct{}{}
	active := map[string]struct{}{}
	for _, r := range recs {
		sum += r.Temp
		if r.Emergency && !prevEmergency {
			s.Emergencies++
		}
		prevEmergency = r.Emergency
		hours[r.Hour] = struct{}{}
		if r.Active {
			active[r.Hour] = struct{}{}
		}
	}

	avg := sum / float64(len(recs))
	s.AvgTemp = &avg
	s.ActiveHours = len(active)
	for h := range hours {
		s.Hours = append(s.Hours, h)
	}
	sort.Strings(s.Hours)
	return s
}
