// Package alerting decides which single alert the control room sees and when the siren
// plays. Engine is the synchronous state machine; Monitor drives it from the live store
// and a poll ticker.
package alerting

import (
	"time"

	"github.com/lucaslui/minermonitor/internal/model"
	"github.com/lucaslui/minermonitor/internal/telemetry"
)

// Siren is the looping emergency sound of the dashboard. Stop also rewinds it.
type Siren interface {
	Start(alert model.Alert)
	Stop()
}

type NopSiren struct{}

func (NopSiren) Start(model.Alert) {}
func (NopSiren) Stop()             {}

type EngineOptions struct {
	OfflineAfter time.Duration
	Thresholds   telemetry.Thresholds
	Siren        Siren
}

// Engine is not safe for concurrent use. Monitor serializes every call.
type Engine struct {
	thresholds telemetry.Thresholds
	detector   *OfflineDetector
	siren      Siren
	sirenOn    bool

	snapshot    model.Snapshot
	hasSnapshot bool

	emergency   *model.Alert
	temperature *model.Alert
	offline     *model.Alert
	dismissed   bool
}

func NewEngine(o EngineOptions) *Engine {
	if o.Thresholds == (telemetry.Thresholds{}) {
		o.Thresholds = telemetry.DefaultThresholds
	}
	if o.Siren == nil {
		o.Siren = NopSiren{}
	}
	return &Engine{
		thresholds: o.Thresholds,
		detector:   NewOfflineDetector(o.OfflineAfter),
		siren:      o.Siren,
		snapshot:   model.Snapshot{},
	}
}

func (e *Engine) Snapshot() (model.Snapshot, bool) { return e.snapshot, e.hasSnapshot }

func (e *Engine) Detector() *OfflineDetector { return e.detector }

// HandleSnapshot recomputes every candidate for a new fleet snapshot and returns the
// offline edges detected on it.
func (e *Engine) HandleSnapshot(snap model.Snapshot, now time.Time) []model.Alert {
	if snap == nil {
		snap = model.Snapshot{}
	}
	e.snapshot = snap
	e.hasSnapshot = true
	e.dismissed = false

	if len(snap) == 0 {
		e.emergency, e.temperature, e.offline = nil, nil, nil
		e.setSiren(nil)
		return nil
	}

	ids := snap.IDs()
	e.emergency = e.pick(model.AlertEmergency, e.emergency, ids, now, func(st model.CurrentState) bool {
		return st.Emergency
	})
	prevTemp := e.temperature
	e.temperature = nil
	if e.emergency == nil {
		e.temperature = e.pick(model.AlertTemperature, prevTemp, ids, now, e.thresholds.TemperatureCritical)
	}
	e.setSiren(e.emergency)

	if e.detector.Seed(snap, now) {
		return nil
	}
	edges := e.detector.Evaluate(snap, now)
	e.takeOffline(edges)
	return edges
}

// HandleTick re-checks silence on the last snapshot. A fresh edge also lifts a dismissal.
func (e *Engine) HandleTick(now time.Time) []model.Alert {
	if !e.hasSnapshot || !e.detector.Seeded() {
		return nil
	}
	edges := e.detector.Evaluate(e.snapshot, now)
	if len(edges) > 0 {
		e.takeOffline(edges)
		e.dismissed = false
	}
	return edges
}

// Active returns the visible alert: emergency, then temperature, then offline.
func (e *Engine) Active() (model.Alert, bool) {
	if e.dismissed {
		return model.Alert{}, false
	}
	for _, a := range []*model.Alert{e.emergency, e.temperature, e.offline} {
		if a != nil {
			return *a, true
		}
	}
	return model.Alert{}, false
}

// Dismiss closes the visible alert. Nothing shows until the next recomputation.
func (e *Engine) Dismiss() (model.Alert, bool) {
	a, ok := e.Active()
	if !ok {
		return model.Alert{}, false
	}
	switch a.Kind {
	case model.AlertEmergency:
		e.emergency = nil
		e.setSiren(nil)
	case model.AlertTemperature:
		e.temperature = nil
	case model.AlertOffline:
		e.offline = nil
	}
	e.dismissed = true
	return a, true
}

func (e *Engine) Shutdown() { e.setSiren(nil) }

// pick returns the first matching helmet. A helmet already holding the slot keeps its
// original RaisedAt so the alert stays the same alert across snapshots.
func (e *Engine) pick(kind model.AlertKind, prev *model.Alert, ids []model.HelmetID, now time.Time, match func(model.CurrentState) bool) *model.Alert {
	for _, id := range ids {
		st := e.snapshot[id]
		if !match(st) {
			continue
		}
		raised := now
		if prev != nil && prev.HelmetID == id {
			raised = prev.RaisedAt
		}
		return &model.Alert{Kind: kind, HelmetID: id, State: st, RaisedAt: raised}
	}
	return nil
}

func (e *Engine) takeOffline(edges []model.Alert) {
	if len(edges) == 0 {
		return
	}
	a := edges[0]
	e.offline = &a
}

func (e *Engine) setSiren(a *model.Alert) {
	switch {
	case a != nil && !e.sirenOn:
		e.sirenOn = true
		e.siren.Start(*a)
	case a == nil && e.sirenOn:
		e.sirenOn = false
		e.siren.Stop()
	}
}
