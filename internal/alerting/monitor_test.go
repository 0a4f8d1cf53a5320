package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucaslui/minermonitor/internal/livestore"
	"github.com/lucaslui/minermonitor/internal/model"
)

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	ticks chan time.Time
	stops int
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at, ticks: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) NewTicker(time.Duration) Ticker { return &fakeTicker{c} }

// Tick blocks until the monitor has taken the tick.
func (c *fakeClock) Tick() { c.ticks <- c.Now() }

type fakeTicker struct{ c *fakeClock }

func (t *fakeTicker) C() <-chan time.Time { return t.c.ticks }
func (t *fakeTicker) Stop() {
	t.c.mu.Lock()
	t.c.stops++
	t.c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.AlertEvent
}

func (n *recordingNotifier) Notify(_ context.Context, evt model.AlertEvent) error {
	n.mu.Lock()
	n.events = append(n.events, evt)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) Events() []model.AlertEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.AlertEvent(nil), n.events...)
}

type syncSiren struct {
	mu      sync.Mutex
	playing bool
}

func (s *syncSiren) Start(model.Alert) { s.mu.Lock(); s.playing = true; s.mu.Unlock() }
func (s *syncSiren) Stop()             { s.mu.Lock(); s.playing = false; s.mu.Unlock() }
func (s *syncSiren) Playing() bool     { s.mu.Lock(); defer s.mu.Unlock(); return s.playing }

type harness struct {
	store    *livestore.Memory
	clock    *fakeClock
	notifier *recordingNotifier
	siren    *syncSiren
	mon      *Monitor
	views    chan View
}

func startHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    livestore.NewMemory(),
		clock:    newFakeClock(t0),
		notifier: &recordingNotifier{},
		siren:    &syncSiren{},
		views:    make(chan View, 64),
	}
	h.mon = NewMonitor(h.store, Options{Clock: h.clock, Notifier: h.notifier, Siren: h.siren})
	h.mon.OnUpdate(func(v View) { h.views <- v })
	require.NoError(t, h.mon.Start(context.Background()))
	t.Cleanup(h.mon.Stop)
	return h
}

func (h *harness) nextView(t *testing.T) View {
	t.Helper()
	select {
	case v := <-h.views:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no view published")
		return View{}
	}
}

func (h *harness) put(t *testing.T, path string, v any) View {
	t.Helper()
	require.NoError(t, h.store.Set(context.Background(), path, v))
	return h.nextView(t)
}

func current(at time.Time, extra map[string]any) map[string]any {
	c := map[string]any{"timestamp": at.Format(time.RFC3339Nano), "temperature": 25, "active": true}
	for k, v := range extra {
		c[k] = v
	}
	return c
}

func TestMonitor_LoadingWaitingReady(t *testing.T) {
	h := startHarness(t)
	assert.Equal(t, ViewLoading, NewMonitor(h.store, Options{}).View().State)

	v := h.nextView(t)
	assert.Equal(t, ViewWaiting, v.State)
	assert.Empty(t, v.Helmets)

	v = h.put(t, "helmets/h1/current", current(t0, nil))
	assert.Equal(t, ViewReady, v.State)
	require.Len(t, v.Helmets, 1)
	assert.Equal(t, model.StatusActive, v.Helmets[0].Status)
	assert.Equal(t, v, h.mon.View())
}

func TestMonitor_CommandEmergencyRaisesAlertAndSiren(t *testing.T) {
	h := startHarness(t)
	h.nextView(t)
	h.put(t, "helmets/h1/current", current(t0, nil))

	v := h.put(t, "helmets/h1/commands/emergency", true)
	require.NotNil(t, v.Alert)
	assert.Equal(t, model.AlertEmergency, v.Alert.Kind)
	assert.Equal(t, model.StatusEmergency, v.Helmets[0].Status)
	assert.True(t, h.siren.Playing())

	require.Eventually(t, func() bool { return len(h.notifier.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)
	evt := h.notifier.Events()[0]
	assert.Equal(t, model.AlertEmergency, evt.Kind)
	assert.NotEmpty(t, evt.EventID)

	// same emergency on the next push is not a new notification
	h.put(t, "helmets/h1/current/temperature", 26)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.notifier.Events(), 1)
}

func TestMonitor_OfflineDetectedByTickWithoutSnapshots(t *testing.T) {
	h := startHarness(t)
	h.nextView(t)
	h.put(t, "helmets/h1/current", current(t0, nil))

	h.clock.Advance(3 * time.Minute)
	h.clock.Tick()
	v := h.nextView(t)
	require.NotNil(t, v.Alert)
	assert.Equal(t, model.AlertOffline, v.Alert.Kind)
	assert.Equal(t, model.StatusInactive, v.Helmets[0].Status)

	h.clock.Advance(15 * time.Second)
	h.clock.Tick()
	h.nextView(t)

	require.Eventually(t, func() bool { return len(h.notifier.Events()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.notifier.Events(), 1, "one alert per transition")
}

func TestMonitor_Dismiss(t *testing.T) {
	h := startHarness(t)
	h.nextView(t)
	h.put(t, "helmets/h1/current", current(t0, map[string]any{"temperature": 70}))

	a, ok, err := h.mon.Dismiss(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.AlertTemperature, a.Kind)
	v := h.nextView(t)
	assert.Nil(t, v.Alert)

	_, ok, err = h.mon.Dismiss(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	h.nextView(t)
}

func TestMonitor_StopReleasesEverything(t *testing.T) {
	h := startHarness(t)
	h.nextView(t)
	h.put(t, "helmets/h1/current", current(t0, map[string]any{"emergency": true}))
	require.True(t, h.siren.Playing())

	h.mon.Stop()
	assert.False(t, h.siren.Playing())
	assert.Equal(t, 1, h.clock.stops)
	<-h.mon.Done()

	_, _, err := h.mon.Dismiss(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)

	// writes after Stop reach nobody
	require.NoError(t, h.store.Set(context.Background(), "helmets/h2/current", current(t0, nil)))
	select {
	case v := <-h.views:
		t.Fatalf("view published after stop: %+v", v)
	case <-time.After(50 * time.Millisecond):
	}

	h.mon.Stop()
}

func TestMonitor_StartTwice(t *testing.T) {
	h := startHarness(t)
	assert.ErrorIs(t, h.mon.Start(context.Background()), ErrAlreadyRunning)
}
