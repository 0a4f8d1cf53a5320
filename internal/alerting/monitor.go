package alerting

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/lucaslui/minermonitor/internal/livestore"
	"github.com/lucaslui/minermonitor/internal/model"
	"github.com/lucaslui/minermonitor/internal/telemetry"
)

var (
	ErrNotRunning     = errors.New("monitor not running")
	ErrAlreadyRunning = errors.New("monitor already running")
)

type ViewState string

const (
	ViewLoading ViewState = "loading"
	ViewWaiting ViewState = "waiting"
	ViewReady   ViewState = "ready"
)

type HelmetView struct {
	ID        model.HelmetID     `json:"id"`
	State     model.CurrentState `json:"state"`
	Status    model.Status       `json:"status"`
	MapStatus model.Status       `json:"mapStatus"`
}

// View is what the dashboard renders. It is rebuilt after every event and never mutated.
type View struct {
	State     ViewState    `json:"state"`
	Helmets   []HelmetView `json:"helmets"`
	Alert     *model.Alert `json:"alert,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func (v View) HelmetIDs() []model.HelmetID {
	ids := make([]model.HelmetID, 0, len(v.Helmets))
	for _, h := range v.Helmets {
		ids = append(ids, h.ID)
	}
	return ids
}

type Options struct {
	Clock        Clock
	PollInterval time.Duration
	OfflineAfter time.Duration
	Thresholds   telemetry.Thresholds
	Siren        Siren
	Notifier     Notifier
	NotifyQueue  int
	Logger       *log.Logger
}

type eventKind int

const (
	evSnapshot eventKind = iota
	evTick
	evDismiss
)

type event struct {
	kind  eventKind
	raw   any
	at    time.Time
	reply chan dismissReply
}

type dismissReply struct {
	alert model.Alert
	ok    bool
}

// Monitor owns the Engine. Live-store pushes, poll ticks and dismissals all go through
// one goroutine and one apply function.
type Monitor struct {
	store        livestore.Store
	engine       *Engine
	clock        Clock
	poll         time.Duration
	offlineAfter time.Duration
	notifier     Notifier
	logger       *log.Logger

	dismissCh chan chan dismissReply
	notifyCh  chan model.AlertEvent
	lastAlert *model.Alert

	viewMu    sync.RWMutex
	view      View
	listeners []func(View)

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewMonitor(store livestore.Store, o Options) *Monitor {
	if o.Clock == nil {
		o.Clock = SystemClock{}
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 15 * time.Second
	}
	if o.OfflineAfter <= 0 {
		o.OfflineAfter = telemetry.OfflineAfter
	}
	if o.NotifyQueue <= 0 {
		o.NotifyQueue = 256
	}
	if o.Notifier == nil {
		o.Notifier = Notifiers{}
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard, "", 0)
	}
	return &Monitor{
		store:        store,
		engine:       NewEngine(EngineOptions{OfflineAfter: o.OfflineAfter, Thresholds: o.Thresholds, Siren: o.Siren}),
		clock:        o.Clock,
		poll:         o.PollInterval,
		offlineAfter: o.OfflineAfter,
		notifier:     o.Notifier,
		logger:       o.Logger,
		dismissCh:    make(chan chan dismissReply),
		notifyCh:     make(chan model.AlertEvent, o.NotifyQueue),
		view:         View{State: ViewLoading, Helmets: []HelmetView{}},
	}
}

// OnUpdate registers a callback run after every event. Register before Start.
// Callbacks must not block.
func (m *Monitor) OnUpdate(fn func(View)) {
	m.viewMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.viewMu.Unlock()
}

func (m *Monitor) View() View {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return m.view
}

// Start subscribes to the helmets tree and starts the poll ticker.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	updates, err := m.store.Subscribe(runCtx, livestore.Root)
	if err != nil {
		cancel()
		return err
	}
	ticker := m.clock.NewTicker(m.poll)

	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.loop(runCtx, updates, ticker)
	}()
	go func() {
		defer wg.Done()
		m.notifyLoop(runCtx)
	}()
	go func(done chan struct{}) {
		wg.Wait()
		close(done)
	}(m.done)

	m.logger.Printf("[monitor] started (poll=%s offlineAfter=%s)", m.poll, m.offlineAfter)
	return nil
}

// Stop releases the subscription and the ticker and silences the siren. It blocks
// until the event loop has exited.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.runMu.Unlock()

	cancel()
	<-done
	m.logger.Println("[monitor] stopped")
}

// Done is closed once a started monitor has fully stopped.
func (m *Monitor) Done() <-chan struct{} {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return m.done
}

// Dismiss closes the visible alert.
func (m *Monitor) Dismiss(ctx context.Context) (model.Alert, bool, error) {
	m.runMu.Lock()
	running, done := m.running, m.done
	m.runMu.Unlock()
	if !running {
		return model.Alert{}, false, ErrNotRunning
	}

	reply := make(chan dismissReply, 1)
	select {
	case m.dismissCh <- reply:
	case <-done:
		return model.Alert{}, false, ErrNotRunning
	case <-ctx.Done():
		return model.Alert{}, false, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.alert, r.ok, nil
	case <-ctx.Done():
		return model.Alert{}, false, ctx.Err()
	}
}

func (m *Monitor) loop(ctx context.Context, updates <-chan livestore.Update, ticker Ticker) {
	defer ticker.Stop()
	defer m.engine.Shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if u.Err != nil {
				m.logger.Printf("[monitor] live store read error, keeping last snapshot: %v", u.Err)
				continue
			}
			m.apply(event{kind: evSnapshot, raw: u.Value, at: m.clock.Now()})

		case <-ticker.C():
			m.apply(event{kind: evTick, at: m.clock.Now()})

		case reply := <-m.dismissCh:
			m.apply(event{kind: evDismiss, at: m.clock.Now(), reply: reply})
		}
	}
}

func (m *Monitor) apply(ev event) {
	var edges []model.Alert
	switch ev.kind {
	case evSnapshot:
		snap := telemetry.Normalize(ev.raw)
		edges = m.engine.HandleSnapshot(snap, ev.at)
	case evTick:
		edges = m.engine.HandleTick(ev.at)
	case evDismiss:
		a, ok := m.engine.Dismiss()
		ev.reply <- dismissReply{alert: a, ok: ok}
		if ok {
			m.logger.Printf("[alert] %s alert for helmet %s dismissed", a.Kind, a.HelmetID)
		}
	}

	for _, e := range edges {
		m.logger.Printf("[alert] helmet %s went offline (last reading %s)", e.HelmetID, e.State.RawTimestamp)
	}
	m.publish(ev.at)
}

func (m *Monitor) publish(now time.Time) {
	snap, has := m.engine.Snapshot()
	v := View{State: ViewLoading, Helmets: []HelmetView{}, UpdatedAt: now}
	if has {
		v.State = ViewWaiting
		if len(snap) > 0 {
			v.State = ViewReady
		}
		for _, id := range snap.IDs() {
			st := snap[id]
			v.Helmets = append(v.Helmets, HelmetView{
				ID:        id,
				State:     st,
				Status:    telemetry.ClassifyWith(st, now, m.offlineAfter),
				MapStatus: telemetry.MapStatus(st, now),
			})
		}
	}

	if a, ok := m.engine.Active(); ok {
		v.Alert = &a
		if m.lastAlert == nil || !m.lastAlert.Same(a) {
			m.enqueue(NewAlertEvent(a, now))
		}
		m.lastAlert = &a
	} else {
		m.lastAlert = nil
	}

	m.viewMu.Lock()
	m.view = v
	listeners := m.listeners
	m.viewMu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}

func (m *Monitor) enqueue(evt model.AlertEvent) {
	select {
	case m.notifyCh <- evt:
	default:
		m.logger.Printf("[alert] notify queue full, dropping %s alert for helmet %s", evt.Kind, evt.HelmetID)
	}
}

func (m *Monitor) notifyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-m.notifyCh:
			nctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := m.notifier.Notify(nctx, evt); err != nil {
				m.logger.Printf("[alert] notify %s alert for helmet %s: %v", evt.Kind, evt.HelmetID, err)
			} else {
				m.logger.Printf("[alert] %s alert for helmet %s delivered (event %s)", evt.Kind, evt.HelmetID, evt.EventID)
			}
			cancel()
		}
	}
}
