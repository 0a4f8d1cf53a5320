package livestore

import (
	"context"
	"sync"
)

// Memory is an in-process live store, used for local runs and tests.
type Memory struct {
	mu   sync.Mutex
	root map[string]any
	subs map[*subscriber]struct{}
}

type subscriber struct {
	path []string
	ch   chan Update
}

func NewMemory() *Memory {
	return &Memory{root: map[string]any{}, subs: map[*subscriber]struct{}{}}
}

func (m *Memory) Get(_ context.Context, path string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(lookup(m.root, splitPath(path))), nil
}

func (m *Memory) Set(_ context.Context, path string, value any) error {
	v, err := normalize(value)
	if err != nil {
		return err
	}
	if emptyValue(v) {
		v = nil
	}

	parts := splitPath(path)
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(parts) == 0 {
		root, _ := v.(map[string]any)
		if root == nil {
			root = map[string]any{}
		}
		m.root = root
	} else {
		assign(m.root, parts, v)
	}
	m.notifyLocked(parts)
	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	return m.Set(ctx, path, nil)
}

func (m *Memory) Subscribe(ctx context.Context, path string) (<-chan Update, error) {
	sub := &subscriber{path: splitPath(path), ch: make(chan Update, 1)}

	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.pushLocked(sub)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, sub)
		close(sub.ch)
		m.mu.Unlock()
	}()
	return sub.ch, nil
}

func (m *Memory) notifyLocked(changed []string) {
	for sub := range m.subs {
		if related(sub.path, changed) {
			m.pushLocked(sub)
		}
	}
}

func (m *Memory) pushLocked(sub *subscriber) {
	u := Update{Path: joinPath(sub.path), Value: clone(lookup(m.root, sub.path))}
	offerLatest(sub.ch, u)
}

// offerLatest replaces a pending unread update instead of blocking the writer.
func offerLatest(ch chan Update, u Update) {
	for {
		select {
		case ch <- u:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
