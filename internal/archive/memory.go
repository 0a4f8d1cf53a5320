package archive

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/lucaslui/minermonitor/internal/model"
)

type Memory struct {
	mu   sync.RWMutex
	docs map[string][]model.HistoryRecord
}

func NewMemory() *Memory { return &Memory{docs: map[string][]model.HistoryRecord{}} }

func (m *Memory) Append(_ context.Context, collection string, rec model.HistoryRecord) (string, error) {
	rec.ID = uuid.NewString()
	key := strings.Trim(collection, "/")
	m.mu.Lock()
	m.docs[key] = append(m.docs[key], rec)
	m.mu.Unlock()
	return rec.ID, nil
}

func (m *Memory) Query(_ context.Context, collection string, filters []Filter, orderBy string) ([]model.HistoryRecord, error) {
	if err := validate(filters, orderBy); err != nil {
		return nil, err
	}
	m.mu.RLock()
	recs := append([]model.HistoryRecord(nil), m.docs[strings.Trim(collection, "/")]...)
	m.mu.RUnlock()
	return filterAndSort(recs, filters, orderBy), nil
}

// Count returns the number of documents across every collection.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, recs := range m.docs {
		n += len(recs)
	}
	return n
}
