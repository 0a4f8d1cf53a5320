package bridge

import (
	"context"
	"log"
	"reflect"
	"strconv"
	"sync"

	"github.com/lucaslui/minermonitor/internal/archive"
	"github.com/lucaslui/minermonitor/internal/livestore"
	"github.com/lucaslui/minermonitor/internal/model"
)

// RejectSink receives the history entries that could not be archived.
type RejectSink interface {
	Reject(ctx context.Context, id model.HelmetID, key string, raw any, reason error) error
}

// Syncer archives a helmet's history buffer and clears the entries it read only once
// every one of them is written. A failed run leaves the buffer intact, so a retry may
// write some readings twice but never loses one. Readings pushed while a run is in
// progress stay in the buffer for the next run.
type Syncer struct {
	live    livestore.Store
	archive archive.Store
	rejects RejectSink
	logger  *log.Logger

	mu       sync.Mutex
	inflight map[model.HelmetID]struct{}
}

func NewSyncer(live livestore.Store, arch archive.Store, rejects RejectSink, logger *log.Logger) *Syncer {
	return &Syncer{
		live:     live,
		archive:  arch,
		rejects:  rejects,
		logger:   logger,
		inflight: map[model.HelmetID]struct{}{},
	}
}

func (s *Syncer) Running(id model.HelmetID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[id]
	return ok
}

func (s *Syncer) acquire(id model.HelmetID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Syncer) release(id model.HelmetID) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// Sync runs one archival pass for a helmet. Writes are sequential; the first failed
// append stops the run before the buffer is touched.
func (s *Syncer) Sync(ctx context.Context, id model.HelmetID) (model.SyncResult, error) {
	res := model.SyncResult{HelmetID: id}
	if !s.acquire(id) {
		return res, model.ErrSyncInProgress
	}
	defer s.release(id)

	path := livestore.HistoryPath(id)
	raw, err := s.live.Get(ctx, path)
	if err != nil {
		s.logger.Printf("[sync] %s read buffer: %v", id, err)
		return res, model.StoreError("read", path, err)
	}

	entries := pendingEntries(raw)
	if len(entries) == 0 {
		res.NothingToSync = true
		s.logger.Printf("[sync] %s nothing to sync", id)
		return res, nil
	}

	for _, e := range entries {
		rec, err := ToRecord(e.key, e.value)
		if err != nil {
			res.Skipped++
			s.logger.Printf("[sync] %s skipping entry: %v", id, err)
			s.reject(ctx, id, e, err)
			continue
		}

		coll := archive.PointsPath(id, rec.Date, rec.Hour)
		if _, err := s.archive.Append(ctx, coll, rec); err != nil {
			s.logger.Printf("[sync] %s aborted after %d of %d entries, buffer kept: %v", id, res.Written, len(entries), err)
			return res, model.StoreError("append", coll, err)
		}
		res.Written++
	}

	if err := s.clear(ctx, path, entries); err != nil {
		s.logger.Printf("[sync] %s wrote %d records but could not clear buffer: %v", id, res.Written, err)
		return res, err
	}
	s.logger.Printf("[sync] %s archived %d records (%d skipped)", id, res.Written, res.Skipped)
	return res, nil
}

// clear removes exactly the entries a run read, skipped ones included.
func (s *Syncer) clear(ctx context.Context, path string, read []pendingEntry) error {
	raw, err := s.live.Get(ctx, path)
	if err != nil {
		return model.StoreError("read", path, err)
	}
	if list, ok := raw.([]any); ok {
		return s.clearList(ctx, path, list, read)
	}
	for _, e := range read {
		p := path + "/" + e.key
		if err := s.live.Delete(ctx, p); err != nil {
			return model.StoreError("delete", p, err)
		}
	}
	return nil
}

// clearList drops the read slots that still hold the value that was archived and
// rewrites whatever else the list holds.
func (s *Syncer) clearList(ctx context.Context, path string, list []any, read []pendingEntry) error {
	archived := make(map[string]any, len(read))
	for _, e := range read {
		archived[e.key] = e.value
	}
	var rest []any
	for i, v := range list {
		if v == nil {
			continue
		}
		if old, ok := archived[strconv.Itoa(i)]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		rest = append(rest, v)
	}
	if len(rest) == 0 {
		if err := s.live.Delete(ctx, path); err != nil {
			return model.StoreError("delete", path, err)
		}
		return nil
	}
	if err := s.live.Set(ctx, path, rest); err != nil {
		return model.StoreError("write", path, err)
	}
	return nil
}

func (s *Syncer) reject(ctx context.Context, id model.HelmetID, e pendingEntry, reason error) {
	if s.rejects == nil {
		return
	}
	if err := s.rejects.Reject(ctx, id, e.key, e.value, reason); err != nil {
		s.logger.Printf("[sync] %s reject sink: %v", id, err)
	}
}
