// Package command writes operator commands back into the live store.
package command

import (
	"context"
	"log"

	"github.com/lucaslui/minermonitor/internal/livestore"
	"github.com/lucaslui/minermonitor/internal/model"
)

type Resetter struct {
	live   livestore.Store
	logger *log.Logger
}

func NewResetter(live livestore.Store, logger *log.Logger) *Resetter {
	return &Resetter{live: live, logger: logger}
}

type write struct {
	path  string
	value any
}

func resetWrites(id model.HelmetID) []write {
	return []write{
		{livestore.CurrentPath(id) + "/emergency", false},
		{livestore.CommandPath(id, "emergency"), false},
		{livestore.CommandPath(id, "reset"), true},
	}
}

// Reset clears a helmet's emergency with three ordered writes. They are not atomic:
// on failure the earlier writes stay applied and the later ones are never attempted.
func (r *Resetter) Reset(ctx context.Context, id model.HelmetID) error {
	for i, w := range resetWrites(id) {
		if err := r.live.Set(ctx, w.path, w.value); err != nil {
			r.logger.Printf("[reset] %s stopped at step %d/3 (%s): %v", id, i+1, w.path, err)
			return &model.PartialCommandError{Step: i + 1, Path: w.path, Err: err}
		}
	}
	r.logger.Printf("[reset] %s emergency cleared", id)
	return nil
}
