package bridge

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/lucaslui/minermonitor/internal/model"
)

// Scheduler syncs every known helmet on a fixed interval. Helmets already syncing
// (for instance from a manual trigger) are skipped for that round.
type Scheduler struct {
	syncer   *Syncer
	helmets  func() []model.HelmetID
	interval time.Duration
	logger   *log.Logger
}

func NewScheduler(s *Syncer, helmets func() []model.HelmetID, interval time.Duration, logger *log.Logger) *Scheduler {
	return &Scheduler{syncer: s, helmets: helmets, interval: interval, logger: logger}
}

func (sc *Scheduler) Run(ctx context.Context) error {
	if sc.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sc.RunOnce(ctx)
		}
	}
}

// RunOnce syncs every helmet sequentially and returns the total archived.
func (sc *Scheduler) RunOnce(ctx context.Context) int {
	total := 0
	for _, id := range sc.helmets() {
		if ctx.Err() != nil {
			break
		}
		res, err := sc.syncer.Sync(ctx, id)
		switch {
		case errors.Is(err, model.ErrSyncInProgress):
			sc.logger.Printf("[sync] scheduled run skipped %s, already running", id)
		case err != nil:
			sc.logger.Printf("[sync] scheduled run %s: %v", id, err)
		}
		total += res.Written
	}
	if total > 0 {
		sc.logger.Printf("[sync] scheduled run archived %d records", total)
	}
	return total
}
