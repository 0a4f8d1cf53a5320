package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lucaslui/minermonitor/internal/model"
)

// Notifier receives every alert that becomes visible.
type Notifier interface {
	Notify(ctx context.Context, evt model.AlertEvent) error
}

// Notifiers fans an event out to every notifier and joins their errors.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, evt model.AlertEvent) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func NewAlertEvent(a model.Alert, at time.Time) model.AlertEvent {
	return model.AlertEvent{
		EventID:   uuid.NewString(),
		Kind:      a.Kind,
		HelmetID:  a.HelmetID,
		State:     a.State,
		RaisedAt:  a.RaisedAt,
		EmittedAt: at,
	}
}
