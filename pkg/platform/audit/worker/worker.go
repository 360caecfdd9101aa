package worker

import (
	"context"
	"log/slog"

	audit "volunteerhub/pkg/platform/audit"
)

// Worker drains lifecycle events from a channel into a store so emitters
// never block on the sink. A failed append is logged and dropped: lifecycle
// events are best-effort by contract.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func New(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.WarnContext(ctx, "lifecycle event dropped",
					"action", string(event.Action),
					"error", err.Error(),
				)
			}
		}
	}
}
