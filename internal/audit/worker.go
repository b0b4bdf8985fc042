package audit

import (
	"context"
	"fmt"
	"log/slog"

	"civica/pkg/platform/circuit"
)

// Worker consumes audit events from a channel, persists them, and fans out to
// publishers. Store failures stop the worker; publisher failures are logged
// and skipped so a broker outage never loses the persisted trail. A circuit
// breaker per publisher keeps a dead sink from flooding the log.
type Worker struct {
	store      Store
	publishers []Publisher
	breakers   []*circuit.Breaker
	inbox      <-chan Event
	logger     *slog.Logger
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger, publishers ...Publisher) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	breakers := make([]*circuit.Breaker, len(publishers))
	for i := range publishers {
		breakers[i] = circuit.New(fmt.Sprintf("audit-publisher-%d", i))
	}
	return &Worker{store: store, publishers: publishers, breakers: breakers, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				return err
			}
			w.fanOut(ctx, event)
		}
	}
}

func (w *Worker) fanOut(ctx context.Context, event Event) {
	for i, pub := range w.publishers {
		breaker := w.breakers[i]
		err := pub.Publish(ctx, event)
		if err == nil {
			if _, change := breaker.RecordSuccess(); change.Closed {
				w.logger.Info("audit publisher recovered", "publisher", breaker.Name())
			}
			continue
		}
		_, change := breaker.RecordFailure()
		switch {
		case change.Opened:
			w.logger.Error("audit publisher circuit opened",
				"publisher", breaker.Name(),
				"error", err)
		case breaker.IsOpen():
			// Already known to be down; stay quiet until it recovers.
		default:
			w.logger.Warn("audit publish failed",
				"action", string(event.Action),
				"request_id", event.RequestID.String(),
				"error", err)
		}
	}
}
