package audit

import (
	"context"
	"log/slog"

	"civica/pkg/requestcontext"
)

// Emitter hands events to the background worker. Emission never blocks the
// request path: when the inbox is full the event is dropped with a warning.
type Emitter struct {
	inbox  chan<- Event
	logger *slog.Logger
}

func NewEmitter(inbox chan<- Event, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{inbox: inbox, logger: logger}
}

func (e *Emitter) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.CorrelationID == "" {
		event.CorrelationID = requestcontext.RequestID(ctx)
	}
	select {
	case e.inbox <- event:
	default:
		e.logger.Warn("audit inbox full, event dropped",
			"action", string(event.Action),
			"request_id", event.RequestID.String())
	}
}
