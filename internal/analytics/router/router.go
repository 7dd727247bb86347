package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/BenTyson/evercraft-sub001/internal/analytics/types"
	pkgbigquery "github.com/BenTyson/evercraft-sub001/pkg/bigquery"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/consumer"
)

// ConsumerName scopes idempotency markers for the analytics worker.
const ConsumerName = "analytics"

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertSettlementFacts(ctx context.Context, rows []types.SettlementFactRow) error
}

// Handler builds fact rows for one decoded event.
type Handler interface {
	Rows(envelope consumer.Envelope) ([]types.SettlementFactRow, error)
}

// Router dispatches settlement envelopes to the configured handler per event type.
type Router struct {
	handlers map[enums.OutboxEventType]Handler
	writer   Writer
	logg     *logger.Logger
}

// NewRouter wires the default handlers and allows overrides for specific events.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	handlers := map[enums.OutboxEventType]Handler{
		enums.EventOrderSettled:        orderSettledHandler{},
		enums.EventPayoutPaid:          payoutPaidHandler{},
		enums.EventNonprofitPayoutPaid: nonprofitPayoutPaidHandler{},
	}

	for event, custom := range overrides {
		if _, ok := handlers[event]; !ok || custom == nil {
			continue
		}
		handlers[event] = custom
	}

	return &Router{
		handlers: handlers,
		writer:   writer,
		logg:     logg,
	}, nil
}

// HandledEvents lists the event types the router writes facts for.
func (r *Router) HandledEvents() []enums.OutboxEventType {
	events := make([]enums.OutboxEventType, 0, len(r.handlers))
	for _, event := range []enums.OutboxEventType{
		enums.EventOrderSettled,
		enums.EventPayoutPaid,
		enums.EventNonprofitPayoutPaid,
	} {
		if _, ok := r.handlers[event]; ok {
			events = append(events, event)
		}
	}
	return events
}

// Handle builds rows for the envelope and writes them. Rows BigQuery rejected
// permanently are logged and acknowledged so the message is not redelivered.
func (r *Router) Handle(ctx context.Context, envelope consumer.Envelope) error {
	handler, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID.String(),
		"event_type": envelope.EventType,
	})

	rows, err := handler.Rows(envelope)
	if err != nil {
		r.logg.Error(logCtx, "failed to build settlement fact rows", err)
		return err
	}
	if len(rows) == 0 {
		r.logg.Debug(logCtx, "no settlement facts for event")
		return nil
	}

	if err := r.writer.InsertSettlementFacts(logCtx, rows); err != nil {
		if !pkgbigquery.IsRetryable(err) {
			r.logg.Error(logCtx, "dropping settlement facts rejected by bigquery", err)
			return nil
		}
		r.logg.Error(logCtx, "failed to insert settlement facts", err)
		return err
	}

	r.logg.Info(r.logg.WithField(logCtx, "rows", len(rows)), "settlement facts inserted")
	return nil
}
