// Package consumer runs outbox-backed Pub/Sub subscriptions: it decodes the
// stored envelope, guards each event id with Redis idempotency, and hands the
// typed payload to a Handler.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/registry"
)

// Envelope is a decoded outbox event as seen by consumers.
type Envelope struct {
	EventID       uuid.UUID
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	OccurredAt    time.Time
	Version       int
	Actor         *outbox.ActorRef
	Payload       interface{}
}

// Handler processes one envelope. Returning an error nacks the message.
type Handler interface {
	Handle(ctx context.Context, envelope Envelope) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope Envelope) error

// Handle calls the underlying function.
func (fn HandlerFunc) Handle(ctx context.Context, envelope Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

// Receiver is the subset of *gcppubsub.Subscriber the consumer needs.
type Receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

// Params wires a consumer. EventTypes limits what reaches the handler; other
// event types on the subscription are acked and dropped.
type Params struct {
	Name         string
	Subscription Receiver
	Handler      Handler
	Idempotency  idempotencyChecker
	Decoders     payloadDecoder
	EventTypes   []enums.OutboxEventType
	Logger       *logger.Logger
}

// Service consumes one subscription.
type Service struct {
	name         string
	subscription Receiver
	handler      Handler
	manager      idempotencyChecker
	decoders     payloadDecoder
	accepts      map[enums.OutboxEventType]struct{}
	logg         *logger.Logger
}

// NewService validates the wiring.
func NewService(params Params) (*Service, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, errors.New("consumer name is required")
	}
	if params.Subscription == nil {
		return nil, errors.New("subscription is required")
	}
	if params.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if params.Idempotency == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.EventTypes) == 0 {
		return nil, errors.New("at least one event type is required")
	}

	decoders := params.Decoders
	if decoders == nil {
		decoders = registry.NewPayloadDecoders()
	}

	accepts := make(map[enums.OutboxEventType]struct{}, len(params.EventTypes))
	for _, eventType := range params.EventTypes {
		accepts[eventType] = struct{}{}
	}

	return &Service{
		name:         name,
		subscription: params.Subscription,
		handler:      params.Handler,
		manager:      params.Idempotency,
		decoders:     decoders,
		accepts:      accepts,
		logg:         params.Logger,
	}, nil
}

type processResult struct {
	nack bool
}

// Run consumes messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{
		"consumer":   s.name,
		"message_id": msg.ID,
		"event_type": strings.TrimSpace(msg.Attributes["event_type"]),
	}
	logCtx := s.logg.WithFields(ctx, fields)

	eventType, err := enums.Parse[enums.OutboxEventType](strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		s.logg.Warn(logCtx, "unknown event type")
		return processResult{}
	}
	if _, ok := s.accepts[eventType]; !ok {
		s.logg.Debug(logCtx, "event type not handled by consumer")
		return processResult{}
	}

	envelope, err := s.buildEnvelope(eventType, msg)
	if err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "invalid event envelope")
		return processResult{}
	}
	fields["event_id"] = envelope.EventID.String()
	fields["aggregate_type"] = envelope.AggregateType
	fields["aggregate_id"] = envelope.AggregateID
	fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	logCtx = s.logg.WithFields(ctx, fields)

	already, err := s.manager.CheckAndMarkProcessed(logCtx, s.name, envelope.EventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		s.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	if err := s.handler.Handle(logCtx, *envelope); err != nil {
		s.logg.Error(logCtx, "handler error", err)
		_ = s.manager.Delete(logCtx, s.name, envelope.EventID)
		return processResult{nack: true}
	}

	s.logg.Info(logCtx, "event handled")
	return processResult{}
}

func (s *Service) buildEnvelope(eventType enums.OutboxEventType, msg *gcppubsub.Message) (*Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	aggregateType, err := enums.Parse[enums.OutboxAggregateType](strings.TrimSpace(msg.Attributes["aggregate_type"]))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}

	aggregateID := strings.TrimSpace(msg.Attributes["aggregate_id"])
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	rawID := strings.TrimSpace(stored.EventID)
	if rawID == "" {
		rawID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if rawID == "" {
		return nil, errors.New("event_id missing")
	}
	eventID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("event_id: %w", err)
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if created := strings.TrimSpace(msg.Attributes["created_at"]); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				occurredAt = parsed
			}
		}
	}

	version := stored.Version
	if version <= 0 {
		version = outbox.CurrentVersion
	}

	payload, err := s.decoders.Decode(eventType, version, stored.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}

	return &Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Version:       version,
		Actor:         stored.Actor,
		Payload:       payload,
	}, nil
}
