// Package outboxrelay moves committed outbox rows onto their Pub/Sub topics.
// Each batch is claimed with SKIP LOCKED inside one transaction, fanned out to
// the publishers, and then settled row by row as the publish results arrive.
package outboxrelay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/BenTyson/evercraft-sub001/pkg/config"
	"github.com/BenTyson/evercraft-sub001/pkg/db/models"
	"github.com/BenTyson/evercraft-sub001/pkg/enums"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	"github.com/BenTyson/evercraft-sub001/pkg/metrics"
	"github.com/BenTyson/evercraft-sub001/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailed(tx *gorm.DB, id uuid.UUID, err error) error
	Park(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	Insert(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult
}

// PublishResult resolves to the server message id.
type PublishResult interface {
	Get(ctx context.Context) (string, error)
}

// PublisherFactory returns the publisher for a topic, or nil when the topic
// is not configured.
type PublisherFactory func(topic string) Publisher

// Params wires a Relay.
type Params struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRepository
	DLQ        dlqRepository
	Registry   resolver
	Publishers PublisherFactory
	Metrics    *metrics.OutboxMetrics
}

// Relay polls the outbox until its context is canceled.
type Relay struct {
	logg         *logger.Logger
	db           txRunner
	repo         outboxRepository
	dlq          dlqRepository
	registry     resolver
	publishers   PublisherFactory
	metrics      *metrics.OutboxMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time
}

func New(params Params) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Publishers == nil:
		return nil, errors.New("publisher factory is required")
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := time.Duration(params.Config.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = defaultPollInterval
	}
	maxAttempts := params.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Relay{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		dlq:          params.DLQ,
		registry:     params.Registry,
		publishers:   params.Publishers,
		metrics:      params.Metrics,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: poll,
		now:          time.Now,
	}, nil
}

// Run drains the outbox, sleeping pollInterval when it is empty and backing
// off exponentially while batches fail.
func (r *Relay) Run(ctx context.Context) error {
	delay := r.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay context canceled")
			return err
		}

		claimed, err := r.processBatch(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			delay = min(delay*2, maxBackoff)
		case claimed > 0:
			delay = r.pollInterval
			continue
		default:
			delay = r.pollInterval
		}

		if err := sleep(ctx, delay+jitter()); err != nil {
			return err
		}
	}
}

// pending is one claimed row and, once handed to a publisher, its result.
type pending struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	result   PublishResult
	err      error
}

// processBatch returns how many rows it claimed.
func (r *Relay) processBatch(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.repo.ClaimPending(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(events)
		if claimed == 0 {
			return nil
		}
		r.metrics.ObserveBatch(claimed)

		publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()

		batch := make([]*pending, 0, len(events))
		for _, event := range events {
			batch = append(batch, r.dispatch(publishCtx, event))
		}
		for _, p := range batch {
			if p.result != nil {
				_, p.err = p.result.Get(publishCtx)
			}
			if err := r.settle(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// dispatch resolves the row and starts its publish without waiting on it.
func (r *Relay) dispatch(ctx context.Context, event models.OutboxEvent) *pending {
	p := &pending{event: event}
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		p.err = registry.NewNonRetryableError(err)
		return p
	}
	p.resolved = resolved

	topic := resolved.Descriptor.Topic
	pub := r.publishers(topic)
	if pub == nil {
		p.err = registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
		return p
	}
	p.result = pub.Publish(ctx, message(event, resolved))
	if p.result == nil {
		p.err = registry.NewNonRetryableError(fmt.Errorf("publisher returned no result for topic %s", topic))
	}
	return p
}

func message(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

// settle records the publish outcome for one row.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, p *pending) error {
	event := p.event
	eventType := string(event.EventType)
	logCtx := r.logg.WithFields(ctx, r.fields(p))

	if p.err == nil {
		if err := r.repo.MarkPublished(tx, event.ID, r.now()); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.metrics.IncPublished(eventType)
		r.logg.Info(logCtx, "outbox event published")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(p.err, &nonRetry) {
		return r.deadLetter(logCtx, tx, event, enums.OutboxDLQReasonNonRetryable, p.err)
	}

	if event.AttemptCount+1 >= r.maxAttempts {
		return r.deadLetter(logCtx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", p.err))
	}

	r.logg.Warn(r.logg.WithField(logCtx, "error", p.err.Error()), "outbox publish failed; will retry")
	if err := r.repo.MarkFailed(tx, event.ID, p.err); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	r.metrics.IncRetried(eventType)
	return nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	})
	r.logg.Warn(logCtx, "outbox event moved to dlq")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if err := r.dlq.Insert(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.repo.Park(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	r.metrics.IncDeadLettered(string(event.EventType), string(reason))
	return nil
}

func (r *Relay) fields(p *pending) map[string]any {
	fields := map[string]any{
		"outbox_id":      p.event.ID.String(),
		"event_type":     p.event.EventType,
		"aggregate_type": p.event.AggregateType,
		"aggregate_id":   p.event.AggregateID.String(),
		"attempt_count":  p.event.AttemptCount,
	}
	if p.resolved != nil {
		fields["topic"] = p.resolved.Descriptor.Topic
		if p.resolved.Envelope.EventID != "" {
			fields["event_id"] = p.resolved.Envelope.EventID
		}
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jitter() time.Duration {
	return rand.N(jitterWindow)
}

// PublisherCache hands out one Pub/Sub publisher per topic so batching
// goroutines are shared across relay batches.
type PublisherCache struct {
	lookup func(topic string) *gcppubsub.Publisher

	mu   sync.Mutex
	pubs map[string]*gcppubsub.Publisher
}

func NewPublisherCache(lookup func(topic string) *gcppubsub.Publisher) *PublisherCache {
	return &PublisherCache{lookup: lookup, pubs: map[string]*gcppubsub.Publisher{}}
}

// Get satisfies PublisherFactory.
func (c *PublisherCache) Get(topic string) Publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pubs[topic]
	if !ok {
		p = c.lookup(topic)
		if p == nil {
			return nil
		}
		c.pubs[topic] = p
	}
	return gcpPublisher{p}
}

// Stop flushes and stops every cached publisher.
func (c *PublisherCache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, p := range c.pubs {
		p.Stop()
		delete(c.pubs, topic)
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult {
	return g.p.Publish(ctx, msg)
}
