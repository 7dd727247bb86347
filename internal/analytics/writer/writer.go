package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/BenTyson/evercraft-sub001/internal/analytics/types"
	pkgbigquery "github.com/BenTyson/evercraft-sub001/pkg/bigquery"
)

const (
	defaultBatchSize      = 500
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Inserter is the slice of the BigQuery client the writer needs.
type Inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Config controls batching and in-process retries. Zero values take defaults.
type Config struct {
	Table       string
	BatchSize   int
	RetryPolicy RetryPolicy
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = defaultMaximumBackoff
	}
	p.MaximumBackoff = max(p.MaximumBackoff, p.InitialBackoff)
	return p
}

// BigQueryWriter streams settlement fact rows. It holds nothing between
// calls: a nil return means every row was accepted.
type BigQueryWriter struct {
	client    Inserter
	table     string
	batchSize int
	retry     RetryPolicy
}

func New(client Inserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, errors.New("settlements table is required")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &BigQueryWriter{
		client:    client,
		table:     table,
		batchSize: batch,
		retry:     cfg.RetryPolicy.withDefaults(),
	}, nil
}

// InsertSettlementFacts writes rows in batches and stops at the first batch
// that fails. Earlier batches stay written; fact ids let BigQuery consumers
// dedupe a redelivered message.
func (w *BigQueryWriter) InsertSettlementFacts(ctx context.Context, rows []types.SettlementFactRow) error {
	for start := 0; start < len(rows); start += w.batchSize {
		end := min(start+w.batchSize, len(rows))
		batch := make([]any, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, &rows[i])
		}
		if err := w.put(ctx, batch); err != nil {
			return fmt.Errorf("insert %s rows [%d:%d]: %w", w.table, start, end, err)
		}
	}
	return nil
}

func (w *BigQueryWriter) put(ctx context.Context, batch []any) error {
	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.client.InsertRows(ctx, w.table, batch)
		if err == nil || attempt >= w.retry.MaxAttempts || !pkgbigquery.IsRetryable(err) {
			return err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

// EncodeJSON renders an event payload for the JSON payload column. A nil
// payload or a JSON null is stored as SQL NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	if payload == nil {
		return cbigquery.NullJSON{}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
	}
	if bytes.Equal(raw, []byte("null")) {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
