package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/BenTyson/evercraft-sub001/pkg/config"
	"github.com/BenTyson/evercraft-sub001/pkg/gcp"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	errNotInitialized = errors.New("bigquery client not initialized")
	errTableRequired  = errors.New("bigquery table is required")
)

// Client is a BigQuery handle scoped to the analytics dataset.
type Client struct {
	bq          *bigquery.Client
	dataset     *bigquery.Dataset
	settlements string
}

// NewClient connects and confirms the dataset and settlements table exist.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project, dataset, table, err := resolve(gcpCfg, cfg)
	if err != nil {
		return nil, err
	}

	bq, err := bigquery.NewClient(ctx, project, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(dataset), settlements: table}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"bq_dataset": dataset,
			"bq_table":   table,
		}), "bigquery client initialized")
	}
	return c, nil
}

func resolve(gcpCfg config.GCPConfig, cfg config.BigQueryConfig) (project, dataset, table string, err error) {
	project = strings.TrimSpace(gcpCfg.ProjectID)
	dataset = strings.TrimSpace(cfg.Dataset)
	table = strings.TrimSpace(cfg.SettlementsTable)
	if project == "" {
		err = multierr.Append(err, errors.New("gcp project id is required"))
	}
	if dataset == "" {
		err = multierr.Append(err, errors.New("bigquery dataset is required"))
	}
	if table == "" {
		err = multierr.Append(err, errTableRequired)
	}
	return project, dataset, table, err
}

// Ping reads dataset and table metadata.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describeMissing("dataset", c.dataset.DatasetID, err)
	}
	if _, err := c.dataset.Table(c.settlements).Metadata(ctx); err != nil {
		return describeMissing("table", c.settlements, err)
	}
	return nil
}

func describeMissing(kind, name string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// InsertRows streams rows into table. Rows are structs or pointers to
// structs with bigquery tags.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

// SettlementsTable is the configured fact table name.
func (c *Client) SettlementsTable() string {
	if c == nil {
		return ""
	}
	return c.settlements
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

// IsRetryable reports whether an insert failure may succeed on a later
// attempt. Aggregate errors are retryable only when every member is; a
// single malformed row makes the whole batch permanent. Errors carrying no
// API status are treated as transport failures and retried.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	// Put returns these aggregates as values, not pointers.
	var rows bigquery.PutMultiError
	if errors.As(err, &rows) {
		if len(rows) == 0 {
			return false
		}
		for i := range rows {
			if !IsRetryable(rows[i].Errors) {
				return false
			}
		}
		return true
	}
	var multi bigquery.MultiError
	if errors.As(err, &multi) {
		if len(multi) == 0 {
			return false
		}
		for _, inner := range multi {
			if !IsRetryable(inner) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return retryableHTTP(apiErr.Code)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return retryableGRPC(st.Code())
	}
	return true
}

func retryableHTTP(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return true
	}
	return code >= http.StatusInternalServerError
}

func retryableGRPC(code codes.Code) bool {
	switch code {
	case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
		return true
	}
	return false
}
