package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/BenTyson/evercraft-sub001/pkg/config"
)

func TestResolveCollectsEveryMissingSetting(t *testing.T) {
	_, _, _, err := resolve(config.GCPConfig{}, config.BigQueryConfig{Dataset: " "})
	require.Error(t, err)
	require.Contains(t, err.Error(), "project id")
	require.Contains(t, err.Error(), "dataset")
	require.ErrorIs(t, err, errTableRequired)

	project, dataset, table, err := resolve(
		config.GCPConfig{ProjectID: "proj"},
		config.BigQueryConfig{Dataset: "evercraft", SettlementsTable: " settlement_facts "},
	)
	require.NoError(t, err)
	require.Equal(t, []string{"proj", "evercraft", "settlement_facts"}, []string{project, dataset, table})
}

func TestNilClient(t *testing.T) {
	var c *Client
	require.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	require.ErrorIs(t, c.InsertRows(context.Background(), "t", []any{1}), errNotInitialized)
	require.Empty(t, c.SettlementsTable())
	require.NoError(t, c.Close())
}

func TestIsRetryable(t *testing.T) {
	transient := &googleapi.Error{Code: http.StatusServiceUnavailable}
	invalid := &googleapi.Error{Code: http.StatusBadRequest}

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", fmt.Errorf("put: %w", context.Canceled), false},
		{"http 503", transient, true},
		{"http 429", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"http 400", invalid, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
		{"transport", errors.New("connection reset"), true},
		{"all rows transient", bigquery.PutMultiError{
			{Errors: bigquery.MultiError{transient}},
			{Errors: bigquery.MultiError{transient}},
		}, true},
		{"one row invalid", bigquery.PutMultiError{
			{Errors: bigquery.MultiError{transient}},
			{Errors: bigquery.MultiError{invalid}},
		}, false},
		{"empty aggregate", bigquery.PutMultiError{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}
