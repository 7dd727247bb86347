package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
)

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestURLParamUUID(t *testing.T) {
	id := uuid.New()
	got, err := URLParamUUID(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "shopId", id.String()), "shopId")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}

	_, err = URLParamUUID(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "shopId", "nope"), "shopId")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = URLParamUUID(httptest.NewRequest(http.MethodGet, "/", nil), "shopId")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing param, got %v", err)
	}
}

func TestParseQueryDate(t *testing.T) {
	fallback := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		query   string
		want    time.Time
		wantErr bool
	}{
		{query: "", want: fallback},
		{query: "from=2026-03-04", want: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
		{query: "from=2026-03-04T10:00:00-02:00", want: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)},
		{query: "from=03/04/2026", wantErr: true},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/?"+tc.query, nil)
		got, err := ParseQueryDate(r, "from", fallback)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.query)
			}
			continue
		}
		if err != nil || !got.Equal(tc.want) {
			t.Fatalf("%q: expected %s, got %s (%v)", tc.query, tc.want, got, err)
		}
	}
}
