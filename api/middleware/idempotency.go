package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BenTyson/evercraft-sub001/api/responses"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
	pkgredis "github.com/BenTyson/evercraft-sub001/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour

	// pendingIdempotencyTTL caps how long a crashed request can hold its key.
	pendingIdempotencyTTL = 5 * time.Minute

	idempotencyHeader  = "Idempotency-Key"
	replayedHeader     = "Idempotent-Replayed"
	maxIdempotencyKey  = 255
	maxIdempotentBody  = 1 << 20
	reserveAttempts    = 2
	recordStatePending = "pending"
	recordStateDone    = "done"
)

type idempotencyRule struct {
	method  string
	pattern []string
	ttl     time.Duration
}

func idempotentRoute(method, pattern string, ttl time.Duration) idempotencyRule {
	return idempotencyRule{method: method, pattern: splitPath(pattern), ttl: ttl}
}

// Routes that move money keep their replay window for a week.
var idempotencyRules = []idempotencyRule{
	idempotentRoute(http.MethodPost, "/api/v1/orders/settle", criticalIdempotencyTTL),
	idempotentRoute(http.MethodPost, "/api/v1/admin/nonprofits/*/payouts", criticalIdempotencyTTL),
	idempotentRoute(http.MethodPost, "/api/v1/admin/shops/*/payouts", defaultIdempotencyTTL),
	idempotentRoute(http.MethodPost, "/api/v1/admin/payouts/*/submit", defaultIdempotencyTTL),
	idempotentRoute(http.MethodPost, "/api/v1/admin/payouts/*/reconcile", defaultIdempotencyTTL),
}

type idempotencyRecord struct {
	State       string `json:"state"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

// Idempotency replays the first response for a (user, method, path,
// Idempotency-Key) tuple on the routes listed above. The key is reserved
// before the handler runs so a concurrent duplicate gets 409 instead of a
// second execution. Server errors release the key so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ttl, ok := routeTTL(r.Method, r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxIdempotencyKey:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := hashBody(body)
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)

			existing, err := reserve(ctx, store, key, hash)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if existing != nil {
				answerExisting(ctx, logg, w, existing, hash)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			completed := false
			defer func() {
				if !completed {
					release(ctx, store, key, logg)
				}
			}()

			next.ServeHTTP(capture, r)

			status := capture.statusCode()
			if status >= http.StatusInternalServerError {
				return
			}
			completed = true
			record := idempotencyRecord{
				State:       recordStateDone,
				RequestHash: hash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
			}
			if err := store.Set(ctx, key, encodeRecord(record), ttl); err != nil && logg != nil {
				logg.Error(logg.WithField(ctx, "idempotency_key", key), "persist idempotency record", err)
			}
		})
	}
}

// reserve claims key with a pending record. It returns the record already
// stored when another request got there first.
func reserve(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string) (*idempotencyRecord, error) {
	pending := encodeRecord(idempotencyRecord{State: recordStatePending, RequestHash: hash})
	for attempt := 0; attempt < reserveAttempts; attempt++ {
		won, err := store.SetNX(ctx, key, pending, pendingIdempotencyTTL)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
		}
		if won {
			return nil, nil
		}

		stored, err := store.Get(ctx, key)
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
		}
		var record idempotencyRecord
		if err := json.Unmarshal([]byte(stored), &record); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
		}
		return &record, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key is being released, retry")
}

func answerExisting(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, record *idempotencyRecord, hash string) {
	switch {
	case record.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.State != recordStateDone:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(record.Status)
		if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
			_, _ = w.Write(decoded)
		}
	}
}

func release(ctx context.Context, store pkgredis.IdempotencyStore, key string, logg *logger.Logger) {
	// The request context may already be cancelled by a disconnecting client.
	if err := store.Del(context.WithoutCancel(ctx), key); err != nil && logg != nil {
		logg.Error(logg.WithField(ctx, "idempotency_key", key), "release idempotency key", err)
	}
}

func idempotencyScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func encodeRecord(record idempotencyRecord) string {
	payload, _ := json.Marshal(record)
	return string(payload)
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// routeTTL matches the concrete request path; chi has not resolved the
// route pattern yet when mount-level middleware runs.
func routeTTL(method, path string) (time.Duration, bool) {
	segments := splitPath(path)
	for _, candidate := range idempotencyRules {
		if candidate.method == method && matchSegments(candidate.pattern, segments) {
			return candidate.ttl, true
		}
	}
	return 0, false
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func matchSegments(pattern, segments []string) bool {
	if len(pattern) != len(segments) {
		return false
	}
	for i, want := range pattern {
		if want == "*" {
			if segments[i] == "" {
				return false
			}
			continue
		}
		if want != segments[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
