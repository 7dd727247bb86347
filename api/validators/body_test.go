package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
)

type payoutBody struct {
	Status     string      `json:"status" validate:"required,oneof=paid failed"`
	PaymentIDs []uuid.UUID `json:"payment_ids" validate:"omitempty,min=1"`
	Note       string      `json:"note,omitempty" validate:"max=5"`
}

type optionalBody struct {
	Limit int `json:"limit,omitempty"`
}

func decode(t *testing.T, body string, dest any) error {
	t.Helper()
	return DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), dest)
}

func details(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	d, _ := typed.Details().(map[string]string)
	return d
}

func TestDecodeJSONBodyFieldErrors(t *testing.T) {
	var dest payoutBody
	d := details(t, decode(t, `{"status":"pending","note":"too long"}`, &dest))
	if d["status"] != "must be one of: paid, failed" {
		t.Fatalf("unexpected status message %q", d["status"])
	}
	if d["note"] != "must be at most 5" {
		t.Fatalf("unexpected note message %q", d["note"])
	}
}

func TestDecodeJSONBodyRejectsUnknownAndTrailing(t *testing.T) {
	var dest payoutBody
	if err := decode(t, `{"status":"paid","extra":1}`, &dest); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected unknown field rejection, got %v", err)
	}
	if err := decode(t, `{"status":"paid"}{"status":"failed"}`, &dest); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected trailing object rejection, got %v", err)
	}
}

func TestDecodeJSONBodyAllowsEmptyOptionalBody(t *testing.T) {
	var dest optionalBody
	if err := decode(t, "", &dest); err != nil {
		t.Fatalf("expected empty body to decode, got %v", err)
	}

	var required payoutBody
	if d := details(t, decode(t, "", &required)); d["status"] != "is required" {
		t.Fatalf("expected required status, got %v", d)
	}
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	var dest optionalBody
	huge := `{"limit":` + strings.Repeat("1", MaxBodyBytes) + `}`
	if err := decode(t, huge, &dest); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected size rejection, got %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  paid\x00 out\n ", 0); got != "paid out" {
		t.Fatalf("unexpected sanitized value %q", got)
	}
	if got := SanitizeString("héllo wörld", 5); got != "héllo" {
		t.Fatalf("expected rune-safe cut, got %q", got)
	}
}
