package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, MaxLimit + 1: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
	if LimitWithBuffer(10) != 11 {
		t.Fatalf("expected buffer of one row")
	}
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC), ID: uuid.New()}
	token := in.Encode()
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("expected url-safe token, got %q", token)
	}
	out, err := ParseCursor(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || out.ID != in.ID {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"%%%", rawToken("no-separator"), rawToken("yesterday|" + uuid.NewString()), rawToken(time.Now().Format(time.RFC3339Nano) + "|nope")} {
		if _, err := ParseCursor(raw); !errors.Is(err, ErrInvalidCursor) {
			t.Fatalf("ParseCursor(%q) expected ErrInvalidCursor, got %v", raw, err)
		}
	}
	if c, err := ParseCursor("  "); c != nil || err != nil {
		t.Fatalf("expected blank cursor to be nil, got %v %v", c, err)
	}
}

func TestSplit(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	key := func(id uuid.UUID) Cursor { return Cursor{ID: id} }

	page, next := Split(ids, 2, key)
	if len(page) != 2 || next == nil || next.ID != ids[2] {
		t.Fatalf("expected two rows and a cursor at the third, got %d %v", len(page), next)
	}

	page, next = Split(ids[:2], 2, key)
	if len(page) != 2 || next != nil {
		t.Fatalf("expected last page without cursor")
	}
}

func TestCursorClause(t *testing.T) {
	sql, args := Cursor{ID: uuid.New()}.Clause("p.created_at", "p.id")
	if sql != "(p.created_at < ? OR (p.created_at = ? AND p.id <= ?))" || len(args) != 3 {
		t.Fatalf("unexpected clause %q %v", sql, args)
	}
}

func rawToken(payload string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}
