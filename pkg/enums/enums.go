// Package enums holds the closed string sets persisted in ledger tables and
// carried as outbox event attributes.
package enums

import (
	"fmt"
	"slices"
)

// Value is any enum in this package.
type Value interface {
	~string
	IsValid() bool
}

// Parse converts raw input into T, failing on anything outside the set.
// Matching is exact; callers normalize case first where they accept it.
func Parse[T Value](raw string) (T, error) {
	v := T(raw)
	if !v.IsValid() {
		var zero T
		return zero, fmt.Errorf("invalid %T %q", zero, raw)
	}
	return v, nil
}

func member[T ~string](v T, set ...T) bool {
	return slices.Contains(set, v)
}
