package router

import (
	"context"

	"github.com/BenTyson/evercraft-sub001/internal/analytics/types"
)

type fakeWriter struct {
	inserted []types.SettlementFactRow
	err      error
}

func (f *fakeWriter) InsertSettlementFacts(_ context.Context, rows []types.SettlementFactRow) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, rows...)
	return nil
}
