// Package store persists the live trader's state so a restart resumes
// where the process left off.
package store

import (
	"context"
	"time"

	"vela/internal/domain"
	"vela/internal/risk"
)

// State is one symbol's complete live-trading state: the open position (if
// any), the risk gate's counters, and the halt flag.
type State struct {
	Symbol    string
	Position  *domain.Position // nil when flat
	Risk      risk.Snapshot
	Halted    bool
	UpdatedAt time.Time
}

// StateStore loads and saves live state snapshots. Load returns (nil, nil)
// when no snapshot exists for the symbol.
type StateStore interface {
	Save(ctx context.Context, s State) error
	Load(ctx context.Context, symbol string) (*State, error)
	Delete(ctx context.Context, symbol string) error
	Close() error
}
