package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"vela/internal/domain"
	"vela/internal/risk"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadMissing(t *testing.T) {
	s := openStore(t)
	st, err := s.Load(context.Background(), "BTC-USD")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st != nil {
		t.Fatalf("state = %+v, want nil for missing symbol", st)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	entry := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	in := State{
		Symbol: "BTC-USD",
		Position: &domain.Position{
			Symbol:      "BTC-USD",
			Direction:   domain.Long,
			EntryPrice:  50000,
			EntryTime:   entry,
			Size:        0.02,
			StopPrice:   49500,
			TargetPrice: 51000,
		},
		Risk: risk.Snapshot{
			SessionDate:        "2024-03-01",
			TradesToday:        2,
			DailyPnL:           -35.5,
			SessionStartEquity: 10000,
			PeakEquity:         10200,
		},
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := s.Load(ctx, "BTC-USD")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out == nil || out.Position == nil {
		t.Fatal("missing state or position after round trip")
	}
	if *out.Position != *in.Position {
		t.Fatalf("position = %+v, want %+v", *out.Position, *in.Position)
	}
	if out.Risk != in.Risk {
		t.Fatalf("risk = %+v, want %+v", out.Risk, in.Risk)
	}
	if out.Halted {
		t.Fatal("halted should be false")
	}
	if out.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not set")
	}
}

func TestSaveFlatOverwritesPosition(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	withPos := State{
		Symbol: "BTC-USD",
		Position: &domain.Position{
			Symbol: "BTC-USD", Direction: domain.Short,
			EntryPrice: 50000, EntryTime: time.Now().UTC(), Size: 0.01,
		},
	}
	if err := s.Save(ctx, withPos); err != nil {
		t.Fatalf("Save: %v", err)
	}
	flat := State{Symbol: "BTC-USD", Risk: risk.Snapshot{TradesToday: 1}}
	if err := s.Save(ctx, flat); err != nil {
		t.Fatalf("Save flat: %v", err)
	}

	out, err := s.Load(ctx, "BTC-USD")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Position != nil {
		t.Fatalf("position = %+v, want nil after flat save", out.Position)
	}
	if out.Risk.TradesToday != 1 {
		t.Fatalf("trades today = %d, want 1", out.Risk.TradesToday)
	}
}

func TestSaveHaltedState(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	in := State{
		Symbol: "ETH-USD",
		Risk:   risk.Snapshot{EmergencyStopped: true},
		Halted: true,
	}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := s.Load(ctx, "ETH-USD")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !out.Halted || !out.Risk.EmergencyStopped {
		t.Fatalf("state = %+v, want halted + emergency-stopped", out)
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, State{Symbol: "BTC-USD"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, "BTC-USD"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	st, err := s.Load(ctx, "BTC-USD")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st != nil {
		t.Fatal("state still present after delete")
	}
	// Deleting again is a no-op.
	if err := s.Delete(ctx, "BTC-USD"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}
