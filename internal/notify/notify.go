// Package notify delivers trading event notifications. Delivery is best
// effort: a failed or suppressed notification never blocks trading.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"vela/internal/domain"
)

// Notifier receives trading lifecycle events. Implementations must not
// block; callers invoke them inline on the trading path.
type Notifier interface {
	PositionOpened(p domain.Position)
	PositionClosed(t domain.ClosedTrade)
	EmergencyStop(reason string, equity float64)
}

// Compile-time interface check.
var _ Notifier = (*LogNotifier)(nil)

// LogNotifier writes events to the structured log, suppressing repeats of
// the same event kind within the cooldown window. Emergency stops are
// never suppressed.
type LogNotifier struct {
	log      *slog.Logger
	cooldown time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time // test hook
}

// NewLogNotifier creates a LogNotifier with the given cooldown. A zero
// cooldown disables suppression.
func NewLogNotifier(log *slog.Logger, cooldown time.Duration) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{
		log:      log,
		cooldown: cooldown,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

func (n *LogNotifier) PositionOpened(p domain.Position) {
	if n.suppressed("opened:" + p.Symbol) {
		return
	}
	n.log.Info("position opened",
		"symbol", p.Symbol,
		"direction", p.Direction,
		"price", p.EntryPrice,
		"size", p.Size,
		"stop", p.StopPrice,
		"target", p.TargetPrice,
	)
}

func (n *LogNotifier) PositionClosed(t domain.ClosedTrade) {
	if n.suppressed("closed:" + t.Symbol) {
		return
	}
	n.log.Info("position closed",
		"symbol", t.Symbol,
		"pnl", t.PnL,
		"return_pct", t.ReturnPct,
		"reason", t.Reason,
		"duration_min", t.DurationMinutes(),
	)
}

func (n *LogNotifier) EmergencyStop(reason string, equity float64) {
	n.log.Error("EMERGENCY STOP", "reason", reason, "equity", equity)
}

// suppressed reports whether an event with this key fired within the
// cooldown window, and records the attempt if not.
func (n *LogNotifier) suppressed(key string) bool {
	if n.cooldown <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if t, ok := n.last[key]; ok && now.Sub(t) < n.cooldown {
		return true
	}
	n.last[key] = now
	return false
}
