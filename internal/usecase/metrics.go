package usecase

import (
	"time"

	"github.com/tradecircle/tradesync/internal/domain"
)

// ComputeMetrics derives the Portfolio aggregate from a ledger
// snapshot. It is pure: same input, same output, no state. The
// Coordinator calls it after every ledger mutation and once per
// reconciled snapshot; the result is never memoized across a mutation
// boundary and never patched field by field.
//
// now anchors the "current calendar day" window for DayProfitLoss.
func ComputeMetrics(trades []*domain.Trade, now time.Time) domain.Portfolio {
	var p domain.Portfolio
	var closed, won int

	for _, t := range trades {
		p.TotalTrades++
		p.TotalValue += t.CurrentValue()

		if t.IsOpen {
			p.OpenPositions++
			continue
		}

		closed++
		pnl := t.ProfitLoss()
		p.TotalProfitLoss += pnl
		if pnl > 0 {
			won++
		}
		if t.ClosedOn(now) {
			p.DayProfitLoss += pnl
		}
	}

	if closed > 0 {
		p.WinRate = float64(won) / float64(closed) * 100
	}
	return p
}
