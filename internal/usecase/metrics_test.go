package usecase_test

import (
	"testing"
	"time"

	"github.com/tradecircle/tradesync/internal/domain"
	"github.com/tradecircle/tradesync/internal/usecase"
)

const epsilon = 0.000001

func floatEquals(a, b float64) bool {
	return (a-b) < epsilon && (b-a) < epsilon
}

func closedTrade(id string, entry, exit float64, qty int64, exitDate time.Time) *domain.Trade {
	return &domain.Trade{
		ID:         id,
		Ticker:     "AAPL",
		Kind:       domain.KindStock,
		EntryPrice: entry,
		ExitPrice:  exit,
		Quantity:   qty,
		EntryDate:  exitDate.Add(-48 * time.Hour),
		ExitDate:   exitDate,
		IsOpen:     false,
	}
}

func openTrade(id string, entry float64, qty int64) *domain.Trade {
	return &domain.Trade{
		ID:         id,
		Ticker:     "MSFT",
		Kind:       domain.KindStock,
		EntryPrice: entry,
		Quantity:   qty,
		EntryDate:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		IsOpen:     true,
	}
}

func TestComputeMetricsDeterministic(t *testing.T) {
	now := time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC)
	trades := []*domain.Trade{
		closedTrade("t1", 100, 110, 10, now.Add(-2*time.Hour)),
		closedTrade("t2", 50, 45, 10, now.Add(-72*time.Hour)),
		openTrade("t3", 10, 5),
	}

	first := usecase.ComputeMetrics(trades, now)
	second := usecase.ComputeMetrics(trades, now)
	if first != second {
		t.Errorf("ComputeMetrics not deterministic: %+v vs %+v", first, second)
	}
}

func TestComputeMetricsWinRateAndValue(t *testing.T) {
	// Two closed trades (+100 and -50) and one open at 10 x 5.
	now := time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC)
	trades := []*domain.Trade{
		closedTrade("t1", 100, 110, 10, now.Add(-100*time.Hour)), // +100
		closedTrade("t2", 50, 45, 10, now.Add(-200*time.Hour)),   // -50
		openTrade("t3", 10, 5),
	}

	p := usecase.ComputeMetrics(trades, now)

	if !floatEquals(p.WinRate, 50.0) {
		t.Errorf("WinRate = %f, want 50.0", p.WinRate)
	}
	if !floatEquals(p.TotalProfitLoss, 50.0) {
		t.Errorf("TotalProfitLoss = %f, want 50.0", p.TotalProfitLoss)
	}
	// 110*10 + 45*10 + 10*5
	if !floatEquals(p.TotalValue, 1600.0) {
		t.Errorf("TotalValue = %f, want 1600.0", p.TotalValue)
	}
	if p.OpenPositions != 1 || p.TotalTrades != 3 {
		t.Errorf("OpenPositions=%d TotalTrades=%d, want 1 and 3", p.OpenPositions, p.TotalTrades)
	}
}

func TestComputeMetricsDayProfitLoss(t *testing.T) {
	now := time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		exitDate time.Time
		want     float64
	}{
		{"closed earlier today", time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC), 100},
		{"closed yesterday", time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC), 0},
		{"closed last month", time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trades := []*domain.Trade{closedTrade("t1", 100, 110, 10, tt.exitDate)}
			p := usecase.ComputeMetrics(trades, now)
			if !floatEquals(p.DayProfitLoss, tt.want) {
				t.Errorf("DayProfitLoss = %f, want %f", p.DayProfitLoss, tt.want)
			}
		})
	}
}

func TestComputeMetricsEmptyLedger(t *testing.T) {
	p := usecase.ComputeMetrics(nil, time.Now())
	if p != (domain.Portfolio{}) {
		t.Errorf("empty ledger should yield zero portfolio, got %+v", p)
	}
	if !floatEquals(p.WinRate, 0) {
		t.Errorf("WinRate with no closed trades = %f, want 0", p.WinRate)
	}
}

func TestComputeMetricsOpenTradesExcludedFromPnL(t *testing.T) {
	now := time.Now()
	open := openTrade("t1", 100, 10)
	open.ExitPrice = 0 // open trades never contribute realized P&L

	p := usecase.ComputeMetrics([]*domain.Trade{open}, now)
	if !floatEquals(p.TotalProfitLoss, 0) {
		t.Errorf("TotalProfitLoss = %f, want 0 for open-only ledger", p.TotalProfitLoss)
	}
	if !floatEquals(p.TotalValue, 1000) {
		t.Errorf("TotalValue = %f, want entry*qty = 1000", p.TotalValue)
	}
}
