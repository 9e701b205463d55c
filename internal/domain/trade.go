package domain

import "time"

type TradeKind string

const (
	KindStock  TradeKind = "stock"
	KindOption TradeKind = "option"
	KindCrypto TradeKind = "crypto"
	KindForex  TradeKind = "forex"
)

// ValidKind reports whether k is one of the supported trade kinds.
func ValidKind(k TradeKind) bool {
	switch k {
	case KindStock, KindOption, KindCrypto, KindForex:
		return true
	}
	return false
}

// Trade is one position record in a user's ledger.
// ExitPrice and ExitDate are set together when the trade is closed;
// IsOpen is false iff both are set.
type Trade struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Ticker     string    `json:"ticker"` // uppercase, 1-5 letters
	Kind       TradeKind `json:"kind"`
	EntryPrice float64   `json:"entryPrice"`
	ExitPrice  float64   `json:"exitPrice,omitempty"`
	Quantity   int64     `json:"quantity"`
	EntryDate  time.Time `json:"entryDate"`
	ExitDate   time.Time `json:"exitDate,omitzero"`
	IsOpen     bool      `json:"isOpen"`
	Notes      string    `json:"notes,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	SharedTo   []string  `json:"sharedTo,omitempty"` // community ids
}

// Clone returns a deep copy safe to hand out or mutate independently.
func (t *Trade) Clone() *Trade {
	cp := *t
	if t.SharedTo != nil {
		cp.SharedTo = append([]string(nil), t.SharedTo...)
	}
	return &cp
}

// ProfitLoss is the realized P&L: (exit - entry) * quantity for closed
// trades, 0 while the position is open.
func (t *Trade) ProfitLoss() float64 {
	if t.IsOpen {
		return 0
	}
	return (t.ExitPrice - t.EntryPrice) * float64(t.Quantity)
}

// ProfitLossPct is the realized P&L as a percentage of the entry price.
func (t *Trade) ProfitLossPct() float64 {
	if t.IsOpen || t.EntryPrice == 0 {
		return 0
	}
	return (t.ExitPrice - t.EntryPrice) / t.EntryPrice * 100
}

// CurrentValue is quantity priced at exit when closed, at entry otherwise.
func (t *Trade) CurrentValue() float64 {
	price := t.EntryPrice
	if !t.IsOpen {
		price = t.ExitPrice
	}
	return price * float64(t.Quantity)
}

// DaysHeld is the whole days between entry and exit (or now if still open).
func (t *Trade) DaysHeld(now time.Time) int {
	end := now
	if !t.IsOpen {
		end = t.ExitDate
	}
	d := end.Sub(t.EntryDate)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// ClosedOn reports whether the trade was closed on the same calendar day
// as ref, in ref's location.
func (t *Trade) ClosedOn(ref time.Time) bool {
	if t.IsOpen {
		return false
	}
	y1, m1, d1 := t.ExitDate.In(ref.Location()).Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// ValidTicker reports whether s is 1-5 ASCII letters.
func ValidTicker(s string) bool {
	if len(s) < 1 || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// Fields flattens the trade into the whole-document form the remote
// store expects. Partial updates are not supported by the store, so the
// full document is always produced.
func (t *Trade) Fields() map[string]any {
	fields := map[string]any{
		"id":         t.ID,
		"userId":     t.UserID,
		"ticker":     t.Ticker,
		"kind":       string(t.Kind),
		"entryPrice": t.EntryPrice,
		"quantity":   t.Quantity,
		"entryDate":  t.EntryDate,
		"isOpen":     t.IsOpen,
		"notes":      t.Notes,
		"strategy":   t.Strategy,
		"sharedTo":   t.SharedTo,
	}
	if !t.IsOpen {
		fields["exitPrice"] = t.ExitPrice
		fields["exitDate"] = t.ExitDate
	}
	return fields
}
