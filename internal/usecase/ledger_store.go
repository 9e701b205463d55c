package usecase

import "github.com/tradecircle/tradesync/internal/domain"

// LedgerStore is the in-memory ordered collection of one user's trades.
// It is a plain data holder: the owning Coordinator serializes access,
// so there is no locking here. Ordering is insertion order for new
// trades and is otherwise preserved from the source snapshot.
type LedgerStore struct {
	trades []*domain.Trade
	index  map[string]int // id -> position in trades
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{index: make(map[string]int)}
}

// Replace swaps the whole ledger for the given set. Used when a fresh
// live snapshot arrives. The input trades are cloned on the way in.
func (l *LedgerStore) Replace(trades []*domain.Trade) {
	l.trades = make([]*domain.Trade, 0, len(trades))
	l.index = make(map[string]int, len(trades))
	for _, t := range trades {
		if _, dup := l.index[t.ID]; dup {
			continue
		}
		l.index[t.ID] = len(l.trades)
		l.trades = append(l.trades, t.Clone())
	}
}

// Upsert inserts the trade if its id is unknown, otherwise overwrites
// it in place so the position stays stable for the UI.
func (l *LedgerStore) Upsert(t *domain.Trade) {
	if i, ok := l.index[t.ID]; ok {
		l.trades[i] = t.Clone()
		return
	}
	l.index[t.ID] = len(l.trades)
	l.trades = append(l.trades, t.Clone())
}

// InsertAt places the trade back at a specific position. Used to undo a
// delete without disturbing the surrounding order. Out-of-range
// positions are clamped.
func (l *LedgerStore) InsertAt(pos int, t *domain.Trade) {
	if _, ok := l.index[t.ID]; ok {
		l.Upsert(t)
		return
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(l.trades) {
		pos = len(l.trades)
	}
	l.trades = append(l.trades, nil)
	copy(l.trades[pos+1:], l.trades[pos:])
	l.trades[pos] = t.Clone()
	for i := pos; i < len(l.trades); i++ {
		l.index[l.trades[i].ID] = i
	}
}

// Remove deletes the trade if present and reports whether it was there.
func (l *LedgerStore) Remove(id string) bool {
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.trades = append(l.trades[:i], l.trades[i+1:]...)
	delete(l.index, id)
	for j := i; j < len(l.trades); j++ {
		l.index[l.trades[j].ID] = j
	}
	return true
}

// Get returns a copy of the trade with the given id.
func (l *LedgerStore) Get(id string) (*domain.Trade, bool) {
	i, ok := l.index[id]
	if !ok {
		return nil, false
	}
	return l.trades[i].Clone(), true
}

// IndexOf returns the trade's current position, or -1.
func (l *LedgerStore) IndexOf(id string) int {
	if i, ok := l.index[id]; ok {
		return i
	}
	return -1
}

// Len returns the number of trades held.
func (l *LedgerStore) Len() int {
	return len(l.trades)
}

// Snapshot returns an independent copy of the ledger. Mutating the
// result does not affect the store.
func (l *LedgerStore) Snapshot() []*domain.Trade {
	out := make([]*domain.Trade, len(l.trades))
	for i, t := range l.trades {
		out[i] = t.Clone()
	}
	return out
}
