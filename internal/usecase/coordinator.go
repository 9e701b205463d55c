package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradecircle/tradesync/internal/domain"
)

const defaultWriteTimeout = 10 * time.Second

// pendingMutation tags one in-flight optimistic change. While an entry
// exists for an entity, that entity is OptimisticPending: incoming live
// snapshots leave it alone and further intents on it fail fast.
type pendingMutation struct {
	entityID string
	seq      uint64
	prev     *domain.Trade // pre-mutation value, nil when the mutation created the entity
	prevPos  int           // ledger position, for undoing a delete in place
	delta    int           // like-counter delta actually applied, for compensation
}

// TradeEdit carries the editable fields of EditTrade; nil means leave
// unchanged. Once a trade is closed only Notes and Strategy may be set.
type TradeEdit struct {
	Ticker     *string
	Kind       *domain.TradeKind
	EntryPrice *float64
	Quantity   *int64
	Notes      *string
	Strategy   *string
}

// Coordinator is the single writer for one user session's ledger and
// interaction state. Every user intent is applied optimistically,
// written through the gateway, and rolled back (or compensated) if the
// write fails. Live snapshots from the gateway are reconciled against
// whatever is still in flight.
//
// All state is guarded by one mutex; intents and reconciliation are
// each atomic under it. Gateway writes run outside the lock so a slow
// remote store never blocks reads or snapshot delivery.
type Coordinator struct {
	userID  string
	gateway domain.SyncGateway
	logger  *zap.Logger

	clock        func() time.Time
	writeTimeout time.Duration

	mu        sync.Mutex
	ledger    *LedgerStore
	tracker   *InteractionTracker
	pending   map[string]*pendingMutation
	seq       uint64
	portfolio domain.Portfolio
	postLikes map[string]int
	onChange  []func()
}

func NewCoordinator(userID string, gateway domain.SyncGateway, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		userID:       userID,
		gateway:      gateway,
		logger:       logger,
		clock:        time.Now,
		writeTimeout: defaultWriteTimeout,
		ledger:       NewLedgerStore(),
		tracker:      NewInteractionTracker(),
		pending:      make(map[string]*pendingMutation),
		postLikes:    make(map[string]int),
	}
}

// SetClock overrides the time source. Used by tests to pin the
// "current calendar day" window and entry/exit timestamps.
func (c *Coordinator) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// SetWriteTimeout bounds each gateway write. A write that outlives the
// bound resolves to a sync error and triggers the normal rollback.
func (c *Coordinator) SetWriteTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeTimeout = d
}

// OnChange registers a callback fired after every state change the UI
// should repaint for. Callbacks run outside the coordinator lock.
func (c *Coordinator) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	callbacks := make([]func(), len(c.onChange))
	copy(callbacks, c.onChange)
	c.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// CurrentPortfolio returns the portfolio derived from the current ledger.
func (c *Coordinator) CurrentPortfolio() domain.Portfolio {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.portfolio
}

// CurrentTrades returns an independent copy of the current ledger.
func (c *Coordinator) CurrentTrades() []*domain.Trade {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Snapshot()
}

// Trade returns a copy of one trade by id.
func (c *Coordinator) Trade(id string) (*domain.Trade, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Get(id)
}

func (c *Coordinator) IsLiked(postID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.IsLiked(postID)
}

func (c *Coordinator) IsBookmarked(postID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.IsBookmarked(postID)
}

// PostStats returns the local display state for one post.
func (c *Coordinator) PostStats(postID string) domain.PostStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.PostStats{
		PostID:     postID,
		Likes:      c.postLikes[postID],
		Liked:      c.tracker.IsLiked(postID),
		Bookmarked: c.tracker.IsBookmarked(postID),
	}
}

// SeedInteractions replaces the interaction sets, e.g. from the
// offline cache at session start.
func (c *Coordinator) SeedInteractions(liked, bookmarked []string) {
	c.mu.Lock()
	c.tracker.Seed(liked, bookmarked)
	c.mu.Unlock()
	c.notify()
}

// SeedPostLikes sets the starting display counter for a post, e.g.
// from the post document itself.
func (c *Coordinator) SeedPostLikes(postID string, likes int) {
	c.mu.Lock()
	if likes < 0 {
		likes = 0
	}
	c.postLikes[postID] = likes
	c.mu.Unlock()
	c.notify()
}

// LikedIDs returns the liked post ids, sorted.
func (c *Coordinator) LikedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.LikedIDs()
}

// BookmarkedIDs returns the bookmarked post ids, sorted.
func (c *Coordinator) BookmarkedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.BookmarkedIDs()
}

// recomputeLocked re-derives the portfolio from the ledger. Must run
// after every ledger mutation, never skipped and never partial.
func (c *Coordinator) recomputeLocked() {
	c.portfolio = ComputeMetrics(c.ledger.Snapshot(), c.clock())
}

func (c *Coordinator) beginLocked(key string, p *pendingMutation) {
	c.seq++
	p.seq = c.seq
	c.pending[key] = p
}

// syncWrite runs one gateway call under the write timeout and maps any
// failure to the sync error taxonomy.
func (c *Coordinator) syncWrite(ctx context.Context, op func(context.Context) error) error {
	c.mu.Lock()
	timeout := c.writeTimeout
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := op(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: timeout", domain.ErrSync)
	}
	return fmt.Errorf("%w: %w", domain.ErrSync, err)
}

// AddTrade opens a new position. The trade is visible locally before
// the write resolves; if the write fails the trade is removed again
// and, from the caller's perspective, never existed.
func (c *Coordinator) AddTrade(ctx context.Context, ticker string, kind domain.TradeKind, entryPrice float64, quantity int64, notes string) (*domain.Trade, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if !domain.ValidTicker(ticker) {
		return nil, fmt.Errorf("%w: ticker must be 1-5 letters", domain.ErrValidation)
	}
	if !domain.ValidKind(kind) {
		return nil, fmt.Errorf("%w: unknown trade kind %q", domain.ErrValidation, kind)
	}
	if entryPrice <= 0 {
		return nil, fmt.Errorf("%w: entry price must be positive", domain.ErrValidation)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be a positive integer", domain.ErrValidation)
	}

	c.mu.Lock()
	trade := &domain.Trade{
		ID:         uuid.NewString(),
		UserID:     c.userID,
		Ticker:     ticker,
		Kind:       kind,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		EntryDate:  c.clock(),
		IsOpen:     true,
		Notes:      notes,
	}
	c.ledger.Upsert(trade)
	c.beginLocked(trade.ID, &pendingMutation{entityID: trade.ID})
	c.recomputeLocked()
	fields := trade.Fields()
	c.mu.Unlock()
	c.notify()

	err := c.syncWrite(ctx, func(ctx context.Context) error {
		return c.gateway.Write(ctx, domain.CollectionTrades, trade.ID, fields)
	})

	c.mu.Lock()
	delete(c.pending, trade.ID)
	if err != nil {
		c.ledger.Remove(trade.ID)
		c.recomputeLocked()
		c.mu.Unlock()
		c.notify()
		c.logger.Warn("add trade rolled back", zap.String("ticker", ticker), zap.Error(err))
		return nil, err
	}
	c.mu.Unlock()
	return trade.Clone(), nil
}

// CloseTrade realizes the position at exitPrice.
func (c *Coordinator) CloseTrade(ctx context.Context, id string, exitPrice float64, notes string) error {
	if exitPrice <= 0 {
		return fmt.Errorf("%w: exit price must be positive", domain.ErrValidation)
	}

	c.mu.Lock()
	if _, busy := c.pending[id]; busy {
		c.mu.Unlock()
		return fmt.Errorf("%w: trade %s", domain.ErrConflict, id)
	}
	prev, ok := c.ledger.Get(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: trade %s", domain.ErrNotFound, id)
	}
	if !prev.IsOpen {
		c.mu.Unlock()
		return fmt.Errorf("%w: trade %s is already closed", domain.ErrValidation, id)
	}

	next := prev.Clone()
	next.ExitPrice = exitPrice
	next.ExitDate = c.clock()
	next.IsOpen = false
	if notes != "" {
		next.Notes = notes
	}
	c.ledger.Upsert(next)
	c.beginLocked(id, &pendingMutation{entityID: id, prev: prev})
	c.recomputeLocked()
	fields := next.Fields()
	c.mu.Unlock()
	c.notify()

	err := c.syncWrite(ctx, func(ctx context.Context) error {
		return c.gateway.Write(ctx, domain.CollectionTrades, id, fields)
	})

	return c.resolveTradeWrite(id, err, "close trade")
}

// EditTrade applies the given field changes. On a closed trade only
// Notes and Strategy are editable; everything else is locked.
func (c *Coordinator) EditTrade(ctx context.Context, id string, edit TradeEdit) error {
	if edit.Ticker != nil {
		t := strings.ToUpper(strings.TrimSpace(*edit.Ticker))
		if !domain.ValidTicker(t) {
			return fmt.Errorf("%w: ticker must be 1-5 letters", domain.ErrValidation)
		}
		edit.Ticker = &t
	}
	if edit.Kind != nil && !domain.ValidKind(*edit.Kind) {
		return fmt.Errorf("%w: unknown trade kind %q", domain.ErrValidation, *edit.Kind)
	}
	if edit.EntryPrice != nil && *edit.EntryPrice <= 0 {
		return fmt.Errorf("%w: entry price must be positive", domain.ErrValidation)
	}
	if edit.Quantity != nil && *edit.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be a positive integer", domain.ErrValidation)
	}

	c.mu.Lock()
	if _, busy := c.pending[id]; busy {
		c.mu.Unlock()
		return fmt.Errorf("%w: trade %s", domain.ErrConflict, id)
	}
	prev, ok := c.ledger.Get(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: trade %s", domain.ErrNotFound, id)
	}
	if !prev.IsOpen && (edit.Ticker != nil || edit.Kind != nil || edit.EntryPrice != nil || edit.Quantity != nil) {
		c.mu.Unlock()
		return fmt.Errorf("%w: trade %s", domain.ErrImmutableField, id)
	}

	next := prev.Clone()
	if edit.Ticker != nil {
		next.Ticker = *edit.Ticker
	}
	if edit.Kind != nil {
		next.Kind = *edit.Kind
	}
	if edit.EntryPrice != nil {
		next.EntryPrice = *edit.EntryPrice
	}
	if edit.Quantity != nil {
		next.Quantity = *edit.Quantity
	}
	if edit.Notes != nil {
		next.Notes = *edit.Notes
	}
	if edit.Strategy != nil {
		next.Strategy = *edit.Strategy
	}
	c.ledger.Upsert(next)
	c.beginLocked(id, &pendingMutation{entityID: id, prev: prev})
	c.recomputeLocked()
	fields := next.Fields()
	c.mu.Unlock()
	c.notify()

	err := c.syncWrite(ctx, func(ctx context.Context) error {
		return c.gateway.Write(ctx, domain.CollectionTrades, id, fields)
	})

	return c.resolveTradeWrite(id, err, "edit trade")
}

// DeleteTrade removes the position locally and issues the remote
// delete. On failure the trade is restored at its original position.
func (c *Coordinator) DeleteTrade(ctx context.Context, id string) error {
	c.mu.Lock()
	if _, busy := c.pending[id]; busy {
		c.mu.Unlock()
		return fmt.Errorf("%w: trade %s", domain.ErrConflict, id)
	}
	prev, ok := c.ledger.Get(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: trade %s", domain.ErrNotFound, id)
	}
	pos := c.ledger.IndexOf(id)
	c.ledger.Remove(id)
	c.beginLocked(id, &pendingMutation{entityID: id, prev: prev, prevPos: pos})
	c.recomputeLocked()
	c.mu.Unlock()
	c.notify()

	err := c.syncWrite(ctx, func(ctx context.Context) error {
		return c.gateway.Delete(ctx, domain.CollectionTrades, id)
	})

	c.mu.Lock()
	p := c.pending[id]
	delete(c.pending, id)
	if err != nil {
		c.ledger.InsertAt(p.prevPos, p.prev)
		c.recomputeLocked()
		c.mu.Unlock()
		c.notify()
		c.logger.Warn("delete trade rolled back", zap.String("tradeId", id), zap.Error(err))
		return err
	}
	c.mu.Unlock()
	return nil
}

// resolveTradeWrite finishes a close/edit write: clear the pending
// mark, and on failure restore the captured pre-mutation value.
func (c *Coordinator) resolveTradeWrite(id string, err error, op string) error {
	c.mu.Lock()
	p := c.pending[id]
	delete(c.pending, id)
	if err != nil {
		if p != nil && p.prev != nil {
			c.ledger.Upsert(p.prev)
		}
		c.recomputeLocked()
		c.mu.Unlock()
		c.notify()
		c.logger.Warn(op+" rolled back", zap.String("tradeId", id), zap.Error(err))
		return err
	}
	c.mu.Unlock()
	return nil
}

// ToggleLike flips like membership for the post and adjusts the local
// display counter. The returned bool is the new membership. On write
// failure membership is flipped back and the counter delta reversed,
// then the sync error surfaces.
func (c *Coordinator) ToggleLike(ctx context.Context, postID string) (bool, error) {
	return c.toggleInteraction(ctx, postID, c.tracker.ToggleLike, true)
}

// ToggleBookmark flips bookmark membership for the post. Same protocol
// as ToggleLike minus the counter.
func (c *Coordinator) ToggleBookmark(ctx context.Context, postID string) (bool, error) {
	return c.toggleInteraction(ctx, postID, c.tracker.ToggleBookmark, false)
}

func (c *Coordinator) toggleInteraction(ctx context.Context, postID string, flip func(string) bool, counted bool) (bool, error) {
	// Like and bookmark share one remote document per (user, post), and
	// every write replaces it whole. One pending slot per post keeps a
	// second toggle from racing the in-flight write on that document.
	key := "post:" + postID
	c.mu.Lock()
	if _, busy := c.pending[key]; busy {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: post %s", domain.ErrConflict, postID)
	}
	prev := flip(postID)
	now := !prev
	delta := 0
	if counted {
		delta = c.adjustLikesLocked(postID, now)
	}
	c.beginLocked(key, &pendingMutation{entityID: postID, delta: delta})
	fields := c.interactionFieldsLocked(postID)
	c.mu.Unlock()
	c.notify()

	err := c.syncWrite(ctx, func(ctx context.Context) error {
		return c.gateway.Write(ctx, domain.CollectionInteractions, c.userID+"_"+postID, fields)
	})

	c.mu.Lock()
	p := c.pending[key]
	delete(c.pending, key)
	if err != nil {
		// Flip-twice compensation: converges even if the first flip's
		// prior state was itself mid-flight.
		flip(postID)
		if p != nil {
			c.postLikes[postID] -= p.delta
		}
		c.mu.Unlock()
		c.notify()
		c.logger.Warn("interaction rolled back", zap.String("postId", postID), zap.Error(err))
		return prev, err
	}
	c.mu.Unlock()
	return now, nil
}

// adjustLikesLocked moves the display counter for the new membership
// and returns the delta actually applied (0 when floored at zero).
func (c *Coordinator) adjustLikesLocked(postID string, liked bool) int {
	if liked {
		c.postLikes[postID]++
		return 1
	}
	if c.postLikes[postID] > 0 {
		c.postLikes[postID]--
		return -1
	}
	return 0
}

// interactionFieldsLocked builds the whole interaction document for
// this (user, post) pair. The store only does whole-document upserts,
// so both flags are always written.
func (c *Coordinator) interactionFieldsLocked(postID string) map[string]any {
	return map[string]any{
		"userId":     c.userID,
		"postId":     postID,
		"liked":      c.tracker.IsLiked(postID),
		"bookmarked": c.tracker.IsBookmarked(postID),
	}
}

// ReconcileLiveSnapshot merges a server-pushed full snapshot into the
// ledger. Entities with a mutation in flight keep their local value;
// everything else takes the server's. The portfolio is recomputed
// exactly once for the whole snapshot.
func (c *Coordinator) ReconcileLiveSnapshot(trades []*domain.Trade) {
	c.mu.Lock()
	next := make([]*domain.Trade, 0, len(trades))
	seen := make(map[string]bool, len(trades))
	for _, in := range trades {
		seen[in.ID] = true
		if _, busy := c.pending[in.ID]; busy {
			// In-flight local value wins; a pending delete keeps the
			// entity gone.
			if cur, ok := c.ledger.Get(in.ID); ok {
				next = append(next, cur)
			}
			continue
		}
		next = append(next, in)
	}
	// Local entities the server does not know yet (optimistic adds
	// still in flight) stay at the tail in their current order.
	for _, cur := range c.ledger.Snapshot() {
		if seen[cur.ID] {
			continue
		}
		if _, busy := c.pending[cur.ID]; busy {
			next = append(next, cur)
		}
	}
	c.ledger.Replace(next)
	c.recomputeLocked()
	c.mu.Unlock()
	c.notify()
}
