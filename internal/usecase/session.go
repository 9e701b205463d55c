package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tradecircle/tradesync/internal/domain"
)

// Session wires one user's Coordinator to the live trade stream and
// the offline cache. There is one Session per signed-in user; nothing
// else mutates the coordinator's stores.
type Session struct {
	userID      string
	coordinator *Coordinator
	listeners   *ListenerManager
	cache       domain.TradeCache
	logger      *zap.Logger

	mu     sync.Mutex
	handle *ListenerHandle
}

func NewSession(userID string, gateway domain.SyncGateway, cache domain.TradeCache, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		userID:      userID,
		coordinator: NewCoordinator(userID, gateway, logger),
		listeners:   NewListenerManager(gateway, logger),
		cache:       cache,
		logger:      logger,
	}
}

// UserID returns the owning user's id.
func (s *Session) UserID() string {
	return s.userID
}

// Coordinator returns the session's mutation coordinator. Callers use
// it for every user intent and read.
func (s *Session) Coordinator() *Coordinator {
	return s.coordinator
}

// Start seeds the ledger from the offline cache and opens the live
// subscription. A cache miss is not an error; a subscription failure
// is, and leaves nothing behind to tear down.
func (s *Session) Start(ctx context.Context) error {
	if s.cache != nil {
		trades, err := s.cache.LoadSnapshot(ctx, s.userID)
		if err != nil {
			s.logger.Warn("failed to load cached ledger", zap.String("userId", s.userID), zap.Error(err))
		} else if len(trades) > 0 {
			s.coordinator.ReconcileLiveSnapshot(trades)
		}

		liked, bookmarked, err := s.cache.LoadInteractions(ctx, s.userID)
		if err != nil {
			s.logger.Warn("failed to load cached interactions", zap.String("userId", s.userID), zap.Error(err))
		} else if len(liked) > 0 || len(bookmarked) > 0 {
			s.coordinator.SeedInteractions(liked, bookmarked)
		}
	}

	handle, err := s.listeners.Subscribe(ctx, "session", s.userID, s.onSnapshot, s.onStreamError)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()
	return nil
}

func (s *Session) onSnapshot(trades []*domain.Trade) {
	s.coordinator.ReconcileLiveSnapshot(trades)

	if s.cache != nil {
		// Persist the reconciled view, not the raw push: in-flight
		// optimistic values are part of what the user expects back.
		if err := s.cache.SaveSnapshot(context.Background(), s.userID, s.coordinator.CurrentTrades()); err != nil {
			s.logger.Warn("failed to cache ledger snapshot", zap.String("userId", s.userID), zap.Error(err))
		}
	}
}

func (s *Session) onStreamError(err error) {
	// Stream failures never roll local state back; delivery simply
	// stops until the owner re-subscribes.
	s.logger.Error("live snapshot stream failed", zap.String("userId", s.userID), zap.Error(err))
}

// Close tears the subscription down and flushes state to the cache.
// Idempotent; safe on every exit path.
func (s *Session) Close() error {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	var err error
	if handle != nil {
		err = handle.Unsubscribe()
	}
	s.listeners.Close()

	if s.cache != nil {
		ctx := context.Background()
		if cerr := s.cache.SaveSnapshot(ctx, s.userID, s.coordinator.CurrentTrades()); cerr != nil {
			s.logger.Warn("failed to flush ledger cache", zap.String("userId", s.userID), zap.Error(cerr))
		}
		if cerr := s.cache.SaveInteractions(ctx, s.userID, s.coordinator.LikedIDs(), s.coordinator.BookmarkedIDs()); cerr != nil {
			s.logger.Warn("failed to flush interaction cache", zap.String("userId", s.userID), zap.Error(cerr))
		}
	}
	return err
}
