package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tradecircle/tradesync/internal/domain"
)

// ListenerManager tracks live-query subscriptions per (owner, user)
// pair and guarantees at most one active subscription per pair. The
// owner id is the view-model (or session) holding the handle;
// re-subscribing for the same pair tears the old subscription down
// first.
type ListenerManager struct {
	gateway domain.SyncGateway
	logger  *zap.Logger

	mu     sync.Mutex
	active map[string]domain.Subscription
}

// ListenerHandle identifies one subscription. Unsubscribe is
// idempotent and safe after the manager already replaced or closed it.
type ListenerHandle struct {
	m   *ListenerManager
	key string
	sub domain.Subscription
}

func NewListenerManager(gateway domain.SyncGateway, logger *zap.Logger) *ListenerManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListenerManager{
		gateway: gateway,
		logger:  logger,
		active:  make(map[string]domain.Subscription),
	}
}

// Subscribe opens the trades live query for userID on behalf of
// ownerID. An existing subscription for the same (owner, user) pair is
// torn down before the new one is opened.
func (m *ListenerManager) Subscribe(ctx context.Context, ownerID, userID string, onSnapshot domain.SnapshotFunc, onError domain.ErrorFunc) (*ListenerHandle, error) {
	key := ownerID + "|" + userID

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.active[key]; ok {
		delete(m.active, key)
		if err := old.Unsubscribe(); err != nil {
			m.logger.Warn("failed to tear down replaced subscription",
				zap.String("owner", ownerID), zap.String("userId", userID), zap.Error(err))
		}
	}

	query := domain.SnapshotQuery{UserID: userID, OrderBy: "entryDate desc"}
	sub, err := m.gateway.Subscribe(ctx, domain.CollectionTrades, query, onSnapshot, onError)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSubscription, err)
	}

	m.active[key] = sub
	return &ListenerHandle{m: m, key: key, sub: sub}, nil
}

// Unsubscribe tears the handle's subscription down if it is still the
// active one for its pair. Calling it twice, or after the handle was
// replaced, is a no-op.
func (h *ListenerHandle) Unsubscribe() error {
	if h == nil || h.m == nil {
		return nil
	}
	h.m.mu.Lock()
	defer h.m.mu.Unlock()

	if cur, ok := h.m.active[h.key]; !ok || cur != h.sub {
		return nil
	}
	delete(h.m.active, h.key)
	return h.sub.Unsubscribe()
}

// ActiveCount returns the number of live subscriptions.
func (m *ListenerManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Close tears down every remaining subscription.
func (m *ListenerManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, sub := range m.active {
		delete(m.active, key)
		if err := sub.Unsubscribe(); err != nil {
			m.logger.Warn("failed to tear down subscription", zap.String("key", key), zap.Error(err))
		}
	}
}
