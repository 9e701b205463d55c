package domain

import "context"

// Collections known to the remote document store.
const (
	CollectionTrades       = "trades"
	CollectionInteractions = "interactions"
)

// SnapshotFunc receives a full replacement set for a subscribed
// collection. Each call carries the complete current state, not a diff.
type SnapshotFunc func(trades []*Trade)

// ErrorFunc receives stream-level failures for an active subscription.
type ErrorFunc func(err error)

// SnapshotQuery scopes a subscription to one user's documents.
type SnapshotQuery struct {
	UserID  string
	OrderBy string
}

// SyncGateway abstracts the remote document store. Writes are
// whole-document upserts resolved exactly once per call; subscriptions
// push full collection snapshots until unsubscribed or failed.
type SyncGateway interface {
	Subscribe(ctx context.Context, collection string, query SnapshotQuery, onSnapshot SnapshotFunc, onError ErrorFunc) (Subscription, error)
	Write(ctx context.Context, collection, docID string, fields map[string]any) error
	Delete(ctx context.Context, collection, docID string) error
}

// Subscription is a handle on one live query. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe() error
}

// TradeCache persists the last known ledger and interaction state per
// user, so a session can render before the first live snapshot arrives.
type TradeCache interface {
	SaveSnapshot(ctx context.Context, userID string, trades []*Trade) error
	LoadSnapshot(ctx context.Context, userID string) ([]*Trade, error)
	SaveInteractions(ctx context.Context, userID string, liked, bookmarked []string) error
	LoadInteractions(ctx context.Context, userID string) (liked, bookmarked []string, err error)
}
