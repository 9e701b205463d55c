package tests

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradecircle/tradesync/internal/domain"
	"github.com/tradecircle/tradesync/internal/infrastructure/storage"
	"github.com/tradecircle/tradesync/internal/usecase"
)

// MockGateway stands in for the remote document store: writes resolve
// synchronously, snapshots are pushed by the test.
type MockGateway struct {
	mu         sync.Mutex
	FailWrites bool
	Writes     []string // collection/docID
	Deletes    []string
	subs       map[string]*mockSub
}

type mockSub struct {
	g          *MockGateway
	key        string
	onSnapshot domain.SnapshotFunc
	onError    domain.ErrorFunc
}

func NewMockGateway() *MockGateway {
	return &MockGateway{subs: make(map[string]*mockSub)}
}

func (g *MockGateway) SetFailWrites(fail bool) {
	g.mu.Lock()
	g.FailWrites = fail
	g.mu.Unlock()
}

func (g *MockGateway) Write(ctx context.Context, collection, docID string, fields map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Writes = append(g.Writes, collection+"/"+docID)
	if g.FailWrites {
		return errors.New("store unavailable")
	}
	return nil
}

func (g *MockGateway) Delete(ctx context.Context, collection, docID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Deletes = append(g.Deletes, collection+"/"+docID)
	if g.FailWrites {
		return errors.New("store unavailable")
	}
	return nil
}

func (g *MockGateway) Subscribe(ctx context.Context, collection string, query domain.SnapshotQuery, onSnapshot domain.SnapshotFunc, onError domain.ErrorFunc) (domain.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sub := &mockSub{g: g, key: collection + "|" + query.UserID, onSnapshot: onSnapshot, onError: onError}
	g.subs[sub.key] = sub
	return sub, nil
}

func (s *mockSub) Unsubscribe() error {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	if cur, ok := s.g.subs[s.key]; ok && cur == s {
		delete(s.g.subs, s.key)
	}
	return nil
}

// PushSnapshot delivers a full trades snapshot for userID.
func (g *MockGateway) PushSnapshot(userID string, trades []*domain.Trade) {
	g.mu.Lock()
	sub := g.subs[domain.CollectionTrades+"|"+userID]
	g.mu.Unlock()
	if sub != nil {
		sub.onSnapshot(trades)
	}
}

// FailStream delivers a stream error to the subscriber for userID.
func (g *MockGateway) FailStream(userID string, err error) {
	g.mu.Lock()
	sub := g.subs[domain.CollectionTrades+"|"+userID]
	delete(g.subs, domain.CollectionTrades+"|"+userID)
	g.mu.Unlock()
	if sub != nil && sub.onError != nil {
		sub.onError(err)
	}
}

// HasSubscriber reports whether a trades subscription for userID is live.
func (g *MockGateway) HasSubscriber(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.subs[domain.CollectionTrades+"|"+userID]
	return ok
}

// SessionHarness wires a started session against a mock gateway and a
// file-backed cache shared across harnesses via CachePath.
type SessionHarness struct {
	t       *testing.T
	UserID  string
	Gateway *MockGateway
	Cache   *storage.SQLiteCache
	Session *usecase.Session
}

func NewSessionHarness(t *testing.T, userID string) *SessionHarness {
	return NewSessionHarnessAt(t, userID, filepath.Join(t.TempDir(), "cache.db"))
}

func NewSessionHarnessAt(t *testing.T, userID, cachePath string) *SessionHarness {
	t.Helper()

	cache, err := storage.NewSQLiteCache(cachePath)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	gw := NewMockGateway()
	sess := usecase.NewSession(userID, gw, cache, zap.NewNop())
	sess.Coordinator().SetClock(func() time.Time {
		return time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC)
	})
	require.NoError(t, sess.Start(context.Background()))
	t.Cleanup(func() { sess.Close() })

	return &SessionHarness{t: t, UserID: userID, Gateway: gw, Cache: cache, Session: sess}
}

func (h *SessionHarness) Coordinator() *usecase.Coordinator {
	return h.Session.Coordinator()
}
