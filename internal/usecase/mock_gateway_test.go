package usecase_test

import (
	"context"
	"errors"
	"sync"

	"github.com/tradecircle/tradesync/internal/domain"
)

type mockWrite struct {
	Collection string
	DocID      string
	Fields     map[string]any
}

// writeGate lets a test hold one write in flight: the gateway signals
// started and then waits for the test to release it with a result.
type writeGate struct {
	started chan struct{}
	release chan error
}

// mockGateway is an in-process SyncGateway double. Writes and deletes
// resolve synchronously unless gated or failed; snapshots are pushed
// by the test through Push.
type mockGateway struct {
	mu           sync.Mutex
	failWrites   bool
	subscribeErr error
	gate         *writeGate
	writes       []mockWrite
	deletes      []string
	subs         map[string]*mockSub
	subscribes   int
	unsubscribes int
}

type mockSub struct {
	g          *mockGateway
	key        string
	onSnapshot domain.SnapshotFunc
	onError    domain.ErrorFunc
}

func newMockGateway() *mockGateway {
	return &mockGateway{subs: make(map[string]*mockSub)}
}

func (g *mockGateway) setFailWrites(fail bool) {
	g.mu.Lock()
	g.failWrites = fail
	g.mu.Unlock()
}

// gateNextWrite makes the next write (or delete) block until release
// is called with its result.
func (g *mockGateway) gateNextWrite() (started <-chan struct{}, release func(err error)) {
	gate := &writeGate{started: make(chan struct{}), release: make(chan error, 1)}
	g.mu.Lock()
	g.gate = gate
	g.mu.Unlock()
	return gate.started, func(err error) { gate.release <- err }
}

func (g *mockGateway) resolve(ctx context.Context) error {
	g.mu.Lock()
	gate := g.gate
	g.gate = nil
	fail := g.failWrites
	g.mu.Unlock()

	if gate != nil {
		close(gate.started)
		select {
		case err := <-gate.release:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return errors.New("store unavailable")
	}
	return nil
}

func (g *mockGateway) Write(ctx context.Context, collection, docID string, fields map[string]any) error {
	g.mu.Lock()
	g.writes = append(g.writes, mockWrite{Collection: collection, DocID: docID, Fields: fields})
	g.mu.Unlock()
	return g.resolve(ctx)
}

func (g *mockGateway) Delete(ctx context.Context, collection, docID string) error {
	g.mu.Lock()
	g.deletes = append(g.deletes, collection+"/"+docID)
	g.mu.Unlock()
	return g.resolve(ctx)
}

func (g *mockGateway) Subscribe(ctx context.Context, collection string, query domain.SnapshotQuery, onSnapshot domain.SnapshotFunc, onError domain.ErrorFunc) (domain.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.subscribeErr != nil {
		return nil, g.subscribeErr
	}
	sub := &mockSub{g: g, key: collection + "|" + query.UserID, onSnapshot: onSnapshot, onError: onError}
	g.subs[sub.key] = sub
	g.subscribes++
	return sub, nil
}

func (s *mockSub) Unsubscribe() error {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	if cur, ok := s.g.subs[s.key]; ok && cur == s {
		delete(s.g.subs, s.key)
	}
	s.g.unsubscribes++
	return nil
}

// Push delivers a trades snapshot to the active subscriber for userID.
func (g *mockGateway) Push(userID string, trades []*domain.Trade) {
	g.mu.Lock()
	sub := g.subs[domain.CollectionTrades+"|"+userID]
	g.mu.Unlock()
	if sub != nil {
		sub.onSnapshot(trades)
	}
}

func (g *mockGateway) writeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.writes)
}

func (g *mockGateway) lastWrite() (mockWrite, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.writes) == 0 {
		return mockWrite{}, false
	}
	return g.writes[len(g.writes)-1], true
}
