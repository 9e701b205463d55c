package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tradecircle/tradesync/internal/domain"
	"github.com/tradecircle/tradesync/internal/infrastructure/gateway"
)

// docStoreServer fakes the remote store's websocket side: it records
// the frames the client sends and lets tests push snapshot frames back.
type docStoreServer struct {
	srv    *httptest.Server
	frames chan map[string]any
	closed chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

func newDocStoreServer(t *testing.T) *docStoreServer {
	t.Helper()
	s := &docStoreServer{
		frames: make(chan map[string]any, 16),
		closed: make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		for {
			var frame map[string]any
			if err := conn.ReadJSON(&frame); err != nil {
				close(s.closed)
				return
			}
			s.frames <- frame
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *docStoreServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *docStoreServer) awaitFrame(t *testing.T, op string) map[string]any {
	t.Helper()
	select {
	case frame := <-s.frames:
		if frame["op"] != op {
			t.Fatalf("frame op = %v, want %q", frame["op"], op)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("no %s frame from client", op)
		return nil
	}
}

func (s *docStoreServer) pushSnapshot(t *testing.T, collection, userID string, docs string) {
	t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	raw := `{"op":"snapshot","collection":"` + collection + `","userId":"` + userID + `","docs":` + docs + `}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("push snapshot: %v", err)
	}
}

func subscribe(t *testing.T, g *gateway.DocStoreGateway, userID string) (domain.Subscription, chan int) {
	t.Helper()
	got := make(chan int, 4)
	query := domain.SnapshotQuery{UserID: userID, OrderBy: "entryDate desc"}
	sub, err := g.Subscribe(context.Background(), domain.CollectionTrades, query,
		func(trades []*domain.Trade) { got <- len(trades) }, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	return sub, got
}

func TestSnapshotFansOutToAllSubscribers(t *testing.T) {
	srv := newDocStoreServer(t)
	g := gateway.New(srv.wsURL(), "http://unused", zap.NewNop())

	// Two independent watchers of the same user's trades share one wire
	// query; neither registration may displace the other.
	_, gotA := subscribe(t, g, "u1")
	_, gotB := subscribe(t, g, "u1")
	srv.awaitFrame(t, "subscribe")

	srv.pushSnapshot(t, domain.CollectionTrades, "u1", `[{"id":"t1","userId":"u1"}]`)

	for name, got := range map[string]chan int{"first": gotA, "second": gotB} {
		select {
		case n := <-got:
			if n != 1 {
				t.Errorf("%s subscriber got %d trades, want 1", name, n)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s subscriber never received the snapshot", name)
		}
	}
}

func TestUnsubscribeLeavesRemainingSubscribersLive(t *testing.T) {
	srv := newDocStoreServer(t)
	g := gateway.New(srv.wsURL(), "http://unused", zap.NewNop())

	subA, gotA := subscribe(t, g, "u1")
	subB, gotB := subscribe(t, g, "u1")
	srv.awaitFrame(t, "subscribe")

	if err := subA.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	// The shared wire query must stay open while B is registered.
	select {
	case frame := <-srv.frames:
		t.Fatalf("unexpected %v frame after partial unsubscribe", frame["op"])
	case <-time.After(100 * time.Millisecond):
	}

	srv.pushSnapshot(t, domain.CollectionTrades, "u1", `[{"id":"t1","userId":"u1"}]`)
	select {
	case <-gotB:
	case <-time.After(2 * time.Second):
		t.Fatal("remaining subscriber never received the snapshot")
	}
	select {
	case <-gotA:
		t.Error("unsubscribed handle still receiving snapshots")
	default:
	}

	if err := subB.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	srv.awaitFrame(t, "unsubscribe")
}

func TestLastUnsubscribeClosesConnection(t *testing.T) {
	srv := newDocStoreServer(t)
	g := gateway.New(srv.wsURL(), "http://unused", zap.NewNop())

	sub, _ := subscribe(t, g, "u1")
	srv.awaitFrame(t, "subscribe")

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	srv.awaitFrame(t, "unsubscribe")
	select {
	case <-srv.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection left open after last unsubscribe")
	}
}
