package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tradecircle/tradesync/internal/domain"
)

// DocStoreGateway is the concrete SyncGateway for the remote document
// store. Live queries ride one websocket connection carrying JSON
// frames; writes and deletes go over the store's REST surface so each
// call resolves exactly once with success or failure.
//
// Frame protocol:
//
//	client -> {"op":"subscribe","collection":"trades","userId":"u1","orderBy":"entryDate desc"}
//	client -> {"op":"unsubscribe","collection":"trades","userId":"u1"}
//	server -> {"op":"snapshot","collection":"trades","userId":"u1","docs":[...]}
//
// Every snapshot is a complete replacement set for the subscribed
// collection, never a diff.
type DocStoreGateway struct {
	wsURL   string
	restURL string
	client  *http.Client
	logger  *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	subs map[string][]*docSub // collection|userID, fan-out set
}

type docSub struct {
	g          *DocStoreGateway
	key        string
	collection string
	userID     string
	onSnapshot domain.SnapshotFunc
	onError    domain.ErrorFunc
}

type wireFrame struct {
	Op         string          `json:"op"`
	Collection string          `json:"collection"`
	UserID     string          `json:"userId"`
	OrderBy    string          `json:"orderBy,omitempty"`
	Docs       json.RawMessage `json:"docs,omitempty"`
}

func New(wsURL, restURL string, logger *zap.Logger) *DocStoreGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocStoreGateway{
		wsURL:   wsURL,
		restURL: restURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		subs:    make(map[string][]*docSub),
	}
}

// Subscribe opens (or reuses) the websocket connection and registers a
// live query for one user's documents in the collection. Multiple
// subscriptions may share one (collection, user) query; every snapshot
// fans out to all of them, and the wire query opens once per key.
func (g *DocStoreGateway) Subscribe(ctx context.Context, collection string, query domain.SnapshotQuery, onSnapshot domain.SnapshotFunc, onError domain.ErrorFunc) (domain.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, g.wsURL, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", g.wsURL, err)
		}
		g.conn = conn
		go g.readLoop(conn)
	}

	sub := &docSub{
		g:          g,
		key:        collection + "|" + query.UserID,
		collection: collection,
		userID:     query.UserID,
		onSnapshot: onSnapshot,
		onError:    onError,
	}
	if len(g.subs[sub.key]) == 0 {
		frame := wireFrame{
			Op:         "subscribe",
			Collection: collection,
			UserID:     query.UserID,
			OrderBy:    query.OrderBy,
		}
		if err := g.conn.WriteJSON(frame); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", collection, err)
		}
	}
	g.subs[sub.key] = append(g.subs[sub.key], sub)
	return sub, nil
}

// Unsubscribe deregisters the live query. Idempotent: once removed (or
// after a stream failure cleared it) further calls are no-ops. The wire
// unsubscribe goes out only when the last subscription for the key is
// removed, and the connection closes once no keys remain.
func (s *docSub) Unsubscribe() error {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()

	set := s.g.subs[s.key]
	idx := -1
	for i, cur := range set {
		if cur == s {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	set = append(set[:idx], set[idx+1:]...)
	if len(set) > 0 {
		s.g.subs[s.key] = set
		return nil
	}
	delete(s.g.subs, s.key)

	if s.g.conn == nil {
		return nil
	}
	frame := wireFrame{Op: "unsubscribe", Collection: s.collection, UserID: s.userID}
	err := s.g.conn.WriteJSON(frame)
	if len(s.g.subs) == 0 {
		conn := s.g.conn
		s.g.conn = nil
		conn.Close()
	}
	return err
}

func (g *DocStoreGateway) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			g.failStream(conn, err)
			return
		}

		var frame wireFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			g.logger.Warn("bad frame from store", zap.Error(err))
			continue
		}
		if frame.Op != "snapshot" {
			continue
		}

		var trades []*domain.Trade
		if len(frame.Docs) > 0 {
			if err := json.Unmarshal(frame.Docs, &trades); err != nil {
				g.logger.Warn("bad snapshot docs", zap.String("collection", frame.Collection), zap.Error(err))
				continue
			}
		}

		g.mu.Lock()
		targets := append([]*docSub(nil), g.subs[frame.Collection+"|"+frame.UserID]...)
		g.mu.Unlock()
		for _, sub := range targets {
			sub.onSnapshot(trades)
		}
	}
}

// failStream tears the connection down and notifies every registered
// subscriber once. Local caller state is untouched; owners re-subscribe
// to resume delivery.
func (g *DocStoreGateway) failStream(conn *websocket.Conn, cause error) {
	conn.Close()

	g.mu.Lock()
	if g.conn != conn {
		g.mu.Unlock()
		return
	}
	g.conn = nil
	var failed []*docSub
	for key, set := range g.subs {
		delete(g.subs, key)
		failed = append(failed, set...)
	}
	g.mu.Unlock()

	g.logger.Error("snapshot stream closed", zap.Error(cause))
	err := fmt.Errorf("%w: %w", domain.ErrSubscription, cause)
	for _, sub := range failed {
		if sub.onError != nil {
			sub.onError(err)
		}
	}
}

// Write upserts one whole document.
func (g *DocStoreGateway) Write(ctx context.Context, collection, docID string, fields map[string]any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, docID, err)
	}
	return g.send(ctx, http.MethodPost, collection, docID, body)
}

// Delete removes one document.
func (g *DocStoreGateway) Delete(ctx context.Context, collection, docID string) error {
	return g.send(ctx, http.MethodDelete, collection, docID, nil)
}

func (g *DocStoreGateway) send(ctx context.Context, method, collection, docID string, body []byte) error {
	endpoint := fmt.Sprintf("%s/v1/%s/%s", g.restURL, url.PathEscape(collection), url.PathEscape(docID))

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s/%s: status %d: %s", method, collection, docID, resp.StatusCode, string(msg))
	}
	return nil
}
