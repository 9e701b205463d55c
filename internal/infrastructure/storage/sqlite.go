package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tradecircle/tradesync/internal/domain"
)

// SQLiteCache is the offline TradeCache: the last known ledger and
// interaction state per user, replaced wholesale on every save so the
// cached view always matches one reconciled snapshot.
type SQLiteCache struct {
	db *sql.DB
}

func NewSQLiteCache(dbPath string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	cache := &SQLiteCache{db: db}
	if err := cache.initSchema(); err != nil {
		return nil, err
	}
	return cache, nil
}

func (c *SQLiteCache) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trade_snapshots (
			user_id TEXT NOT NULL,
			trade_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			ticker TEXT NOT NULL,
			kind TEXT NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL,
			quantity INTEGER NOT NULL,
			entry_date DATETIME NOT NULL,
			exit_date DATETIME,
			is_open BOOLEAN NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			strategy TEXT NOT NULL DEFAULT '',
			shared_to TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (user_id, trade_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_snapshots_user ON trade_snapshots(user_id, position);`,
		`CREATE TABLE IF NOT EXISTS interactions (
			user_id TEXT NOT NULL,
			post_id TEXT NOT NULL,
			liked BOOLEAN NOT NULL DEFAULT 0,
			bookmarked BOOLEAN NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, post_id)
		);`,
	}

	for _, q := range queries {
		if _, err := c.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// SaveSnapshot replaces the cached ledger for the user.
func (c *SQLiteCache) SaveSnapshot(ctx context.Context, userID string, trades []*domain.Trade) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trade_snapshots WHERE user_id = ?`, userID); err != nil {
		return err
	}

	query := `INSERT INTO trade_snapshots
		(user_id, trade_id, position, ticker, kind, entry_price, exit_price, quantity, entry_date, exit_date, is_open, notes, strategy, shared_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i, t := range trades {
		var exitPrice sql.NullFloat64
		var exitDate sql.NullTime
		if !t.IsOpen {
			exitPrice = sql.NullFloat64{Float64: t.ExitPrice, Valid: true}
			exitDate = sql.NullTime{Time: t.ExitDate, Valid: true}
		}
		_, err := tx.ExecContext(ctx, query,
			userID, t.ID, i, t.Ticker, string(t.Kind), t.EntryPrice, exitPrice,
			t.Quantity, t.EntryDate, exitDate, t.IsOpen, t.Notes, t.Strategy,
			strings.Join(t.SharedTo, ","))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadSnapshot returns the cached ledger in its stored order. An
// unknown user yields an empty slice, not an error.
func (c *SQLiteCache) LoadSnapshot(ctx context.Context, userID string) ([]*domain.Trade, error) {
	query := `SELECT trade_id, ticker, kind, entry_price, exit_price, quantity, entry_date, exit_date, is_open, notes, strategy, shared_to
		FROM trade_snapshots WHERE user_id = ? ORDER BY position`
	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.Trade
	for rows.Next() {
		var t domain.Trade
		var kind, sharedTo string
		var exitPrice sql.NullFloat64
		var exitDate sql.NullTime
		var entryDate time.Time
		if err := rows.Scan(&t.ID, &t.Ticker, &kind, &t.EntryPrice, &exitPrice,
			&t.Quantity, &entryDate, &exitDate, &t.IsOpen, &t.Notes, &t.Strategy, &sharedTo); err != nil {
			return nil, err
		}
		t.UserID = userID
		t.Kind = domain.TradeKind(kind)
		t.EntryDate = entryDate
		if exitPrice.Valid {
			t.ExitPrice = exitPrice.Float64
		}
		if exitDate.Valid {
			t.ExitDate = exitDate.Time
		}
		if sharedTo != "" {
			t.SharedTo = strings.Split(sharedTo, ",")
		}
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

// SaveInteractions replaces the cached liked/bookmarked sets.
func (c *SQLiteCache) SaveInteractions(ctx context.Context, userID string, liked, bookmarked []string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM interactions WHERE user_id = ?`, userID); err != nil {
		return err
	}

	state := make(map[string][2]bool)
	for _, id := range liked {
		state[id] = [2]bool{true, state[id][1]}
	}
	for _, id := range bookmarked {
		state[id] = [2]bool{state[id][0], true}
	}

	query := `INSERT INTO interactions (user_id, post_id, liked, bookmarked) VALUES (?, ?, ?, ?)`
	for postID, flags := range state {
		if _, err := tx.ExecContext(ctx, query, userID, postID, flags[0], flags[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadInteractions returns the cached liked and bookmarked post ids.
func (c *SQLiteCache) LoadInteractions(ctx context.Context, userID string) ([]string, []string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT post_id, liked, bookmarked FROM interactions WHERE user_id = ? ORDER BY post_id`, userID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var liked, bookmarked []string
	for rows.Next() {
		var postID string
		var isLiked, isBookmarked bool
		if err := rows.Scan(&postID, &isLiked, &isBookmarked); err != nil {
			return nil, nil, err
		}
		if isLiked {
			liked = append(liked, postID)
		}
		if isBookmarked {
			bookmarked = append(bookmarked, postID)
		}
	}
	return liked, bookmarked, rows.Err()
}

// Close releases the underlying database handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
