package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
	"snip.local/internal/app/shortener"
)

const schema = `
CREATE TABLE IF NOT EXISTS urls (
    id           INTEGER PRIMARY KEY,
    long_url     TEXT    NOT NULL,
    total_clicks INTEGER NOT NULL DEFAULT 0,
    total_scans  INTEGER NOT NULL DEFAULT 0,
    created_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS analytics (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    url_id    INTEGER NOT NULL REFERENCES urls(id) ON DELETE CASCADE,
    type      TEXT    NOT NULL,
    timestamp TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analytics_url_id ON analytics(url_id);

CREATE TABLE IF NOT EXISTS counters (
    server_id TEXT    PRIMARY KEY,
    value     INTEGER NOT NULL
);
`

// Store 是 shortener.Store 的嵌入式 SQLite 实现（modernc.org/sqlite，纯 Go 无 cgo）。
// 单机部署用它可以省掉 Postgres：一个文件就是全部状态。
type Store struct {
	db  *sql.DB
	end int64
}

// New 打开（或创建）数据库文件并建表。
// 连接数固定为 1：SQLite 写锁是库级的，多连接只会换来 SQLITE_BUSY。
func New(path string, end int64) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, end: end}, nil
}

func (s *Store) SeedCounter(ctx context.Context, serverID string, start int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO counters (server_id, value) VALUES (?, ?) ON CONFLICT (server_id) DO NOTHING",
		serverID, start)
	if err != nil {
		slog.Error("seed counter failed", "err", err, "server_id", serverID)
	}
	return err
}

func (s *Store) NextID(ctx context.Context, serverID string) (int64, error) {
	var value int64
	err := s.db.
		QueryRowContext(ctx, "UPDATE counters SET value = value + 1 WHERE server_id = ? RETURNING value", serverID).
		Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, shortener.ErrCounterNotSeeded
	}
	if err != nil {
		slog.Error("next id failed", "err", err, "server_id", serverID)
		return 0, err
	}

	allocated := value - 1
	if allocated > s.end {
		return 0, shortener.ErrRangeExceeded
	}
	return allocated, nil
}

func (s *Store) InsertLink(ctx context.Context, id int64, longURL string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO urls (id, long_url, created_at) VALUES (?, ?, ?)",
		id, longURL, time.Now().UTC())
	if err != nil {
		// modernc 驱动没有结构化错误码，只能按文案识别约束冲突
		if strings.Contains(err.Error(), "constraint") {
			return shortener.ErrDuplicateID
		}
		slog.Error("insert link failed", "err", err, "id", id)
		return err
	}
	return nil
}

func (s *Store) LongURL(ctx context.Context, id int64) (string, error) {
	var url string
	err := s.db.QueryRowContext(ctx, "SELECT long_url FROM urls WHERE id = ?", id).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", shortener.ErrNotFound
	}
	if err != nil {
		slog.Error("select long url failed", "err", err, "id", id)
		return "", err
	}
	return url, nil
}

func (s *Store) DeleteLink(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM urls WHERE id = ?", id)
	if err != nil {
		slog.Error("delete link failed", "err", err, "id", id)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shortener.ErrNotFound
	}
	return nil
}

func (s *Store) IncrementTotal(ctx context.Context, id int64, typ shortener.EventType) error {
	var query string
	switch typ {
	case shortener.EventScan:
		query = "UPDATE urls SET total_scans = total_scans + 1 WHERE id = ?"
	default:
		query = "UPDATE urls SET total_clicks = total_clicks + 1 WHERE id = ?"
	}
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		slog.Error("increment total failed", "err", err, "id", id)
		return err
	}
	return nil
}

func (s *Store) InsertEvent(ctx context.Context, id int64, typ shortener.EventType, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO analytics (url_id, type, timestamp) VALUES (?, ?, ?)",
		id, string(typ), at.UTC())
	if err != nil {
		slog.Error("insert event failed", "err", err, "id", id)
	}
	return err
}

func (s *Store) Analytics(ctx context.Context, id int64) (*shortener.LinkAnalytics, error) {
	var a shortener.LinkAnalytics
	err := s.db.
		QueryRowContext(ctx, "SELECT long_url, total_clicks, total_scans, created_at FROM urls WHERE id = ?", id).
		Scan(&a.LongURL, &a.TotalClicks, &a.TotalScans, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shortener.ErrNotFound
	}
	if err != nil {
		slog.Error("select analytics failed", "err", err, "id", id)
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT type, timestamp FROM analytics WHERE url_id = ? ORDER BY timestamp DESC, id DESC", id)
	if err != nil {
		slog.Error("select analytics events failed", "err", err, "id", id)
		return nil, err
	}
	defer rows.Close()

	a.History = make([]shortener.AnalyticsEvent, 0)
	for rows.Next() {
		var e shortener.AnalyticsEvent
		var typ string
		if err := rows.Scan(&typ, &e.Timestamp); err != nil {
			slog.Error("scan analytics event failed", "err", err, "id", id)
			return nil, err
		}
		e.Type = shortener.EventType(typ)
		a.History = append(a.History, e)
	}
	if err := rows.Err(); err != nil {
		slog.Error("iterate analytics events failed", "err", err, "id", id)
		return nil, err
	}
	return &a, nil
}

func (s *Store) ForEachID(ctx context.Context, fn func(id int64)) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM urls")
	if err != nil {
		slog.Error("select ids failed", "err", err)
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		fn(id)
	}
	return rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		slog.Error("close sqlite failed", "err", err)
	}
}
