package repo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"snip.local/internal/app/shortener"
)

// PostgresStore 是 shortener.Store 的 Postgres 实现。
// 三张表：urls（映射+累计计数）、analytics（访问历史）、counters（每实例序号器）。
type PostgresStore struct {
	db  *pgxpool.Pool
	end int64 // 本实例允许分配的最大序号（含）
}

func NewPostgresStore(db *pgxpool.Pool, end int64) *PostgresStore {
	return &PostgresStore{db: db, end: end}
}

// SeedCounter 幂等初始化计数器行：行已存在时 ON CONFLICT DO NOTHING。
func (s *PostgresStore) SeedCounter(ctx context.Context, serverID string, start int64) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.db.Exec(dbctx,
		"INSERT INTO counters (server_id, value) VALUES ($1, $2) ON CONFLICT (server_id) DO NOTHING",
		serverID, start)
	if err != nil {
		slog.Error("seed counter failed", "err", err, "server_id", serverID)
		return err
	}
	return nil
}

// NextID 一条 UPDATE ... RETURNING 完成原子取号：
// 数据库行锁保证并发调用者拿到的序号互不重叠，不需要应用层加锁。
// 返回的是自增前的值（RETURNING 的是自增后的，所以减一）。
func (s *PostgresStore) NextID(ctx context.Context, serverID string) (int64, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var value int64
	err := s.db.
		QueryRow(dbctx, "UPDATE counters SET value = value + 1 WHERE server_id = $1 RETURNING value", serverID).
		Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) InsertLink(ctx context.Context, id int64, longURL string) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.db.Exec(dbctx,
		"INSERT INTO urls (id, long_url, created_at) VALUES ($1, $2, now())",
		id, longURL)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// 主键冲突：序号器状态被回退过，或两个实例共用了同一 server_id
			return shortener.ErrDuplicateID
		}
		slog.Error("insert link failed", "err", err, "id", id)
		return err
	}
	return nil
}

func (s *PostgresStore) LongURL(ctx context.Context, id int64) (string, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var url string
	err := s.db.QueryRow(dbctx, "SELECT long_url FROM urls WHERE id = $1", id).Scan(&url)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shortener.ErrNotFound
	}
	if err != nil {
		slog.Error("select long url failed", "err", err, "id", id)
		return "", err
	}
	return url, nil
}

func (s *PostgresStore) DeleteLink(ctx context.Context, id int64) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	// analytics 行由外键 ON DELETE CASCADE 一起删掉
	tag, err := s.db.Exec(dbctx, "DELETE FROM urls WHERE id = $1", id)
	if err != nil {
		slog.Error("delete link failed", "err", err, "id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return shortener.ErrNotFound
	}
	return nil
}

// IncrementTotal 用存储侧原子自增更新累计计数，不做读-改-写。
func (s *PostgresStore) IncrementTotal(ctx context.Context, id int64, typ shortener.EventType) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var query string
	switch typ {
	case shortener.EventScan:
		query = "UPDATE urls SET total_scans = total_scans + 1 WHERE id = $1"
	default:
		query = "UPDATE urls SET total_clicks = total_clicks + 1 WHERE id = $1"
	}
	if _, err := s.db.Exec(dbctx, query, id); err != nil {
		slog.Error("increment total failed", "err", err, "id", id)
		return err
	}
	return nil
}

func (s *PostgresStore) InsertEvent(ctx context.Context, id int64, typ shortener.EventType, at time.Time) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.db.Exec(dbctx,
		"INSERT INTO analytics (url_id, type, timestamp) VALUES ($1, $2, $3)",
		id, string(typ), at)
	if err != nil {
		slog.Error("insert event failed", "err", err, "id", id)
		return err
	}
	return nil
}

// Analytics 返回聚合统计和访问历史（时间倒序，最新在前）。
func (s *PostgresStore) Analytics(ctx context.Context, id int64) (*shortener.LinkAnalytics, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var a shortener.LinkAnalytics
	err := s.db.
		QueryRow(dbctx, "SELECT long_url, total_clicks, total_scans, created_at FROM urls WHERE id = $1", id).
		Scan(&a.LongURL, &a.TotalClicks, &a.TotalScans, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shortener.ErrNotFound
	}
	if err != nil {
		slog.Error("select analytics failed", "err", err, "id", id)
		return nil, err
	}

	rows, err := s.db.Query(dbctx,
		"SELECT type, timestamp FROM analytics WHERE url_id = $1 ORDER BY timestamp DESC", id)
	if err != nil {
		slog.Error("select analytics events failed", "err", err, "id", id)
		return nil, err
	}
	defer rows.Close()

	// 没有任何访问时返回空数组而不是 null
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

// ForEachID 遍历全部链接 ID（布隆过滤器预热用），不限时：
// 只在启动时跑一次，数据量大时宁可慢也不要中途截断。
func (s *PostgresStore) ForEachID(ctx context.Context, fn func(id int64)) error {
	rows, err := s.db.Query(ctx, "SELECT id FROM urls")
	if err != nil {
		slog.Error("select ids failed", "err", err)
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			slog.Error("scan id failed", "err", err)
			return err
		}
		fn(id)
	}
	return rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}
