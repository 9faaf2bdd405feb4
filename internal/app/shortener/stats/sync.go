package stats

import (
	"context"
	"log/slog"
	"time"

	"snip.local/internal/app/shortener"
)

// StoreRecorder 同步落库的 Recorder：每个事件当场写两次存储。
// 跳转延迟会被统计写入拖高，只适合低流量或对计数实时性有要求的部署
// （TRACKING_MODE=sync 时启用）。失败同样只记日志。
type StoreRecorder struct {
	store   shortener.Store
	timeout time.Duration
}

func NewStoreRecorder(store shortener.Store) *StoreRecorder {
	return &StoreRecorder{store: store, timeout: 3 * time.Second}
}

func (r *StoreRecorder) Record(linkID int64, typ shortener.EventType, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.IncrementTotal(ctx, linkID, typ); err != nil {
		slog.Error("analytics: increment total failed", "err", err, "link_id", linkID)
	}
	if err := r.store.InsertEvent(ctx, linkID, typ, at); err != nil {
		slog.Error("analytics: insert event failed", "err", err, "link_id", linkID)
	}
}
