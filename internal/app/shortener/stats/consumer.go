package stats

import (
	"context"
	"log/slog"
	"time"

	"snip.local/internal/app/shortener"
)

// Consumer 批量消费访问事件并落库。
//
// 每条事件做两件互相独立的事：自增累计数、追加历史记录。
// 任何一步失败只记日志继续处理下一条：统计是尽力而为的，
// 允许计数和历史在故障时出现少量偏差。
type Consumer struct {
	store     shortener.Store
	collector *ChannelCollector
	batchSize int
	interval  time.Duration
}

func NewConsumer(store shortener.Store, collector *ChannelCollector) *Consumer {
	return &Consumer{
		store:     store,
		collector: collector,
		batchSize: 100,         //批量写入大小
		interval:  time.Second, //最大等待时间
	}
}

// Run 阻塞消费循环，ctx 取消或 channel 关闭时清掉残余事件再退出。
func (c *Consumer) Run(ctx context.Context) {
	batch := make([]Event, 0, c.batchSize)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.flush(batch) //清理剩余事件
			return
		case event, ok := <-c.collector.Events():
			if !ok {
				c.flush(batch)
				return
			}
			batch = append(batch, event)
			if len(batch) >= c.batchSize {
				c.flush(batch)
				batch = batch[:0] //清空切片，但保留容量不变，避免反复分配内存
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (c *Consumer) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, e := range batch {
		//更新累计计数
		if err := c.store.IncrementTotal(ctx, e.LinkID, e.Type); err != nil {
			slog.Error("analytics: increment total failed", "err", err, "link_id", e.LinkID)
		}
		//追加历史记录（与计数互相独立，计数失败也照样追加）
		if err := c.store.InsertEvent(ctx, e.LinkID, e.Type, e.OccurredAt); err != nil {
			slog.Error("analytics: insert event failed", "err", err, "link_id", e.LinkID)
		}
	}
	slog.Debug("analytics: flushed", "count", len(batch))
}
