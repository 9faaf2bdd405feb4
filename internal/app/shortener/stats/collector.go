package stats

import (
	"sync/atomic"
	"time"

	"snip.local/internal/app/shortener"
	"snip.local/internal/platform/metrics"
)

// Event 是一次访问（点击或扫码）。LinkID 是原始存储 ID，不是短码。
type Event struct {
	LinkID     int64               `json:"linkId"`
	Type       shortener.EventType `json:"type"`
	OccurredAt time.Time           `json:"occurredAt"`
}

// Collector 收集器接口（方便后续换 Kafka）。
// Collect 必须永不阻塞、永不报错：统计挂了不能影响跳转。
type Collector interface {
	Collect(event Event)
	Close()
}

// ChannelCollector 基于 channel 的收集器。
// 缓冲满时直接丢弃并计数，绝不阻塞热路径。
type ChannelCollector struct {
	ch     chan Event
	closed atomic.Bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{
		ch: make(chan Event, bufferSize),
	}
}

func (c *ChannelCollector) Collect(event Event) {
	if c.closed.Load() {
		return
	}
	select {
	case c.ch <- event:
	default:
		// 通道满了，丢弃
		metrics.AnalyticsEventsDropped.Inc()
	}
}

func (c *ChannelCollector) Events() <-chan Event {
	return c.ch
}

func (c *ChannelCollector) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.ch)
	}
}

// Record 实现 shortener.Recorder，把领域层事件转成统计事件。
func (c *ChannelCollector) Record(linkID int64, typ shortener.EventType, at time.Time) {
	c.Collect(Event{LinkID: linkID, Type: typ, OccurredAt: at})
}
