package stats

import (
	"context"
	"testing"
	"time"

	"snip.local/internal/app/shortener"
	"snip.local/internal/app/shortener/repo/memory"
)

func TestChannelCollector_DropsWhenFull(t *testing.T) {
	c := NewChannelCollector(2)
	defer c.Close()

	for i := 0; i < 5; i++ {
		// 缓冲只有 2，后面的必须被丢弃而不是阻塞
		c.Collect(Event{LinkID: int64(i), Type: shortener.EventClick, OccurredAt: time.Now()})
	}
	if n := len(c.Events()); n != 2 {
		t.Fatalf("buffered events: got %d, want 2", n)
	}
}

func TestChannelCollector_CloseIsIdempotent(t *testing.T) {
	c := NewChannelCollector(1)
	c.Close()
	c.Close() // 第二次不能 panic

	// 关闭后 Collect 是 no-op
	c.Collect(Event{LinkID: 1, Type: shortener.EventClick, OccurredAt: time.Now()})
}

func TestConsumer_FlushesToStore(t *testing.T) {
	store := memory.New(1 << 30)
	ctx := context.Background()
	if err := store.InsertLink(ctx, 1, "https://example.com"); err != nil {
		t.Fatal(err)
	}

	collector := NewChannelCollector(100)
	consumer := NewConsumer(store, collector)

	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()

	now := time.Now()
	collector.Record(1, shortener.EventClick, now)
	collector.Record(1, shortener.EventScan, now.Add(time.Second))
	collector.Close() // 关闭 channel，消费者清空后退出

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("consumer did not exit after collector close")
	}

	a, err := store.Analytics(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if a.TotalClicks != 1 || a.TotalScans != 1 {
		t.Fatalf("totals: got clicks=%d scans=%d, want 1/1", a.TotalClicks, a.TotalScans)
	}
	if len(a.History) != 2 {
		t.Fatalf("history: got %d events, want 2", len(a.History))
	}
}

func TestConsumer_MissingLinkDoesNotStopBatch(t *testing.T) {
	store := memory.New(1 << 30)
	ctx := context.Background()
	if err := store.InsertLink(ctx, 2, "https://example.com"); err != nil {
		t.Fatal(err)
	}

	collector := NewChannelCollector(100)
	consumer := NewConsumer(store, collector)

	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()

	// 第一条指向不存在的链接，失败后第二条仍然要落库
	collector.Record(999, shortener.EventClick, time.Now())
	collector.Record(2, shortener.EventClick, time.Now())
	collector.Close()
	<-done

	a, err := store.Analytics(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if a.TotalClicks != 1 {
		t.Fatalf("totalClicks: got %d, want 1", a.TotalClicks)
	}
}

func TestStoreRecorder(t *testing.T) {
	store := memory.New(1 << 30)
	ctx := context.Background()
	if err := store.InsertLink(ctx, 3, "https://example.com"); err != nil {
		t.Fatal(err)
	}

	r := NewStoreRecorder(store)
	r.Record(3, shortener.EventScan, time.Now())

	a, err := store.Analytics(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if a.TotalScans != 1 || len(a.History) != 1 {
		t.Fatalf("got scans=%d history=%d, want 1/1", a.TotalScans, len(a.History))
	}
}
