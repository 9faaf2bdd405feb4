package shortener_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"snip.local/internal/app/shortener"
	slcache "snip.local/internal/app/shortener/cache"
	"snip.local/internal/app/shortener/repo/memory"
	"snip.local/internal/app/shortener/stats"
)

const testServerID = "test-server"

// fakeCache 是 shortener.Cache 的内存实现，给不依赖 Redis 的单测用。
type fakeCache struct {
	mu       sync.Mutex
	urls     map[string]string
	negative map[string]bool
	failGet  bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{urls: make(map[string]string), negative: make(map[string]bool)}
}

func (f *fakeCache) Get(_ context.Context, code string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet {
		return "", false, errors.New("cache backend down")
	}
	if f.negative[code] {
		return "", true, nil
	}
	return f.urls[code], false, nil
}

func (f *fakeCache) Set(_ context.Context, code, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls[code] = url
	delete(f.negative, code)
	return nil
}

func (f *fakeCache) SetNotFound(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.negative[code] = true
	return nil
}

func (f *fakeCache) Delete(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.urls, code)
	delete(f.negative, code)
	return nil
}

func (f *fakeCache) has(code string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.urls[code] != ""
}

func (f *fakeCache) isNegative(code string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.negative[code]
}

func newTestService(t *testing.T, store *memory.Store, cache shortener.Cache) *shortener.Service {
	t.Helper()
	obf, err := shortener.NewObfuscator()
	if err != nil {
		t.Fatal(err)
	}
	// 同步 recorder，断言统计时不用等异步消费
	return shortener.NewService(store, cache, nil, stats.NewStoreRecorder(store), obf, testServerID)
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New(shortener.Mod - 1)
	if err := store.SeedCounter(context.Background(), testServerID, 0); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestServiceCreate_FirstCodeIsZero(t *testing.T) {
	svc := newTestService(t, seededStore(t), nil)

	// 序号 0 混淆后还是 0，编码成 "0"
	code, err := svc.Create(context.Background(), "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if code != "0" {
		t.Fatalf("first code: got %q, want %q", code, "0")
	}
}

func TestServiceCreate_CodesAreUnique(t *testing.T) {
	svc := newTestService(t, seededStore(t), nil)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := svc.Create(context.Background(), "https://example.com/page")
		if err != nil {
			t.Fatal(err)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q at iteration %d", code, i)
		}
		seen[code] = true
	}
}

func TestServiceCreate_InvalidURL(t *testing.T) {
	svc := newTestService(t, seededStore(t), nil)

	for _, u := range []string{"", "not a url", "ftp://example.com"} {
		if _, err := svc.Create(context.Background(), u); !errors.Is(err, shortener.ErrInvalidURL) {
			t.Fatalf("Create(%q): got %v, want ErrInvalidURL", u, err)
		}
	}
}

func TestServiceCreate_CounterNotSeeded(t *testing.T) {
	store := memory.New(shortener.Mod - 1) // 不 seed
	svc := newTestService(t, store, nil)

	if _, err := svc.Create(context.Background(), "https://example.com"); !errors.Is(err, shortener.ErrCounterNotSeeded) {
		t.Fatalf("got %v, want ErrCounterNotSeeded", err)
	}
}

func TestServiceCreate_RangeExceeded(t *testing.T) {
	store := memory.New(1) // 只允许分配序号 0 和 1
	if err := store.SeedCounter(context.Background(), testServerID, 0); err != nil {
		t.Fatal(err)
	}
	svc := newTestService(t, store, nil)

	for i := 0; i < 2; i++ {
		if _, err := svc.Create(context.Background(), "https://example.com"); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if _, err := svc.Create(context.Background(), "https://example.com"); !errors.Is(err, shortener.ErrRangeExceeded) {
		t.Fatalf("got %v, want ErrRangeExceeded", err)
	}
}

func TestServiceResolve_CacheHitSkipsStore(t *testing.T) {
	store := seededStore(t)
	cache := newFakeCache()
	svc := newTestService(t, store, cache)

	code, err := svc.Create(context.Background(), "https://example.com/cached")
	if err != nil {
		t.Fatal(err)
	}

	// Create 已写缓存，两次解析都不应落到持久层
	for i := 0; i < 2; i++ {
		url, err := svc.Resolve(context.Background(), code, shortener.EventClick)
		if err != nil {
			t.Fatal(err)
		}
		if url != "https://example.com/cached" {
			t.Fatalf("got %q", url)
		}
	}
	if n := store.LongURLCalls(); n != 0 {
		t.Fatalf("store reads: got %d, want 0", n)
	}
}

func TestServiceResolve_MissRepopulatesCache(t *testing.T) {
	store := seededStore(t)
	cache := newFakeCache()
	svc := newTestService(t, store, cache)

	code, err := svc.Create(context.Background(), "https://example.com/repop")
	if err != nil {
		t.Fatal(err)
	}
	// 模拟缓存条目被驱逐
	if err := cache.Delete(context.Background(), code); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Resolve(context.Background(), code, shortener.EventClick); err != nil {
		t.Fatal(err)
	}
	if n := store.LongURLCalls(); n != 1 {
		t.Fatalf("store reads: got %d, want 1", n)
	}

	// 回填是异步的，轮询等它写进来
	deadline := time.Now().Add(2 * time.Second)
	for !cache.has(code) {
		if time.Now().After(deadline) {
			t.Fatal("cache was not repopulated after miss")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServiceResolve_CacheErrorFallsBackToStore(t *testing.T) {
	store := seededStore(t)
	cache := newFakeCache()
	svc := newTestService(t, store, cache)

	code, err := svc.Create(context.Background(), "https://example.com/degraded")
	if err != nil {
		t.Fatal(err)
	}
	cache.mu.Lock()
	cache.failGet = true
	cache.mu.Unlock()

	url, err := svc.Resolve(context.Background(), code, shortener.EventClick)
	if err != nil {
		t.Fatalf("cache failure must not fail resolve: %v", err)
	}
	if url != "https://example.com/degraded" {
		t.Fatalf("got %q", url)
	}
	if n := store.LongURLCalls(); n != 1 {
		t.Fatalf("store reads: got %d, want 1", n)
	}
}

func TestServiceResolve_NotFoundSetsNegativeCache(t *testing.T) {
	store := seededStore(t)
	cache := newFakeCache()
	svc := newTestService(t, store, cache)

	// "zzzzzz" 是合法短码但没人创建过
	if _, err := svc.Resolve(context.Background(), "zzzzzz", shortener.EventClick); !errors.Is(err, shortener.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if !cache.isNegative("zzzzzz") {
		t.Fatal("expected negative cache entry after miss")
	}

	// 第二次直接命中负缓存，不再查存储
	before := store.LongURLCalls()
	if _, err := svc.Resolve(context.Background(), "zzzzzz", shortener.EventClick); !errors.Is(err, shortener.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if store.LongURLCalls() != before {
		t.Fatal("negative cache hit should not reach the store")
	}
}

func TestServiceResolve_InvalidCode(t *testing.T) {
	svc := newTestService(t, seededStore(t), nil)

	for _, code := range []string{"", "bad_code", "短码", "zzzzzzzzzzz"} {
		if _, err := svc.Resolve(context.Background(), code, shortener.EventClick); !errors.Is(err, shortener.ErrInvalidCode) {
			t.Fatalf("Resolve(%q): got %v, want ErrInvalidCode", code, err)
		}
	}
}

func TestServiceDelete_EvictsCache(t *testing.T) {
	store := seededStore(t)
	cache := newFakeCache()
	svc := newTestService(t, store, cache)

	code, err := svc.Create(context.Background(), "https://example.com/tmp")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(context.Background(), code); err != nil {
		t.Fatal(err)
	}
	if cache.has(code) {
		t.Fatal("cache entry must be evicted on delete")
	}
	if _, err := svc.Resolve(context.Background(), code, shortener.EventClick); !errors.Is(err, shortener.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound after delete", err)
	}
}

func TestServiceDelete_NotFound(t *testing.T) {
	svc := newTestService(t, seededStore(t), nil)

	if err := svc.Delete(context.Background(), "zzzzzz"); !errors.Is(err, shortener.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestServiceAnalytics_CountsClicksAndScans(t *testing.T) {
	store := seededStore(t)
	svc := newTestService(t, store, nil)

	code, err := svc.Create(context.Background(), "https://example.com/stats")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.Resolve(context.Background(), code, shortener.EventClick); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Resolve(context.Background(), code, shortener.EventScan); err != nil {
		t.Fatal(err)
	}

	a, err := svc.Analytics(context.Background(), code)
	if err != nil {
		t.Fatal(err)
	}
	if a.LongURL != "https://example.com/stats" {
		t.Fatalf("LongURL: got %q", a.LongURL)
	}
	if a.TotalClicks != 2 || a.TotalScans != 1 {
		t.Fatalf("totals: got clicks=%d scans=%d, want 2/1", a.TotalClicks, a.TotalScans)
	}
	if len(a.History) != 3 {
		t.Fatalf("history: got %d events, want 3", len(a.History))
	}
	// 最新在前：最后一次访问是 scan
	if a.History[0].Type != shortener.EventScan {
		t.Fatalf("newest event: got %q, want scan", a.History[0].Type)
	}
	for i := 1; i < len(a.History); i++ {
		if a.History[i].Timestamp.After(a.History[i-1].Timestamp) {
			t.Fatal("history is not sorted newest-first")
		}
	}
}

func TestServiceWarmFilter(t *testing.T) {
	store := seededStore(t)
	filter := slcache.NewBloomFilter(1000, 0.01)
	obf, err := shortener.NewObfuscator()
	if err != nil {
		t.Fatal(err)
	}
	svc := shortener.NewService(store, nil, filter, nil, obf, testServerID)

	var codes []string
	for i := 0; i < 10; i++ {
		code, err := svc.Create(context.Background(), "https://example.com/warm")
		if err != nil {
			t.Fatal(err)
		}
		codes = append(codes, code)
	}

	// 新过滤器，重新预热
	fresh := slcache.NewBloomFilter(1000, 0.01)
	svc2 := shortener.NewService(store, nil, fresh, nil, obf, testServerID)
	if err := svc2.WarmFilter(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !fresh.Warmed() {
		t.Fatal("filter must be marked warmed after WarmFilter")
	}
	for _, code := range codes {
		if !fresh.MightExist(code) {
			t.Fatalf("warmed filter lost code %q", code)
		}
	}

	// 预热后的过滤器直接挡掉乱猜的短码
	before := store.LongURLCalls()
	if _, err := svc2.Resolve(context.Background(), "zzzzzz", shortener.EventClick); !errors.Is(err, shortener.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if store.LongURLCalls() != before {
		t.Fatal("warmed bloom filter should short-circuit the store read")
	}
}
