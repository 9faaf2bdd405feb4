package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"snip.local/internal/app/shortener"
)

type link struct {
	longURL     string
	totalClicks int64
	totalScans  int64
	createdAt   time.Time
	events      []shortener.AnalyticsEvent
}

// Store 是 shortener.Store 的内存实现：演示部署和测试用，进程退出即丢。
type Store struct {
	mu           sync.Mutex
	links        map[int64]*link
	counters     map[string]int64
	end          int64
	longURLCalls int
}

func New(end int64) *Store {
	return &Store{
		links:    make(map[int64]*link),
		counters: make(map[string]int64),
		end:      end,
	}
}

func (s *Store) SeedCounter(_ context.Context, serverID string, start int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counters[serverID]; !ok {
		s.counters[serverID] = start
	}
	return nil
}

func (s *Store) NextID(_ context.Context, serverID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.counters[serverID]
	if !ok {
		return 0, shortener.ErrCounterNotSeeded
	}
	s.counters[serverID] = value + 1
	if value > s.end {
		return 0, shortener.ErrRangeExceeded
	}
	return value, nil
}

func (s *Store) InsertLink(_ context.Context, id int64, longURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[id]; ok {
		return shortener.ErrDuplicateID
	}
	s.links[id] = &link{longURL: longURL, createdAt: time.Now().UTC()}
	return nil
}

func (s *Store) LongURL(_ context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.longURLCalls++
	l, ok := s.links[id]
	if !ok {
		return "", shortener.ErrNotFound
	}
	return l.longURL, nil
}

// LongURLCalls 返回 LongURL 被调用的次数，用来在测试里验证缓存确实挡住了读。
func (s *Store) LongURLCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.longURLCalls
}

func (s *Store) DeleteLink(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[id]; !ok {
		return shortener.ErrNotFound
	}
	delete(s.links, id)
	return nil
}

func (s *Store) IncrementTotal(_ context.Context, id int64, typ shortener.EventType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return shortener.ErrNotFound
	}
	if typ == shortener.EventScan {
		l.totalScans++
	} else {
		l.totalClicks++
	}
	return nil
}

func (s *Store) InsertEvent(_ context.Context, id int64, typ shortener.EventType, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return shortener.ErrNotFound
	}
	l.events = append(l.events, shortener.AnalyticsEvent{Type: typ, Timestamp: at})
	return nil
}

func (s *Store) Analytics(_ context.Context, id int64) (*shortener.LinkAnalytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return nil, shortener.ErrNotFound
	}

	history := make([]shortener.AnalyticsEvent, len(l.events))
	copy(history, l.events)
	// 最新在前
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.After(history[j].Timestamp)
	})

	return &shortener.LinkAnalytics{
		LongURL:     l.longURL,
		TotalClicks: l.totalClicks,
		TotalScans:  l.totalScans,
		CreatedAt:   l.createdAt,
		History:     history,
	}, nil
}

func (s *Store) ForEachID(_ context.Context, fn func(id int64)) error {
	s.mu.Lock()
	ids := make([]int64, 0, len(s.links))
	for id := range s.links {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		fn(id)
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}
