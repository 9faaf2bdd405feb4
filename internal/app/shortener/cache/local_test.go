package cache

import "testing"

func TestLocalCache_SetGet(t *testing.T) {
	l, err := NewLocalCache(1000, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.Set("abc", "https://example.com")
	l.Wait() // ristretto 的写是异步的

	got, ok := l.Get("abc")
	if !ok || got != "https://example.com" {
		t.Fatalf("got (%q, %v)", got, ok)
	}

	if _, ok := l.Get("missing"); ok {
		t.Fatal("unexpected hit for missing key")
	}
}

func TestLocalCache_NegativeEntry(t *testing.T) {
	l, err := NewLocalCache(1000, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.SetNotFound("gone")
	l.Wait()

	got, ok := l.Get("gone")
	if !ok || got != notFoundSentinel {
		t.Fatalf("got (%q, %v), want sentinel hit", got, ok)
	}
}

func TestLocalCache_Del(t *testing.T) {
	l, err := NewLocalCache(1000, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.Set("abc", "https://example.com")
	l.Wait()
	l.Del("abc")

	if _, ok := l.Get("abc"); ok {
		t.Fatal("entry still present after Del")
	}
}
