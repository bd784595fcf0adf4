package cache

import (
	"context"
	"testing"
	"time"
)

// 캐시 백엔드가 전혀 없을 때 모든 연산이 miss/no-op으로 degrade해야 한다.
func TestStoreWithoutBackend(t *testing.T) {
	s := New("", time.Second)
	ctx := context.Background()

	if s.Available() {
		t.Fatal("store without backend should not report available")
	}

	if _, hit := s.Get(ctx, "k"); hit {
		t.Error("Get should miss without backend")
	}

	// 쓰기 계열은 패닉/에러 없이 no-op이어야 한다
	s.Set(ctx, "k", "v", time.Minute)
	s.Delete(ctx, "k")
	s.IncrSortedSet(ctx, "trending", "카페", 1, time.Hour)
	s.PushCappedList(ctx, "history", "카페", 100, time.Hour)
	s.SetList(ctx, "history", []string{"a", "b"}, 100, time.Hour)

	if got := s.TopSortedSet(ctx, "trending", 10); got != nil {
		t.Errorf("TopSortedSet should be empty without backend, got %v", got)
	}
	if got := s.GetList(ctx, "history"); got != nil {
		t.Errorf("GetList should be empty without backend, got %v", got)
	}
	if got := s.Scan(ctx, "search:*"); got != nil {
		t.Errorf("Scan should be empty without backend, got %v", got)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close should be nil-safe: %v", err)
	}
}

func TestStoreInvalidURL(t *testing.T) {
	s := New("not-a-redis-url", time.Second)
	if s.Available() {
		t.Error("invalid URL should leave the store disabled")
	}
}

func TestStoreTimeoutDefault(t *testing.T) {
	s := New("", 0)
	if s.timeout <= 0 {
		t.Error("zero timeout should fall back to a sane default")
	}
}
