package cache_test

import (
	"testing"
	"time"

	"github.com/boddenberg/agent-relay/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	val, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != "value1" {
		t.Errorf("expected 'value1', got '%s'", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_SweeperRemovesExpired(t *testing.T) {
	c := cache.New[bool](20 * time.Millisecond)
	defer c.Close()

	c.Set("thread_1", true)
	time.Sleep(100 * time.Millisecond)

	if n := c.Len(); n != 0 {
		t.Fatalf("expected sweeper to drop expired entry, %d left", n)
	}
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := cache.New[bool](0)
	c.Close()
	c.Close()

	c.Set("thread_1", true)
	if _, ok := c.Get("thread_1"); !ok {
		t.Fatal("expected cache to stay usable after Close")
	}
}
