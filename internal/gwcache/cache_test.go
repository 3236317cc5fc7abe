package gwcache

import (
	"testing"
	"time"

	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

func TestGetMissBeforeSet(t *testing.T) {
	c := New(Options{})
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected a miss on an empty cache")
	}
	if c.HitRate() != 0 {
		t.Errorf("expected initial hit rate 0, got %f", c.HitRate())
	}
}

func TestSetThenGetReturnsCachedTrue(t *testing.T) {
	c := New(Options{})
	resp := gwtypes.CompletionResponse{Content: "2", Provider: "openai"}
	c.Set("k", resp, time.Minute)

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected a hit")
	}
	if !got.Cached {
		t.Error("expected Cached=true on a cache hit")
	}
	if got.Content != "2" {
		t.Errorf("got content %q, want %q", got.Content, "2")
	}
}

func TestGetExpiredEntryIsMiss(t *testing.T) {
	c := New(Options{})
	fixed := time.Now()
	c.now = func() time.Time { return fixed }

	c.Set("k", gwtypes.CompletionResponse{Content: "2"}, time.Second)
	c.now = func() time.Time { return fixed.Add(2 * time.Second) }

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
	if c.Size() != 0 {
		t.Error("expected expired entry to be evicted on read")
	}
}

func TestSetEvictsEarliestExpiryAtCapacity(t *testing.T) {
	c := New(Options{MaxSize: 2})
	fixed := time.Now()
	c.now = func() time.Time { return fixed }

	c.Set("old", gwtypes.CompletionResponse{}, time.Second)
	c.Set("newer", gwtypes.CompletionResponse{}, time.Hour)
	c.Set("newest", gwtypes.CompletionResponse{}, time.Hour) // triggers eviction

	if _, ok := c.Get("old"); ok {
		t.Error("expected the earliest-expiring entry to have been evicted")
	}
	if _, ok := c.Get("newer"); !ok {
		t.Error("expected a later-expiring entry to survive")
	}
}

func TestHitRateTracksHitsAndMisses(t *testing.T) {
	c := New(Options{})
	c.Set("k", gwtypes.CompletionResponse{}, time.Minute)
	c.Get("k")      // hit
	c.Get("k")      // hit
	c.Get("absent") // miss

	if got := c.HitRate(); got != 2.0/3.0 {
		t.Errorf("got hit rate %f, want %f", got, 2.0/3.0)
	}
}

func TestMutatingReturnedResponseDoesNotCorruptCache(t *testing.T) {
	c := New(Options{})
	c.Set("k", gwtypes.CompletionResponse{Content: "original"}, time.Minute)

	got, _ := c.Get("k")
	got.Content = "mutated"

	got2, _ := c.Get("k")
	if got2.Content != "original" {
		t.Errorf("expected cache entry to be unaffected by caller mutation, got %q", got2.Content)
	}
}
