package cache

import (
	"context"
	"testing"
	"time"
)

func TestLRU_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(4, time.Minute)

	if _, ok, err := c.Get(ctx, "missing"); ok || err != nil {
		t.Errorf("Get(missing) = (_, %v, %v), want (_, false, nil)", ok, err)
	}

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Errorf("Get(k) = (%q, %v, %v), want (\"v\", true, nil)", got, ok, err)
	}

	if err := c.Set(ctx, "k", []byte("v2"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, _, _ = c.Get(ctx, "k")
	if string(got) != "v2" {
		t.Errorf("Get(k) after overwrite = %q, want %q", got, "v2")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, 0)

	c.Set(ctx, "a", []byte("1"), 0)
	c.Set(ctx, "b", []byte("2"), 0)
	c.Get(ctx, "a") // a is now most recent
	c.Set(ctx, "c", []byte("3"), 0)

	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Error("expected b to be evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok, _ := c.Get(ctx, k); !ok {
			t.Errorf("expected %s to be present", k)
		}
	}
}

func TestLRU_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(4, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set(ctx, "default", []byte("x"), 0)
	c.Set(ctx, "short", []byte("y"), time.Second)

	now = now.Add(2 * time.Second)
	if _, ok, _ := c.Get(ctx, "short"); ok {
		t.Error("expected short-lived entry to expire")
	}
	if _, ok, _ := c.Get(ctx, "default"); !ok {
		t.Error("expected default-ttl entry to survive")
	}

	now = now.Add(time.Minute)
	if _, ok, _ := c.Get(ctx, "default"); ok {
		t.Error("expected default-ttl entry to expire")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after expiry", c.Len())
	}
}

func TestLRU_Generations(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(4, 0)

	gen, err := c.Generation(ctx, "p1")
	if err != nil || gen != 0 {
		t.Errorf("Generation(p1) = (%d, %v), want (0, nil)", gen, err)
	}

	c.Bump(ctx, "p1")
	c.Bump(ctx, "p1")
	if gen, _ := c.Generation(ctx, "p1"); gen != 2 {
		t.Errorf("Generation(p1) = %d, want 2", gen)
	}
	if gen, _ := c.Generation(ctx, "p2"); gen != 0 {
		t.Errorf("Generation(p2) = %d, want 0", gen)
	}
}

func TestLRU_Stats(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(4, 0)

	c.Set(ctx, "k", []byte("v"), 0)
	c.Get(ctx, "k")
	c.Get(ctx, "k")
	c.Get(ctx, "nope")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Size != 1 {
		t.Errorf("Stats() = %+v, want {Hits:2 Misses:1 Size:1}", s)
	}
	if rate := s.HitRate(); rate < 0.66 || rate > 0.67 {
		t.Errorf("HitRate() = %v, want ~0.667", rate)
	}
	if (Stats{}).HitRate() != 0 {
		t.Error("empty Stats HitRate should be 0")
	}
}

func TestLRU_Closed(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(4, 0)
	c.Close()

	if _, _, err := c.Get(ctx, "k"); err != ErrClosed {
		t.Errorf("Get() error = %v, want ErrClosed", err)
	}
	if err := c.Set(ctx, "k", nil, 0); err != ErrClosed {
		t.Errorf("Set() error = %v, want ErrClosed", err)
	}
	if err := c.Bump(ctx, "s"); err != ErrClosed {
		t.Errorf("Bump() error = %v, want ErrClosed", err)
	}
}
