package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestInMemoryCache_SetGet(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Expected v, got %q", got)
	}
}

func TestInMemoryCache_Miss(t *testing.T) {
	c := NewInMemoryCache()

	_, err := c.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryCache_Expiry(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after expiry, got %v", err)
	}
}

func TestInMemoryCache_DeleteAndClear(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	c.Set(ctx, "a", []byte("1"), time.Minute)
	c.Set(ctx, "b", []byte("2"), time.Minute)

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected deleted key to miss, got %v", err)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := c.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected cleared key to miss, got %v", err)
	}
}

func TestRedisCache_SetGet(t *testing.T) {
	s := miniredis.RunT(t)

	c, err := NewRedisCache(s.Addr(), "", 0)
	if err != nil {
		t.Fatalf("Failed to create redis cache: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Expected v, got %q", got)
	}
}

func TestRedisCache_Miss(t *testing.T) {
	s := miniredis.RunT(t)

	c, err := NewRedisCache(s.Addr(), "", 0)
	if err != nil {
		t.Fatalf("Failed to create redis cache: %v", err)
	}
	defer c.Close()

	if _, err := c.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRedisCache_TTL(t *testing.T) {
	s := miniredis.RunT(t)

	c, err := NewRedisCache(s.Addr(), "", 0)
	if err != nil {
		t.Fatalf("Failed to create redis cache: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after TTL, got %v", err)
	}
}

func TestJSONHelpers_RoundTrip(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	type payload struct {
		Page  int      `json:"page"`
		Names []string `json:"names"`
	}

	in := payload{Page: 3, Names: []string{"a", "b"}}
	if err := SetJSON(ctx, c, ListingPageKey(3), in, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var out payload
	if err := GetJSON(ctx, c, ListingPageKey(3), &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Page != 3 || len(out.Names) != 2 {
		t.Errorf("Round-tripped payload mismatch: %+v", out)
	}
}

func TestListingPageKey(t *testing.T) {
	if got := ListingPageKey(7); got != "listing:page:7" {
		t.Errorf("Expected listing:page:7, got %q", got)
	}
}
