package cache

import (
	"testing"
	"time"

	"github.com/starford/ogfetch/internal/metadata"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestGet_FreshnessBoundary(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(10*time.Second, clk.now)
	c.Put("https://a.test", metadata.Record{Title: "A"})

	clk.t = clk.t.Add(10*time.Second - time.Nanosecond)
	rec, ok := c.Get("https://a.test")
	if !ok || rec.Title != "A" {
		t.Fatalf("expected fresh hit just before expiry, got %v %+v", ok, rec)
	}

	clk.t = clk.t.Add(time.Nanosecond)
	if _, ok := c.Get("https://a.test"); ok {
		t.Error("entry must be absent at insertion + duration")
	}
	if c.Len() != 1 {
		t.Error("stale entry should not be purged by Get")
	}
}

func TestPut_OverwriteResetsTimestamp(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	c := New(time.Minute, clk.now)
	c.Put("u", metadata.Record{Title: "old"})
	clk.t = clk.t.Add(50 * time.Second)
	c.Put("u", metadata.Record{Title: "new"})
	clk.t = clk.t.Add(50 * time.Second)
	rec, ok := c.Get("u")
	if !ok || rec.Title != "new" {
		t.Errorf("got %v %+v", ok, rec)
	}
}

func TestInvalidateAndClear(t *testing.T) {
	c := New(time.Hour, nil)
	c.Put("a", metadata.Record{})
	c.Put("b", metadata.Record{})
	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be gone")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("b should remain")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("len = %d after Clear", c.Len())
	}
}

func TestDisabled(t *testing.T) {
	c := New(0, nil)
	c.Put("a", metadata.Record{Title: "x"})
	if _, ok := c.Get("a"); ok {
		t.Error("zero ttl should disable caching")
	}
}
