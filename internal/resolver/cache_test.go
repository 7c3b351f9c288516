package resolver

import (
	"testing"

	"github.com/rs/zerolog"

	"anischedule/internal/domain"
)

func TestCacheFirstWriterWins(t *testing.T) {
	c := NewCache(zerolog.Nop())
	first := &domain.Media{ID: 1}
	second := &domain.Media{ID: 2}

	c.Put("key", first)
	c.Put("key", second)

	got, ok := c.Get("key")
	if !ok || got == nil || got.ID != 1 {
		t.Fatalf("expected first value to win, got %+v ok=%v", got, ok)
	}
}

func TestCacheExplicitMiss(t *testing.T) {
	c := NewCache(zerolog.Nop())

	if _, ok := c.Get("key"); ok {
		t.Fatalf("unresolved key must report ok=false")
	}
	c.Put("key", nil)
	got, ok := c.Get("key")
	if !ok || got != nil {
		t.Fatalf("explicit miss must report ok=true with nil media")
	}
	// a later real result must not displace the recorded miss
	c.Put("key", &domain.Media{ID: 3})
	if got, _ := c.Get("key"); got != nil {
		t.Fatalf("recorded miss should win over later writes")
	}
}

func TestCacheConfirmOverwrites(t *testing.T) {
	c := NewCache(zerolog.Nop())
	c.Put("key", nil)
	c.Confirm("key", &domain.Media{ID: 7})
	got, ok := c.Get("key")
	if !ok || got == nil || got.ID != 7 {
		t.Fatalf("confirm must replace a failed first attempt, got %+v", got)
	}
	c.Confirm("key", nil)
	if got, _ := c.Get("key"); got == nil || got.ID != 7 {
		t.Fatalf("confirming nil must be a no-op")
	}
}
