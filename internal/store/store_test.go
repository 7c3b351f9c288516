package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"anischedule/internal/domain"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), zerolog.Nop())
}

func TestLoadMissingIsEmpty(t *testing.T) {
	s := testStore(t)
	sched, err := s.LoadSchedule(domain.CategoryDub)
	if err != nil {
		t.Fatalf("LoadSchedule: %v", err)
	}
	if len(sched) != 0 {
		t.Fatalf("expected empty schedule, got %d entries", len(sched))
	}
	feed, err := s.LoadFeed(domain.CategorySub)
	if err != nil {
		t.Fatalf("LoadFeed: %v", err)
	}
	if len(feed) != 0 {
		t.Fatalf("expected empty feed, got %d records", len(feed))
	}
}

func TestSaveWritesBothMirrorsAndSkipsNoop(t *testing.T) {
	s := testStore(t)
	feed := domain.Feed{{
		ID:     42,
		Format: "TV",
		Episode: domain.FeedEpisode{
			Aired:   5,
			AiredAt: time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC),
		},
	}}

	wrote, err := s.SaveFeed(domain.CategoryDub, feed)
	if err != nil {
		t.Fatalf("SaveFeed: %v", err)
	}
	if !wrote {
		t.Fatal("first save should write")
	}

	if _, err := os.Stat(filepath.Join(s.dir, "raw", "dub-episode-feed.json")); err != nil {
		t.Fatalf("raw mirror missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.dir, "readable", "dub-episode-feed-readable.json")); err != nil {
		t.Fatalf("readable mirror missing: %v", err)
	}

	wrote, err = s.SaveFeed(domain.CategoryDub, feed)
	if err != nil {
		t.Fatalf("SaveFeed: %v", err)
	}
	if wrote {
		t.Fatal("identical save should be a no-op")
	}

	loaded, err := s.LoadFeed(domain.CategoryDub)
	if err != nil {
		t.Fatalf("LoadFeed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != 42 || loaded[0].Episode.Aired != 5 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestWriteChanges(t *testing.T) {
	s := testStore(t)
	if err := s.WriteChanges([]string{"(Dub) Added Episode 5 for Title", "(Sub) Removed Episode 2 for Other"}); err != nil {
		t.Fatalf("WriteChanges: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(s.dir, "changes.txt"))
	if err != nil {
		t.Fatal(err)
	}
	want := "(Dub) Added Episode 5 for Title\n(Sub) Removed Episode 2 for Other\n"
	if string(b) != want {
		t.Fatalf("changes artifact mismatch: %q", string(b))
	}
}
