// Package store persists the reconciler's durable state as JSON documents.
// Every document exists twice: a compact machine form under raw/ and a
// pretty-printed mirror under readable/. Writes recompute the full target
// bytes and are skipped when nothing changed, so re-running after a crash is
// always safe and never produces spurious diffs.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"anischedule/internal/domain"
)

type Store struct {
	dir    string
	logger zerolog.Logger
}

// Dir returns the root directory the documents live under.
func (s *Store) Dir() string { return s.dir }

func New(dir string, logger zerolog.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

func (s *Store) schedulePath(cat domain.Category) string {
	return filepath.Join(s.dir, "raw", cat.String()+"-schedule.json")
}

func (s *Store) feedPath(cat domain.Category) string {
	return filepath.Join(s.dir, "raw", cat.String()+"-episode-feed.json")
}

func (s *Store) readableMirror(rawPath string) string {
	base := filepath.Base(rawPath)
	ext := filepath.Ext(base)
	return filepath.Join(s.dir, "readable", base[:len(base)-len(ext)]+"-readable"+ext)
}

func (s *Store) overridesPath(cat domain.Category) string {
	return filepath.Join(s.dir, cat.String()+"-custom-entries.json")
}

func (s *Store) changesPath() string {
	return filepath.Join(s.dir, "changes.txt")
}

func (s *Store) LoadSchedule(cat domain.Category) (domain.Schedule, error) {
	var sched domain.Schedule
	if err := s.load(s.schedulePath(cat), &sched); err != nil {
		return nil, err
	}
	if sched == nil {
		sched = domain.Schedule{}
	}
	return sched, nil
}

// SaveSchedule writes both mirrors and reports whether anything was written.
func (s *Store) SaveSchedule(cat domain.Category, sched domain.Schedule) (bool, error) {
	return s.save(s.schedulePath(cat), sched)
}

func (s *Store) LoadFeed(cat domain.Category) (domain.Feed, error) {
	var feed domain.Feed
	if err := s.load(s.feedPath(cat), &feed); err != nil {
		return nil, err
	}
	if feed == nil {
		feed = domain.Feed{}
	}
	return feed, nil
}

func (s *Store) SaveFeed(cat domain.Category, feed domain.Feed) (bool, error) {
	return s.save(s.feedPath(cat), feed)
}

// LoadSeasonal reads a seasonal schedule document: the plain media list the
// sub and hentai pipelines work from.
func (s *Store) LoadSeasonal(cat domain.Category) ([]domain.Media, error) {
	var media []domain.Media
	if err := s.load(s.schedulePath(cat), &media); err != nil {
		return nil, err
	}
	if media == nil {
		media = []domain.Media{}
	}
	return media, nil
}

func (s *Store) SaveSeasonal(cat domain.Category, media []domain.Media) (bool, error) {
	return s.save(s.schedulePath(cat), media)
}

// LoadOverrides reads the manually maintained entries for series the
// upstream timetable does not cover. A missing file is an empty list.
func (s *Store) LoadOverrides(cat domain.Category) (domain.Schedule, error) {
	var sched domain.Schedule
	if err := s.load(s.overridesPath(cat), &sched); err != nil {
		return nil, err
	}
	return sched, nil
}

func (s *Store) SaveOverrides(cat domain.Category, sched domain.Schedule) (bool, error) {
	if sched == nil {
		sched = domain.Schedule{}
	}
	raw, err := marshalCompact(sched)
	if err != nil {
		return false, err
	}
	return s.writeIfChanged(s.overridesPath(cat), raw)
}

// WriteChanges emits the run's human-readable change notes as a single
// artifact, usable verbatim as a release or commit description.
func (s *Store) WriteChanges(lines []string) error {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.changesPath(), buf.Bytes(), 0o644)
}

func (s *Store) load(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (s *Store) save(path string, v any) (bool, error) {
	raw, err := marshalCompact(v)
	if err != nil {
		return false, err
	}
	wrote, err := s.writeIfChanged(path, raw)
	if err != nil {
		return false, err
	}
	if !wrote {
		s.logger.Debug().Str("path", path).Msg("state unchanged, skipping write")
		return false, nil
	}

	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return false, err
	}
	if _, err := s.writeIfChanged(s.readableMirror(path), append(pretty, '\n')); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) writeIfChanged(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return false, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, err
	}
	return true, nil
}

func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
