// Package feed derives the append-mostly episode feed from the reconciled
// schedule. Every run recomputes the full target feed from scratch; the
// write is skipped when nothing changed, so the update is idempotent.
package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"anischedule/internal/changelog"
	"anischedule/internal/config"
	"anischedule/internal/domain"
	"anischedule/internal/store"
)

// TimetableAPI is the previous-week lookup used to classify multi-header
// releases.
type TimetableAPI interface {
	PreviousWeek(ctx context.Context, now time.Time) ([]domain.TimetableEntry, error)
}

type Updater struct {
	source  TimetableAPI
	store   *store.Store
	changes *changelog.Log
	cfg     config.Heuristics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewUpdater(source TimetableAPI, st *store.Store, changes *changelog.Log, cfg config.Heuristics, logger zerolog.Logger) *Updater {
	return &Updater{
		source:  source,
		store:   st,
		changes: changes,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// RunDub updates the dub episode feed from the persisted dub schedule.
func (u *Updater) RunDub(ctx context.Context) error {
	sched, err := u.store.LoadSchedule(domain.CategoryDub)
	if err != nil {
		return err
	}
	feed, err := u.store.LoadFeed(domain.CategoryDub)
	if err != nil {
		return err
	}

	updated, added, err := u.updateDub(ctx, sched, feed, u.now())
	if err != nil {
		return err
	}

	wrote, err := u.store.SaveFeed(domain.CategoryDub, updated)
	if err != nil {
		return err
	}
	if wrote {
		u.logger.Info().Int("added", added).Int("total", len(updated)).Msg("updated dub episode feed")
	} else {
		u.logger.Info().Msg("no changes detected for the dub episode feed")
	}
	return nil
}

// RunSub updates the sub and hentai episode feeds from the seasonal schedule.
func (u *Updater) RunSub(ctx context.Context) error {
	seasonal, err := u.store.LoadSeasonal(domain.CategorySub)
	if err != nil {
		return err
	}
	subFeed, err := u.store.LoadFeed(domain.CategorySub)
	if err != nil {
		return err
	}
	hentaiFeed, err := u.store.LoadFeed(domain.CategoryHentai)
	if err != nil {
		return err
	}

	newSub, newHentai := u.updateSeasonal(seasonal, subFeed, hentaiFeed, u.now())

	if _, err := u.store.SaveFeed(domain.CategorySub, newSub); err != nil {
		return err
	}
	if _, err := u.store.SaveFeed(domain.CategoryHentai, newHentai); err != nil {
		return err
	}
	u.logger.Info().
		Int("sub", len(newSub)).
		Int("hentai", len(newHentai)).
		Msg("updated seasonal episode feeds")
	return nil
}
