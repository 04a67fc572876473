package app

import (
	"context"
	"errors"
	"time"

	"github.com/tallyfi/tally/internal/calendar"
)

// Run materializes due occurrences once at start and then every interval,
// until ctx is cancelled. Persistence failures are logged and left pending
// for the next tick; they do not stop the loop.
func (a *App) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 24 * time.Hour
	}
	a.tick(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.log.Info().Msg("materialize loop stopped")
			return nil
		case <-ticker.C:
			if err := a.Retry(ctx); err != nil {
				a.log.Warn().Err(err).Msg("retry of pending writes failed")
			}
			a.tick(ctx)
		}
	}
}

func (a *App) tick(ctx context.Context) {
	today := calendar.Today(a.clock)
	created, err := a.MaterializeDue(ctx, today)
	var pe *PersistError
	switch {
	case errors.As(err, &pe):
		a.log.Warn().Err(err).Int("created", len(created)).Msg("materialized but not persisted")
	case err != nil:
		a.log.Error().Err(err).Msg("materialize failed")
	default:
		a.log.Info().Stringer("as_of", today).Int("created", len(created)).Msg("materialized due occurrences")
	}
}
