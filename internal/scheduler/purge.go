package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

const PurgeJobName = "purge-expired-patterns"

// purgeTimeout bounds a single purge run.
const purgeTimeout = time.Minute

// Purger deletes stored patterns past their expiry.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// PurgeExpiredPatterns runs one purge and logs the outcome.
func PurgeExpiredPatterns(ctx context.Context, store Purger) error {
	if store == nil {
		return fmt.Errorf("pattern purge requires a store")
	}
	started := time.Now()
	n, err := store.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	event := log.Ctx(ctx).Debug()
	if n > 0 {
		event = log.Ctx(ctx).Info()
	}
	event.Int64("deleted_patterns", n).Dur("took", time.Since(started)).Msg("Purged expired patterns")
	return nil
}

// RegisterPatternPurge schedules PurgeExpiredPatterns on cronExpr.
func RegisterPatternPurge(s *Service, store Purger, cronExpr string) (gocron.Job, error) {
	jobLogger := log.With().Str("job_name", PurgeJobName).Logger()
	return s.AddJob(PurgeJobName, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)
		if err := PurgeExpiredPatterns(ctx, store); err != nil {
			jobLogger.Error().Err(err).Msg("Failed to purge expired patterns")
		}
	})
}
