package workers

import (
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/subgate-dev/subgate/internal/tasks"
)

// StartPurgeScheduler enqueues a challenge purge task on the given cron
// schedule. Blocks; run it in its own goroutine.
func StartPurgeScheduler(client *asynq.Client, schedule string, logger zerolog.Logger) {
	spec, err := cron.ParseStandard(schedule)
	if err != nil {
		logger.Error().Err(err).Str("schedule", schedule).Msg("Invalid purge schedule - scheduler disabled")
		return
	}

	for {
		next := spec.Next(time.Now())
		time.Sleep(time.Until(next))

		task, err := tasks.NewPurgeChallengesTask(time.Now())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to build purge task")
			continue
		}

		if _, err := client.Enqueue(task, asynq.Queue("low")); err != nil {
			logger.Error().Err(err).Msg("Failed to enqueue purge task")
			continue
		}

		logger.Debug().Time("next", spec.Next(time.Now())).Msg("Enqueued challenge purge task")
	}
}
