package workers

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/subgate-dev/subgate/internal/models"
	"github.com/subgate-dev/subgate/internal/tasks"
)

// HandlePurgeChallenges deletes two-factor challenges that expired before
// the cutoff carried in the task payload. Challenges are single-use and
// short-lived; rows only survive here when a login was abandoned between
// the password step and the code step.
func HandlePurgeChallenges(ctx context.Context, task *asynq.Task, db *gorm.DB, logger zerolog.Logger) error {
	payload, err := tasks.ParsePurgeChallengesPayload(task)
	if err != nil {
		return err
	}

	result := db.WithContext(ctx).
		Where("expires_at < ?", payload.Before).
		Delete(&models.TwoFactorChallenge{})
	if result.Error != nil {
		logger.Error().Err(result.Error).Msg("Failed to purge expired two-factor challenges")
		return result.Error
	}

	if result.RowsAffected > 0 {
		logger.Info().
			Int64("purged", result.RowsAffected).
			Time("before", payload.Before).
			Msg("Purged expired two-factor challenges")
	}

	return nil
}
