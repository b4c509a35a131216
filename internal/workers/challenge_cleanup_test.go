package workers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/subgate-dev/subgate/internal/models"
	"github.com/subgate-dev/subgate/internal/tasks"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.sqlite")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func TestHandlePurgeChallenges(t *testing.T) {
	db := newTestDB(t)

	user := &models.User{
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: "x",
		Role:         models.RoleUser,
		RunMode:      models.RunModeStandard,
		Status:       "active",
	}
	require.NoError(t, db.Create(user).Error)

	now := time.Now()
	expired := &models.TwoFactorChallenge{
		TempToken: "expired-token",
		UserID:    user.ID,
		ExpiresAt: now.Add(-time.Hour),
	}
	live := &models.TwoFactorChallenge{
		TempToken: "live-token",
		UserID:    user.ID,
		ExpiresAt: now.Add(5 * time.Minute),
	}
	require.NoError(t, db.Create(expired).Error)
	require.NoError(t, db.Create(live).Error)

	task, err := tasks.NewPurgeChallengesTask(now)
	require.NoError(t, err)

	err = HandlePurgeChallenges(context.Background(), task, db, zerolog.Nop())
	require.NoError(t, err)

	var remaining []models.TwoFactorChallenge
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, "live-token", remaining[0].TempToken)
}

func TestHandlePurgeChallenges_NothingToPurge(t *testing.T) {
	db := newTestDB(t)

	task, err := tasks.NewPurgeChallengesTask(time.Now())
	require.NoError(t, err)

	err = HandlePurgeChallenges(context.Background(), task, db, zerolog.Nop())
	require.NoError(t, err)
}
