package pass

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/pass-batch/pkg/launcher"
	"github.com/jdziat/pass-batch/pkg/storage"
)

// openTestDB opens a migrated in-memory SQLite database on one connection.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, storage.ConfigurePool(db, storage.WithPoolConfig(storage.SQLitePoolConfig())))
	require.NoError(t, db.AutoMigrate(Models()...))
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLauncher(t *testing.T, db *gorm.DB) (*launcher.Launcher, *storage.GormRepository) {
	t.Helper()
	repo := storage.NewGormRepository(db)
	require.NoError(t, repo.Migrate(context.Background()))
	return launcher.New(repo, launcher.WithLogger(quietLogger())), repo
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func ptr[T any](v T) *T { return &v }

func seedPasses(t *testing.T, db *gorm.DB, passes ...Pass) []Pass {
	t.Helper()
	require.NoError(t, db.Create(&passes).Error)
	return passes
}

func seedGroup(t *testing.T, db *gorm.DB, groupID string, users ...string) {
	t.Helper()
	for _, u := range users {
		require.NoError(t, db.Create(&UserGroupMapping{UserGroupID: groupID, UserID: u, UserGroupName: groupID}).Error)
	}
}

func loadPass(t *testing.T, db *gorm.DB, seq int64) Pass {
	t.Helper()
	var p Pass
	require.NoError(t, db.First(&p, seq).Error)
	return p
}

func countPasses(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&Pass{}).Count(&n).Error)
	return n
}
