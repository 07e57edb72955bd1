package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tillsync/internal/config"
	"tillsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformBackupSnapshotsQueueFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "queue.db")
	backupDir := filepath.Join(dir, "backups")

	logger := zerolog.Nop()
	src, err := NewSQLiteStore(dbPath, &logger)
	require.NoError(t, err)
	require.NoError(t, src.Save(context.Background(), []models.QueuedOrder{{
		LocalID:       "local-1",
		Items:         []models.OrderItem{{ProductID: "p1", Name: "Bratwurst", Quantity: 1, UnitCents: 600}},
		TotalCents:    600,
		PaymentMethod: models.PaymentCash,
		Status:        models.StatusPending,
	}}))
	require.NoError(t, src.Close())

	svc := NewBackupService(dbPath, config.BackupConfig{
		Enabled:     true,
		StoragePath: backupDir,
	}, &logger)
	require.NoError(t, svc.PerformBackup())

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// The snapshot is a complete queue database in its own right.
	restored, err := NewSQLiteStore(filepath.Join(backupDir, entries[0].Name()), &logger)
	require.NoError(t, err)
	defer restored.Close()

	orders, err := restored.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "local-1", orders[0].LocalID)
}

func TestCleanupOldBackupsHonorsRetention(t *testing.T) {
	backupDir := t.TempDir()
	stale := filepath.Join(backupDir, "queue_20200101_000000.db")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(backupDir, "queue_fresh.db")
	require.NoError(t, os.WriteFile(fresh, []byte("new"), 0o644))

	logger := zerolog.Nop()
	svc := NewBackupService("unused.db", config.BackupConfig{
		Enabled:       true,
		RetentionDays: 7,
		StoragePath:   backupDir,
	}, &logger)
	svc.CleanupOldBackups()

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}
