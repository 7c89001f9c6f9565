package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ButyrinIA/fritter/internal/config"
	"github.com/ButyrinIA/fritter/internal/storage/memory"
	"github.com/ButyrinIA/fritter/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	cfg := config.Default()
	store, err := openStore(ctx, cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &memory.MemoryStorage{}, store)

	cfg.Storage.Type = "sqlite"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "fritter.db")
	store, err = openStore(ctx, cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.SQLiteStorage{}, store)
	require.NoError(t, store.Close())

	cfg.Storage.Type = "mongo"
	_, err = openStore(ctx, cfg, logger)
	assert.EqualError(t, err, "unknown storage type: mongo")
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(config.Log{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = newLogger(config.Log{Level: "loud"})
	assert.Error(t, err)
}

func TestMigrateCommand_SQLite(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "fritter.db")
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("sqlite:\n  path: "+dbPath+"\n"), 0o600))

	cmd := newRootCommand()
	cmd.SetArgs([]string{"migrate", "--config", configPath, "--storage", "sqlite"})
	cmd.SetOut(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestServeCommand_RejectsUnknownStorage(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"serve", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--storage", "mongo"})
	assert.Error(t, cmd.Execute())
}
