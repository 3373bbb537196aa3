package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/lensbot/internal/config"
	"github.com/pders01/lensbot/internal/metrics"
	"github.com/pders01/lensbot/internal/schedule"
	"github.com/pders01/lensbot/internal/search"
	"github.com/pders01/lensbot/internal/storage"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig saves a test configuration whose state lives in a temp dir.
func writeConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.TestConfig()
	cfg.Database.Path = filepath.Join(dir, "lensbot.db")
	cfg.Database.SearchIndex = filepath.Join(dir, "history.bleve")
	cfg.Logging = config.LoggingConfig{Level: "off"}

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, config.Save(cfg, path))
	return path, cfg
}

func withStore(t *testing.T, path string, fn func(*storage.Store)) {
	t.Helper()
	store, err := storage.NewStore(path)
	require.NoError(t, err)
	defer store.Close()
	fn(store)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "lensbot dev")
	assert.Contains(t, out, "github.com/pders01/lensbot")

	out, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.toml"), "version")
	require.NoError(t, err, "version never reads the config")
	assert.Contains(t, out, "Photo posting bot")
}

func TestGenerateConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, err := execute(t, "config", "generate", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Generated default configuration at: "+path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = execute(t, "config", "generate", "--path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "config", "generate", "--path", path, "--force")
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	_, ok := cfg.Identity("jay_soundo_photography")
	assert.True(t, ok)
}

func TestInvalidConfigFailsEarly(t *testing.T) {
	dir := t.TempDir()
	cfg := config.TestConfig()
	cfg.Database.Path = filepath.Join(dir, "lensbot.db")
	cfg.Identities[0].Timezone = "Mars/Olympus_Mons"
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, config.Save(cfg, path))

	_, err := execute(t, "--config", path, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestUsageCommands(t *testing.T) {
	path, cfg := writeConfig(t)
	withStore(t, cfg.Database.Path, func(s *storage.Store) {
		require.NoError(t, s.MarkUsed("test_bot", time.Now(), "pexels:1", "https://images.pexels.com/1.jpeg"))
	})

	out, err := execute(t, "--config", path, "usage", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "test_bot\t2")

	out, err = execute(t, "--config", path, "usage", "reset", "test_bot")
	require.NoError(t, err)
	assert.Contains(t, out, "Reset usage for test_bot (2 entries cleared)")

	withStore(t, cfg.Database.Path, func(s *storage.Store) {
		n, err := s.UsageCount("test_bot")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	_, err = execute(t, "--config", path, "usage", "reset", "nobody")
	assert.ErrorIs(t, err, schedule.ErrUnknownIdentity)
}

func TestHistorySearchCommand(t *testing.T) {
	path, cfg := writeConfig(t)
	withStore(t, cfg.Database.Path, func(s *storage.Store) {
		require.NoError(t, s.SavePost(&storage.PostRecord{
			ID:          "p1",
			Identity:    "test_bot",
			Topic:       "nature",
			Provider:    "pexels",
			ContentID:   "7",
			Caption:     "Misty forest at dawn",
			PublishedAt: time.Date(2025, 3, 10, 9, 0, 20, 0, time.UTC),
		}))
	})

	out, err := execute(t, "--config", path, "history", "search", "forest")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-03-10 09:00")
	assert.Contains(t, out, "pexels:7")

	out, err = execute(t, "--config", path, "history", "search", "--identity", "test_bot", "volcano")
	require.NoError(t, err)
	assert.Contains(t, out, `No posts match "volcano"`)

	_, err = execute(t, "--config", path, "history", "search", "--identity", "nobody", "forest")
	assert.ErrorIs(t, err, schedule.ErrUnknownIdentity)
}

func TestStatusCommand(t *testing.T) {
	path, _ := writeConfig(t)

	out, err := execute(t, "--config", path, "status", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "# lensbot status")
	assert.Contains(t, out, "| test_bot |")
	assert.Contains(t, out, "| pexels |")

	out, err = execute(t, "--config", path, "status", "--style", "notty")
	require.NoError(t, err)
	assert.Contains(t, out, "lensbot status")
}

func TestSampleRejectsUnknownProvider(t *testing.T) {
	path, _ := writeConfig(t)

	_, err := execute(t, "--config", path, "sample", "nature", "--provider", "flickr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "flickr"`)

	_, err = execute(t, "--config", path, "sample", "nature", "--count", "0")
	require.Error(t, err)
}

func TestRunRejectsMonitorWithStderrLogs(t *testing.T) {
	path, _ := writeConfig(t)

	_, err := execute(t, "--config", path, "--log-stderr", "run", "--monitor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--monitor and --log-stderr")
}

func TestBuildSupervisor(t *testing.T) {
	_, cfg := writeConfig(t)
	cfg.Identities = append(cfg.Identities, config.IdentityConfig{
		ID: "mai", Timezone: "Asia/Ho_Chi_Minh", Slots: []string{"08:00"}, Topics: []string{"street"},
	})

	c, err := openComponents(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	sup, err := buildSupervisor(c, metrics.New(), search.NewEngine(c.store))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"test_bot", "mai"}, sup.Identities())
	assert.ElementsMatch(t, []string{"test_bot", "mai"}, c.schedule.Identities())
}

func TestBuildSupervisorRejectsBadCron(t *testing.T) {
	_, cfg := writeConfig(t)
	cfg.Schedule.PruneCron = "every tuesday"

	c, err := openComponents(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = buildSupervisor(c, nil, search.NewEngine(c.store))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prune schedule")
}

func TestOpenComponentsRejectsDuplicateIdentity(t *testing.T) {
	_, cfg := writeConfig(t)
	cfg.Identities = append(cfg.Identities, cfg.Identities[0])

	_, err := openComponents(cfg)
	assert.ErrorIs(t, err, schedule.ErrDuplicateIdentity)
}
