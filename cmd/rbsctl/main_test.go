package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afiqaffendi/rbs/internal/database"
	"github.com/afiqaffendi/rbs/internal/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "rbs.db")
	seedPath := filepath.Join(dir, "restaurants.yaml")
	cfgPath := filepath.Join(dir, "config.yaml")

	seed := `
restaurants:
  - id: 3
    owner_id: 100
    name: "Nasi Kandar"
    operating_hours: "11:00 AM - 3:00 PM"
    tables:
      4pax: 2
`
	require.NoError(t, os.WriteFile(seedPath, []byte(seed), 0o644))

	cfg := `
database:
  path: "` + dbPath + `"
restaurants_file: "` + seedPath + `"
api:
  auth:
    jwt_secret: "cli-secret"
    issuer: "rbs"
backup:
  storage_path: "` + filepath.Join(dir, "backups") + `"
  retention_days: 7
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, dbPath
}

func TestSlotsCmd(t *testing.T) {
	out, err := execute(t, "slots", "10:00 AM - 2:00 PM")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "10:00 AM - 12:00 PM")
	assert.Contains(t, lines[2], "12:00 PM - 2:00 PM")

	out, err = execute(t, "slots", "10:00 AM - 11:00 AM")
	require.NoError(t, err)
	assert.Contains(t, out, "no slots")

	_, err = execute(t, "slots", "whenever")
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestTokenCmd(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "--config", cfgPath, "token", "--user", "7", "--role", "owner")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "."))

	_, err = execute(t, "--config", cfgPath, "token", "--user", "7", "--role", "payment")
	assert.Error(t, err)
}

func TestSeedBackupAndOutbox(t *testing.T) {
	cfgPath, dbPath := writeConfig(t)

	out, err := execute(t, "--config", cfgPath, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "synced 1 restaurants")

	logger := zerolog.Nop()
	db, err := database.NewDB(dbPath, &logger)
	require.NoError(t, err)
	r, err := db.GetRestaurant(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Inventory.OwnedCount(models.Table4pax))
	require.NoError(t, db.Close())

	out, err = execute(t, "--config", cfgPath, "backup")
	require.NoError(t, err)
	backupPath := strings.TrimSpace(out)
	assert.FileExists(t, backupPath)

	out, err = execute(t, "--config", cfgPath, "backup", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, backupPath)

	out, err = execute(t, "--config", cfgPath, "outbox", "stats")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))
}
