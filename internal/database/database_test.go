package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afiqaffendi/rbs/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(os.Stdout)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	return db
}

func seedRestaurant(t *testing.T, db *DB, counts map[string]int) *models.Restaurant {
	inv, err := models.NewTableInventory(counts)
	require.NoError(t, err)
	r := &models.Restaurant{
		OwnerID:        100,
		Name:           "Kedai Makan",
		Address:        "Jalan Ampang",
		OperatingHours: "10:00 AM - 10:00 PM",
		Capacity:       40,
		Inventory:      inv,
	}
	require.NoError(t, db.CreateRestaurant(context.Background(), r))
	return r
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
}

func TestEnsureBookingColumns(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	// Running the migration again must tolerate existing columns.
	require.NoError(t, db.ensureBookingColumns())
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	assert.NoError(t, db.PingContext(context.Background()))
}
