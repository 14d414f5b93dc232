package blocklist

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"trafficwatch/internal/database"
)

func setupBlocklistDB(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := database.SetupDB(database.WithDialector(sqlite.Open(dsn)))
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		database.DB = nil
	})
}

func TestCheckerReflectsActiveFlag(t *testing.T) {
	setupBlocklistDB(t)
	ctx := context.Background()
	checker := NewChecker()

	blocked, err := checker.IsBlocked(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.False(t, blocked)

	_, err = Block(ctx, "192.0.2.1", "")
	require.NoError(t, err)

	blocked, err = checker.IsBlocked(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.True(t, blocked)

	require.NoError(t, Unblock(ctx, "192.0.2.1"))

	blocked, err = checker.IsBlocked(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestCheckerEmptyAddress(t *testing.T) {
	checker := NewCheckerWithLookup(func(context.Context, string) (bool, error) {
		t.Fatal("lookup must not run for an empty address")
		return false, nil
	})

	blocked, err := checker.IsBlocked(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestCheckerPropagatesStorageErrors(t *testing.T) {
	boom := errors.New("db down")
	checker := NewCheckerWithLookup(func(context.Context, string) (bool, error) {
		return false, boom
	})

	_, err := checker.IsBlocked(context.Background(), "192.0.2.1")
	require.ErrorIs(t, err, boom)
}

func TestBlockDefaultsReasonAndReportsCreation(t *testing.T) {
	setupBlocklistDB(t)
	ctx := context.Background()

	first, err := Block(ctx, "2001:db8::1", "  ")
	require.NoError(t, err)
	assert.True(t, first.Created)
	require.NotNil(t, first.Entry.Reason)
	assert.Equal(t, DefaultReason, *first.Entry.Reason)

	second, err := Block(ctx, "2001:db8::1", "credential stuffing")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, "credential stuffing", *second.Entry.Reason)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
}

func TestBlockInvalidAddress(t *testing.T) {
	setupBlocklistDB(t)

	_, err := Block(context.Background(), "999.1.1.1", "x")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestUnblockUnknownAddress(t *testing.T) {
	setupBlocklistDB(t)

	err := Unblock(context.Background(), "192.0.2.55")
	require.ErrorIs(t, err, ErrNotBlocked)
}
