package database

import (
	"context"
	"testing"

	"trafficwatch/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestUpsertBlockEntry_CreatesThenUpdates(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	entry, created, err := UpsertBlockEntry(ctx, "192.0.2.1", strPtr("scanner"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, entry.IsActive)
	assert.Equal(t, "192.0.2.1", entry.IPAddress)

	require.NoError(t, DeactivateBlockEntry(ctx, "192.0.2.1"))

	entry, created, err = UpsertBlockEntry(ctx, "192.0.2.1", strPtr("repeat offender"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, entry.IsActive, "re-blocking must reactivate the entry")
	require.NotNil(t, entry.Reason)
	assert.Equal(t, "repeat offender", *entry.Reason)

	var rows int64
	require.NoError(t, DB.Model(&domain.BlockEntry{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
}

func TestUpsertBlockEntry_CanonicalisesAddress(t *testing.T) {
	setupTestDB(t)

	entry, _, err := UpsertBlockEntry(context.Background(), "::ffff:198.51.100.7", nil)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", entry.IPAddress)

	blocked, err := IsAddressBlocked(context.Background(), "198.51.100.7")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestUpsertBlockEntry_RejectsInvalidAddress(t *testing.T) {
	setupTestDB(t)

	_, _, err := UpsertBlockEntry(context.Background(), "not-an-ip", nil)
	require.ErrorIs(t, err, ErrInvalidAddress)

	var rows int64
	require.NoError(t, DB.Model(&domain.BlockEntry{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestIsAddressBlocked(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	_, _, err := UpsertBlockEntry(ctx, "192.0.2.1", nil)
	require.NoError(t, err)
	_, _, err = UpsertBlockEntry(ctx, "2001:db8::1", nil)
	require.NoError(t, err)
	require.NoError(t, DeactivateBlockEntry(ctx, "2001:db8::1"))

	tests := []struct {
		address string
		want    bool
	}{
		{"192.0.2.1", true},
		{"2001:db8::1", false},
		{"192.0.2.2", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		got, err := IsAddressBlocked(ctx, tt.address)
		require.NoError(t, err, tt.address)
		assert.Equal(t, tt.want, got, tt.address)
	}
}

func TestDeactivateBlockEntry_Missing(t *testing.T) {
	setupTestDB(t)

	err := DeactivateBlockEntry(context.Background(), "203.0.113.9")
	require.ErrorIs(t, err, ErrBlockEntryNotFound)

	_, err = GetBlockEntry(context.Background(), "203.0.113.9")
	require.ErrorIs(t, err, ErrBlockEntryNotFound)
}

func TestBlockQueriesWithoutDatabase(t *testing.T) {
	DB = nil

	_, err := IsAddressBlocked(context.Background(), "192.0.2.1")
	require.ErrorIs(t, err, ErrNotInitialised)
}
