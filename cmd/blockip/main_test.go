package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficwatch/internal/database"
	"trafficwatch/internal/domain"
)

func useTempDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blockip.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", path)
	return path
}

func runCommand(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestParseArgsAcceptsFlagsOnEitherSide(t *testing.T) {
	var stderr bytes.Buffer

	opts, err := parseArgs([]string{"192.0.2.1", "--reason", "abuse"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, options{address: "192.0.2.1", reason: "abuse"}, opts)

	opts, err = parseArgs([]string{"--unblock", "2001:db8::1"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, options{address: "2001:db8::1", unblock: true}, opts)

	_, err = parseArgs(nil, &stderr)
	assert.Error(t, err)

	_, err = parseArgs([]string{"192.0.2.1", "192.0.2.2"}, &stderr)
	assert.Error(t, err)
}

func TestRunRejectsInvalidAddress(t *testing.T) {
	useTempDatabase(t)

	code, stdout, stderr := runCommand("999.1.1.1")
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Invalid IP address: 999.1.1.1")
}

func TestRunBlockThenUpdateThenUnblock(t *testing.T) {
	path := useTempDatabase(t)

	code, stdout, _ := runCommand("192.0.2.1", "--reason", "scanner")
	require.Equal(t, 0, code)
	assert.Equal(t, "Successfully blocked IP: 192.0.2.1\n", stdout)

	code, stdout, _ = runCommand("192.0.2.1")
	require.Equal(t, 0, code)
	assert.Equal(t, "IP 192.0.2.1 was already blocked. Updated the reason.\n", stdout)

	code, stdout, _ = runCommand("--unblock", "192.0.2.1")
	require.Equal(t, 0, code)
	assert.Equal(t, "Unblocked IP: 192.0.2.1\n", stdout)

	code, _, stderr := runCommand("--unblock", "198.51.100.1")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "is not blocked")

	_, err := database.SetupDB()
	require.NoError(t, err, "reopen %s", path)
	t.Cleanup(func() { _ = database.CloseDB() })

	entry, err := database.GetBlockEntry(context.Background(), "192.0.2.1")
	require.NoError(t, err)
	assert.False(t, entry.IsActive)
	require.NotNil(t, entry.Reason)
	assert.Equal(t, "No reason provided", *entry.Reason)

	var count int64
	require.NoError(t, database.DB.Model(&domain.BlockEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
