package blocklist

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"

	"trafficwatch/internal/database"
	"trafficwatch/internal/domain"
)

const DefaultReason = "No reason provided"

var (
	ErrInvalidAddress = database.ErrInvalidAddress
	ErrNotBlocked     = errors.New("address is not blocked")
)

type BlockResult struct {
	Entry   domain.BlockEntry
	Created bool
}

// Block creates or refreshes an active block for address. An existing
// entry gets the new reason and is reactivated.
func Block(ctx context.Context, address, reason string) (BlockResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultReason
	}

	entry, created, err := database.UpsertBlockEntry(ctx, address, &reason)
	if err != nil {
		return BlockResult{}, err
	}

	log.Info("Address blocked", "address", entry.IPAddress, "created", created, "reason", reason)
	return BlockResult{Entry: entry, Created: created}, nil
}

// Unblock deactivates the entry for address, keeping the row.
func Unblock(ctx context.Context, address string) error {
	err := database.DeactivateBlockEntry(ctx, address)
	if errors.Is(err, database.ErrBlockEntryNotFound) {
		return ErrNotBlocked
	}
	if err != nil {
		return err
	}

	log.Info("Address unblocked", "address", address)
	return nil
}
