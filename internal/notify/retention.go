package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dwellops/internal/config"
	"dwellops/internal/types"
)

// RetentionStore is the slice of the notification store the retention sweep
// needs.
type RetentionStore interface {
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*types.Notification, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// RetentionSweeper purges sent and failed notifications older than the
// retention window, batch by batch. Each batch is archived before it is
// deleted; an archive failure stops the sweep with the data still in place.
// Pending notifications are never touched regardless of age.
type RetentionSweeper struct {
	store    RetentionStore
	archiver Archiver
	window   time.Duration
	batch    int
	logger   *slog.Logger
}

// NewRetentionSweeper creates a RetentionSweeper from the retention
// configuration.
func NewRetentionSweeper(store RetentionStore, archiver Archiver, cfg config.RetentionConfig, logger *slog.Logger) *RetentionSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if archiver == nil {
		archiver = NopArchiver{}
	}
	return &RetentionSweeper{
		store:    store,
		archiver: archiver,
		window:   cfg.Window,
		batch:    cfg.BatchSize,
		logger:   logger,
	}
}

// Sweep runs one retention pass at the given reference time and returns the
// number of notifications deleted. It loops batches until the store has no
// more expired terminal rows or the context is cancelled.
func (s *RetentionSweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.window)
	var deleted int64

	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		batch, err := s.store.ListTerminalBefore(ctx, cutoff, s.batch)
		if err != nil {
			return deleted, fmt.Errorf("listing expired notifications: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		if err := s.archiver.Archive(ctx, batch, now); err != nil {
			return deleted, fmt.Errorf("archiving %d notifications: %w", len(batch), err)
		}

		ids := make([]string, len(batch))
		for i, n := range batch {
			ids[i] = n.ID
		}
		n, err := s.store.DeleteByIDs(ctx, ids)
		if err != nil {
			return deleted, fmt.Errorf("deleting archived notifications: %w", err)
		}
		deleted += n

		// A batch that deleted nothing despite listing rows means another
		// sweeper is racing this one; stop rather than spin.
		if n == 0 {
			break
		}
	}

	s.logger.InfoContext(ctx, "retention sweep complete",
		"cutoff", cutoff,
		"deleted", deleted,
	)
	return deleted, nil
}
