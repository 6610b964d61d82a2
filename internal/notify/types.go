// Package notify contains the notification queue services: dispatching due
// notifications with bounded retries, sweeping terminal rows past the
// retention window, and publishing queue statistics.
package notify

import (
	"context"
	"time"

	"dwellops/internal/types"
)

// Dispatcher transmits one notification and classifies the outcome. The
// retry scheduler branches on the result status only; a Dispatcher never
// returns an error.
type Dispatcher interface {
	Send(ctx context.Context, n *types.Notification) types.DispatchResult
}

// NotificationQueue is the slice of the notification store the retry
// scheduler needs.
type NotificationQueue interface {
	FetchDueBatch(ctx context.Context, now time.Time, limit int) ([]*types.Notification, error)
	MarkSent(ctx context.Context, id string, fromRetryCount int) error
	MarkRetry(ctx context.Context, id string, fromRetryCount int, nextRetryAt time.Time, reason string) error
	MarkFailed(ctx context.Context, id string, fromRetryCount int, reason string) error
}

// Backoff is the retry delay lookup table. Delay(k) returns the wait before
// the k-th retry (1-based); requests past the end of the table clamp to the
// last entry, so extending the retry cap without extending the table keeps
// a defined schedule.
type Backoff struct {
	table []time.Duration
}

// NewBackoff builds a Backoff from the configured delay table. An empty
// table falls back to a single one-minute entry rather than a zero delay.
func NewBackoff(table []time.Duration) Backoff {
	if len(table) == 0 {
		table = []time.Duration{time.Minute}
	}
	return Backoff{table: append([]time.Duration(nil), table...)}
}

// Delay returns the wait before retry attempt k (1-based).
func (b Backoff) Delay(k int) time.Duration {
	if k < 1 {
		k = 1
	}
	if k > len(b.table) {
		k = len(b.table)
	}
	return b.table[k-1]
}
