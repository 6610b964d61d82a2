package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dwellops/internal/config"
	"dwellops/internal/types"
)

// StatsStore is the slice of the notification store the stats tick needs.
type StatsStore interface {
	CountByStatus(ctx context.Context) (map[types.NotificationStatus]int64, error)
}

// QueueStats is one observation of queue depth per status.
type QueueStats struct {
	Pending    int64     `json:"pending"`
	Sent       int64     `json:"sent"`
	Failed     int64     `json:"failed"`
	ObservedAt time.Time `json:"observed_at"`
}

// StatsService samples queue depth on the stats tick, publishes the gauges,
// warns when the advisory thresholds are crossed, and caches the latest
// sample for the ops endpoint.
type StatsService struct {
	store   StatsStore
	metrics QueueMetrics
	cfg     config.StatsConfig
	logger  *slog.Logger

	mu     sync.RWMutex
	latest *QueueStats
}

// NewStatsService creates a StatsService from the stats configuration.
func NewStatsService(store StatsStore, metrics QueueMetrics, cfg config.StatsConfig, logger *slog.Logger) *StatsService {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NopQueueMetrics{}
	}
	return &StatsService{
		store:   store,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
	}
}

// Collect runs one stats tick at the given reference time and returns the
// observation.
func (s *StatsService) Collect(ctx context.Context, now time.Time) (QueueStats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return QueueStats{}, fmt.Errorf("counting notifications: %w", err)
	}

	stats := QueueStats{
		Pending:    counts[types.NotificationPending],
		Sent:       counts[types.NotificationSent],
		Failed:     counts[types.NotificationFailed],
		ObservedAt: now,
	}

	s.metrics.RecordQueueDepth(ctx, counts)

	if stats.Pending > s.cfg.PendingWarnThreshold {
		s.logger.WarnContext(ctx, "pending notification backlog above threshold",
			"pending", stats.Pending,
			"threshold", s.cfg.PendingWarnThreshold,
		)
	}
	if stats.Failed > s.cfg.FailedWarnThreshold {
		s.logger.WarnContext(ctx, "failed notification count above threshold",
			"failed", stats.Failed,
			"threshold", s.cfg.FailedWarnThreshold,
		)
	}

	s.logger.InfoContext(ctx, "queue stats collected",
		"pending", stats.Pending,
		"sent", stats.Sent,
		"failed", stats.Failed,
	)

	s.mu.Lock()
	s.latest = &stats
	s.mu.Unlock()

	return stats, nil
}

// Latest returns the most recent observation, or false when no stats tick
// has completed yet.
func (s *StatsService) Latest() (QueueStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return QueueStats{}, false
	}
	return *s.latest, true
}
