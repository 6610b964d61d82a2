package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dwellops/internal/config"
	"dwellops/internal/types"
)

// LeaseStore is the slice of the lease repository the engine needs.
type LeaseStore interface {
	ListLifecycleCandidates(ctx context.Context, horizonEnd time.Time, limit int) ([]*types.Lease, error)
	UpdateStatus(ctx context.Context, id string, from, to types.LeaseStatus) (bool, error)
}

// ChequeStore is the slice of the cheque repository the engine needs.
type ChequeStore interface {
	ListLifecycleCandidates(ctx context.Context, horizonEnd time.Time, limit int) ([]*types.Cheque, error)
	UpdateStatus(ctx context.Context, id string, from, to types.ChequeStatus) (bool, error)
}

// ComplianceStore is the slice of the compliance repository the engine
// needs.
type ComplianceStore interface {
	ListLifecycleCandidates(ctx context.Context, horizonEnd time.Time, limit int) ([]*types.ComplianceSchedule, error)
	UpdateStatus(ctx context.Context, id string, from, to types.ComplianceStatus) (bool, error)
}

// Engine applies date-driven status transitions across leases, cheques, and
// compliance schedules. Each Run* method is one idempotent tick: re-running
// at the same reference time changes nothing, because candidates whose
// computed status equals their stored status are skipped without a write.
type Engine struct {
	leases     LeaseStore
	cheques    ChequeStore
	compliance ComplianceStore
	cfg        config.LifecycleConfig
	logger     *slog.Logger
}

// NewEngine creates a transition Engine from the lifecycle configuration.
func NewEngine(
	leases LeaseStore,
	cheques ChequeStore,
	compliance ComplianceStore,
	cfg config.LifecycleConfig,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		leases:     leases,
		cheques:    cheques,
		compliance: compliance,
		cfg:        cfg,
		logger:     logger,
	}
}

// TransitionSummary reports what one transition tick did.
type TransitionSummary struct {
	Candidates int
	Updated    int
	Skipped    int
	Conflicts  int
	Errors     int
}

// Items returns the number of rows the tick updated.
func (s TransitionSummary) Items() int { return s.Updated }

// RunLeases advances lease statuses at the given reference time. The scan
// horizon covers the expiring window so active leases entering it are
// included.
func (e *Engine) RunLeases(ctx context.Context, now time.Time) (TransitionSummary, error) {
	var sum TransitionSummary
	window := daysDuration(e.cfg.LeaseExpiryHorizonDays)

	leases, err := e.leases.ListLifecycleCandidates(ctx, now.Add(window), e.cfg.BatchLimit)
	if err != nil {
		return sum, fmt.Errorf("listing lease candidates: %w", err)
	}
	sum.Candidates = len(leases)

	for _, l := range leases {
		next, changed := NextLeaseStatus(l.Status, l.EndDate, now, window)
		if !changed {
			sum.Skipped++
			continue
		}
		ok, err := e.leases.UpdateStatus(ctx, l.ID, l.Status, next)
		e.record(ctx, &sum, "lease", l.ID, string(l.Status), string(next), ok, err)
	}

	e.logTick(ctx, "lease transitions complete", sum)
	return sum, nil
}

// RunCheques advances received cheques to due at the given reference time.
func (e *Engine) RunCheques(ctx context.Context, now time.Time) (TransitionSummary, error) {
	var sum TransitionSummary
	window := daysDuration(e.cfg.ChequeDueHorizonDays)

	cheques, err := e.cheques.ListLifecycleCandidates(ctx, now.Add(window), e.cfg.BatchLimit)
	if err != nil {
		return sum, fmt.Errorf("listing cheque candidates: %w", err)
	}
	sum.Candidates = len(cheques)

	for _, c := range cheques {
		next, changed := NextChequeStatus(c.Status, c.ChequeDate, now, window)
		if !changed {
			sum.Skipped++
			continue
		}
		ok, err := e.cheques.UpdateStatus(ctx, c.ID, c.Status, next)
		e.record(ctx, &sum, "cheque", c.ID, string(c.Status), string(next), ok, err)
	}

	e.logTick(ctx, "cheque transitions complete", sum)
	return sum, nil
}

// RunCompliance advances compliance schedules at the given reference time.
func (e *Engine) RunCompliance(ctx context.Context, now time.Time) (TransitionSummary, error) {
	var sum TransitionSummary
	window := daysDuration(e.cfg.ComplianceDueHorizonDays)

	schedules, err := e.compliance.ListLifecycleCandidates(ctx, now.Add(window), e.cfg.BatchLimit)
	if err != nil {
		return sum, fmt.Errorf("listing compliance candidates: %w", err)
	}
	sum.Candidates = len(schedules)

	for _, s := range schedules {
		next, changed := NextComplianceStatus(s.Status, s.DueDate, now, window)
		if !changed {
			sum.Skipped++
			continue
		}
		ok, err := e.compliance.UpdateStatus(ctx, s.ID, s.Status, next)
		e.record(ctx, &sum, "compliance_schedule", s.ID, string(s.Status), string(next), ok, err)
	}

	e.logTick(ctx, "compliance transitions complete", sum)
	return sum, nil
}

// record tallies one guarded write. A write that matched zero rows means a
// concurrent writer moved the row first; it is counted but not an error.
func (e *Engine) record(ctx context.Context, sum *TransitionSummary, kind, id, from, to string, ok bool, err error) {
	if err != nil {
		e.logger.ErrorContext(ctx, "status transition failed",
			"entity_kind", kind,
			"entity_id", id,
			"from", from,
			"to", to,
			"error", err,
		)
		sum.Errors++
		return
	}
	if !ok {
		e.logger.InfoContext(ctx, "status transition lost race",
			"entity_kind", kind,
			"entity_id", id,
			"from", from,
			"to", to,
		)
		sum.Conflicts++
		return
	}
	e.logger.InfoContext(ctx, "status transition applied",
		"entity_kind", kind,
		"entity_id", id,
		"from", from,
		"to", to,
	)
	sum.Updated++
}

func (e *Engine) logTick(ctx context.Context, msg string, sum TransitionSummary) {
	e.logger.InfoContext(ctx, msg,
		"candidates", sum.Candidates,
		"updated", sum.Updated,
		"skipped", sum.Skipped,
		"conflicts", sum.Conflicts,
		"errors", sum.Errors,
	)
}

func daysDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
