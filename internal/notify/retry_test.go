package notify

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"dwellops/internal/config"
	"dwellops/internal/types"
)

func notifyTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func testRetryConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxRetryCount: 3,
		Backoff:       []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute},
		BatchSize:     50,
	}
}

// ============================================================
// Mock: NotificationQueue
// ============================================================

type markedRetry struct {
	id          string
	nextRetryAt time.Time
	reason      string
}

type mockQueue struct {
	mu sync.Mutex

	due      []*types.Notification
	fetchErr error

	sent    []string
	retries []markedRetry
	failed  []string

	markSentErr   map[string]error
	markRetryErr  map[string]error
	markFailedErr map[string]error
}

func (m *mockQueue) FetchDueBatch(_ context.Context, _ time.Time, _ int) ([]*types.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.due, nil
}

func (m *mockQueue) MarkSent(_ context.Context, id string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.markSentErr[id]; err != nil {
		return err
	}
	m.sent = append(m.sent, id)
	return nil
}

func (m *mockQueue) MarkRetry(_ context.Context, id string, _ int, nextRetryAt time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.markRetryErr[id]; err != nil {
		return err
	}
	m.retries = append(m.retries, markedRetry{id: id, nextRetryAt: nextRetryAt, reason: reason})
	return nil
}

func (m *mockQueue) MarkFailed(_ context.Context, id string, _ int, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.markFailedErr[id]; err != nil {
		return err
	}
	m.failed = append(m.failed, id)
	return nil
}

// ============================================================
// Mock: Dispatcher
// ============================================================

type mockDispatcher struct {
	mu       sync.Mutex
	results  map[string]types.DispatchResult
	fallback types.DispatchResult
	calls    []string
}

func (m *mockDispatcher) Send(_ context.Context, n *types.Notification) types.DispatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, n.ID)
	if res, ok := m.results[n.ID]; ok {
		return res
	}
	return m.fallback
}

func pendingNotification(id string, retryCount int) *types.Notification {
	return &types.Notification{
		ID:           id,
		Recipient:    "tenant@example.com",
		TemplateKind: types.TemplateLeaseExpiryReminder,
		Status:       types.NotificationPending,
		RetryCount:   retryCount,
	}
}

// ============================================================
// Backoff Tests
// ============================================================

func TestBackoffDelay_Table(t *testing.T) {
	b := NewBackoff([]time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Minute},
		{2, 5 * time.Minute},
		{3, 15 * time.Minute},
		{4, 15 * time.Minute}, // clamps to last entry
		{0, time.Minute},      // below range clamps to first
	}
	for _, tc := range cases {
		if got := b.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoffDelay_EmptyTable(t *testing.T) {
	b := NewBackoff(nil)
	if got := b.Delay(1); got != time.Minute {
		t.Errorf("Delay(1) on empty table = %v, want 1m", got)
	}
}

// ============================================================
// ProcessDue Tests
// ============================================================

func TestProcessDue_Delivered(t *testing.T) {
	queue := &mockQueue{due: []*types.Notification{pendingNotification("ntf_1", 0)}}
	d := &mockDispatcher{fallback: types.DispatchResult{Status: types.DispatchDelivered, ProviderMsgID: "msg_1"}}
	sched := NewRetryScheduler(queue, d, testRetryConfig(), notifyTestLogger())

	sum, err := sched.ProcessDue(context.Background(), time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Sent != 1 || sum.Retried != 0 || sum.Failed != 0 {
		t.Errorf("summary = %+v, want 1 sent", sum)
	}
	if len(queue.sent) != 1 || queue.sent[0] != "ntf_1" {
		t.Errorf("marked sent = %v, want [ntf_1]", queue.sent)
	}
}

func TestProcessDue_RetryableFailureSchedulesBackoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	queue := &mockQueue{due: []*types.Notification{
		pendingNotification("ntf_first", 0),
		pendingNotification("ntf_second", 1),
	}}
	d := &mockDispatcher{fallback: types.DispatchResult{
		Status: types.DispatchRetryableFailure,
		Reason: "gateway returned 503",
	}}
	sched := NewRetryScheduler(queue, d, testRetryConfig(), notifyTestLogger())

	sum, err := sched.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Retried != 2 {
		t.Fatalf("retried = %d, want 2", sum.Retried)
	}

	// First failure waits 1m, second failure 5m.
	if got := queue.retries[0].nextRetryAt; !got.Equal(now.Add(time.Minute)) {
		t.Errorf("first retry at %v, want %v", got, now.Add(time.Minute))
	}
	if got := queue.retries[1].nextRetryAt; !got.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("second retry at %v, want %v", got, now.Add(5*time.Minute))
	}
	if queue.retries[0].reason != "gateway returned 503" {
		t.Errorf("retry reason = %q", queue.retries[0].reason)
	}
}

func TestProcessDue_RetriesExhausted(t *testing.T) {
	// retry_count 2 + one more failure reaches the cap of 3.
	queue := &mockQueue{due: []*types.Notification{pendingNotification("ntf_1", 2)}}
	d := &mockDispatcher{fallback: types.DispatchResult{
		Status: types.DispatchRetryableFailure,
		Reason: "connection refused",
	}}
	sched := NewRetryScheduler(queue, d, testRetryConfig(), notifyTestLogger())

	sum, err := sched.ProcessDue(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Failed != 1 || sum.Retried != 0 {
		t.Errorf("summary = %+v, want 1 failed", sum)
	}
	if len(queue.failed) != 1 || queue.failed[0] != "ntf_1" {
		t.Errorf("marked failed = %v, want [ntf_1]", queue.failed)
	}
}

func TestProcessDue_PermanentFailureShortCircuits(t *testing.T) {
	// A permanent failure on the first attempt marks failed without
	// consuming the retry budget.
	queue := &mockQueue{due: []*types.Notification{pendingNotification("ntf_1", 0)}}
	d := &mockDispatcher{fallback: types.DispatchResult{
		Status: types.DispatchPermanentFailure,
		Reason: "recipient blocked by gateway",
	}}
	sched := NewRetryScheduler(queue, d, testRetryConfig(), notifyTestLogger())

	sum, err := sched.ProcessDue(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Failed != 1 {
		t.Errorf("failed = %d, want 1", sum.Failed)
	}
	if len(queue.retries) != 0 {
		t.Errorf("expected no retries, got %v", queue.retries)
	}
}

func TestProcessDue_PerItemIsolation(t *testing.T) {
	// The middle item fails; its neighbors still get dispatched and marked.
	queue := &mockQueue{due: []*types.Notification{
		pendingNotification("ntf_1", 0),
		pendingNotification("ntf_2", 0),
		pendingNotification("ntf_3", 0),
	}}
	d := &mockDispatcher{
		fallback: types.DispatchResult{Status: types.DispatchDelivered},
		results: map[string]types.DispatchResult{
			"ntf_2": {Status: types.DispatchRetryableFailure, Reason: "timeout"},
		},
	}
	sched := NewRetryScheduler(queue, d, testRetryConfig(), notifyTestLogger())

	sum, err := sched.ProcessDue(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Sent != 2 || sum.Retried != 1 {
		t.Errorf("summary = %+v, want 2 sent 1 retried", sum)
	}
	if len(d.calls) != 3 {
		t.Errorf("dispatcher called %d times, want 3", len(d.calls))
	}
}

func TestProcessDue_FetchError(t *testing.T) {
	queue := &mockQueue{fetchErr: errors.New("db down")}
	sched := NewRetryScheduler(queue, &mockDispatcher{}, testRetryConfig(), notifyTestLogger())

	if _, err := sched.ProcessDue(context.Background(), time.Now().UTC()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestProcessDue_ConcurrentConflictCounted(t *testing.T) {
	// Another worker already marked the row; the conflict is absorbed.
	queue := &mockQueue{
		due: []*types.Notification{pendingNotification("ntf_1", 0)},
		markSentErr: map[string]error{
			"ntf_1": types.NewAppError(types.ErrCodeConflictConcurrent, "already handled", nil),
		},
	}
	d := &mockDispatcher{fallback: types.DispatchResult{Status: types.DispatchDelivered}}
	sched := NewRetryScheduler(queue, d, testRetryConfig(), notifyTestLogger())

	sum, err := sched.ProcessDue(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Conflicts != 1 || sum.Errors != 0 {
		t.Errorf("summary = %+v, want 1 conflict 0 errors", sum)
	}
}

func TestProcessDue_MarkErrorCounted(t *testing.T) {
	queue := &mockQueue{
		due: []*types.Notification{pendingNotification("ntf_1", 0)},
		markSentErr: map[string]error{
			"ntf_1": errors.New("db write failed"),
		},
	}
	d := &mockDispatcher{fallback: types.DispatchResult{Status: types.DispatchDelivered}}
	sched := NewRetryScheduler(queue, d, testRetryConfig(), notifyTestLogger())

	sum, err := sched.ProcessDue(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Errors != 1 || sum.Sent != 0 {
		t.Errorf("summary = %+v, want 1 error 0 sent", sum)
	}
}
