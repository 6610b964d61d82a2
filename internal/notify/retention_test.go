package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dwellops/internal/config"
	"dwellops/internal/types"
)

func testRetentionConfig() config.RetentionConfig {
	return config.RetentionConfig{
		Window:    90 * 24 * time.Hour,
		BatchSize: 2,
	}
}

// ============================================================
// Mock: RetentionStore
// ============================================================

type mockRetentionStore struct {
	mu sync.Mutex

	batches   [][]*types.Notification
	listErr   error
	deleteErr error
	deleted   [][]string
}

func (m *mockRetentionStore) ListTerminalBefore(_ context.Context, _ time.Time, _ int) ([]*types.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	if len(m.batches) == 0 {
		return nil, nil
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	return batch, nil
}

func (m *mockRetentionStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	m.deleted = append(m.deleted, ids)
	return int64(len(ids)), nil
}

// ============================================================
// Mock: Archiver
// ============================================================

type mockArchiver struct {
	mu       sync.Mutex
	archived [][]*types.Notification
	err      error
}

func (m *mockArchiver) Archive(_ context.Context, batch []*types.Notification, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.archived = append(m.archived, batch)
	return nil
}

func terminalNotification(id string) *types.Notification {
	return &types.Notification{
		ID:     id,
		Status: types.NotificationSent,
	}
}

// ============================================================
// Sweep Tests
// ============================================================

func TestSweep_ArchivesThenDeletesAllBatches(t *testing.T) {
	store := &mockRetentionStore{
		batches: [][]*types.Notification{
			{terminalNotification("ntf_1"), terminalNotification("ntf_2")},
			{terminalNotification("ntf_3")},
		},
	}
	arch := &mockArchiver{}
	sweeper := NewRetentionSweeper(store, arch, testRetentionConfig(), notifyTestLogger())

	deleted, err := sweeper.Sweep(context.Background(), time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
	if len(arch.archived) != 2 {
		t.Errorf("archived %d batches, want 2", len(arch.archived))
	}
	if len(store.deleted) != 2 {
		t.Fatalf("delete calls = %d, want 2", len(store.deleted))
	}
	if store.deleted[0][0] != "ntf_1" || store.deleted[1][0] != "ntf_3" {
		t.Errorf("deleted IDs = %v", store.deleted)
	}
}

func TestSweep_ArchiveFailureAbortsPurge(t *testing.T) {
	store := &mockRetentionStore{
		batches: [][]*types.Notification{
			{terminalNotification("ntf_1")},
		},
	}
	arch := &mockArchiver{err: errors.New("disk full")}
	sweeper := NewRetentionSweeper(store, arch, testRetentionConfig(), notifyTestLogger())

	deleted, err := sweeper.Sweep(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
	if len(store.deleted) != 0 {
		t.Errorf("expected no deletes after archive failure, got %v", store.deleted)
	}
}

func TestSweep_NothingExpired(t *testing.T) {
	store := &mockRetentionStore{}
	sweeper := NewRetentionSweeper(store, &mockArchiver{}, testRetentionConfig(), notifyTestLogger())

	deleted, err := sweeper.Sweep(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 0 {
		t.Errorf("deleted = %d, want 0", deleted)
	}
}

func TestSweep_ListError(t *testing.T) {
	store := &mockRetentionStore{listErr: errors.New("db down")}
	sweeper := NewRetentionSweeper(store, &mockArchiver{}, testRetentionConfig(), notifyTestLogger())

	if _, err := sweeper.Sweep(context.Background(), time.Now().UTC()); err == nil {
		t.Fatal("expected error, got nil")
	}
}
