package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"dwellops/internal/types"
)

func TestZstdArchiver_WritesDecodableJSONL(t *testing.T) {
	dir := t.TempDir()
	arch := NewZstdArchiver(dir)
	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)

	batch := []*types.Notification{
		{
			ID:           "ntf_1",
			Recipient:    "tenant@example.com",
			TemplateKind: types.TemplateLeaseExpiryReminder,
			Status:       types.NotificationSent,
			CreatedAt:    now.Add(-100 * 24 * time.Hour),
		},
		{
			ID:           "ntf_2",
			Recipient:    "manager@example.com",
			TemplateKind: types.TemplateComplianceDueReminder,
			Status:       types.NotificationFailed,
			RetryCount:   3,
			LastError:    "gateway returned 503",
			CreatedAt:    now.Add(-95 * 24 * time.Hour),
		},
	}

	if err := arch.Archive(context.Background(), batch, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading archive dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("archive files = %d, want 1", len(entries))
	}

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("creating zstd reader: %v", err)
	}
	defer zr.Close()

	var records []archivedNotification
	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		var rec archivedNotification
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decoding record: %v", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanning archive: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].ID != "ntf_1" || records[1].ID != "ntf_2" {
		t.Errorf("record IDs = %s, %s", records[0].ID, records[1].ID)
	}
	if records[1].LastError != "gateway returned 503" {
		t.Errorf("last_error = %q", records[1].LastError)
	}
}

func TestZstdArchiver_EmptyBatchWritesNothing(t *testing.T) {
	dir := t.TempDir()
	arch := NewZstdArchiver(dir)

	if err := arch.Archive(context.Background(), nil, time.Now().UTC()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading archive dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("archive files = %d, want 0", len(entries))
	}
}

func TestZstdArchiver_SequentialBatchesGetDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	arch := NewZstdArchiver(dir)
	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		batch := []*types.Notification{{ID: "ntf_x", Status: types.NotificationSent}}
		if err := arch.Archive(context.Background(), batch, now); err != nil {
			t.Fatalf("batch %d: unexpected error: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading archive dir: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("archive files = %d, want 3", len(entries))
	}
}
