package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"dwellops/internal/types"
)

// Archiver persists a batch of terminal notifications before the retention
// sweep deletes them. An Archive error aborts the purge of that batch.
type Archiver interface {
	Archive(ctx context.Context, batch []*types.Notification, now time.Time) error
}

// ZstdArchiver writes batches as zstd-compressed JSONL files, one file per
// batch, named by the sweep timestamp so repeated sweeps never collide.
type ZstdArchiver struct {
	dir string
	seq int
}

// NewZstdArchiver creates a ZstdArchiver rooted at dir. The directory is
// created on first use.
func NewZstdArchiver(dir string) *ZstdArchiver {
	return &ZstdArchiver{dir: dir}
}

type archivedNotification struct {
	ID           string        `json:"id"`
	Recipient    string        `json:"recipient"`
	TemplateKind string        `json:"template_kind"`
	Payload      types.Payload `json:"payload,omitempty"`
	Status       string        `json:"status"`
	RetryCount   int           `json:"retry_count"`
	LastError    string        `json:"last_error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Archive writes the batch to a new compressed JSONL file. The file is
// fully written and synced before Archive returns nil; any failure leaves
// at worst a partial file that a later sweep overlaps harmlessly, since
// deletion only happens after a successful archive.
func (a *ZstdArchiver) Archive(ctx context.Context, batch []*types.Notification, now time.Time) error {
	if len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	a.seq++
	name := fmt.Sprintf("notifications-%s-%03d.jsonl.zst", now.UTC().Format("20060102T150405"), a.seq)
	path := filepath.Join(a.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}

	enc := json.NewEncoder(zw)
	for _, n := range batch {
		rec := archivedNotification{
			ID:           n.ID,
			Recipient:    n.Recipient,
			TemplateKind: string(n.TemplateKind),
			Payload:      n.Payload,
			Status:       string(n.Status),
			RetryCount:   n.RetryCount,
			LastError:    n.LastError,
			CreatedAt:    n.CreatedAt,
		}
		if err := enc.Encode(rec); err != nil {
			zw.Close()
			return fmt.Errorf("encoding archive record: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("flushing archive: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing archive file: %w", err)
	}
	return nil
}

// NopArchiver skips archiving. Used when no archive directory is
// configured; the sweep then deletes directly.
type NopArchiver struct{}

// Archive is a no-op.
func (NopArchiver) Archive(context.Context, []*types.Notification, time.Time) error { return nil }
