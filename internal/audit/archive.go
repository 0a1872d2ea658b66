package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"proctorhub/internal/common/storage"
	appErr "proctorhub/pkg/errors"
	"proctorhub/pkg/utils/logger"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// Archiver persists assembled reports as compressed objects for long-term
// retention.
type Archiver struct {
	store  storage.ObjectStorage
	bucket string
}

// NewArchiver creates an archiver writing into the given bucket.
func NewArchiver(store storage.ObjectStorage, bucket string) *Archiver {
	return &Archiver{store: store, bucket: bucket}
}

func archiveKey(attemptID string) string {
	return fmt.Sprintf("audits/%s.json.zst", attemptID)
}

// Archive compresses and stores a report, returning its object key.
func (a *Archiver) Archive(ctx context.Context, report *Report) (string, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return "", appErr.Wrap(err, appErr.AuditArchiveFailed)
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return "", appErr.Wrap(err, appErr.AuditArchiveFailed)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return "", appErr.Wrap(err, appErr.AuditArchiveFailed)
	}
	if err := enc.Close(); err != nil {
		return "", appErr.Wrap(err, appErr.AuditArchiveFailed)
	}

	key := archiveKey(report.AttemptID)
	if err := a.store.PutObject(ctx, a.bucket, key, &buf, int64(buf.Len()), "application/zstd"); err != nil {
		return "", appErr.Wrap(err, appErr.AuditArchiveFailed)
	}

	logger.Info(ctx, "audit report archived",
		zap.String("attempt_id", report.AttemptID),
		zap.String("object_key", key),
		zap.Int("raw_bytes", len(raw)),
		zap.Int("stored_bytes", buf.Len()))
	return key, nil
}

// Load reads a previously archived report back.
func (a *Archiver) Load(ctx context.Context, attemptID string) (*Report, error) {
	obj, err := a.store.GetObject(ctx, a.bucket, archiveKey(attemptID))
	if err != nil {
		return nil, appErr.Wrap(err, appErr.NotFound)
	}
	defer obj.Close()

	dec, err := zstd.NewReader(obj)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.AuditArchiveFailed)
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.AuditArchiveFailed)
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, appErr.Wrap(err, appErr.AuditArchiveFailed)
	}
	return &report, nil
}
