// Package repository archives submitted sources to object storage.
package repository

import (
	"context"
	"fmt"
	"io"
	"strings"

	"proctorhub/internal/common/storage"
	appErr "proctorhub/pkg/errors"
)

// SubmissionStore archives each graded submission's source for later review.
type SubmissionStore struct {
	store  storage.ObjectStorage
	bucket string
}

// NewSubmissionStore creates a store writing into the given bucket.
func NewSubmissionStore(store storage.ObjectStorage, bucket string) *SubmissionStore {
	return &SubmissionStore{store: store, bucket: bucket}
}

func submissionKey(attemptID, questionID, language string) string {
	ext := "txt"
	switch language {
	case "python":
		ext = "py"
	case "javascript":
		ext = "js"
	}
	return fmt.Sprintf("submissions/%s/%s.%s", attemptID, questionID, ext)
}

// Save archives the source and returns its object key. Resubmission
// overwrites the previous archive; only the latest graded source is kept.
func (s *SubmissionStore) Save(ctx context.Context, attemptID, questionID, language, code string) (string, error) {
	key := submissionKey(attemptID, questionID, language)
	reader := strings.NewReader(code)
	if err := s.store.PutObject(ctx, s.bucket, key, reader, int64(len(code)), "text/plain"); err != nil {
		return "", appErr.Wrap(err, appErr.SubmissionStoreError)
	}
	return key, nil
}

// Load reads back an archived submission.
func (s *SubmissionStore) Load(ctx context.Context, attemptID, questionID, language string) (string, error) {
	obj, err := s.store.GetObject(ctx, s.bucket, submissionKey(attemptID, questionID, language))
	if err != nil {
		return "", appErr.Wrap(err, appErr.NotFound)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", appErr.Wrap(err, appErr.SubmissionStoreError)
	}
	return string(data), nil
}
