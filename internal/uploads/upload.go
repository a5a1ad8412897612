// Package uploads stores genotype files in blob storage keyed by the SHA-256
// of their content and registers them in the uploads table. Uploading the
// same bytes twice yields the same record.
package uploads

import (
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Upload is a registered genotype file.
type Upload struct {
	ID          uuid.UUID `json:"id"`
	ContentHash string    `json:"content_hash"`
	Filename    string    `json:"filename"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// CreateCommand carries an uploaded file. Body is read exactly once.
type CreateCommand struct {
	Filename string
	Body     io.Reader
}

// StorageKey is the blob key for content with the given hash.
func StorageKey(contentHash string) string {
	return path.Join("genotypes", strings.ToLower(contentHash))
}
