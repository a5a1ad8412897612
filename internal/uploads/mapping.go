package uploads

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/JaimeStill/geoassign/pkg/query"
	"github.com/JaimeStill/geoassign/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "uploads", "u").
	Project("id", "ID").
	Project("content_hash", "ContentHash").
	Project("filename", "Filename").
	Project("size_bytes", "SizeBytes").
	Project("storage_key", "StorageKey").
	Project("uploaded_at", "UploadedAt")

var defaultSort = query.SortField{
	Field:      "UploadedAt",
	Descending: true,
}

func scanUpload(s repository.Scanner) (Upload, error) {
	var u Upload
	err := s.Scan(
		&u.ID,
		&u.ContentHash,
		&u.Filename,
		&u.SizeBytes,
		&u.StorageKey,
		&u.UploadedAt,
	)
	return u, err
}

// NormalizeHash lower-cases a hex SHA-256 digest and rejects anything else.
func NormalizeHash(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 64 {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}
	return s, nil
}
