package uploads

import (
	"context"

	"github.com/JaimeStill/geoassign/pkg/pagination"
)

// System defines the public contract for upload operations.
type System interface {
	Handler(maxUploadSize int64) *Handler

	List(ctx context.Context, page pagination.PageRequest) (*pagination.PageResult[Upload], error)
	Find(ctx context.Context, contentHash string) (*Upload, error)
	// Create stores the file and registers it. created is false when the
	// same content was already registered; the existing record is returned.
	Create(ctx context.Context, cmd CreateCommand) (upload *Upload, created bool, err error)
	Delete(ctx context.Context, contentHash string) error
}
