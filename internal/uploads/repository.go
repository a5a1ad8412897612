package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/JaimeStill/geoassign/internal/fingerprint"
	"github.com/JaimeStill/geoassign/pkg/pagination"
	"github.com/JaimeStill/geoassign/pkg/query"
	"github.com/JaimeStill/geoassign/pkg/repository"
	"github.com/JaimeStill/geoassign/pkg/storage"
)

const uploadContentType = "text/plain; charset=utf-8"

type repo struct {
	db         *sql.DB
	storage    storage.System
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates an upload repository implementing the System interface.
func New(
	db *sql.DB,
	store storage.System,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		storage:    store,
		logger:     logger.With("system", "uploads"),
		pagination: pagination,
	}
}

func (r *repo) Handler(maxUploadSize int64) *Handler {
	return NewHandler(r, r.logger, r.pagination, maxUploadSize)
}

func (r *repo) List(ctx context.Context, page pagination.PageRequest) (*pagination.PageResult[Upload], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Filename", "ContentHash")

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	total, err := repository.Count(ctx, r.db, countSQL, countArgs)
	if err != nil {
		return nil, fmt.Errorf("count uploads: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanUpload)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, contentHash string) (*Upload, error) {
	hash, err := NormalizeHash(contentHash)
	if err != nil {
		return nil, err
	}

	q, args := query.NewBuilder(projection).BuildSingle("ContentHash", hash)
	u, err := repository.QueryOne(ctx, r.db, q, args, scanUpload)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &u, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Upload, bool, error) {
	spool, err := os.CreateTemp("", "geoassign-upload-*")
	if err != nil {
		return nil, false, fmt.Errorf("create spool file: %w", err)
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	hash, err := fingerprint.HashContent(io.TeeReader(cmd.Body, spool))
	if err != nil {
		return nil, false, err
	}
	size, err := spool.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, false, fmt.Errorf("spool size: %w", err)
	}
	if size == 0 {
		return nil, false, fmt.Errorf("%w: empty file", ErrInvalidFile)
	}

	if existing, err := r.Find(ctx, hash); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, false, fmt.Errorf("rewind spool file: %w", err)
	}

	key := StorageKey(hash)
	if err := r.storage.Upload(ctx, key, spool, uploadContentType); err != nil {
		return nil, false, fmt.Errorf("upload genotype blob: %w", err)
	}

	q := `
		INSERT INTO uploads(id, content_hash, filename, size_bytes, storage_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, content_hash, filename, size_bytes, storage_key, uploaded_at`

	args := []any{uuid.New(), hash, sanitizeFilename(cmd.Filename), size, key}

	u, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (Upload, error) {
		return repository.QueryOne(ctx, tx, q, args, scanUpload)
	})
	if err != nil {
		err = repository.MapError(err, ErrNotFound, ErrDuplicate)
		if errors.Is(err, ErrDuplicate) {
			// A concurrent upload of the same bytes registered first.
			existing, findErr := r.Find(ctx, hash)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		if delErr := r.storage.Delete(ctx, key); delErr != nil {
			r.logger.Warn("compensating blob delete failed", "key", key, "error", delErr)
		}
		return nil, false, err
	}

	r.logger.Info("upload created", "content_hash", u.ContentHash, "filename", u.Filename, "size", size)
	return &u, true, nil
}

func (r *repo) Delete(ctx context.Context, contentHash string) error {
	u, err := r.Find(ctx, contentHash)
	if err != nil {
		return err
	}

	_, err = repository.WithTx(ctx, r.db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, repository.ExecExpectOne(
			ctx, tx,
			"DELETE FROM uploads WHERE content_hash = $1",
			u.ContentHash,
		)
	})
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	if delErr := r.storage.Delete(ctx, u.StorageKey); delErr != nil {
		r.logger.Warn("blob delete failed after DB delete", "key", u.StorageKey, "error", delErr)
	}

	r.logger.Info("upload deleted", "content_hash", u.ContentHash)
	return nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "genotype.vcf"
	}
	return name
}
