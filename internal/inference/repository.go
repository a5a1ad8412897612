package inference

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/JaimeStill/geoassign/internal/fingerprint"
	"github.com/JaimeStill/geoassign/pkg/pagination"
	"github.com/JaimeStill/geoassign/pkg/query"
	"github.com/JaimeStill/geoassign/pkg/repository"
)

// Repository persists job snapshots and lists them. It is the durable side
// of the fingerprint cache.
type Repository interface {
	fingerprint.Store
	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[fingerprint.Job], error)
}

type postgres struct {
	db *sql.DB
}

// NewRepository creates a Repository over the inference_jobs table.
func NewRepository(db *sql.DB) Repository {
	return &postgres{db: db}
}

func (p *postgres) Load(ctx context.Context, fp fingerprint.Fingerprint) (*fingerprint.Job, error) {
	q, args := query.NewBuilder(projection).BuildSingle("Fingerprint", string(fp))
	j, err := repository.QueryOne(ctx, p.db, q, args, scanJob)
	if err != nil {
		return nil, repository.MapError(err, fingerprint.ErrNotFound, fingerprint.ErrInFlight)
	}
	return &j, nil
}

const upsertJob = `
	INSERT INTO inference_jobs(
		fingerprint, id, content_hash, species, panel_size, iterations, thin, burn,
		status, failure, region, files, posterior, created_at, started_at, completed_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (fingerprint) DO UPDATE SET
		id = EXCLUDED.id,
		status = EXCLUDED.status,
		failure = EXCLUDED.failure,
		region = EXCLUDED.region,
		files = EXCLUDED.files,
		posterior = EXCLUDED.posterior,
		started_at = EXCLUDED.started_at,
		completed_at = EXCLUDED.completed_at,
		updated_at = NOW()`

func (p *postgres) Save(ctx context.Context, job *fingerprint.Job) error {
	failure, err := jsonArg(job.Failure)
	if err != nil {
		return fmt.Errorf("encode failure: %w", err)
	}
	cr, err := jsonArg(job.Region)
	if err != nil {
		return fmt.Errorf("encode region: %w", err)
	}
	files, err := jsonArg(&job.Files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}

	_, err = repository.WithTx(ctx, p.db, func(tx *sql.Tx) (struct{}, error) {
		return struct{}{}, repository.ExecExpectOne(ctx, tx, upsertJob,
			string(job.Fingerprint),
			job.ID,
			job.Params.ContentHash,
			job.Params.Species,
			job.Params.PanelSize,
			job.Params.Iterations,
			job.Params.Thin,
			job.Params.Burn,
			string(job.Status),
			failure,
			cr,
			files,
			job.Posterior,
			job.CreatedAt,
			job.StartedAt,
			job.CompletedAt,
		)
	})
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.Fingerprint, err)
	}
	return nil
}

func (p *postgres) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[fingerprint.Job], error) {
	qb := query.NewBuilder(projection, defaultSort)
	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	total, err := repository.Count(ctx, p.db, countSQL, countArgs)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, p.db, pageSQL, pageArgs, scanJob)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}
