package inference

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/JaimeStill/geoassign/internal/assignment"
	"github.com/JaimeStill/geoassign/internal/fingerprint"
	"github.com/JaimeStill/geoassign/internal/region"
	"github.com/JaimeStill/geoassign/pkg/query"
	"github.com/JaimeStill/geoassign/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "inference_jobs", "j").
	Project("id", "ID").
	Project("fingerprint", "Fingerprint").
	Project("content_hash", "ContentHash").
	Project("species", "Species").
	Project("panel_size", "PanelSize").
	Project("iterations", "Iterations").
	Project("thin", "Thin").
	Project("burn", "Burn").
	Project("status", "Status").
	Project("failure", "Failure").
	Project("region", "Region").
	Project("files", "Files").
	Project("posterior", "Posterior").
	Project("created_at", "CreatedAt").
	Project("started_at", "StartedAt").
	Project("completed_at", "CompletedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters narrows job listings. Nil fields are ignored; both match exactly.
type Filters struct {
	Status  *string `json:"status,omitempty"`
	Species *string `json:"species,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("Species", f.Species)
}

// Match reports whether job passes the filters.
func (f Filters) Match(job *fingerprint.Job) bool {
	if f.Status != nil && string(job.Status) != *f.Status {
		return false
	}
	if f.Species != nil && job.Params.Species != *f.Species {
		return false
	}
	return true
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		s = strings.ToLower(s)
		f.Status = &s
	}

	if sp := values.Get("species"); sp != "" {
		sp = strings.ToLower(strings.TrimSpace(sp))
		f.Species = &sp
	}

	return f
}

func scanJob(s repository.Scanner) (fingerprint.Job, error) {
	var (
		j                     fingerprint.Job
		failure, cr, files    []byte
		fp, status, posterior string
	)
	err := s.Scan(
		&j.ID,
		&fp,
		&j.Params.ContentHash,
		&j.Params.Species,
		&j.Params.PanelSize,
		&j.Params.Iterations,
		&j.Params.Thin,
		&j.Params.Burn,
		&status,
		&failure,
		&cr,
		&files,
		&posterior,
		&j.CreatedAt,
		&j.StartedAt,
		&j.CompletedAt,
	)
	if err != nil {
		return j, err
	}

	j.Fingerprint = fingerprint.Fingerprint(fp)
	j.Status = fingerprint.Status(status)
	j.Posterior = posterior

	if len(failure) > 0 {
		j.Failure = new(fingerprint.Failure)
		if err := json.Unmarshal(failure, j.Failure); err != nil {
			return j, fmt.Errorf("decode failure: %w", err)
		}
	}
	if len(cr) > 0 {
		j.Region = new(region.CredibleRegion)
		if err := json.Unmarshal(cr, j.Region); err != nil {
			return j, fmt.Errorf("decode region: %w", err)
		}
	}
	j.Files = []assignment.FileDescriptor{}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &j.Files); err != nil {
			return j, fmt.Errorf("decode files: %w", err)
		}
	}
	return j, nil
}

// jsonArg encodes v for a jsonb parameter. Nil values bind as SQL NULL.
func jsonArg[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
