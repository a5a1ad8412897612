package repository_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JaimeStill/geoassign/pkg/repository"
)

var (
	errNotFound  = errors.New("not found")
	errDuplicate = errors.New("duplicate")
)

func TestMapError(t *testing.T) {
	other := errors.New("some other error")
	foreignKey := &pgconn.PgError{Code: "23503"}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"no rows", sql.ErrNoRows, errNotFound},
		{"wrapped no rows", fmt.Errorf("scan job: %w", sql.ErrNoRows), errNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, errDuplicate},
		{"other pg error", foreignKey, foreignKey},
		{"passthrough", other, other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := repository.MapError(tt.err, errNotFound, errDuplicate); got != tt.want {
				t.Errorf("MapError() = %v, want %v", got, tt.want)
			}
		})
	}
}

type row struct {
	values []any
	err    error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		*(d.(*string)) = r.values[i].(string)
	}
	return nil
}

func TestScanFunc(t *testing.T) {
	scan := repository.ScanFunc[string](func(s repository.Scanner) (string, error) {
		var v string
		err := s.Scan(&v)
		return v, err
	})

	got, err := scan(row{values: []any{"completed"}})
	if err != nil || got != "completed" {
		t.Errorf("scan = %q, %v", got, err)
	}

	if _, err := scan(row{err: sql.ErrNoRows}); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("scan error = %v, want sql.ErrNoRows", err)
	}
}
