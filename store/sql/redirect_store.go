package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-entitygraph/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RedirectStore records persistent URLs and the revisions they point at.
type RedirectStore struct {
	repo repository.Repository[*redirectRecord]
}

func NewRedirectStore(db *bun.DB) (*RedirectStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*redirectRecord](db, redirectHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid redirect repository wiring: %w", err)
		}
	}
	return &RedirectStore{repo: repo}, nil
}

func (s *RedirectStore) Add(ctx context.Context, uri *url.URL, lookup core.EntityLookup) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: redirect store is not configured")
	}
	if uri == nil {
		return core.BadInputError("sqlstore: redirect uri is required")
	}
	if err := lookup.Validate(); err != nil {
		return err
	}
	record := &redirectRecord{
		ID:         uuid.NewString(),
		URI:        uri.String(),
		Collection: lookup.Collection,
		EntityID:   lookup.TimID.String(),
		Rev:        lookup.Rev,
	}
	if _, err := s.repo.Create(ctx, record); err != nil {
		return core.IOError(err, "sqlstore: add redirect")
	}
	return nil
}

// Resolve returns the newest lookup registered for uri.
func (s *RedirectStore) Resolve(ctx context.Context, uri string) (core.EntityLookup, error) {
	if s == nil || s.repo == nil {
		return core.EntityLookup{}, fmt.Errorf("sqlstore: redirect store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("uri", "=", strings.TrimSpace(uri)),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.EntityLookup{}, core.IOError(err, "sqlstore: resolve redirect")
	}
	if len(records) == 0 {
		return core.EntityLookup{}, core.NotFoundError("no redirect for %q", uri)
	}
	return records[0].toDomain().Lookup, nil
}

// List returns the redirects of one entity in revision order.
func (s *RedirectStore) List(ctx context.Context, entityID uuid.UUID) ([]core.Redirect, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: redirect store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("entity_id", "=", entityID.String()),
		repository.OrderBy("rev ASC"),
	)
	if err != nil {
		return nil, core.IOError(err, "sqlstore: list redirects")
	}
	out := make([]core.Redirect, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
