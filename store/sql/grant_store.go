package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-entitygraph/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// GrantStore persists per namespace capability grants.
type GrantStore struct {
	db   *bun.DB
	repo repository.Repository[*grantRecord]
}

func NewGrantStore(db *bun.DB) (*GrantStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*grantRecord](db, grantHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid grant repository wiring: %w", err)
		}
	}
	return &GrantStore{db: db, repo: repo}, nil
}

// Grant merges capabilities into the user's grant on namespace.
func (s *GrantStore) Grant(ctx context.Context, userID string, namespace string, capabilities ...core.Capability) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: grant store is not configured")
	}
	userID = strings.TrimSpace(userID)
	namespace = strings.TrimSpace(namespace)
	if userID == "" || namespace == "" {
		return core.BadInputError("sqlstore: user id and namespace are required")
	}
	existing, err := s.find(ctx, userID, namespace)
	if err != nil {
		return err
	}
	if existing == nil {
		record := &grantRecord{
			ID:            uuid.NewString(),
			UserID:        userID,
			NamespaceName: namespace,
			Capabilities:  capabilityStrings(core.NormalizeCapabilities(capabilities)),
		}
		if _, err := s.repo.Create(ctx, record); err != nil {
			return core.IOError(err, "sqlstore: create grant")
		}
		return nil
	}
	merged := append(capabilityValues(existing.Capabilities), capabilities...)
	existing.Capabilities = capabilityStrings(core.NormalizeCapabilities(merged))
	existing.UpdatedAt = time.Now().UTC()
	if _, err := s.repo.Update(ctx, existing, repository.UpdateByID(existing.ID)); err != nil {
		return core.IOError(err, "sqlstore: update grant")
	}
	return nil
}

func (s *GrantStore) Revoke(ctx context.Context, userID string, namespace string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: grant store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*grantRecord)(nil)).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Where("namespace_name = ?", strings.TrimSpace(namespace)).
		Exec(ctx)
	if err != nil {
		return core.IOError(err, "sqlstore: revoke grant")
	}
	return nil
}

func (s *GrantStore) GrantedCapabilities(ctx context.Context, user core.User, namespace string) ([]core.Capability, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: grant store is not configured")
	}
	record, err := s.find(ctx, strings.TrimSpace(user.ID), strings.TrimSpace(namespace))
	if err != nil || record == nil {
		return nil, err
	}
	return core.NormalizeCapabilities(capabilityValues(record.Capabilities)), nil
}

func (s *GrantStore) find(ctx context.Context, userID string, namespace string) (*grantRecord, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", userID),
		repository.SelectBy("namespace_name", "=", namespace),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, core.IOError(err, "sqlstore: read grant")
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func capabilityStrings(values []core.Capability) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, string(value))
	}
	return out
}

func capabilityValues(values []string) []core.Capability {
	out := make([]core.Capability, 0, len(values))
	for _, value := range values {
		if capability, ok := core.ParseCapability(value); ok {
			out = append(out, capability)
		}
	}
	return out
}
