package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-entitygraph/core"
	"github.com/uptrace/bun"
)

// NamespaceStore persists namespace metadata and images.
type NamespaceStore struct {
	db *bun.DB
}

func NewNamespaceStore(db *bun.DB) (*NamespaceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &NamespaceStore{db: db}, nil
}

// SaveNamespace upserts the namespace and replaces its collections.
func (s *NamespaceStore) SaveNamespace(ctx context.Context, namespace core.Namespace) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: namespace store is not configured")
	}
	name := strings.TrimSpace(namespace.Name)
	if name == "" {
		return core.BadInputError("sqlstore: namespace name is required")
	}
	now := time.Now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &namespaceRecord{
			Name:      name,
			Label:     namespace.Label,
			ImageType: namespace.ImageType,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (name) DO UPDATE").
			Set("label = EXCLUDED.label").
			Set("image_type = EXCLUDED.image_type").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return core.IOError(err, "sqlstore: save namespace")
		}
		if _, err := tx.NewDelete().
			Model((*collectionRecord)(nil)).
			Where("namespace_name = ?", name).
			Exec(ctx); err != nil {
			return core.IOError(err, "sqlstore: clear collections")
		}
		if len(namespace.Collections) == 0 {
			return nil
		}
		collections := make([]collectionRecord, 0, len(namespace.Collections))
		for _, collectionName := range namespace.CollectionNames() {
			collection := namespace.Collections[collectionName]
			collections = append(collections, collectionRecord{
				Name:           collectionName,
				NamespaceName:  name,
				EntityTypeName: collection.EntityTypeName,
				AbstractType:   collection.AbstractType,
				Unknown:        collection.Unknown,
				Relation:       collection.Relation,
				CreatedAt:      now,
			})
		}
		if _, err := tx.NewInsert().Model(&collections).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return core.BadInputError("sqlstore: collection name already used by another namespace")
			}
			return core.IOError(err, "sqlstore: save collections")
		}
		return nil
	})
}

func (s *NamespaceStore) SaveImage(ctx context.Context, image core.NamespaceImage) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: namespace store is not configured")
	}
	name := strings.TrimSpace(image.Namespace)
	if name == "" {
		return core.BadInputError("sqlstore: image namespace is required")
	}
	record := &namespaceImageRecord{
		NamespaceName: name,
		MediaType:     image.MediaType,
		Blob:          append([]byte(nil), image.Blob...),
		UpdatedAt:     time.Now().UTC(),
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (namespace_name) DO UPDATE").
		Set("media_type = EXCLUDED.media_type").
		Set("blob = EXCLUDED.blob").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.IOError(err, "sqlstore: save namespace image")
	}
	return nil
}

func (s *NamespaceStore) LoadNamespaces(ctx context.Context) (core.Namespaces, error) {
	if s == nil || s.db == nil {
		return core.Namespaces{}, fmt.Errorf("sqlstore: namespace store is not configured")
	}
	var namespaces []namespaceRecord
	if err := s.db.NewSelect().Model(&namespaces).OrderExpr("?TableAlias.name ASC").Scan(ctx); err != nil {
		return core.Namespaces{}, core.IOError(err, "sqlstore: load namespaces")
	}
	var collections []collectionRecord
	if err := s.db.NewSelect().Model(&collections).OrderExpr("?TableAlias.name ASC").Scan(ctx); err != nil {
		return core.Namespaces{}, core.IOError(err, "sqlstore: load collections")
	}
	return toNamespaces(namespaces, collections), nil
}

func (s *NamespaceStore) GetNamespaceImage(ctx context.Context, name string) (core.NamespaceImage, error) {
	if s == nil || s.db == nil {
		return core.NamespaceImage{}, fmt.Errorf("sqlstore: namespace store is not configured")
	}
	record := new(namespaceImageRecord)
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.namespace_name = ?", strings.TrimSpace(name)).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.NamespaceImage{}, core.NotFoundError("no image for namespace %q", name)
	}
	if err != nil {
		return core.NamespaceImage{}, core.IOError(err, "sqlstore: read namespace image")
	}
	return core.NamespaceImage{
		Namespace: record.NamespaceName,
		MediaType: record.MediaType,
		Blob:      append([]byte(nil), record.Blob...),
	}, nil
}
