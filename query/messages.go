package query

import (
	"strings"

	"github.com/google/uuid"
)

const (
	TypeGetEntity         = "entitygraph.query.entity.get"
	TypeGetCollection     = "entitygraph.query.collection.get"
	TypeQuickSearch       = "entitygraph.query.collection.quick_search"
	TypeListNamespaces    = "entitygraph.query.namespace.list"
	TypeGetNamespaceImage = "entitygraph.query.namespace.image"
	TypeDeletionPreview   = "entitygraph.query.changelog.deletion_preview"
)

type GetEntityMessage struct {
	Collection string
	ID         uuid.UUID
	// Rev selects a historic revision; nil reads the latest.
	Rev              *int
	WithoutRelations bool
}

func (GetEntityMessage) Type() string { return TypeGetEntity }

func (m GetEntityMessage) Validate() error {
	if strings.TrimSpace(m.Collection) == "" {
		return queryValidationError("collection", "collection is required")
	}
	if m.ID == uuid.Nil {
		return queryValidationError("id", "entity id is required")
	}
	if m.Rev != nil && *m.Rev <= 0 {
		return queryValidationError("rev", "rev must be positive")
	}
	return nil
}

type GetCollectionMessage struct {
	Collection       string
	Start            int
	Rows             int
	WithoutRelations bool
}

func (GetCollectionMessage) Type() string { return TypeGetCollection }

func (m GetCollectionMessage) Validate() error {
	if strings.TrimSpace(m.Collection) == "" {
		return queryValidationError("collection", "collection is required")
	}
	if m.Start < 0 {
		return queryValidationError("start", "start must be >= 0")
	}
	if m.Rows < 0 {
		return queryValidationError("rows", "rows must be >= 0")
	}
	return nil
}

type QuickSearchMessage struct {
	Collection  string
	Query       string
	KeywordType string
	Limit       int
}

func (QuickSearchMessage) Type() string { return TypeQuickSearch }

func (m QuickSearchMessage) Validate() error {
	if strings.TrimSpace(m.Collection) == "" {
		return queryValidationError("collection", "collection is required")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type ListNamespacesMessage struct{}

func (ListNamespacesMessage) Type() string { return TypeListNamespaces }

func (ListNamespacesMessage) Validate() error { return nil }

type GetNamespaceImageMessage struct {
	Namespace string
}

func (GetNamespaceImageMessage) Type() string { return TypeGetNamespaceImage }

func (m GetNamespaceImageMessage) Validate() error {
	if strings.TrimSpace(m.Namespace) == "" {
		return queryValidationError("namespace", "namespace is required")
	}
	return nil
}

type DeletionPreviewMessage struct {
	EntityID uuid.UUID
}

func (DeletionPreviewMessage) Type() string { return TypeDeletionPreview }

func (m DeletionPreviewMessage) Validate() error {
	if m.EntityID == uuid.Nil {
		return queryValidationError("entity_id", "entity id is required")
	}
	return nil
}
