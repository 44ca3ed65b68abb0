package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type namespaceRecord struct {
	bun.BaseModel `bun:"table:entitygraph_namespaces,alias:egn"`

	Name      string    `bun:"name,pk"`
	Label     string    `bun:"label,notnull"`
	ImageType string    `bun:"image_type,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type collectionRecord struct {
	bun.BaseModel `bun:"table:entitygraph_collections,alias:egc"`

	Name           string    `bun:"name,pk"`
	NamespaceName  string    `bun:"namespace_name,notnull"`
	EntityTypeName string    `bun:"entity_type_name,notnull"`
	AbstractType   string    `bun:"abstract_type,notnull"`
	Unknown        bool      `bun:"is_unknown,notnull"`
	Relation       bool      `bun:"is_relation,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type namespaceImageRecord struct {
	bun.BaseModel `bun:"table:entitygraph_namespace_images,alias:egi"`

	NamespaceName string    `bun:"namespace_name,pk"`
	MediaType     string    `bun:"media_type,notnull"`
	Blob          []byte    `bun:"blob,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type propertyValue struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Value any    `json:"value"`
}

// entityRevisionRecord is one immutable revision. is_latest marks the row
// reads resolve to when no revision is requested.
type entityRevisionRecord struct {
	bun.BaseModel `bun:"table:entitygraph_entity_revisions,alias:eger"`

	ID          string          `bun:"id,pk"`
	EntityID    string          `bun:"entity_id,notnull"`
	Rev         int             `bun:"rev,notnull"`
	Collection  string          `bun:"collection,notnull"`
	Types       []string        `bun:"types,type:jsonb,notnull"`
	Properties  []propertyValue `bun:"properties,type:jsonb,notnull"`
	CreatedBy   string          `bun:"created_by,notnull"`
	CreatedAtMS int64           `bun:"created_at_ms,notnull"`
	ModifiedBy  string          `bun:"modified_by,notnull"`
	ModifiedMS  int64           `bun:"modified_at_ms,notnull"`
	Deleted     bool            `bun:"deleted,notnull"`
	PID         string          `bun:"pid,notnull"`
	IsLatest    bool            `bun:"is_latest,notnull"`
	SearchText  string          `bun:"search_text,notnull"`
	KeywordType string          `bun:"keyword_type,notnull"`
	RecordedAt  time.Time       `bun:"recorded_at,nullzero,notnull,default:current_timestamp"`
}

type relationRevisionRecord struct {
	bun.BaseModel `bun:"table:entitygraph_relation_revisions,alias:egrr"`

	ID          string    `bun:"id,pk"`
	RelationID  string    `bun:"relation_id,notnull"`
	Rev         int       `bun:"rev,notnull"`
	Collection  string    `bun:"collection,notnull"`
	TypeName    string    `bun:"type_name,notnull"`
	TypeID      string    `bun:"type_id,notnull"`
	SourceID    string    `bun:"source_id,notnull"`
	TargetID    string    `bun:"target_id,notnull"`
	Accepted    bool      `bun:"accepted,notnull"`
	CreatedBy   string    `bun:"created_by,notnull"`
	CreatedAtMS int64     `bun:"created_at_ms,notnull"`
	ModifiedBy  string    `bun:"modified_by,notnull"`
	ModifiedMS  int64     `bun:"modified_at_ms,notnull"`
	Deleted     bool      `bun:"deleted,notnull"`
	IsLatest    bool      `bun:"is_latest,notnull"`
	RecordedAt  time.Time `bun:"recorded_at,nullzero,notnull,default:current_timestamp"`
}

type quadRecord struct {
	bun.BaseModel `bun:"table:entitygraph_quads,alias:egq"`

	ID        string    `bun:"id,pk"`
	Graph     string    `bun:"graph,notnull"`
	Subject   string    `bun:"subject,notnull"`
	Predicate string    `bun:"predicate,notnull"`
	Direction string    `bun:"direction,notnull"`
	Object    string    `bun:"object,notnull"`
	ValueType string    `bun:"value_type,notnull"`
	Language  string    `bun:"language,notnull"`
	Position  int64     `bun:"position,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type grantRecord struct {
	bun.BaseModel `bun:"table:entitygraph_grants,alias:egg"`

	ID            string    `bun:"id,pk"`
	UserID        string    `bun:"user_id,notnull"`
	NamespaceName string    `bun:"namespace_name,notnull"`
	Capabilities  []string  `bun:"capabilities,type:jsonb,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type redirectRecord struct {
	bun.BaseModel `bun:"table:entitygraph_redirects,alias:egrd"`

	ID         string    `bun:"id,pk"`
	URI        string    `bun:"uri,notnull"`
	Collection string    `bun:"collection,notnull"`
	EntityID   string    `bun:"entity_id,notnull"`
	Rev        int       `bun:"rev,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
