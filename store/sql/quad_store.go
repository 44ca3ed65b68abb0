package sqlstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-entitygraph/changelog"
	"github.com/goliatone/go-entitygraph/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	rdfType        = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	xsdNamespace   = "http://www.w3.org/2001/XMLSchema#"
	timVocabulary  = "http://timbuctoo.huygens.knaw.nl/v5/vocabulary#"
	entitySubjects = "urn:uuid:"
)

// QuadProjector mirrors entity revisions into the quad table so change
// records can be computed from stored facts. Property and type quads live in
// EntityGraph, relation quads in RelationGraph.
type QuadProjector struct {
	Vocabulary    string
	EntityGraph   string
	RelationGraph string

	sequence atomic.Int64
}

func DefaultQuadProjector() *QuadProjector {
	return &QuadProjector{
		Vocabulary:    timVocabulary,
		EntityGraph:   "entitygraph:entities",
		RelationGraph: "entitygraph:relations",
	}
}

// SubjectIRI is the quad subject an entity is stored under.
func SubjectIRI(id uuid.UUID) string {
	return entitySubjects + id.String()
}

func (p *QuadProjector) next() int64 {
	// the counter breaks ties inside one batch.
	return time.Now().UnixNano() + p.sequence.Add(1)
}

func (p *QuadProjector) record(graph string, quad changelog.Quad) quadRecord {
	return quadRecord{
		ID:        uuid.NewString(),
		Graph:     graph,
		Subject:   quad.Subject,
		Predicate: quad.Predicate,
		Direction: string(quad.Direction),
		Object:    quad.Object,
		ValueType: quad.ValueType,
		Language:  quad.Language,
		Position:  p.next(),
	}
}

func (p *QuadProjector) insert(ctx context.Context, db bun.IDB, records []quadRecord) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := db.NewInsert().Model(&records).Exec(ctx); err != nil {
		return core.IOError(err, "sqlstore: write quads")
	}
	return nil
}

func (p *QuadProjector) projectEntity(ctx context.Context, db bun.IDB, id uuid.UUID, types []string, properties []core.Property) error {
	subject := SubjectIRI(id)
	_, err := db.NewDelete().
		Model((*quadRecord)(nil)).
		Where("subject = ?", subject).
		Where("graph = ?", p.EntityGraph).
		Exec(ctx)
	if err != nil {
		return core.IOError(err, "sqlstore: clear entity quads")
	}
	records := make([]quadRecord, 0, len(types)+len(properties))
	for _, typeName := range types {
		records = append(records, p.record(p.EntityGraph, changelog.Quad{
			Subject:   subject,
			Predicate: rdfType,
			Direction: changelog.DirectionOut,
			Object:    p.Vocabulary + typeName,
		}))
	}
	seen := map[string]struct{}{}
	for _, property := range properties {
		if property.Value == nil {
			continue
		}
		valueType := xsdNamespace + "string"
		if property.Type != "" {
			valueType = xsdNamespace + property.Type
		}
		quad := changelog.Quad{
			Subject:   subject,
			Predicate: p.Vocabulary + property.Name,
			Direction: changelog.DirectionOut,
			Object:    fmt.Sprint(property.Value),
			ValueType: valueType,
		}
		key := quad.Predicate + "\x00" + quad.Object
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		records = append(records, p.record(p.EntityGraph, quad))
	}
	return p.insert(ctx, db, records)
}

func (p *QuadProjector) addType(ctx context.Context, db bun.IDB, id uuid.UUID, typeName string) error {
	return p.insert(ctx, db, []quadRecord{p.record(p.EntityGraph, changelog.Quad{
		Subject:   SubjectIRI(id),
		Predicate: rdfType,
		Direction: changelog.DirectionOut,
		Object:    p.Vocabulary + typeName,
	})})
}

func (p *QuadProjector) removeSubject(ctx context.Context, db bun.IDB, id uuid.UUID) error {
	subject := SubjectIRI(id)
	_, err := db.NewDelete().
		Model((*quadRecord)(nil)).
		Where("subject = ? OR (graph = ? AND object = ?)", subject, p.RelationGraph, subject).
		Exec(ctx)
	if err != nil {
		return core.IOError(err, "sqlstore: remove subject quads")
	}
	return nil
}

// projectRelation drops the quads of relation and writes them again when
// live. A relation is stored as an OUT quad on its source and an IN quad on
// its target.
func (p *QuadProjector) projectRelation(ctx context.Context, db bun.IDB, relation core.RelationRef, live bool) error {
	source := SubjectIRI(relation.SourceID)
	target := SubjectIRI(relation.TargetID)
	predicate := p.Vocabulary + relation.TypeName
	_, err := db.NewDelete().
		Model((*quadRecord)(nil)).
		Where("graph = ?", p.RelationGraph).
		Where("predicate = ?", predicate).
		Where("((subject = ? AND object = ? AND direction = ?) OR (subject = ? AND object = ? AND direction = ?))",
			source, target, string(changelog.DirectionOut),
			target, source, string(changelog.DirectionIn)).
		Exec(ctx)
	if err != nil {
		return core.IOError(err, "sqlstore: clear relation quads")
	}
	if !live {
		return nil
	}
	return p.insert(ctx, db, []quadRecord{
		p.record(p.RelationGraph, changelog.Quad{Subject: source, Predicate: predicate, Direction: changelog.DirectionOut, Object: target}),
		p.record(p.RelationGraph, changelog.Quad{Subject: target, Predicate: predicate, Direction: changelog.DirectionIn, Object: source}),
	})
}

// QuadStore reads committed quads for change record computation.
type QuadStore struct {
	repo repository.Repository[*quadRecord]
}

func NewQuadStore(db *bun.DB) (*QuadStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*quadRecord](db, quadHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid quad repository wiring: %w", err)
		}
	}
	return &QuadStore{repo: repo}, nil
}

func (s *QuadStore) GetQuads(ctx context.Context, subject string) ([]changelog.Quad, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: quad store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("subject", "=", subject),
		repository.OrderBy("position ASC"),
	)
	if err != nil {
		return nil, core.IOError(err, "sqlstore: read quads")
	}
	out := make([]changelog.Quad, 0, len(records))
	for _, record := range records {
		direction, err := changelog.ParseDirection(record.Direction)
		if err != nil {
			return nil, core.IOError(err, "sqlstore: decode quad")
		}
		out = append(out, changelog.Quad{
			Subject:   record.Subject,
			Predicate: record.Predicate,
			Direction: direction,
			Object:    record.Object,
			ValueType: record.ValueType,
			Language:  record.Language,
			Graph:     record.Graph,
		})
	}
	return out, nil
}
