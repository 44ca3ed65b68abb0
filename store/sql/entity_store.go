package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/goliatone/go-entitygraph/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// NamespaceLoader supplies namespace metadata to entity transactions.
type NamespaceLoader interface {
	LoadNamespaces(ctx context.Context) (core.Namespaces, error)
	GetNamespaceImage(ctx context.Context, name string) (core.NamespaceImage, error)
}

// EntityStore opens one bun transaction per unit of work.
type EntityStore struct {
	db         *bun.DB
	entities   repository.Repository[*entityRevisionRecord]
	relations  repository.Repository[*relationRevisionRecord]
	namespaces NamespaceLoader
	projector  *QuadProjector
}

func NewEntityStore(db *bun.DB, namespaces NamespaceLoader, projector *QuadProjector) (*EntityStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if namespaces == nil {
		return nil, fmt.Errorf("sqlstore: namespace loader is required")
	}
	entities := repository.NewRepository[*entityRevisionRecord](db, entityRevisionHandlers())
	if validator, ok := entities.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid entity repository wiring: %w", err)
		}
	}
	relations := repository.NewRepository[*relationRevisionRecord](db, relationRevisionHandlers())
	if validator, ok := relations.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid relation repository wiring: %w", err)
		}
	}
	if projector == nil {
		projector = DefaultQuadProjector()
	}
	return &EntityStore{
		db:         db,
		entities:   entities,
		relations:  relations,
		namespaces: namespaces,
		projector:  projector,
	}, nil
}

func (s *EntityStore) Open(ctx context.Context) (core.DataStore, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: entity store is not configured")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.IOError(err, "sqlstore: begin transaction")
	}
	return &entityTx{store: s, tx: tx}, nil
}

type entityTx struct {
	store *EntityStore
	tx    bun.Tx

	mu   sync.Mutex
	done bool
}

func (t *entityTx) latestEntity(ctx context.Context, id uuid.UUID) (*entityRevisionRecord, error) {
	record := new(entityRevisionRecord)
	err := t.tx.NewSelect().
		Model(record).
		Where("?TableAlias.entity_id = ?", id.String()).
		Where("?TableAlias.is_latest = ?", true).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.IOError(err, "sqlstore: read entity")
	}
	return record, nil
}

func (t *entityTx) CreateEntity(ctx context.Context, collection core.Collection, baseCollection *core.Collection, in core.CreateEntity) error {
	if in.ID == uuid.Nil {
		return core.BadInputError("sqlstore: entity id is required")
	}
	existing, err := t.latestEntity(ctx, in.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return core.BadInputError("sqlstore: entity %s already exists", in.ID)
	}
	types := []string{entityType(collection)}
	if baseCollection != nil && entityType(*baseCollection) != types[0] {
		types = append(types, entityType(*baseCollection))
	}
	record := newEntityRevisionRecord(in.ID, 1, collection, types, in.Properties, in.Created, in.Created)
	if _, err := t.store.entities.CreateTx(ctx, t.tx, record); err != nil {
		return writeError(err, in.ID, 0, 1)
	}
	return t.store.projector.projectEntity(ctx, t.tx, in.ID, types, in.Properties)
}

func (t *entityTx) ReplaceEntity(ctx context.Context, collection core.Collection, in core.UpdateEntity) (int, error) {
	current, err := t.latestEntity(ctx, in.ID)
	if err != nil {
		return 0, err
	}
	if current == nil || current.Deleted || !slices.Contains(current.Types, entityType(collection)) {
		return 0, core.NotFoundError("entity %s not found in %q", in.ID, collection.Name)
	}
	if current.Rev != in.Rev {
		return 0, core.ConflictingUpdateError(in.ID, in.Rev, current.Rev)
	}
	if err := t.retire(ctx, in.ID, current.Rev); err != nil {
		return 0, err
	}
	created := core.ChangeStamp{UserID: current.CreatedBy, Timestamp: current.CreatedAtMS}
	next := newEntityRevisionRecord(in.ID, current.Rev+1, collection, current.Types, in.Properties, created, in.Modified)
	next.Collection = current.Collection
	if _, err := t.store.entities.CreateTx(ctx, t.tx, next); err != nil {
		return 0, writeError(err, in.ID, in.Rev, next.Rev)
	}
	if err := t.store.projector.projectEntity(ctx, t.tx, in.ID, current.Types, in.Properties); err != nil {
		return 0, err
	}
	return next.Rev, nil
}

func (t *entityTx) DeleteEntity(ctx context.Context, collection core.Collection, id uuid.UUID, modified core.ChangeStamp) (int, error) {
	current, err := t.latestEntity(ctx, id)
	if err != nil {
		return 0, err
	}
	if current == nil || current.Deleted || !slices.Contains(current.Types, entityType(collection)) {
		return 0, core.NotFoundError("entity %s not found in %q", id, collection.Name)
	}
	if err := t.retire(ctx, id, current.Rev); err != nil {
		return 0, err
	}
	created := core.ChangeStamp{UserID: current.CreatedBy, Timestamp: current.CreatedAtMS}
	tombstone := newEntityRevisionRecord(id, current.Rev+1, collection, current.Types, fromPropertyValues(current.Properties), created, modified)
	tombstone.Collection = current.Collection
	tombstone.Deleted = true
	if _, err := t.store.entities.CreateTx(ctx, t.tx, tombstone); err != nil {
		return 0, writeError(err, id, current.Rev, tombstone.Rev)
	}
	if err := t.store.projector.removeSubject(ctx, t.tx, id); err != nil {
		return 0, err
	}
	return tombstone.Rev, nil
}

// retire clears the latest flag of rev. Zero affected rows means another
// transaction wrote a newer revision first.
func (t *entityTx) retire(ctx context.Context, id uuid.UUID, rev int) error {
	result, err := t.tx.NewUpdate().
		Model((*entityRevisionRecord)(nil)).
		Set("is_latest = ?", false).
		Where("entity_id = ?", id.String()).
		Where("rev = ?", rev).
		Where("is_latest = ?", true).
		Exec(ctx)
	if err != nil {
		return writeError(err, id, rev, rev+1)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return core.ConflictingUpdateError(id, rev, rev+1)
	}
	return nil
}

func (t *entityTx) AcceptRelation(ctx context.Context, collection core.Collection, in core.CreateRelation) (uuid.UUID, error) {
	if strings.TrimSpace(in.TypeName) == "" {
		return uuid.Nil, core.RelationNotPossibleError("relation type is required")
	}
	for _, endpoint := range []uuid.UUID{in.SourceID, in.TargetID} {
		entity, err := t.latestEntity(ctx, endpoint)
		if err != nil {
			return uuid.Nil, err
		}
		if entity == nil || entity.Deleted {
			return uuid.Nil, core.RelationNotPossibleError("relation endpoint %s does not exist", endpoint)
		}
	}
	duplicates, err := t.tx.NewSelect().
		Model((*relationRevisionRecord)(nil)).
		Where("?TableAlias.source_id = ?", in.SourceID.String()).
		Where("?TableAlias.target_id = ?", in.TargetID.String()).
		Where("?TableAlias.type_name = ?", in.TypeName).
		Where("?TableAlias.is_latest = ?", true).
		Where("?TableAlias.deleted = ?", false).
		Count(ctx)
	if err != nil {
		return uuid.Nil, core.IOError(err, "sqlstore: check duplicate relation")
	}
	if duplicates > 0 {
		return uuid.Nil, core.RelationNotPossibleError("relation %s %s %s already exists", in.SourceID, in.TypeName, in.TargetID)
	}

	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	record := &relationRevisionRecord{
		ID:          uuid.NewString(),
		RelationID:  id.String(),
		Rev:         1,
		Collection:  collection.Name,
		TypeName:    in.TypeName,
		TypeID:      in.TypeID.String(),
		SourceID:    in.SourceID.String(),
		TargetID:    in.TargetID.String(),
		Accepted:    true,
		CreatedBy:   in.Created.UserID,
		CreatedAtMS: in.Created.Timestamp,
		ModifiedBy:  in.Created.UserID,
		ModifiedMS:  in.Created.Timestamp,
		IsLatest:    true,
	}
	if _, err := t.store.relations.CreateTx(ctx, t.tx, record); err != nil {
		return uuid.Nil, writeError(err, id, 0, 1)
	}
	if err := t.store.projector.projectRelation(ctx, t.tx, record.toRef(), true); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (t *entityTx) latestRelation(ctx context.Context, id uuid.UUID) (*relationRevisionRecord, error) {
	record := new(relationRevisionRecord)
	err := t.tx.NewSelect().
		Model(record).
		Where("?TableAlias.relation_id = ?", id.String()).
		Where("?TableAlias.is_latest = ?", true).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.IOError(err, "sqlstore: read relation")
	}
	return record, nil
}

func (t *entityTx) ReplaceRelation(ctx context.Context, _ core.Collection, in core.UpdateRelation) error {
	current, err := t.latestRelation(ctx, in.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return core.NotFoundError("relation %s not found", in.ID)
	}
	if current.Rev != in.Rev {
		return core.ConflictingUpdateError(in.ID, in.Rev, current.Rev)
	}
	result, err := t.tx.NewUpdate().
		Model((*relationRevisionRecord)(nil)).
		Set("is_latest = ?", false).
		Where("relation_id = ?", in.ID.String()).
		Where("rev = ?", current.Rev).
		Where("is_latest = ?", true).
		Exec(ctx)
	if err != nil {
		return writeError(err, in.ID, in.Rev, in.Rev+1)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return core.ConflictingUpdateError(in.ID, in.Rev, in.Rev+1)
	}
	next := *current
	next.ID = uuid.NewString()
	next.Rev = current.Rev + 1
	next.Accepted = in.Accepted
	next.ModifiedBy = in.Modified.UserID
	next.ModifiedMS = in.Modified.Timestamp
	next.IsLatest = true
	next.RecordedAt = current.RecordedAt
	if _, err := t.store.relations.CreateTx(ctx, t.tx, &next); err != nil {
		return writeError(err, in.ID, in.Rev, next.Rev)
	}
	return t.store.projector.projectRelation(ctx, t.tx, next.toRef(), next.Accepted && !next.Deleted)
}

func (t *entityTx) GetEntity(ctx context.Context, collection core.Collection, id uuid.UUID, rev *int, withRelations bool) (core.ReadEntity, error) {
	record := new(entityRevisionRecord)
	query := t.tx.NewSelect().
		Model(record).
		Where("?TableAlias.entity_id = ?", id.String())
	if rev != nil {
		query = query.Where("?TableAlias.rev = ?", *rev)
	} else {
		query = query.Where("?TableAlias.is_latest = ?", true)
	}
	err := query.Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		if rev != nil {
			return core.ReadEntity{}, core.NotFoundError("entity %s has no rev %d", id, *rev)
		}
		return core.ReadEntity{}, core.NotFoundError("entity %s not found", id)
	}
	if err != nil {
		return core.ReadEntity{}, core.IOError(err, "sqlstore: read entity")
	}
	if !slices.Contains(record.Types, entityType(collection)) {
		return core.ReadEntity{}, core.NotFoundError("entity %s not found in %q", id, collection.Name)
	}
	entity := record.toDomain()
	if withRelations {
		relations, err := t.relationsOf(ctx, id)
		if err != nil {
			return core.ReadEntity{}, err
		}
		entity.Relations = relations
	}
	return entity, nil
}

func (t *entityTx) relationsOf(ctx context.Context, id uuid.UUID) ([]core.RelationRef, error) {
	var records []relationRevisionRecord
	err := t.tx.NewSelect().
		Model(&records).
		Where("(?TableAlias.source_id = ? OR ?TableAlias.target_id = ?)", id.String(), id.String()).
		Where("?TableAlias.is_latest = ?", true).
		Where("?TableAlias.deleted = ?", false).
		Where("?TableAlias.accepted = ?", true).
		OrderExpr("?TableAlias.created_at_ms ASC, ?TableAlias.relation_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, core.IOError(err, "sqlstore: read relations")
	}
	out := make([]core.RelationRef, 0, len(records))
	for i := range records {
		out = append(out, records[i].toRef())
	}
	return out, nil
}

func (t *entityTx) liveEntities(collection core.Collection) *bun.SelectQuery {
	return t.tx.NewSelect().
		Model((*entityRevisionRecord)(nil)).
		Where("?TableAlias.is_latest = ?", true).
		Where("?TableAlias.deleted = ?", false).
		Where("CAST(?TableAlias.types AS TEXT) LIKE ? ESCAPE '\\'", "%"+escapeLike(fmt.Sprintf("%q", entityType(collection)))+"%").
		OrderExpr("?TableAlias.created_at_ms ASC, ?TableAlias.entity_id ASC")
}

func (t *entityTx) GetCollection(ctx context.Context, collection core.Collection, start int, rows int, withRelations bool) (core.DataStream[core.ReadEntity], error) {
	var records []entityRevisionRecord
	query := t.liveEntities(collection).Offset(start)
	if rows > 0 {
		query = query.Limit(rows)
	}
	if err := query.Scan(ctx, &records); err != nil {
		return nil, core.IOError(err, "sqlstore: read collection")
	}
	page := make([]core.ReadEntity, 0, len(records))
	for i := range records {
		entity := records[i].toDomain()
		if withRelations {
			relations, err := t.relationsOf(ctx, entity.ID)
			if err != nil {
				return nil, err
			}
			entity.Relations = relations
		}
		page = append(page, entity)
	}
	return core.NewSliceStream(page), nil
}

func (t *entityTx) QuickSearch(ctx context.Context, collection core.Collection, query core.QuickSearch, limit int) ([]core.QuickSearchResult, error) {
	return t.search(ctx, t.liveEntities(collection), query, limit)
}

func (t *entityTx) KeywordQuickSearch(ctx context.Context, collection core.Collection, keywordType string, query core.QuickSearch, limit int) ([]core.QuickSearchResult, error) {
	selectQuery := t.liveEntities(collection)
	if keywordType != "" {
		selectQuery = selectQuery.Where("?TableAlias.keyword_type = ?", keywordType)
	}
	return t.search(ctx, selectQuery, query, limit)
}

// search narrows candidates with LIKE and applies the exact word rules in Go.
func (t *entityTx) search(ctx context.Context, selectQuery *bun.SelectQuery, query core.QuickSearch, limit int) ([]core.QuickSearchResult, error) {
	for _, word := range append(append([]string(nil), query.FullMatches...), query.PartialMatch) {
		if word == "" {
			continue
		}
		selectQuery = selectQuery.Where("?TableAlias.search_text LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(word))+"%")
	}
	var records []entityRevisionRecord
	if err := selectQuery.Scan(ctx, &records); err != nil {
		return nil, core.IOError(err, "sqlstore: quick search")
	}
	var out []core.QuickSearchResult
	for i := range records {
		if limit > 0 && len(out) >= limit {
			break
		}
		text := core.DisplayText(fromPropertyValues(records[i].Properties))
		if !query.Matches(text) {
			continue
		}
		out = append(out, core.QuickSearchResult{ID: parseUUID(records[i].EntityID), Rev: records[i].Rev, DisplayName: text})
	}
	return out, nil
}

func (t *entityTx) AddPID(ctx context.Context, id uuid.UUID, rev int, pid *url.URL) error {
	if pid == nil {
		return core.BadInputError("sqlstore: pid is required")
	}
	result, err := t.tx.NewUpdate().
		Model((*entityRevisionRecord)(nil)).
		Set("pid = ?", pid.String()).
		Where("entity_id = ?", id.String()).
		Where("rev = ?", rev).
		Exec(ctx)
	if err != nil {
		return core.IOError(err, "sqlstore: add pid")
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return core.NotFoundError("entity %s rev %d not found", id, rev)
	}
	return nil
}

func (t *entityTx) LoadNamespaces(ctx context.Context) (core.Namespaces, error) {
	return t.store.namespaces.LoadNamespaces(ctx)
}

func (t *entityTx) GetNamespaceImage(ctx context.Context, name string) (core.NamespaceImage, error) {
	return t.store.namespaces.GetNamespaceImage(ctx, name)
}

func (t *entityTx) AddTypeToEntity(ctx context.Context, id uuid.UUID, typeToAdd core.Collection) error {
	current, err := t.latestEntity(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return core.NotFoundError("entity %s not found", id)
	}
	typeName := entityType(typeToAdd)
	if slices.Contains(current.Types, typeName) {
		return nil
	}
	current.Types = append(current.Types, typeName)
	if _, err := t.tx.NewUpdate().Model(current).Column("types").WherePK().Exec(ctx); err != nil {
		return core.IOError(err, "sqlstore: add type")
	}
	return t.store.projector.addType(ctx, t.tx, id, typeName)
}

func (t *entityTx) MoveEdges(ctx context.Context, from uuid.UUID, to uuid.UUID) (int, error) {
	for _, id := range []uuid.UUID{from, to} {
		entity, err := t.latestEntity(ctx, id)
		if err != nil {
			return 0, err
		}
		if entity == nil {
			return 0, core.NotFoundError("entity %s not found", id)
		}
	}
	var records []relationRevisionRecord
	err := t.tx.NewSelect().
		Model(&records).
		Where("(?TableAlias.source_id = ? OR ?TableAlias.target_id = ?)", from.String(), from.String()).
		Where("?TableAlias.is_latest = ?", true).
		OrderExpr("?TableAlias.created_at_ms ASC, ?TableAlias.relation_id ASC").
		Scan(ctx)
	if err != nil {
		return 0, core.IOError(err, "sqlstore: read edges")
	}
	for i := range records {
		record := &records[i]
		live := record.Accepted && !record.Deleted
		if err := t.store.projector.projectRelation(ctx, t.tx, record.toRef(), false); err != nil {
			return 0, err
		}
		if record.SourceID == from.String() {
			record.SourceID = to.String()
		}
		if record.TargetID == from.String() {
			record.TargetID = to.String()
		}
		if _, err := t.tx.NewUpdate().Model(record).Column("source_id", "target_id").WherePK().Exec(ctx); err != nil {
			return 0, core.IOError(err, "sqlstore: move edge")
		}
		if err := t.store.projector.projectRelation(ctx, t.tx, record.toRef(), live); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func (t *entityTx) finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *entityTx) Success(context.Context) error {
	if !t.finish() {
		return core.ErrTransactionDone
	}
	if err := t.tx.Commit(); err != nil {
		return commitError(err)
	}
	return nil
}

func (t *entityTx) Rollback(context.Context) error {
	if !t.finish() {
		return nil
	}
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return core.IOError(err, "sqlstore: rollback")
	}
	return nil
}

func (t *entityTx) Close() error {
	return t.Rollback(context.Background())
}

func entityType(collection core.Collection) string {
	if name := strings.TrimSpace(collection.EntityTypeName); name != "" {
		return name
	}
	return collection.Name
}

// escapeLike quotes LIKE wildcards so value matches literally under ESCAPE '\'.
func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
