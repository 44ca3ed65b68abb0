package core

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type memoryRelation struct {
	ref      RelationRef
	created  ChangeStamp
	modified *ChangeStamp
	deleted  bool
}

type memoryState struct {
	entities      map[uuid.UUID][]ReadEntity
	entityOrder   []uuid.UUID
	relations     map[uuid.UUID][]memoryRelation
	relationOrder []uuid.UUID
	namespaces    Namespaces
	images        map[string]NamespaceImage
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		entities:      make(map[uuid.UUID][]ReadEntity, len(s.entities)),
		entityOrder:   append([]uuid.UUID(nil), s.entityOrder...),
		relations:     make(map[uuid.UUID][]memoryRelation, len(s.relations)),
		relationOrder: append([]uuid.UUID(nil), s.relationOrder...),
		namespaces:    s.namespaces,
		images:        make(map[string]NamespaceImage, len(s.images)),
	}
	for id, revisions := range s.entities {
		out.entities[id] = append([]ReadEntity(nil), revisions...)
	}
	for id, revisions := range s.relations {
		out.relations[id] = append([]memoryRelation(nil), revisions...)
	}
	for name, image := range s.images {
		out.images[name] = image
	}
	return out
}

// MemoryStore is a transactional in-memory DataStoreFactory. Each Open gets
// an isolated snapshot; Success publishes the entities and relations the
// transaction touched and fails with a conflicting update when another
// transaction committed a newer revision of one of them first.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

func NewMemoryStore(namespaces ...Namespace) *MemoryStore {
	return &MemoryStore{state: &memoryState{
		entities:   map[uuid.UUID][]ReadEntity{},
		relations:  map[uuid.UUID][]memoryRelation{},
		namespaces: NewNamespaces(namespaces...),
		images:     map[string]NamespaceImage{},
	}}
}

func (s *MemoryStore) SetNamespaces(namespaces ...Namespace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.namespaces = NewNamespaces(namespaces...)
}

func (s *MemoryStore) SetNamespaceImage(image NamespaceImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.images[image.Namespace] = image
}

func (s *MemoryStore) Open(context.Context) (DataStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memoryTx{
		store:            s,
		state:            s.state.clone(),
		touchedEntities:  map[uuid.UUID]int{},
		touchedRelations: map[uuid.UUID]int{},
	}, nil
}

// LatestRev returns the committed latest revision of an entity, or 0.
func (s *MemoryStore) LatestRev(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	revisions := s.state.entities[id]
	return len(revisions)
}

type memoryTx struct {
	store            *MemoryStore
	state            *memoryState
	touchedEntities  map[uuid.UUID]int
	touchedRelations map[uuid.UUID]int
	done             bool
}

func (t *memoryTx) touchEntity(id uuid.UUID) {
	if _, ok := t.touchedEntities[id]; !ok {
		t.touchedEntities[id] = len(t.state.entities[id])
	}
}

func (t *memoryTx) touchRelation(id uuid.UUID) {
	if _, ok := t.touchedRelations[id]; !ok {
		t.touchedRelations[id] = len(t.state.relations[id])
	}
}

func (t *memoryTx) latest(id uuid.UUID) (ReadEntity, bool) {
	revisions := t.state.entities[id]
	if len(revisions) == 0 {
		return ReadEntity{}, false
	}
	return revisions[len(revisions)-1], true
}

func (t *memoryTx) CreateEntity(_ context.Context, collection Collection, baseCollection *Collection, in CreateEntity) error {
	if in.ID == uuid.Nil {
		return BadInputError("core: entity id is required")
	}
	if _, exists := t.state.entities[in.ID]; exists {
		return BadInputError("core: entity %s already exists", in.ID)
	}
	types := []string{collectionType(collection)}
	if baseCollection != nil && collectionType(*baseCollection) != types[0] {
		types = append(types, collectionType(*baseCollection))
	}
	created := in.Created
	t.touchEntity(in.ID)
	t.state.entities[in.ID] = []ReadEntity{{
		ID:         in.ID,
		Collection: collection.Name,
		Types:      types,
		Rev:        1,
		Created:    created,
		Modified:   &created,
		Properties: cloneProperties(in.Properties),
	}}
	t.state.entityOrder = append(t.state.entityOrder, in.ID)
	return nil
}

func (t *memoryTx) ReplaceEntity(_ context.Context, collection Collection, in UpdateEntity) (int, error) {
	current, ok := t.latest(in.ID)
	if !ok || current.Deleted || !slices.Contains(current.Types, collectionType(collection)) {
		return 0, NotFoundError("entity %s not found in %q", in.ID, collection.Name)
	}
	if current.Rev != in.Rev {
		return 0, ConflictingUpdateError(in.ID, in.Rev, current.Rev)
	}
	modified := in.Modified
	next := current
	next.Rev = current.Rev + 1
	next.Properties = cloneProperties(in.Properties)
	next.Modified = &modified
	next.PID = ""
	t.touchEntity(in.ID)
	t.state.entities[in.ID] = append(t.state.entities[in.ID], next)
	return next.Rev, nil
}

func (t *memoryTx) DeleteEntity(_ context.Context, collection Collection, id uuid.UUID, modified ChangeStamp) (int, error) {
	current, ok := t.latest(id)
	if !ok || current.Deleted || !slices.Contains(current.Types, collectionType(collection)) {
		return 0, NotFoundError("entity %s not found in %q", id, collection.Name)
	}
	next := current
	next.Rev = current.Rev + 1
	next.Deleted = true
	next.Modified = &modified
	next.PID = ""
	t.touchEntity(id)
	t.state.entities[id] = append(t.state.entities[id], next)
	return next.Rev, nil
}

func (t *memoryTx) AcceptRelation(_ context.Context, collection Collection, in CreateRelation) (uuid.UUID, error) {
	if strings.TrimSpace(in.TypeName) == "" {
		return uuid.Nil, RelationNotPossibleError("relation type is required")
	}
	for _, endpoint := range []uuid.UUID{in.SourceID, in.TargetID} {
		entity, ok := t.latest(endpoint)
		if !ok || entity.Deleted {
			return uuid.Nil, RelationNotPossibleError("relation endpoint %s does not exist", endpoint)
		}
	}
	for _, id := range t.state.relationOrder {
		revisions := t.state.relations[id]
		current := revisions[len(revisions)-1]
		if !current.deleted && current.ref.SourceID == in.SourceID && current.ref.TargetID == in.TargetID &&
			current.ref.TypeName == in.TypeName {
			return uuid.Nil, RelationNotPossibleError("relation %s %s %s already exists", in.SourceID, in.TypeName, in.TargetID)
		}
	}
	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	t.touchRelation(id)
	t.state.relations[id] = []memoryRelation{{
		ref: RelationRef{
			ID:         id,
			Rev:        1,
			TypeName:   in.TypeName,
			SourceID:   in.SourceID,
			TargetID:   in.TargetID,
			TypeID:     in.TypeID,
			Accepted:   true,
			Collection: collection.Name,
		},
		created: in.Created,
	}}
	t.state.relationOrder = append(t.state.relationOrder, id)
	return id, nil
}

func (t *memoryTx) ReplaceRelation(_ context.Context, _ Collection, in UpdateRelation) error {
	revisions := t.state.relations[in.ID]
	if len(revisions) == 0 {
		return NotFoundError("relation %s not found", in.ID)
	}
	current := revisions[len(revisions)-1]
	if current.ref.Rev != in.Rev {
		return ConflictingUpdateError(in.ID, in.Rev, current.ref.Rev)
	}
	modified := in.Modified
	next := current
	next.ref.Rev = current.ref.Rev + 1
	next.ref.Accepted = in.Accepted
	next.modified = &modified
	t.touchRelation(in.ID)
	t.state.relations[in.ID] = append(revisions, next)
	return nil
}

func (t *memoryTx) GetEntity(_ context.Context, collection Collection, id uuid.UUID, rev *int, withRelations bool) (ReadEntity, error) {
	revisions := t.state.entities[id]
	if len(revisions) == 0 {
		return ReadEntity{}, NotFoundError("entity %s not found", id)
	}
	entity := revisions[len(revisions)-1]
	if rev != nil {
		if *rev < 1 || *rev > len(revisions) {
			return ReadEntity{}, NotFoundError("entity %s has no rev %d", id, *rev)
		}
		entity = revisions[*rev-1]
	}
	if !slices.Contains(entity.Types, collectionType(collection)) {
		return ReadEntity{}, NotFoundError("entity %s not found in %q", id, collection.Name)
	}
	entity.Properties = cloneProperties(entity.Properties)
	entity.Types = append([]string(nil), entity.Types...)
	if withRelations {
		entity.Relations = t.relationsOf(id)
	}
	return entity, nil
}

func (t *memoryTx) relationsOf(id uuid.UUID) []RelationRef {
	var out []RelationRef
	for _, relationID := range t.state.relationOrder {
		revisions := t.state.relations[relationID]
		current := revisions[len(revisions)-1]
		if current.deleted || !current.ref.Accepted {
			continue
		}
		if current.ref.SourceID == id || current.ref.TargetID == id {
			out = append(out, current.ref)
		}
	}
	return out
}

func (t *memoryTx) liveEntities(collection Collection) []ReadEntity {
	typeName := collectionType(collection)
	var out []ReadEntity
	for _, id := range t.state.entityOrder {
		entity, ok := t.latest(id)
		if !ok || entity.Deleted || !slices.Contains(entity.Types, typeName) {
			continue
		}
		out = append(out, entity)
	}
	return out
}

func (t *memoryTx) GetCollection(_ context.Context, collection Collection, start int, rows int, withRelations bool) (DataStream[ReadEntity], error) {
	entities := t.liveEntities(collection)
	if start >= len(entities) {
		return NewSliceStream[ReadEntity](nil), nil
	}
	end := len(entities)
	if rows > 0 && start+rows < end {
		end = start + rows
	}
	page := append([]ReadEntity(nil), entities[start:end]...)
	if withRelations {
		for i := range page {
			page[i].Relations = t.relationsOf(page[i].ID)
		}
	}
	return NewSliceStream(page), nil
}

func (t *memoryTx) QuickSearch(_ context.Context, collection Collection, query QuickSearch, limit int) ([]QuickSearchResult, error) {
	return t.search(collection, query, limit, func(ReadEntity) bool { return true }), nil
}

func (t *memoryTx) KeywordQuickSearch(_ context.Context, collection Collection, keywordType string, query QuickSearch, limit int) ([]QuickSearchResult, error) {
	return t.search(collection, query, limit, func(entity ReadEntity) bool {
		if keywordType == "" {
			return true
		}
		property, ok := entity.Property("type")
		return ok && fmt.Sprint(property.Value) == keywordType
	}), nil
}

func (t *memoryTx) search(collection Collection, query QuickSearch, limit int, keep func(ReadEntity) bool) []QuickSearchResult {
	var out []QuickSearchResult
	for _, entity := range t.liveEntities(collection) {
		if limit > 0 && len(out) >= limit {
			break
		}
		text := DisplayText(entity.Properties)
		if !keep(entity) || !query.Matches(text) {
			continue
		}
		out = append(out, QuickSearchResult{ID: entity.ID, Rev: entity.Rev, DisplayName: text})
	}
	return out
}

func (t *memoryTx) AddPID(_ context.Context, id uuid.UUID, rev int, pid *url.URL) error {
	revisions := t.state.entities[id]
	if rev < 1 || rev > len(revisions) {
		return NotFoundError("entity %s rev %d not found", id, rev)
	}
	t.touchEntity(id)
	updated := append([]ReadEntity(nil), revisions...)
	updated[rev-1].PID = pid.String()
	t.state.entities[id] = updated
	return nil
}

func (t *memoryTx) LoadNamespaces(context.Context) (Namespaces, error) {
	return t.state.namespaces, nil
}

func (t *memoryTx) GetNamespaceImage(_ context.Context, name string) (NamespaceImage, error) {
	image, ok := t.state.images[name]
	if !ok {
		return NamespaceImage{}, NotFoundError("namespace %q has no image", name)
	}
	image.Blob = append([]byte(nil), image.Blob...)
	return image, nil
}

func (t *memoryTx) AddTypeToEntity(_ context.Context, id uuid.UUID, typeToAdd Collection) error {
	current, ok := t.latest(id)
	if !ok {
		return NotFoundError("entity %s not found", id)
	}
	typeName := collectionType(typeToAdd)
	if slices.Contains(current.Types, typeName) {
		return nil
	}
	t.touchEntity(id)
	revisions := append([]ReadEntity(nil), t.state.entities[id]...)
	last := &revisions[len(revisions)-1]
	last.Types = append(append([]string(nil), last.Types...), typeName)
	t.state.entities[id] = revisions
	return nil
}

func (t *memoryTx) MoveEdges(_ context.Context, from uuid.UUID, to uuid.UUID) (int, error) {
	if _, ok := t.latest(from); !ok {
		return 0, NotFoundError("entity %s not found", from)
	}
	if _, ok := t.latest(to); !ok {
		return 0, NotFoundError("entity %s not found", to)
	}
	moved := 0
	for _, id := range t.state.relationOrder {
		revisions := append([]memoryRelation(nil), t.state.relations[id]...)
		last := &revisions[len(revisions)-1]
		changed := false
		if last.ref.SourceID == from {
			last.ref.SourceID = to
			changed = true
		}
		if last.ref.TargetID == from {
			last.ref.TargetID = to
			changed = true
		}
		if changed {
			t.touchRelation(id)
			t.state.relations[id] = revisions
			moved++
		}
	}
	return moved, nil
}

func (t *memoryTx) Success(context.Context) error {
	if t.done {
		return ErrTransactionDone
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, base := range t.touchedEntities {
		if committed := len(s.state.entities[id]); committed != base {
			return ConflictingUpdateError(id, base, committed)
		}
	}
	for id, base := range t.touchedRelations {
		if committed := len(s.state.relations[id]); committed != base {
			return ConflictingUpdateError(id, base, committed)
		}
	}
	for id := range t.touchedEntities {
		if _, existed := s.state.entities[id]; !existed {
			s.state.entityOrder = append(s.state.entityOrder, id)
		}
		s.state.entities[id] = t.state.entities[id]
	}
	for id := range t.touchedRelations {
		if _, existed := s.state.relations[id]; !existed {
			s.state.relationOrder = append(s.state.relationOrder, id)
		}
		s.state.relations[id] = t.state.relations[id]
	}
	return nil
}

func (t *memoryTx) Rollback(context.Context) error {
	t.done = true
	return nil
}

func (t *memoryTx) Close() error {
	t.done = true
	return nil
}

// MemoryStores bundles the in-memory collaborators into a StoreProvider.
type MemoryStores struct {
	Store       *MemoryStore
	Permissions *StaticPermissionSource
	Redirects   *MemoryRedirectionService
}

func NewMemoryStores(namespaces ...Namespace) *MemoryStores {
	return &MemoryStores{
		Store:       NewMemoryStore(namespaces...),
		Permissions: NewStaticPermissionSource(),
		Redirects:   NewMemoryRedirectionService(),
	}
}

func (m *MemoryStores) DataStoreFactory() DataStoreFactory {
	return m.Store
}

func (m *MemoryStores) PermissionSource() PermissionSource {
	return m.Permissions
}

func (m *MemoryStores) RedirectionService() RedirectionService {
	return m.Redirects
}

func collectionType(collection Collection) string {
	if name := strings.TrimSpace(collection.EntityTypeName); name != "" {
		return name
	}
	return collection.Name
}

// DisplayText joins the string form of every property value.
func DisplayText(properties []Property) string {
	parts := make([]string, 0, len(properties))
	for _, property := range properties {
		if property.Value == nil {
			continue
		}
		parts = append(parts, fmt.Sprint(property.Value))
	}
	return strings.Join(parts, " ")
}
