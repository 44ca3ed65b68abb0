package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Capability string

const (
	CapabilityRead  Capability = "READ"
	CapabilityWrite Capability = "WRITE"
	CapabilityAdmin Capability = "ADMIN"
)

// KeywordAbstractType marks collections that are searched through the
// keyword index instead of the general quick search.
const KeywordAbstractType = "keyword"

type User struct {
	ID          string
	DisplayName string
}

// ChangeStamp records who changed something and when. Timestamp holds epoch
// milliseconds.
type ChangeStamp struct {
	UserID    string
	VREID     string
	Timestamp int64
}

func (c ChangeStamp) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

func (c ChangeStamp) IsZero() bool {
	return strings.TrimSpace(c.UserID) == "" && c.Timestamp == 0
}

type Collection struct {
	Name           string
	EntityTypeName string
	AbstractType   string
	NamespaceName  string
	Unknown        bool
	Relation       bool
}

func (c Collection) IsKeywordCollection() bool {
	return strings.EqualFold(strings.TrimSpace(c.AbstractType), KeywordAbstractType)
}

type Namespace struct {
	Name        string
	Label       string
	ImageType   string
	Collections map[string]Collection
}

func (n Namespace) CollectionNames() []string {
	names := make([]string, 0, len(n.Collections))
	for name := range n.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type NamespaceImage struct {
	Namespace string
	MediaType string
	Blob      []byte
}

// Namespaces is an immutable registry of namespaces and the collections they
// own. Collection names are unique across namespaces.
type Namespaces struct {
	byName       map[string]Namespace
	byCollection map[string]Collection
}

func NewNamespaces(namespaces ...Namespace) Namespaces {
	out := Namespaces{
		byName:       make(map[string]Namespace, len(namespaces)),
		byCollection: map[string]Collection{},
	}
	for _, namespace := range namespaces {
		name := strings.TrimSpace(namespace.Name)
		if name == "" {
			continue
		}
		copied := Namespace{
			Name:        name,
			Label:       namespace.Label,
			ImageType:   namespace.ImageType,
			Collections: make(map[string]Collection, len(namespace.Collections)),
		}
		for key, collection := range namespace.Collections {
			if strings.TrimSpace(collection.Name) == "" {
				collection.Name = key
			}
			collection.NamespaceName = name
			copied.Collections[collection.Name] = collection
			out.byCollection[collection.Name] = collection
		}
		out.byName[name] = copied
	}
	return out
}

func (n Namespaces) Namespace(name string) (Namespace, bool) {
	namespace, ok := n.byName[strings.TrimSpace(name)]
	return namespace, ok
}

func (n Namespaces) Collection(name string) (Collection, bool) {
	collection, ok := n.byCollection[strings.TrimSpace(name)]
	return collection, ok
}

func (n Namespaces) Names() []string {
	names := make([]string, 0, len(n.byName))
	for name := range n.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (n Namespaces) Len() int {
	return len(n.byName)
}

type Property struct {
	Name  string
	Type  string
	Value any
}

type CreateEntity struct {
	ID         uuid.UUID
	Properties []Property
	Created    ChangeStamp
}

type UpdateEntity struct {
	ID         uuid.UUID
	Rev        int
	Properties []Property
	Modified   ChangeStamp
}

type CreateRelation struct {
	ID       uuid.UUID
	SourceID uuid.UUID
	TargetID uuid.UUID
	TypeID   uuid.UUID
	TypeName string
	Created  ChangeStamp
}

type UpdateRelation struct {
	ID       uuid.UUID
	Rev      int
	Accepted bool
	Modified ChangeStamp
}

type RelationRef struct {
	ID         uuid.UUID
	Rev        int
	TypeName   string
	SourceID   uuid.UUID
	TargetID   uuid.UUID
	TypeID     uuid.UUID
	Accepted   bool
	Extra      map[string]any
	Collection string
}

type ReadEntity struct {
	ID         uuid.UUID
	Collection string
	Types      []string
	Rev        int
	Created    ChangeStamp
	Modified   *ChangeStamp
	Deleted    bool
	PID        string
	Properties []Property
	Relations  []RelationRef
	Extra      map[string]any
}

func (e ReadEntity) Property(name string) (Property, bool) {
	for _, property := range e.Properties {
		if property.Name == name {
			return property, true
		}
	}
	return Property{}, false
}

// EntityLookup identifies one revision of an entity inside a collection.
type EntityLookup struct {
	Collection string
	TimID      uuid.UUID
	Rev        int
}

func (l EntityLookup) String() string {
	return fmt.Sprintf("%s/%s?rev=%d", l.Collection, l.TimID, l.Rev)
}

func (l EntityLookup) Validate() error {
	if strings.TrimSpace(l.Collection) == "" {
		return fmt.Errorf("core: lookup collection is required")
	}
	if l.TimID == uuid.Nil {
		return fmt.Errorf("core: lookup id is required")
	}
	if l.Rev <= 0 {
		return fmt.Errorf("core: lookup rev must be positive")
	}
	return nil
}

// QuickSearch splits a query into whole-word matches and a trailing prefix
// match, the way an autocomplete box is typed.
type QuickSearch struct {
	FullMatches  []string
	PartialMatch string
}

func ParseQuickSearch(query string) QuickSearch {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return QuickSearch{}
	}
	return QuickSearch{
		FullMatches:  append([]string(nil), words[:len(words)-1]...),
		PartialMatch: words[len(words)-1],
	}
}

func (q QuickSearch) IsEmpty() bool {
	return len(q.FullMatches) == 0 && strings.TrimSpace(q.PartialMatch) == ""
}

// Matches reports whether text contains every full match as a word and a word
// starting with the partial match.
func (q QuickSearch) Matches(text string) bool {
	if q.IsEmpty() {
		return true
	}
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	for _, full := range q.FullMatches {
		if _, ok := set[full]; !ok {
			return false
		}
	}
	if q.PartialMatch == "" {
		return true
	}
	for _, word := range words {
		if strings.HasPrefix(word, q.PartialMatch) {
			return true
		}
	}
	return false
}

func (q QuickSearch) String() string {
	parts := append([]string(nil), q.FullMatches...)
	if q.PartialMatch != "" {
		parts = append(parts, q.PartialMatch+"*")
	}
	return strings.Join(parts, " ")
}

type QuickSearchResult struct {
	ID          uuid.UUID
	Rev         int
	DisplayName string
}
