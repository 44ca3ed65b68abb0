package changelog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-entitygraph/core"
)

// Value is a stored literal or IRI with its caller-visible type tag.
type Value struct {
	Raw  string `json:"value"`
	Type string `json:"type"`
}

func (v Value) String() string {
	return fmt.Sprintf("%q^^%s", v.Raw, v.Type)
}

// Change is one field level entry of a ChangeRecord. Additions carry only
// NewValue, deletions only OldValue, replacements usually both.
type Change struct {
	Field    string `json:"field"`
	OldValue *Value `json:"oldValue,omitempty"`
	NewValue *Value `json:"newValue,omitempty"`
}

type ChangeRecord struct {
	Additions    []Change `json:"additions"`
	Deletions    []Change `json:"deletions"`
	Replacements []Change `json:"replacements"`
}

func (r ChangeRecord) IsEmpty() bool {
	return len(r.Additions) == 0 && len(r.Deletions) == 0 && len(r.Replacements) == 0
}

// ChangeLog describes one mutation of a subject. Each method reads the
// current quads through store and names them through resolver.
type ChangeLog interface {
	Subject() string
	Additions(ctx context.Context, store QuadStore, resolver FieldResolver) ([]Change, error)
	Deletions(ctx context.Context, store QuadStore, resolver FieldResolver) ([]Change, error)
	Replacements(ctx context.Context, store QuadStore, resolver FieldResolver) ([]Change, error)
}

func ComputeChangeRecord(ctx context.Context, log ChangeLog, store QuadStore, resolver FieldResolver) (ChangeRecord, error) {
	if log == nil {
		return ChangeRecord{}, core.BadInputError("changelog: change log is required")
	}
	if store == nil || resolver == nil {
		return ChangeRecord{}, core.BadInputError("changelog: quad store and field resolver are required")
	}
	var (
		record ChangeRecord
		err    error
	)
	if record.Additions, err = log.Additions(ctx, store, resolver); err != nil {
		return ChangeRecord{}, err
	}
	if record.Deletions, err = log.Deletions(ctx, store, resolver); err != nil {
		return ChangeRecord{}, err
	}
	if record.Replacements, err = log.Replacements(ctx, store, resolver); err != nil {
		return ChangeRecord{}, err
	}
	return record, nil
}

type fieldValues struct {
	order  []string
	values map[string][]Value
}

// readFields groups the subject's quads by predicate and direction in
// first-seen order. Predicates the resolver cannot name keep their IRI, with
// the inverse marker on incoming quads.
func readFields(ctx context.Context, subject string, store QuadStore, resolver FieldResolver) (fieldValues, error) {
	quads, err := store.GetQuads(ctx, subject)
	if err != nil {
		return fieldValues{}, core.IOError(err, fmt.Sprintf("changelog: reading quads of %s", subject))
	}
	out := fieldValues{values: map[string][]Value{}}
	for _, quad := range quads {
		direction := quad.Direction
		if direction == "" {
			direction = DirectionOut
		}
		field, ok := resolver.FieldForPredicate(quad.Predicate, direction)
		if !ok {
			field = quad.Predicate
			if direction == DirectionIn {
				field = inversePrefix + field
			}
		}
		if _, seen := out.values[field]; !seen {
			out.order = append(out.order, field)
		}
		out.values[field] = append(out.values[field], Value{Raw: quad.Object, Type: resolver.TypeTag(quad.ValueType)})
	}
	return out, nil
}

// DeletionChangeLog removes a subject entirely: every stored value becomes
// a deletion, one entry per value.
type DeletionChangeLog struct {
	SubjectIRI string
}

func NewDeletionChangeLog(subject string) DeletionChangeLog {
	return DeletionChangeLog{SubjectIRI: subject}
}

func (l DeletionChangeLog) Subject() string { return l.SubjectIRI }

func (DeletionChangeLog) Additions(context.Context, QuadStore, FieldResolver) ([]Change, error) {
	return nil, nil
}

func (l DeletionChangeLog) Deletions(ctx context.Context, store QuadStore, resolver FieldResolver) ([]Change, error) {
	current, err := readFields(ctx, l.SubjectIRI, store, resolver)
	if err != nil {
		return nil, err
	}
	var out []Change
	for _, field := range current.order {
		for _, value := range current.values[field] {
			out = append(out, deletion(field, value))
		}
	}
	return out, nil
}

func (DeletionChangeLog) Replacements(context.Context, QuadStore, FieldResolver) ([]Change, error) {
	return nil, nil
}

// CreateChangeLog describes a new subject. Values maps field names to the
// values the subject starts with.
type CreateChangeLog struct {
	SubjectIRI string
	Values     map[string][]Value
}

func (l CreateChangeLog) Subject() string { return l.SubjectIRI }

func (l CreateChangeLog) Additions(context.Context, QuadStore, FieldResolver) ([]Change, error) {
	var out []Change
	for _, field := range sortedFields(l.Values) {
		for _, value := range dedupe(l.Values[field]) {
			out = append(out, addition(field, value))
		}
	}
	return out, nil
}

func (CreateChangeLog) Deletions(context.Context, QuadStore, FieldResolver) ([]Change, error) {
	return nil, nil
}

func (CreateChangeLog) Replacements(context.Context, QuadStore, FieldResolver) ([]Change, error) {
	return nil, nil
}

// EditChangeLog applies per field deletions and then additions to the values
// currently stored. A field that ends up empty is a deletion, a field that
// starts empty is an addition and any other changed field is a replacement.
type EditChangeLog struct {
	SubjectIRI string
	Add        map[string][]Value
	Delete     map[string][]Value
}

func (l EditChangeLog) Subject() string { return l.SubjectIRI }

func (l EditChangeLog) Additions(ctx context.Context, store QuadStore, resolver FieldResolver) ([]Change, error) {
	return l.collect(ctx, store, resolver, func(field string, old, next []Value) []Change {
		if len(old) > 0 {
			return nil
		}
		out := make([]Change, 0, len(next))
		for _, value := range next {
			out = append(out, addition(field, value))
		}
		return out
	})
}

func (l EditChangeLog) Deletions(ctx context.Context, store QuadStore, resolver FieldResolver) ([]Change, error) {
	return l.collect(ctx, store, resolver, func(field string, old, next []Value) []Change {
		if len(next) > 0 {
			return nil
		}
		out := make([]Change, 0, len(old))
		for _, value := range old {
			out = append(out, deletion(field, value))
		}
		return out
	})
}

func (l EditChangeLog) Replacements(ctx context.Context, store QuadStore, resolver FieldResolver) ([]Change, error) {
	return l.collect(ctx, store, resolver, func(field string, old, next []Value) []Change {
		if len(old) == 0 || len(next) == 0 {
			return nil
		}
		removed := subtract(old, next)
		added := subtract(next, old)
		size := max(len(removed), len(added))
		out := make([]Change, 0, size)
		for i := 0; i < size; i++ {
			change := Change{Field: field}
			if i < len(removed) {
				change.OldValue = valuePtr(removed[i])
			}
			if i < len(added) {
				change.NewValue = valuePtr(added[i])
			}
			out = append(out, change)
		}
		return out
	})
}

func (l EditChangeLog) collect(
	ctx context.Context,
	store QuadStore,
	resolver FieldResolver,
	emit func(field string, old []Value, next []Value) []Change,
) ([]Change, error) {
	current, err := readFields(ctx, l.SubjectIRI, store, resolver)
	if err != nil {
		return nil, err
	}
	touched := map[string][]Value{}
	for field := range l.Add {
		touched[field] = nil
	}
	for field := range l.Delete {
		touched[field] = nil
	}
	var out []Change
	for _, field := range sortedFields(touched) {
		old := current.values[field]
		next := append(subtract(old, l.Delete[field]), subtract(dedupe(l.Add[field]), old)...)
		if sameSet(old, next) {
			continue
		}
		out = append(out, emit(field, old, next)...)
	}
	return out, nil
}

func addition(field string, value Value) Change {
	return Change{Field: field, NewValue: valuePtr(value)}
}

func deletion(field string, value Value) Change {
	return Change{Field: field, OldValue: valuePtr(value)}
}

func valuePtr(value Value) *Value {
	return &value
}

func sortedFields(values map[string][]Value) []string {
	fields := make([]string, 0, len(values))
	for field := range values {
		if strings.TrimSpace(field) == "" {
			continue
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func dedupe(values []Value) []Value {
	seen := make(map[Value]struct{}, len(values))
	out := make([]Value, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

// subtract keeps the values of from that are not in remove, in order.
func subtract(from []Value, remove []Value) []Value {
	drop := make(map[Value]struct{}, len(remove))
	for _, value := range remove {
		drop[value] = struct{}{}
	}
	out := make([]Value, 0, len(from))
	for _, value := range from {
		if _, ok := drop[value]; ok {
			continue
		}
		out = append(out, value)
	}
	return out
}

func sameSet(a []Value, b []Value) bool {
	return len(subtract(a, b)) == 0 && len(subtract(b, a)) == 0
}
