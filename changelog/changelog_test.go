package changelog

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/goliatone/go-entitygraph/core"
)

const (
	subject    = "http://example.org/subject"
	namePred   = "http://schema.org/name"
	knowsPred  = "http://schema.org/knows"
	xsdString  = "http://www.w3.org/2001/XMLSchema#string"
	stringTag  = "xsd_string"
	nameField  = "schema_name"
	knowsField = "schema_knows"
)

func newResolver() *TypeNameStore {
	return NewTypeNameStore(DefaultPrefixes())
}

func literal(predicate string, value string) Quad {
	return Quad{Subject: subject, Predicate: predicate, Direction: DirectionOut, Object: value, ValueType: xsdString}
}

func str(value string) Value {
	return Value{Raw: value, Type: stringTag}
}

func TestDeletionChangeLog_OneDeletionPerValueInOrder(t *testing.T) {
	store := NewMemoryQuadStore(literal(namePred, "a"), literal(namePred, "b"))

	record, err := ComputeChangeRecord(context.Background(), NewDeletionChangeLog(subject), store, newResolver())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(record.Additions) != 0 || len(record.Replacements) != 0 {
		t.Fatalf("expected deletions only, got %#v", record)
	}
	want := []Change{
		{Field: nameField, OldValue: &Value{Raw: "a", Type: stringTag}},
		{Field: nameField, OldValue: &Value{Raw: "b", Type: stringTag}},
	}
	if !reflect.DeepEqual(record.Deletions, want) {
		t.Fatalf("unexpected deletions: %#v", record.Deletions)
	}
}

func TestDeletionChangeLog_NoQuadsIsEmptyRecord(t *testing.T) {
	record, err := ComputeChangeRecord(context.Background(), NewDeletionChangeLog(subject), NewMemoryQuadStore(), newResolver())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !record.IsEmpty() {
		t.Fatalf("expected empty record, got %#v", record)
	}
}

func TestDeletionChangeLog_GroupsByPredicateAndDirection(t *testing.T) {
	store := NewMemoryQuadStore(
		literal(namePred, "Ada"),
		Quad{Subject: subject, Predicate: knowsPred, Direction: DirectionIn, Object: "http://example.org/babbage"},
		literal("http://unbound.example/label", "x"),
		literal(namePred, "Augusta"),
	)

	deletions, err := NewDeletionChangeLog(subject).Deletions(context.Background(), store, newResolver())
	if err != nil {
		t.Fatalf("deletions: %v", err)
	}
	fields := make([]string, 0, len(deletions))
	for _, change := range deletions {
		fields = append(fields, change.Field)
	}
	wantFields := []string{nameField, nameField, "_inverse_" + knowsField, "http://unbound.example/label"}
	if !reflect.DeepEqual(fields, wantFields) {
		t.Fatalf("unexpected field order: %v", fields)
	}
	if deletions[1].OldValue.Raw != "Augusta" {
		t.Fatalf("expected second name value grouped with the first, got %#v", deletions[1])
	}
}

func TestDeletionChangeLog_UnboundPredicateKeepsDirectionApart(t *testing.T) {
	const knowsIRI = "http://ex.org/knows"
	store := NewMemoryQuadStore(
		Quad{Subject: subject, Predicate: knowsIRI, Direction: DirectionOut, Object: "http://ex.org/babbage"},
		Quad{Subject: subject, Predicate: knowsIRI, Direction: DirectionIn, Object: "http://ex.org/somerville"},
	)

	deletions, err := NewDeletionChangeLog(subject).Deletions(context.Background(), store, newResolver())
	if err != nil {
		t.Fatalf("deletions: %v", err)
	}
	if len(deletions) != 2 {
		t.Fatalf("expected two deletions, got %#v", deletions)
	}
	if deletions[0].Field != knowsIRI {
		t.Fatalf("expected outgoing field %q, got %q", knowsIRI, deletions[0].Field)
	}
	if deletions[1].Field != "_inverse_"+knowsIRI {
		t.Fatalf("expected incoming field %q, got %q", "_inverse_"+knowsIRI, deletions[1].Field)
	}
}

func TestDeletionChangeLog_StoreErrorIsIOError(t *testing.T) {
	failing := QuadStoreFunc(func(context.Context, string) ([]Quad, error) {
		return nil, errors.New("disk gone")
	})
	_, err := ComputeChangeRecord(context.Background(), NewDeletionChangeLog(subject), failing, newResolver())
	if !core.IsIOError(err) {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestCreateChangeLog_AdditionsSortedByField(t *testing.T) {
	log := CreateChangeLog{SubjectIRI: subject, Values: map[string][]Value{
		nameField:  {str("Ada"), str("Ada")},
		knowsField: {{Raw: "http://example.org/babbage", Type: "tim_uri"}},
	}}
	record, err := ComputeChangeRecord(context.Background(), log, NewMemoryQuadStore(), newResolver())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(record.Additions) != 2 {
		t.Fatalf("expected deduplicated additions, got %#v", record.Additions)
	}
	if record.Additions[0].Field != knowsField || record.Additions[1].Field != nameField {
		t.Fatalf("expected fields sorted, got %#v", record.Additions)
	}
	if len(record.Deletions) != 0 || len(record.Replacements) != 0 {
		t.Fatalf("expected additions only")
	}
}

func TestEditChangeLog_ClassifiesEachField(t *testing.T) {
	store := NewMemoryQuadStore(
		literal(namePred, "Ada"),
		literal(knowsPred, "Babbage"),
		literal("http://schema.org/alternateName", "Augusta"),
	)
	log := EditChangeLog{
		SubjectIRI: subject,
		Add: map[string][]Value{
			nameField:            {str("Ada Lovelace")},
			"schema_birthDate":   {str("1815-12-10")},
			"schema_description": {str("Ada")},
		},
		Delete: map[string][]Value{
			nameField:              {str("Ada")},
			knowsField:             {str("Babbage")},
			"schema_alternateName": {str("Someone else")},
		},
	}

	record, err := ComputeChangeRecord(context.Background(), log, store, newResolver())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	wantAdditions := []Change{
		{Field: "schema_birthDate", NewValue: &Value{Raw: "1815-12-10", Type: stringTag}},
		{Field: "schema_description", NewValue: &Value{Raw: "Ada", Type: stringTag}},
	}
	if !reflect.DeepEqual(record.Additions, wantAdditions) {
		t.Fatalf("unexpected additions: %#v", record.Additions)
	}
	wantDeletions := []Change{{Field: knowsField, OldValue: &Value{Raw: "Babbage", Type: stringTag}}}
	if !reflect.DeepEqual(record.Deletions, wantDeletions) {
		t.Fatalf("unexpected deletions: %#v", record.Deletions)
	}
	wantReplacements := []Change{{
		Field:    nameField,
		OldValue: &Value{Raw: "Ada", Type: stringTag},
		NewValue: &Value{Raw: "Ada Lovelace", Type: stringTag},
	}}
	if !reflect.DeepEqual(record.Replacements, wantReplacements) {
		t.Fatalf("unexpected replacements: %#v", record.Replacements)
	}
}

func TestEditChangeLog_GrowingMultiValuedFieldIsReplacement(t *testing.T) {
	store := NewMemoryQuadStore(literal(namePred, "Ada"))
	log := EditChangeLog{SubjectIRI: subject, Add: map[string][]Value{nameField: {str("Ada"), str("Augusta")}}}

	record, err := ComputeChangeRecord(context.Background(), log, store, newResolver())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(record.Additions) != 0 || len(record.Deletions) != 0 {
		t.Fatalf("expected replacement only, got %#v", record)
	}
	if len(record.Replacements) != 1 || record.Replacements[0].OldValue != nil ||
		record.Replacements[0].NewValue.Raw != "Augusta" {
		t.Fatalf("unexpected replacements: %#v", record.Replacements)
	}
}

func TestComputeChangeRecord_RequiresCollaborators(t *testing.T) {
	if _, err := ComputeChangeRecord(context.Background(), nil, NewMemoryQuadStore(), newResolver()); err == nil {
		t.Fatalf("expected nil change log to fail")
	}
	if _, err := ComputeChangeRecord(context.Background(), NewDeletionChangeLog(subject), nil, newResolver()); err == nil {
		t.Fatalf("expected nil store to fail")
	}
}
