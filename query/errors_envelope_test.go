package query

import (
	"context"
	"testing"

	"github.com/goliatone/go-entitygraph/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestGetEntityMessage_ValidateReturnsRichError(t *testing.T) {
	err := (GetEntityMessage{}).Validate()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation || rich.TextCode != core.ErrorBadInput {
		t.Fatalf("unexpected envelope %q %q", rich.Category, rich.TextCode)
	}
}

func TestQuickSearchQuery_NilReaderReturnsRichError(t *testing.T) {
	var q *QuickSearchQuery
	_, err := q.Query(context.Background(), QuickSearchMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
