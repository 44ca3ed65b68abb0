package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput            = "ENTITYGRAPH_BAD_INPUT"
	ErrorPermissionDenied    = "ENTITYGRAPH_PERMISSION_DENIED"
	ErrorNotFound            = "ENTITYGRAPH_NOT_FOUND"
	ErrorConflictingUpdate   = "ENTITYGRAPH_CONFLICTING_UPDATE"
	ErrorRelationNotPossible = "ENTITYGRAPH_RELATION_NOT_POSSIBLE"
	ErrorInvalidCollection   = "ENTITYGRAPH_INVALID_COLLECTION"
	ErrorIO                  = "ENTITYGRAPH_IO"
	ErrorSideEffectFailed    = "ENTITYGRAPH_SIDE_EFFECT_FAILED"
	ErrorTransactionDone     = "ENTITYGRAPH_TRANSACTION_DONE"
	ErrorInternal            = "ENTITYGRAPH_INTERNAL_ERROR"
)

var ErrTransactionDone = errors.New("core: transaction already completed")

func PermissionDeniedError(user User, namespace string, required Capability) *goerrors.Error {
	return newEntityGraphError(
		fmt.Sprintf("user %q lacks %s on namespace %q", user.ID, required, namespace),
		goerrors.CategoryAuthz,
		ErrorPermissionDenied,
	).WithMetadata(map[string]any{"user_id": user.ID, "namespace": namespace, "capability": string(required)})
}

func NotFoundError(format string, args ...any) *goerrors.Error {
	return newEntityGraphError(fmt.Sprintf(format, args...), goerrors.CategoryNotFound, ErrorNotFound)
}

// ConflictingUpdateError reports a base revision that is no longer the
// latest one.
func ConflictingUpdateError(id fmt.Stringer, expected int, actual int) *goerrors.Error {
	return newEntityGraphError(
		fmt.Sprintf("entity %s was updated concurrently: base rev %d, latest rev %d", id, expected, actual),
		goerrors.CategoryConflict,
		ErrorConflictingUpdate,
	).WithMetadata(map[string]any{"expected_rev": expected, "actual_rev": actual})
}

func RelationNotPossibleError(format string, args ...any) *goerrors.Error {
	return newEntityGraphError(fmt.Sprintf(format, args...), goerrors.CategoryBadInput, ErrorRelationNotPossible)
}

func InvalidCollectionError(name string) *goerrors.Error {
	return newEntityGraphError(
		fmt.Sprintf("collection %q does not exist", name),
		goerrors.CategoryNotFound,
		ErrorInvalidCollection,
	).WithMetadata(map[string]any{"collection": name})
}

func BadInputError(format string, args ...any) *goerrors.Error {
	return newEntityGraphError(fmt.Sprintf(format, args...), goerrors.CategoryBadInput, ErrorBadInput)
}

// IOError wraps a storage failure into a generic operation error. The source
// stays reachable through the error chain.
func IOError(source error, message string) *goerrors.Error {
	return wrapEntityGraphError(source, message, goerrors.CategoryOperation, ErrorIO)
}

func IsBadInput(err error) bool {
	return hasTextCode(err, ErrorBadInput)
}

func IsPermissionDenied(err error) bool {
	return hasTextCode(err, ErrorPermissionDenied)
}

func IsNotFound(err error) bool {
	return hasTextCode(err, ErrorNotFound)
}

func IsConflictingUpdate(err error) bool {
	return hasTextCode(err, ErrorConflictingUpdate)
}

func IsRelationNotPossible(err error) bool {
	return hasTextCode(err, ErrorRelationNotPossible)
}

func IsInvalidCollection(err error) bool {
	return hasTextCode(err, ErrorInvalidCollection)
}

func IsIOError(err error) bool {
	return hasTextCode(err, ErrorIO)
}

// TextCode returns the outermost text code on err, or "".
func TextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if richErr, ok := err.(*goerrors.Error); ok && richErr.TextCode == code {
		return true
	}
	switch typed := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range typed.Unwrap() {
			if hasTextCode(inner, code) {
				return true
			}
		}
		return false
	default:
		return hasTextCode(errors.Unwrap(err), code)
	}
}

// MapError normalizes any error into the entitygraph error envelope.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	if errors.Is(err, ErrTransactionDone) {
		return newEntityGraphError(err.Error(), goerrors.CategoryConflict, ErrorTransactionDone)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"), strings.Contains(msg, "no rows"):
		return newEntityGraphError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must be"):
		return newEntityGraphError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newEntityGraphError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

// wrapEntityGraphError builds a fresh envelope with source as its cause.
// goerrors.Wrap clones rich sources instead of chaining them, which would
// drop the source text code.
func wrapEntityGraphError(source error, message string, category goerrors.Category, textCode string) *goerrors.Error {
	wrapped := newEntityGraphError(message, category, textCode)
	wrapped.Source = source
	return wrapped
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorPermissionDenied
	case goerrors.CategoryConflict:
		return ErrorConflictingUpdate
	case goerrors.CategoryOperation:
		return ErrorIO
	case goerrors.CategoryExternal:
		return ErrorSideEffectFailed
	default:
		return ErrorInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
