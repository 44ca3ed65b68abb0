package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// uuidHandlers builds repository handlers for records keyed by a string
// uuid column named id. idField returns nil for a nil record.
func uuidHandlers[T any](newRecord func() T, idField func(T) *string) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			id := idField(record)
			if id == nil {
				return uuid.Nil
			}
			return parseUUID(*id)
		},
		SetID: func(record T, id uuid.UUID) {
			if field := idField(record); field != nil {
				*field = id.String()
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			id := idField(record)
			if id == nil {
				return ""
			}
			return strings.TrimSpace(*id)
		},
	}
}

func entityRevisionHandlers() repository.ModelHandlers[*entityRevisionRecord] {
	return uuidHandlers(
		func() *entityRevisionRecord { return &entityRevisionRecord{} },
		func(record *entityRevisionRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func relationRevisionHandlers() repository.ModelHandlers[*relationRevisionRecord] {
	return uuidHandlers(
		func() *relationRevisionRecord { return &relationRevisionRecord{} },
		func(record *relationRevisionRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func quadHandlers() repository.ModelHandlers[*quadRecord] {
	return uuidHandlers(
		func() *quadRecord { return &quadRecord{} },
		func(record *quadRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func grantHandlers() repository.ModelHandlers[*grantRecord] {
	return uuidHandlers(
		func() *grantRecord { return &grantRecord{} },
		func(record *grantRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func redirectHandlers() repository.ModelHandlers[*redirectRecord] {
	return uuidHandlers(
		func() *redirectRecord { return &redirectRecord{} },
		func(record *redirectRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
