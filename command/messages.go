package command

import (
	"net/url"
	"strings"

	"github.com/goliatone/go-entitygraph/core"
	"github.com/google/uuid"
)

const (
	TypeCreateEntity    = "entitygraph.command.entity.create"
	TypeReplaceEntity   = "entitygraph.command.entity.replace"
	TypeDeleteEntity    = "entitygraph.command.entity.delete"
	TypeCreateRelation  = "entitygraph.command.relation.create"
	TypeReplaceRelation = "entitygraph.command.relation.replace"
	TypeAddPID          = "entitygraph.command.pid.add"
	TypeAddTypeToEntity = "entitygraph.command.admin.add_type"
	TypeMoveEdges       = "entitygraph.command.admin.move_edges"
)

type CreateEntityMessage struct {
	Collection string
	// BaseCollection is optional; the entity also gets the base type.
	BaseCollection string
	Properties     []core.Property
	User           core.User
}

func (CreateEntityMessage) Type() string { return TypeCreateEntity }

func (m CreateEntityMessage) Validate() error {
	if err := validateCollection(m.Collection); err != nil {
		return err
	}
	return validateUser(m.User)
}

type ReplaceEntityMessage struct {
	Collection string
	Update     core.UpdateEntity
	User       core.User
}

func (ReplaceEntityMessage) Type() string { return TypeReplaceEntity }

func (m ReplaceEntityMessage) Validate() error {
	if err := validateCollection(m.Collection); err != nil {
		return err
	}
	if m.Update.ID == uuid.Nil {
		return commandValidationError("id", "entity id is required")
	}
	if m.Update.Rev <= 0 {
		return commandValidationError("rev", "rev must be positive")
	}
	return validateUser(m.User)
}

type DeleteEntityMessage struct {
	Collection string
	ID         uuid.UUID
	User       core.User
}

func (DeleteEntityMessage) Type() string { return TypeDeleteEntity }

func (m DeleteEntityMessage) Validate() error {
	if err := validateCollection(m.Collection); err != nil {
		return err
	}
	if m.ID == uuid.Nil {
		return commandValidationError("id", "entity id is required")
	}
	return validateUser(m.User)
}

type CreateRelationMessage struct {
	Collection string
	Relation   core.CreateRelation
	User       core.User
}

func (CreateRelationMessage) Type() string { return TypeCreateRelation }

func (m CreateRelationMessage) Validate() error {
	if err := validateCollection(m.Collection); err != nil {
		return err
	}
	if m.Relation.SourceID == uuid.Nil {
		return commandValidationError("source_id", "source id is required")
	}
	if m.Relation.TargetID == uuid.Nil {
		return commandValidationError("target_id", "target id is required")
	}
	return validateUser(m.User)
}

type ReplaceRelationMessage struct {
	Collection string
	Relation   core.UpdateRelation
	User       core.User
}

func (ReplaceRelationMessage) Type() string { return TypeReplaceRelation }

func (m ReplaceRelationMessage) Validate() error {
	if err := validateCollection(m.Collection); err != nil {
		return err
	}
	if m.Relation.ID == uuid.Nil {
		return commandValidationError("id", "relation id is required")
	}
	if m.Relation.Rev <= 0 {
		return commandValidationError("rev", "rev must be positive")
	}
	return validateUser(m.User)
}

type AddPIDMessage struct {
	PID    string
	Lookup core.EntityLookup
}

func (AddPIDMessage) Type() string { return TypeAddPID }

func (m AddPIDMessage) Validate() error {
	if _, err := parsePID(m.PID); err != nil {
		return err
	}
	if err := m.Lookup.Validate(); err != nil {
		return commandValidationError("lookup", err.Error())
	}
	return nil
}

type AddTypeToEntityMessage struct {
	User       core.User
	EntityID   uuid.UUID
	Collection string
}

func (AddTypeToEntityMessage) Type() string { return TypeAddTypeToEntity }

func (m AddTypeToEntityMessage) Validate() error {
	if m.EntityID == uuid.Nil {
		return commandValidationError("entity_id", "entity id is required")
	}
	if err := validateCollection(m.Collection); err != nil {
		return err
	}
	return validateUser(m.User)
}

type MoveEdgesMessage struct {
	User core.User
	From uuid.UUID
	To   uuid.UUID
}

func (MoveEdgesMessage) Type() string { return TypeMoveEdges }

func (m MoveEdgesMessage) Validate() error {
	if m.From == uuid.Nil {
		return commandValidationError("from", "source entity id is required")
	}
	if m.To == uuid.Nil {
		return commandValidationError("to", "target entity id is required")
	}
	if m.From == m.To {
		return commandInvalidInputError("command: cannot move edges onto the same entity")
	}
	return validateUser(m.User)
}

func validateCollection(name string) error {
	if strings.TrimSpace(name) == "" {
		return commandValidationError("collection", "collection is required")
	}
	return nil
}

func validateUser(user core.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return commandValidationError("user", "user id is required")
	}
	return nil
}

func parsePID(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, commandValidationError("pid", "pid is required")
	}
	pid, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !pid.IsAbs() {
		return nil, commandValidationError("pid", "pid must be an absolute uri")
	}
	return pid, nil
}
