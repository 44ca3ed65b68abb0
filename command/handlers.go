package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-entitygraph/core"
	"github.com/google/uuid"
)

// Transactor runs work inside one storage transaction. *core.ActionsFactory
// implements it.
type Transactor interface {
	Run(ctx context.Context, fn func(ctx context.Context, actions *core.Actions) error) (core.TaskReport, error)
	RunAdmin(
		ctx context.Context,
		user core.User,
		fn func(ctx context.Context, admin *core.AdminActions) error,
	) (core.TaskReport, error)
}

// MutationResult is stored in the go-command result collector after a
// committed mutation. It is also stored when post-commit tasks fail, next to
// the partial failure error.
type MutationResult struct {
	ID     uuid.UUID
	Moved  int
	Report core.TaskReport
}

type CreateEntityCommand struct {
	tx Transactor
}

func NewCreateEntityCommand(tx Transactor) *CreateEntityCommand {
	return &CreateEntityCommand{tx: tx}
}

func (c *CreateEntityCommand) Execute(ctx context.Context, msg CreateEntityMessage) error {
	if c == nil || c.tx == nil {
		return commandDependencyError("command: entity transactor is required")
	}
	var id uuid.UUID
	report, err := c.tx.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		collection, err := actions.GetCollectionMetadata(ctx, msg.Collection)
		if err != nil {
			return err
		}
		var base *core.Collection
		if msg.BaseCollection != "" {
			baseCollection, err := actions.GetCollectionMetadata(ctx, msg.BaseCollection)
			if err != nil {
				return err
			}
			base = &baseCollection
		}
		id, err = actions.CreateEntity(ctx, collection, base, msg.Properties, msg.User)
		return err
	})
	return finish(ctx, MutationResult{ID: id, Report: report}, err)
}

type ReplaceEntityCommand struct {
	tx Transactor
}

func NewReplaceEntityCommand(tx Transactor) *ReplaceEntityCommand {
	return &ReplaceEntityCommand{tx: tx}
}

func (c *ReplaceEntityCommand) Execute(ctx context.Context, msg ReplaceEntityMessage) error {
	if c == nil || c.tx == nil {
		return commandDependencyError("command: entity transactor is required")
	}
	report, err := c.tx.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		collection, err := actions.GetCollectionMetadata(ctx, msg.Collection)
		if err != nil {
			return err
		}
		return actions.ReplaceEntity(ctx, collection, msg.Update, msg.User)
	})
	return finish(ctx, MutationResult{ID: msg.Update.ID, Report: report}, err)
}

type DeleteEntityCommand struct {
	tx Transactor
}

func NewDeleteEntityCommand(tx Transactor) *DeleteEntityCommand {
	return &DeleteEntityCommand{tx: tx}
}

func (c *DeleteEntityCommand) Execute(ctx context.Context, msg DeleteEntityMessage) error {
	if c == nil || c.tx == nil {
		return commandDependencyError("command: entity transactor is required")
	}
	report, err := c.tx.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		collection, err := actions.GetCollectionMetadata(ctx, msg.Collection)
		if err != nil {
			return err
		}
		return actions.DeleteEntity(ctx, collection, msg.ID, msg.User)
	})
	return finish(ctx, MutationResult{ID: msg.ID, Report: report}, err)
}

type CreateRelationCommand struct {
	tx Transactor
}

func NewCreateRelationCommand(tx Transactor) *CreateRelationCommand {
	return &CreateRelationCommand{tx: tx}
}

func (c *CreateRelationCommand) Execute(ctx context.Context, msg CreateRelationMessage) error {
	if c == nil || c.tx == nil {
		return commandDependencyError("command: relation transactor is required")
	}
	var id uuid.UUID
	report, err := c.tx.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		collection, err := actions.GetCollectionMetadata(ctx, msg.Collection)
		if err != nil {
			return err
		}
		id, err = actions.CreateRelation(ctx, collection, msg.Relation, msg.User)
		return err
	})
	return finish(ctx, MutationResult{ID: id, Report: report}, err)
}

type ReplaceRelationCommand struct {
	tx Transactor
}

func NewReplaceRelationCommand(tx Transactor) *ReplaceRelationCommand {
	return &ReplaceRelationCommand{tx: tx}
}

func (c *ReplaceRelationCommand) Execute(ctx context.Context, msg ReplaceRelationMessage) error {
	if c == nil || c.tx == nil {
		return commandDependencyError("command: relation transactor is required")
	}
	report, err := c.tx.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		collection, err := actions.GetCollectionMetadata(ctx, msg.Collection)
		if err != nil {
			return err
		}
		return actions.ReplaceRelation(ctx, collection, msg.Relation, msg.User)
	})
	return finish(ctx, MutationResult{ID: msg.Relation.ID, Report: report}, err)
}

type AddPIDCommand struct {
	tx Transactor
}

func NewAddPIDCommand(tx Transactor) *AddPIDCommand {
	return &AddPIDCommand{tx: tx}
}

func (c *AddPIDCommand) Execute(ctx context.Context, msg AddPIDMessage) error {
	if c == nil || c.tx == nil {
		return commandDependencyError("command: pid transactor is required")
	}
	pid, err := parsePID(msg.PID)
	if err != nil {
		return err
	}
	report, err := c.tx.Run(ctx, func(ctx context.Context, actions *core.Actions) error {
		return actions.AddPID(ctx, pid, msg.Lookup)
	})
	return finish(ctx, MutationResult{ID: msg.Lookup.TimID, Report: report}, err)
}

type AddTypeToEntityCommand struct {
	tx Transactor
}

func NewAddTypeToEntityCommand(tx Transactor) *AddTypeToEntityCommand {
	return &AddTypeToEntityCommand{tx: tx}
}

func (c *AddTypeToEntityCommand) Execute(ctx context.Context, msg AddTypeToEntityMessage) error {
	if c == nil || c.tx == nil {
		return commandDependencyError("command: admin transactor is required")
	}
	report, err := c.tx.RunAdmin(ctx, msg.User, func(ctx context.Context, admin *core.AdminActions) error {
		collection, err := admin.Actions().GetCollectionMetadata(ctx, msg.Collection)
		if err != nil {
			return err
		}
		return admin.AddTypeToEntity(ctx, msg.EntityID, collection)
	})
	return finish(ctx, MutationResult{ID: msg.EntityID, Report: report}, err)
}

type MoveEdgesCommand struct {
	tx Transactor
}

func NewMoveEdgesCommand(tx Transactor) *MoveEdgesCommand {
	return &MoveEdgesCommand{tx: tx}
}

func (c *MoveEdgesCommand) Execute(ctx context.Context, msg MoveEdgesMessage) error {
	if c == nil || c.tx == nil {
		return commandDependencyError("command: admin transactor is required")
	}
	var moved int
	report, err := c.tx.RunAdmin(ctx, msg.User, func(ctx context.Context, admin *core.AdminActions) error {
		var err error
		moved, err = admin.MoveEdges(ctx, msg.From, msg.To)
		return err
	})
	return finish(ctx, MutationResult{ID: msg.To, Moved: moved, Report: report}, err)
}

func finish(ctx context.Context, result MutationResult, err error) error {
	if err != nil && !core.IsPartialFailure(err) {
		return err
	}
	storeResult(ctx, result)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
