package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AdminActions carries graph maintenance operations that bypass the normal
// mutation rules. They are only reachable through ActionsFactory.RunAdmin.
type AdminActions struct {
	actions *Actions
	store   AdminDataStore
	user    User
}

func (a *AdminActions) Actions() *Actions {
	return a.actions
}

func (a *AdminActions) AddTypeToEntity(ctx context.Context, id uuid.UUID, typeToAdd Collection) (err error) {
	startedAt := time.Now()
	fields := mutationFields(typeToAdd, a.user)
	fields["entity_id"] = id.String()
	defer func() { a.actions.telemetry.observeOperation(ctx, startedAt, "admin_add_type", err, fields) }()

	if err = a.actions.ensureOpen(); err != nil {
		return err
	}
	return a.store.AddTypeToEntity(ctx, id, typeToAdd)
}

// MoveEdges re-points every relation attached to from onto to and returns
// how many relations moved.
func (a *AdminActions) MoveEdges(ctx context.Context, from uuid.UUID, to uuid.UUID) (moved int, err error) {
	startedAt := time.Now()
	fields := map[string]any{"from": from.String(), "to": to.String(), "user_id": a.user.ID}
	defer func() { a.actions.telemetry.observeOperation(ctx, startedAt, "admin_move_edges", err, fields) }()

	if err = a.actions.ensureOpen(); err != nil {
		return 0, err
	}
	if from == to {
		return 0, BadInputError("core: cannot move edges onto the same entity")
	}
	moved, err = a.store.MoveEdges(ctx, from, to)
	fields["moved"] = moved
	return moved, err
}

// RunAdmin is Run for admin work. user must hold ADMIN on the configured
// admin namespace and the data store must support admin operations.
func (f *ActionsFactory) RunAdmin(
	ctx context.Context,
	user User,
	fn func(ctx context.Context, admin *AdminActions) error,
) (TaskReport, error) {
	if fn == nil {
		return TaskReport{}, fmt.Errorf("core: run function is required")
	}
	return f.Run(ctx, func(ctx context.Context, actions *Actions) error {
		if err := actions.checkCapability(ctx, f.config.AdminNamespace, user, CapabilityAdmin); err != nil {
			return err
		}
		adminStore, ok := actions.store.(AdminDataStore)
		if !ok {
			return BadInputError("core: data store %T does not support admin operations", actions.store)
		}
		return fn(ctx, &AdminActions{actions: actions, store: adminStore, user: user})
	})
}
