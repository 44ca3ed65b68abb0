package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-entitygraph/core"
)

var (
	_ gocmd.Commander[CreateEntityMessage]    = (*CreateEntityCommand)(nil)
	_ gocmd.Commander[ReplaceEntityMessage]   = (*ReplaceEntityCommand)(nil)
	_ gocmd.Commander[DeleteEntityMessage]    = (*DeleteEntityCommand)(nil)
	_ gocmd.Commander[CreateRelationMessage]  = (*CreateRelationCommand)(nil)
	_ gocmd.Commander[ReplaceRelationMessage] = (*ReplaceRelationCommand)(nil)
	_ gocmd.Commander[AddPIDMessage]          = (*AddPIDCommand)(nil)
	_ gocmd.Commander[AddTypeToEntityMessage] = (*AddTypeToEntityCommand)(nil)
	_ gocmd.Commander[MoveEdgesMessage]       = (*MoveEdgesCommand)(nil)

	_ Transactor = (*core.ActionsFactory)(nil)
)
