package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-entitygraph/changelog"
	"github.com/goliatone/go-entitygraph/core"
)

var (
	_ gocmd.Querier[GetEntityMessage, core.ReadEntity]              = (*GetEntityQuery)(nil)
	_ gocmd.Querier[GetCollectionMessage, []core.ReadEntity]        = (*GetCollectionQuery)(nil)
	_ gocmd.Querier[QuickSearchMessage, []core.QuickSearchResult]   = (*QuickSearchQuery)(nil)
	_ gocmd.Querier[ListNamespacesMessage, []core.Namespace]        = (*ListNamespacesQuery)(nil)
	_ gocmd.Querier[GetNamespaceImageMessage, core.NamespaceImage]  = (*GetNamespaceImageQuery)(nil)
	_ gocmd.Querier[DeletionPreviewMessage, changelog.ChangeRecord] = (*DeletionPreviewQuery)(nil)

	_ Reader = (*core.ActionsFactory)(nil)
)
