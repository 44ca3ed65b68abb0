package gocommand

import (
	"context"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-entitygraph/changelog"
	egcommand "github.com/goliatone/go-entitygraph/command"
	"github.com/goliatone/go-entitygraph/core"
	egquery "github.com/goliatone/go-entitygraph/query"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract checks that msg names its type and passes its own
// Validate, when it has one.
func ValidateMessageContract(msg any) error {
	if err := gocmd.ValidateMessage(msg); err != nil {
		return err
	}
	typed, ok := msg.(gocmd.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(typed.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// RegistryAdapter wraps a go-command registry so entitygraph handlers can be
// exposed to CLI, cron or queue resolvers.
type RegistryAdapter struct {
	registry *gocmd.Registry
}

func NewRegistryAdapter(registry *gocmd.Registry) *RegistryAdapter {
	if registry == nil {
		registry = gocmd.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *gocmd.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) register(handler any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) AddResolver(key string, resolver gocmd.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors every registered handler into a go-job queue
// registry, so mutations can also be scheduled as jobs.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func registerCommand[T any](
	adapter *RegistryAdapter,
	cmd gocmd.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.register(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func registerQuery[T any, R any](
	adapter *RegistryAdapter,
	qry gocmd.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.register(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Bus holds the dispatcher subscriptions of one registered entity graph.
type Bus struct {
	adapter       *RegistryAdapter
	subscriptions []commanddispatcher.Subscription
}

// BusDependencies are the collaborators the handlers are built from. Factory
// is required; Previews enables the deletion preview query.
type BusDependencies struct {
	Factory  *core.ActionsFactory
	Previews *egquery.DeletionPreviewQuery
}

// RegisterEntityGraph subscribes every entity graph command and query on the
// dispatcher and registers them on adapter.
func RegisterEntityGraph(adapter *RegistryAdapter, deps BusDependencies, runnerOpts ...runner.Option) (*Bus, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if deps.Factory == nil {
		return nil, fmt.Errorf("gocommand: actions factory is required")
	}
	bus := &Bus{adapter: adapter}
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[egcommand.CreateEntityMessage](adapter, egcommand.NewCreateEntityCommand(deps.Factory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[egcommand.ReplaceEntityMessage](adapter, egcommand.NewReplaceEntityCommand(deps.Factory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[egcommand.DeleteEntityMessage](adapter, egcommand.NewDeleteEntityCommand(deps.Factory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[egcommand.CreateRelationMessage](adapter, egcommand.NewCreateRelationCommand(deps.Factory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[egcommand.ReplaceRelationMessage](adapter, egcommand.NewReplaceRelationCommand(deps.Factory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[egcommand.AddPIDMessage](adapter, egcommand.NewAddPIDCommand(deps.Factory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[egcommand.AddTypeToEntityMessage](adapter, egcommand.NewAddTypeToEntityCommand(deps.Factory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[egcommand.MoveEdgesMessage](adapter, egcommand.NewMoveEdgesCommand(deps.Factory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerQuery[egquery.GetEntityMessage, core.ReadEntity](adapter, egquery.NewGetEntityQuery(deps.Factory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerQuery[egquery.GetCollectionMessage, []core.ReadEntity](adapter, egquery.NewGetCollectionQuery(deps.Factory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerQuery[egquery.QuickSearchMessage, []core.QuickSearchResult](adapter, egquery.NewQuickSearchQuery(deps.Factory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerQuery[egquery.ListNamespacesMessage, []core.Namespace](adapter, egquery.NewListNamespacesQuery(deps.Factory), runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerQuery[egquery.GetNamespaceImageMessage, core.NamespaceImage](adapter, egquery.NewGetNamespaceImageQuery(deps.Factory), runnerOpts...)
		},
	}
	if deps.Previews != nil {
		steps = append(steps, func() (commanddispatcher.Subscription, error) {
			return registerQuery[egquery.DeletionPreviewMessage, changelog.ChangeRecord](adapter, deps.Previews, runnerOpts...)
		})
	}
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			bus.Close()
			return nil, err
		}
		bus.subscriptions = append(bus.subscriptions, subscription)
	}
	return bus, nil
}

func (b *Bus) Adapter() *RegistryAdapter {
	if b == nil {
		return nil
	}
	return b.adapter
}

// Close removes every dispatcher subscription. The registry keeps its
// entries.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	for _, subscription := range b.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

// Execute dispatches a mutation and returns the result its handler stored.
// A partial failure error comes back together with the committed result.
func Execute[T any](ctx context.Context, msg T) (egcommand.MutationResult, error) {
	if err := ValidateMessageContract(msg); err != nil {
		return egcommand.MutationResult{}, err
	}
	collector := gocmd.NewResult[egcommand.MutationResult]()
	err := commanddispatcher.Dispatch(gocmd.ContextWithResult(ctx, collector), msg)
	result, _ := collector.Load()
	return result, err
}

// Query dispatches a read to the handler subscribed for T.
func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}
