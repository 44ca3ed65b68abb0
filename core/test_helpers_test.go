package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func personCollection() Collection {
	return Collection{
		Name:           "persons",
		EntityTypeName: "person",
		NamespaceName:  "ww",
	}
}

func keywordCollection() Collection {
	return Collection{
		Name:           "keywords",
		EntityTypeName: "keyword",
		AbstractType:   KeywordAbstractType,
		NamespaceName:  "ww",
	}
}

func testNamespaces() []Namespace {
	return []Namespace{
		{
			Name:  "ww",
			Label: "Women Writers",
			Collections: map[string]Collection{
				"persons":  personCollection(),
				"keywords": keywordCollection(),
				"relations": {
					Name:           "relations",
					EntityTypeName: "relation",
					Relation:       true,
				},
			},
		},
		{Name: "admin"},
	}
}

type testEnv struct {
	factory *ActionsFactory
	stores  *MemoryStores
	clock   *FixedClock
}

func newTestEnv(t *testing.T, opts ...Option) testEnv {
	t.Helper()
	stores := NewMemoryStores(testNamespaces()...)
	stores.Permissions.Grant("writer", "ww", CapabilityWrite)
	stores.Permissions.Grant("reader", "ww", CapabilityRead)
	stores.Permissions.Grant("root", "admin", CapabilityAdmin)
	clock := NewFixedClock(testNow)

	base := []Option{
		WithRepositoryFactory(stores),
		WithClock(clock),
	}
	factory, err := NewActionsFactory(Config{PersistentURLBase: "https://data.example.org/v2.1/domain"}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new actions factory: %v", err)
	}
	return testEnv{factory: factory, stores: stores, clock: clock}
}

func (e testEnv) begin(t *testing.T) *Actions {
	t.Helper()
	actions, err := e.factory.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return actions
}

var (
	writer = User{ID: "writer"}
	reader = User{ID: "reader"}
	root   = User{ID: "root"}
)

type recordingTask struct {
	name string
	err  error
	log  *[]string
	mu   *sync.Mutex
}

func newTaskLog() (*[]string, *sync.Mutex) {
	log := []string{}
	return &log, &sync.Mutex{}
}

func (r recordingTask) Execute(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.log = append(*r.log, r.name)
	return r.err
}

func (r recordingTask) Description() string {
	return r.name
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any)                 {}
func (stubLogger) Debug(string, ...any)                 {}
func (stubLogger) Info(string, ...any)                  {}
func (stubLogger) Warn(string, ...any)                  {}
func (stubLogger) Error(string, ...any)                 {}
func (stubLogger) Fatal(string, ...any)                 {}
func (l stubLogger) WithContext(context.Context) Logger { return l }

type stubLoggerProvider struct {
	logger Logger
}

func (p stubLoggerProvider) GetLogger(string) Logger {
	return p.logger
}
