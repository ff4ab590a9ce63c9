package engine

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/linaldb/linal/pkg/dataset"
	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/expr"
	"github.com/linaldb/linal/pkg/parser"
	"github.com/linaldb/linal/pkg/storage"
	"github.com/linaldb/linal/pkg/value"
)

// Engine owns the named database instances and the storage adapter.
// Exactly one instance is current per session; commands against an
// instance hold its mutex for their whole duration, so external callers
// may dispatch concurrently.
type Engine struct {
	logger  *zap.Logger
	adapter storage.Adapter

	mu        sync.RWMutex
	instances map[string]*Instance
	defaultDB string
}

// Instance is one isolated database: its datasets and named bindings
// (tensors and LET results).
type Instance struct {
	name     string
	mu       sync.Mutex
	store    *dataset.Store
	bindings map[string]value.Value
	hydrated bool
}

// New builds the engine and bootstraps it: every database the adapter
// enumerates under the data root is registered, bodies load lazily on
// first use, and the default database is created if missing.
func New(ctx context.Context, adapter storage.Adapter, defaultDB string, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger:    logger,
		adapter:   adapter,
		instances: map[string]*Instance{},
		defaultDB: defaultDB,
	}
	names, err := adapter.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		e.instances[n] = newInstance(n, false)
	}
	if _, ok := e.instances[defaultDB]; !ok {
		if err := adapter.CreateDatabase(ctx, defaultDB); err != nil {
			return nil, err
		}
		e.instances[defaultDB] = newInstance(defaultDB, true)
	}
	logger.Info("engine bootstrapped",
		zap.Int("databases", len(e.instances)),
		zap.String("default", defaultDB),
	)
	return e, nil
}

func newInstance(name string, hydrated bool) *Instance {
	return &Instance{
		name:     name,
		store:    dataset.NewStore(),
		bindings: map[string]value.Value{},
		hydrated: hydrated,
	}
}

// Session returns a new session bound to the default database.
func (e *Engine) Session() *Session {
	return &Session{engine: e, current: e.defaultDB}
}

// Databases lists the known database names.
func (e *Engine) Databases() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.instances))
	for n := range e.instances {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultDatabase returns the configured default database name.
func (e *Engine) DefaultDatabase() string { return e.defaultDB }

// instance returns a registered instance.
func (e *Engine) instance(name string) (*Instance, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	inst, ok := e.instances[name]
	if !ok {
		return nil, &dberr.NotFound{Kind: "database", Name: name}
	}
	return inst, nil
}

// createDatabase registers a new instance and its on-disk directory.
func (e *Engine) createDatabase(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.instances[name]; exists {
		return &dberr.AlreadyExists{Kind: "database", Name: name}
	}
	if err := e.adapter.CreateDatabase(ctx, name); err != nil {
		return err
	}
	e.instances[name] = newInstance(name, true)
	return nil
}

// dropDatabase removes an instance from memory. The on-disk directory is
// the adapter's concern and is left untouched here.
func (e *Engine) dropDatabase(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.instances[name]; !exists {
		return &dberr.NotFound{Kind: "database", Name: name}
	}
	delete(e.instances, name)
	return nil
}

// hydrate loads an instance's persisted datasets and tensors on first
// use. Dataset metadata and bodies come back together; indexes are
// rebuilt from their persisted definitions.
func (e *Engine) hydrate(ctx context.Context, inst *Instance) error {
	if inst.hydrated {
		return nil
	}
	dsNames, err := e.adapter.ListDatasets(ctx, inst.name)
	if err != nil {
		return err
	}
	for _, name := range dsNames {
		snap, err := e.adapter.LoadDataset(ctx, inst.name, name)
		if err != nil {
			e.logger.Warn("failed to load dataset",
				zap.String("database", inst.name),
				zap.String("dataset", name),
				zap.Error(err),
			)
			continue
		}
		ds, err := dataset.Restore(snap, parser.ParseExpression)
		if err != nil {
			e.logger.Warn("failed to restore dataset",
				zap.String("database", inst.name),
				zap.String("dataset", name),
				zap.Error(err),
			)
			continue
		}
		inst.store.Put(ds)
	}
	tNames, err := e.adapter.ListTensors(ctx, inst.name)
	if err != nil {
		return err
	}
	for _, name := range tNames {
		t, err := e.adapter.LoadTensor(ctx, inst.name, name)
		if err != nil {
			e.logger.Warn("failed to load tensor",
				zap.String("database", inst.name),
				zap.String("tensor", name),
				zap.Error(err),
			)
			continue
		}
		inst.bindings[name] = value.FromTensor(t)
	}
	inst.hydrated = true
	e.logger.Debug("hydrated database",
		zap.String("database", inst.name),
		zap.Int("datasets", inst.store.Len()),
		zap.Int("tensors", len(tNames)),
	)
	return nil
}

// Env returns the instance's ambient environment: named tensors and LET
// bindings, plus dataset-qualified metadata misses.
func (inst *Instance) Env() expr.Env { return instanceEnv{inst} }

type instanceEnv struct{ inst *Instance }

func (e instanceEnv) Resolve(name string) (value.Value, bool, error) {
	v, ok := e.inst.bindings[name]
	return v, ok, nil
}

func (e instanceEnv) ResolveColumn(string) (value.Value, bool, error) {
	return value.Value{}, false, nil
}

func (e instanceEnv) Member(base, name string) (value.Value, bool, error) {
	return value.Value{}, false, nil
}
