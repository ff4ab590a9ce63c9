package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/linaldb/linal/pkg/dataset"
	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/index"
	"github.com/linaldb/linal/pkg/tensor"
	"github.com/linaldb/linal/pkg/value"
)

// Memory is an in-process adapter for tests and ephemeral engines.
// Dataset saves go through the JSON codec so round-trip behavior matches
// the sqlite adapter; tensors are stored by handle.
type Memory struct {
	mu  sync.Mutex
	dbs map[string]*memoryDatabase
}

type memoryDatabase struct {
	datasets map[string][]byte
	tensors  map[string]*tensor.Tensor
}

// NewMemory creates an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{dbs: map[string]*memoryDatabase{}}
}

// Close releases everything.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dbs = map[string]*memoryDatabase{}
	return nil
}

// CreateDatabase registers a database namespace.
func (m *Memory) CreateDatabase(_ context.Context, db string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.database(db)
	return nil
}

// DeleteDatabase removes a database namespace.
func (m *Memory) DeleteDatabase(_ context.Context, db string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dbs, db)
	return nil
}

// ListDatabases enumerates database names.
func (m *Memory) ListDatabases(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.dbs))
	for n := range m.dbs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// SaveDataset stores an encoded snapshot.
func (m *Memory) SaveDataset(_ context.Context, db string, snap *dataset.Snapshot) error {
	encoded, err := json.Marshal(wireSnapshot{
		Schema:   snap.Schema,
		Rows:     snap.Rows,
		Meta:     snap.Meta,
		Computed: snap.Computed,
		Defaults: snap.Defaults,
		Indexes:  snap.Indexes,
	})
	if err != nil {
		return &dberr.IOError{Op: "encode dataset", Cause: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.database(db).datasets[snap.Name] = encoded
	return nil
}

// LoadDataset decodes a stored snapshot.
func (m *Memory) LoadDataset(_ context.Context, db, name string) (*dataset.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dbs[db]
	if !ok {
		return nil, &dberr.NotFound{Kind: "database", Name: db}
	}
	encoded, ok := d.datasets[name]
	if !ok {
		return nil, &dberr.NotFound{Kind: "dataset", Name: name}
	}
	var w wireSnapshot
	w.Schema = &value.Schema{}
	if err := json.Unmarshal(encoded, &w); err != nil {
		return nil, &dberr.IOError{Op: "decode dataset", Cause: err}
	}
	return &dataset.Snapshot{
		Name:     name,
		Schema:   w.Schema,
		Rows:     w.Rows,
		Meta:     w.Meta,
		Computed: w.Computed,
		Defaults: w.Defaults,
		Indexes:  w.Indexes,
	}, nil
}

// ListDatasets enumerates dataset names.
func (m *Memory) ListDatasets(_ context.Context, db string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dbs[db]
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(d.datasets))
	for n := range d.datasets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteDataset removes one dataset.
func (m *Memory) DeleteDataset(_ context.Context, db, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.dbs[db]; ok {
		delete(d.datasets, name)
	}
	return nil
}

// SaveTensor stores one tensor.
func (m *Memory) SaveTensor(_ context.Context, db, name string, t *tensor.Tensor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.database(db).tensors[name] = t
	return nil
}

// LoadTensor reads one tensor back.
func (m *Memory) LoadTensor(_ context.Context, db, name string) (*tensor.Tensor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dbs[db]
	if !ok {
		return nil, &dberr.NotFound{Kind: "database", Name: db}
	}
	t, ok := d.tensors[name]
	if !ok {
		return nil, &dberr.NotFound{Kind: "tensor", Name: name}
	}
	return t, nil
}

// ListTensors enumerates tensor names.
func (m *Memory) ListTensors(_ context.Context, db string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dbs[db]
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(d.tensors))
	for n := range d.tensors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteTensor removes one tensor.
func (m *Memory) DeleteTensor(_ context.Context, db, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.dbs[db]; ok {
		delete(d.tensors, name)
	}
	return nil
}

func (m *Memory) database(db string) *memoryDatabase {
	d, ok := m.dbs[db]
	if !ok {
		d = &memoryDatabase{datasets: map[string][]byte{}, tensors: map[string]*tensor.Tensor{}}
		m.dbs[db] = d
	}
	return d
}

// wireSnapshot is the JSON form shared by the memory and sqlite adapters.
type wireSnapshot struct {
	Schema   *value.Schema          `json:"schema"`
	Rows     [][]value.Value        `json:"rows"`
	Meta     dataset.Metadata       `json:"metadata"`
	Computed []dataset.ComputedDef  `json:"computed,omitempty"`
	Defaults []dataset.DefaultDef   `json:"defaults,omitempty"`
	Indexes  []index.Definition     `json:"indexes,omitempty"`
}
