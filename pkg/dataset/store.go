package dataset

import (
	"sort"

	"github.com/google/uuid"

	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/value"
)

// Store holds the datasets of one database instance, addressable by name
// and id. Dataset names are unique within a store.
type Store struct {
	byName map[string]*Dataset
	byID   map[uuid.UUID]*Dataset
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		byName: map[string]*Dataset{},
		byID:   map[uuid.UUID]*Dataset{},
	}
}

// Create adds an empty dataset with the given schema.
func (s *Store) Create(name string, schema *value.Schema) (*Dataset, error) {
	if _, exists := s.byName[name]; exists {
		return nil, &dberr.AlreadyExists{Kind: "dataset", Name: name}
	}
	ds := New(name, schema)
	s.byName[name] = ds
	s.byID[ds.ID] = ds
	return ds, nil
}

// Put registers a rehydrated dataset, replacing any same-named entry.
func (s *Store) Put(ds *Dataset) {
	s.byName[ds.Name] = ds
	s.byID[ds.ID] = ds
}

// Get returns a dataset by name.
func (s *Store) Get(name string) (*Dataset, error) {
	ds, ok := s.byName[name]
	if !ok {
		return nil, &dberr.NotFound{Kind: "dataset", Name: name}
	}
	return ds, nil
}

// GetByID returns a dataset by id.
func (s *Store) GetByID(id uuid.UUID) (*Dataset, error) {
	ds, ok := s.byID[id]
	if !ok {
		return nil, &dberr.NotFound{Kind: "dataset", Name: id.String()}
	}
	return ds, nil
}

// Drop removes a dataset and, with it, all its indexes.
func (s *Store) Drop(name string) error {
	ds, ok := s.byName[name]
	if !ok {
		return &dberr.NotFound{Kind: "dataset", Name: name}
	}
	delete(s.byName, name)
	delete(s.byID, ds.ID)
	return nil
}

// Names returns all dataset names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the dataset count.
func (s *Store) Len() int { return len(s.byName) }
