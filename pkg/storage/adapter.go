package storage

import (
	"context"

	"github.com/linaldb/linal/pkg/dataset"
	"github.com/linaldb/linal/pkg/tensor"
)

// Adapter is the persistence contract the engine depends on. The core
// only requires that databases enumerate completely under the data root,
// that dataset state (schema, rows, metadata) and tensor state (shape,
// data) round-trip, and that saves are atomic or fail. I/O failures
// surface as IOError; optional operations report Unsupported.
type Adapter interface {
	CreateDatabase(ctx context.Context, db string) error
	DeleteDatabase(ctx context.Context, db string) error
	ListDatabases(ctx context.Context) ([]string, error)

	SaveDataset(ctx context.Context, db string, snap *dataset.Snapshot) error
	LoadDataset(ctx context.Context, db, name string) (*dataset.Snapshot, error)
	ListDatasets(ctx context.Context, db string) ([]string, error)
	DeleteDataset(ctx context.Context, db, name string) error

	SaveTensor(ctx context.Context, db, name string, t *tensor.Tensor) error
	LoadTensor(ctx context.Context, db, name string) (*tensor.Tensor, error)
	ListTensors(ctx context.Context, db string) ([]string, error)
	DeleteTensor(ctx context.Context, db, name string) error

	Close() error
}
