package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/linaldb/linal/pkg/dataset"
	"github.com/linaldb/linal/pkg/dberr"
	"github.com/linaldb/linal/pkg/index"
	"github.com/linaldb/linal/pkg/tensor"
	"github.com/linaldb/linal/pkg/value"
)

// dbFileName is the per-database sqlite file under data_root/<db>/.
const dbFileName = "linal.db"

// SQLite persists databases as one sqlite file per database directory
// under the data root, so enumerating databases is a directory listing.
type SQLite struct {
	root   string
	logger *zap.Logger

	mu      sync.Mutex
	handles map[string]*sql.DB
}

// NewSQLite creates the adapter, ensuring the data root exists.
func NewSQLite(root string, logger *zap.Logger) (*SQLite, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &dberr.IOError{Op: "create data root", Cause: err}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLite{root: root, logger: logger, handles: map[string]*sql.DB{}}, nil
}

// Close closes every open database handle.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for name, db := range s.handles {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.handles, name)
	}
	return firstErr
}

// CreateDatabase materializes the database directory and its schema.
func (s *SQLite) CreateDatabase(ctx context.Context, db string) error {
	_, err := s.open(ctx, db)
	return err
}

// DeleteDatabase drops the on-disk directory for a database.
func (s *SQLite) DeleteDatabase(ctx context.Context, db string) error {
	s.mu.Lock()
	if h, ok := s.handles[db]; ok {
		h.Close()
		delete(s.handles, db)
	}
	s.mu.Unlock()
	if err := os.RemoveAll(filepath.Join(s.root, db)); err != nil {
		return &dberr.IOError{Op: "delete database", Cause: err}
	}
	return nil
}

// ListDatabases enumerates database directories under the data root.
func (s *SQLite) ListDatabases(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &dberr.IOError{Op: "list databases", Cause: err}
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), dbFileName)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// SaveDataset persists a dataset snapshot in one transaction.
func (s *SQLite) SaveDataset(ctx context.Context, db string, snap *dataset.Snapshot) error {
	h, err := s.open(ctx, db)
	if err != nil {
		return err
	}
	schemaJSON, err := json.Marshal(snap.Schema)
	if err != nil {
		return &dberr.IOError{Op: "encode schema", Cause: err}
	}
	metaJSON, err := json.Marshal(snap.Meta)
	if err != nil {
		return &dberr.IOError{Op: "encode metadata", Cause: err}
	}
	computedJSON, _ := json.Marshal(snap.Computed)
	defaultsJSON, _ := json.Marshal(snap.Defaults)
	indexesJSON, _ := json.Marshal(snap.Indexes)

	tx, err := h.BeginTx(ctx, nil)
	if err != nil {
		return &dberr.IOError{Op: "save dataset", Cause: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO datasets (name, schema, metadata, computed, defaults, indexes) VALUES (?, ?, ?, ?, ?, ?)`,
		snap.Name, string(schemaJSON), string(metaJSON), string(computedJSON), string(defaultsJSON), string(indexesJSON),
	); err != nil {
		return &dberr.IOError{Op: "save dataset", Cause: err}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_rows WHERE dataset_name = ?`, snap.Name); err != nil {
		return &dberr.IOError{Op: "save dataset", Cause: err}
	}
	for i, row := range snap.Rows {
		rowJSON, err := json.Marshal(row)
		if err != nil {
			return &dberr.IOError{Op: "encode row", Cause: err}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dataset_rows (dataset_name, row_num, data) VALUES (?, ?, ?)`,
			snap.Name, i, string(rowJSON),
		); err != nil {
			return &dberr.IOError{Op: "save dataset", Cause: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &dberr.IOError{Op: "save dataset", Cause: err}
	}
	s.logger.Debug("saved dataset",
		zap.String("database", db),
		zap.String("dataset", snap.Name),
		zap.Int("rows", len(snap.Rows)),
	)
	return nil
}

// LoadDataset reads a dataset snapshot back.
func (s *SQLite) LoadDataset(ctx context.Context, db, name string) (*dataset.Snapshot, error) {
	h, err := s.open(ctx, db)
	if err != nil {
		return nil, err
	}
	var schemaJSON, metaJSON, computedJSON, defaultsJSON, indexesJSON string
	err = h.QueryRowContext(ctx,
		`SELECT schema, metadata, computed, defaults, indexes FROM datasets WHERE name = ?`, name,
	).Scan(&schemaJSON, &metaJSON, &computedJSON, &defaultsJSON, &indexesJSON)
	if err == sql.ErrNoRows {
		return nil, &dberr.NotFound{Kind: "dataset", Name: name}
	}
	if err != nil {
		return nil, &dberr.IOError{Op: "load dataset", Cause: err}
	}

	snap := &dataset.Snapshot{Name: name, Schema: &value.Schema{}}
	if err := json.Unmarshal([]byte(schemaJSON), snap.Schema); err != nil {
		return nil, &dberr.IOError{Op: "decode schema", Cause: err}
	}
	if err := json.Unmarshal([]byte(metaJSON), &snap.Meta); err != nil {
		return nil, &dberr.IOError{Op: "decode metadata", Cause: err}
	}
	if computedJSON != "" {
		if err := json.Unmarshal([]byte(computedJSON), &snap.Computed); err != nil {
			return nil, &dberr.IOError{Op: "decode computed columns", Cause: err}
		}
	}
	if defaultsJSON != "" {
		if err := json.Unmarshal([]byte(defaultsJSON), &snap.Defaults); err != nil {
			return nil, &dberr.IOError{Op: "decode defaults", Cause: err}
		}
	}
	if indexesJSON != "" {
		var defs []index.Definition
		if err := json.Unmarshal([]byte(indexesJSON), &defs); err != nil {
			return nil, &dberr.IOError{Op: "decode indexes", Cause: err}
		}
		snap.Indexes = defs
	}

	rows, err := h.QueryContext(ctx,
		`SELECT data FROM dataset_rows WHERE dataset_name = ? ORDER BY row_num`, name)
	if err != nil {
		return nil, &dberr.IOError{Op: "load dataset rows", Cause: err}
	}
	defer rows.Close()
	for rows.Next() {
		var rowJSON string
		if err := rows.Scan(&rowJSON); err != nil {
			return nil, &dberr.IOError{Op: "load dataset rows", Cause: err}
		}
		var row []value.Value
		if err := json.Unmarshal([]byte(rowJSON), &row); err != nil {
			return nil, &dberr.IOError{Op: "decode row", Cause: err}
		}
		snap.Rows = append(snap.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &dberr.IOError{Op: "load dataset rows", Cause: err}
	}
	return snap, nil
}

// ListDatasets enumerates dataset names within a database.
func (s *SQLite) ListDatasets(ctx context.Context, db string) ([]string, error) {
	return s.listNames(ctx, db, `SELECT name FROM datasets ORDER BY name`)
}

// DeleteDataset removes a dataset and its rows.
func (s *SQLite) DeleteDataset(ctx context.Context, db, name string) error {
	h, err := s.open(ctx, db)
	if err != nil {
		return err
	}
	tx, err := h.BeginTx(ctx, nil)
	if err != nil {
		return &dberr.IOError{Op: "delete dataset", Cause: err}
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_rows WHERE dataset_name = ?`, name); err != nil {
		return &dberr.IOError{Op: "delete dataset", Cause: err}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name); err != nil {
		return &dberr.IOError{Op: "delete dataset", Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return &dberr.IOError{Op: "delete dataset", Cause: err}
	}
	return nil
}

// SaveTensor persists one named tensor.
func (s *SQLite) SaveTensor(ctx context.Context, db, name string, t *tensor.Tensor) error {
	h, err := s.open(ctx, db)
	if err != nil {
		return err
	}
	shapeJSON, _ := json.Marshal(t.Shape())
	dataJSON, _ := json.Marshal(t.Data())
	if _, err := h.ExecContext(ctx,
		`INSERT OR REPLACE INTO tensors (name, shape, data) VALUES (?, ?, ?)`,
		name, string(shapeJSON), string(dataJSON),
	); err != nil {
		return &dberr.IOError{Op: "save tensor", Cause: err}
	}
	return nil
}

// LoadTensor reads one named tensor back.
func (s *SQLite) LoadTensor(ctx context.Context, db, name string) (*tensor.Tensor, error) {
	h, err := s.open(ctx, db)
	if err != nil {
		return nil, err
	}
	var shapeJSON, dataJSON string
	err = h.QueryRowContext(ctx, `SELECT shape, data FROM tensors WHERE name = ?`, name).Scan(&shapeJSON, &dataJSON)
	if err == sql.ErrNoRows {
		return nil, &dberr.NotFound{Kind: "tensor", Name: name}
	}
	if err != nil {
		return nil, &dberr.IOError{Op: "load tensor", Cause: err}
	}
	var shape []int
	var data []float64
	if err := json.Unmarshal([]byte(shapeJSON), &shape); err != nil {
		return nil, &dberr.IOError{Op: "decode tensor shape", Cause: err}
	}
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return nil, &dberr.IOError{Op: "decode tensor data", Cause: err}
	}
	t, err := tensor.New(shape, data)
	if err != nil {
		return nil, &dberr.IOError{Op: "load tensor", Cause: err}
	}
	return t, nil
}

// ListTensors enumerates tensor names within a database.
func (s *SQLite) ListTensors(ctx context.Context, db string) ([]string, error) {
	return s.listNames(ctx, db, `SELECT name FROM tensors ORDER BY name`)
}

// DeleteTensor removes one named tensor.
func (s *SQLite) DeleteTensor(ctx context.Context, db, name string) error {
	h, err := s.open(ctx, db)
	if err != nil {
		return err
	}
	if _, err := h.ExecContext(ctx, `DELETE FROM tensors WHERE name = ?`, name); err != nil {
		return &dberr.IOError{Op: "delete tensor", Cause: err}
	}
	return nil
}

// Helper methods

func (s *SQLite) listNames(ctx context.Context, db, query string) ([]string, error) {
	h, err := s.open(ctx, db)
	if err != nil {
		return nil, err
	}
	rows, err := h.QueryContext(ctx, query)
	if err != nil {
		return nil, &dberr.IOError{Op: "list names", Cause: err}
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &dberr.IOError{Op: "list names", Cause: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &dberr.IOError{Op: "list names", Cause: err}
	}
	return names, nil
}

// open returns the handle for one database, creating its directory and
// schema on first use.
func (s *SQLite) open(ctx context.Context, db string) (*sql.DB, error) {
	if db == "" {
		return nil, &dberr.IOError{Op: "open database", Cause: fmt.Errorf("empty database name")}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[db]; ok {
		return h, nil
	}
	dir := filepath.Join(s.root, db)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &dberr.IOError{Op: "create database directory", Cause: err}
	}
	h, err := sql.Open("sqlite", filepath.Join(dir, dbFileName))
	if err != nil {
		return nil, &dberr.IOError{Op: "open database", Cause: err}
	}
	if err := initSchema(ctx, h); err != nil {
		h.Close()
		return nil, err
	}
	s.handles[db] = h
	return h, nil
}

// initSchema creates the adapter's tables.
func initSchema(ctx context.Context, h *sql.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			name TEXT PRIMARY KEY,
			schema TEXT NOT NULL,
			metadata TEXT NOT NULL,
			computed TEXT,
			defaults TEXT,
			indexes TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS dataset_rows (
			dataset_name TEXT NOT NULL,
			row_num INTEGER NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (dataset_name, row_num)
		)`,
		`CREATE TABLE IF NOT EXISTS tensors (
			name TEXT PRIMARY KEY,
			shape TEXT NOT NULL,
			data TEXT NOT NULL
		)`,
	}
	for _, schema := range schemas {
		if _, err := h.ExecContext(ctx, schema); err != nil {
			return &dberr.IOError{Op: "init schema", Cause: err}
		}
	}
	return nil
}
