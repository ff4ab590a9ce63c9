package index

import (
	"github.com/linaldb/linal/pkg/value"
)

// Hash is an equality index: a map from canonical value keys to the ids
// of rows holding that value, in insertion order.
type Hash struct {
	name    string
	column  string
	ordinal int
	buckets map[string][]int
}

// NewHash creates an empty hash index over one column.
func NewHash(name, column string, ordinal int) *Hash {
	return &Hash{
		name:    name,
		column:  column,
		ordinal: ordinal,
		buckets: make(map[string][]int),
	}
}

// Name returns the index name.
func (h *Hash) Name() string { return h.name }

// Kind returns KindHash.
func (h *Hash) Kind() Kind { return KindHash }

// Columns returns the single target column.
func (h *Hash) Columns() []string { return []string{h.column} }

// Build rebuilds the index from the full row set.
func (h *Hash) Build(rows [][]value.Value) error {
	h.buckets = make(map[string][]int, len(rows))
	for id, row := range rows {
		if err := h.OnInsert(row, id); err != nil {
			return err
		}
	}
	return nil
}

// OnInsert indexes one row.
func (h *Hash) OnInsert(row []value.Value, rowID int) error {
	k := value.Key(row[h.ordinal])
	h.buckets[k] = append(h.buckets[k], rowID)
	return nil
}

// Remove undoes an OnInsert of the same row and id.
func (h *Hash) Remove(row []value.Value, rowID int) {
	k := value.Key(row[h.ordinal])
	ids := h.buckets[k]
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] == rowID {
			h.buckets[k] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(h.buckets[k]) == 0 {
		delete(h.buckets, k)
	}
}

// Lookup returns the row ids equal to v in insertion order.
func (h *Hash) Lookup(v value.Value) ([]int, error) {
	ids := h.buckets[value.Key(v)]
	out := make([]int, len(ids))
	copy(out, ids)
	return out, nil
}
