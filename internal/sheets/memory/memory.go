// Package memory is an in-process TransactionMirror. The worker uses it
// when no spreadsheet is configured, and tests use it to observe what the
// worker wrote.
package memory

import (
	"context"
	"sort"
	"sync"

	"fintraka/internal/sheets"
)

type Mirror struct {
	mu   sync.Mutex
	rows map[int64]sheets.Row
}

var _ sheets.TransactionMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{rows: map[int64]sheets.Row{}}
}

func (m *Mirror) UpsertTransaction(_ context.Context, r sheets.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.TransactionID] = r
	return nil
}

func (m *Mirror) DeleteTransaction(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

// Rows returns the mirrored rows ordered by transaction id.
func (m *Mirror) Rows() []sheets.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sheets.Row, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	return out
}
