package transform

import (
	"iter"
	"slices"

	"github.com/langowen/fxledger/internal/entities"
)

// Ledger caches rebased tables by base currency and flattens them into rows.
// It is not safe for concurrent use.
type Ledger struct {
	dense  Table
	pivot  string
	order  []string
	tables map[string]Table
}

// NewLedger seeds the ledger with the pivot-based dense table itself. The
// ledger keeps its own copy of dense.
func NewLedger(dense Table, pivot string) *Ledger {
	pivot = normalizeCode(pivot)
	dense = dense.Clone()
	l := &Ledger{
		dense:  dense,
		pivot:  pivot,
		tables: make(map[string]Table),
	}
	if pivot != "" && len(dense) > 0 {
		l.store(pivot, dense.Clone())
	}
	return l
}

// ComputeBase returns the table rebased to base, computing and caching it on
// first request. Later calls for the same base return the cached table.
func (l *Ledger) ComputeBase(base string) (Table, error) {
	base = normalizeCode(base)
	if table, ok := l.tables[base]; ok {
		return table, nil
	}

	table, err := Rebase(l.dense, base)
	if err != nil {
		return nil, err
	}
	l.store(base, table)

	return table, nil
}

// Recompute rebases the given dense table to base and replaces any cached
// result for base. The base keeps its original position in Rows.
func (l *Ledger) Recompute(dense Table, base string) (Table, error) {
	base = normalizeCode(base)

	table, err := Rebase(dense, base)
	if err != nil {
		return nil, err
	}
	l.store(base, table)

	return table, nil
}

func (l *Ledger) store(base string, table Table) {
	if _, ok := l.tables[base]; !ok {
		l.order = append(l.order, base)
	}
	l.tables[base] = table
}

// Has reports whether base is already cached.
func (l *Ledger) Has(base string) bool {
	_, ok := l.tables[normalizeCode(base)]
	return ok
}

// Bases returns the cached base currencies in the order they were added.
func (l *Ledger) Bases() []string { return slices.Clone(l.order) }

// Table returns the cached table for base.
func (l *Ledger) Table(base string) (Table, bool) {
	table, ok := l.tables[normalizeCode(base)]
	return table, ok
}

// Len returns the number of rows Rows yields.
func (l *Ledger) Len() int {
	n := 0
	for _, table := range l.tables {
		n += table.Len()
	}
	return n
}

// Rows iterates every cached table: bases in insertion order, then days in
// ascending order, then currencies in ascending order. The sequence can be
// ranged over any number of times.
func (l *Ledger) Rows() iter.Seq[entities.Row] {
	return func(yield func(entities.Row) bool) {
		for _, base := range l.order {
			if !yieldTable(base, l.tables[base], yield) {
				return
			}
		}
	}
}

func yieldTable(base string, table Table, yield func(entities.Row) bool) bool {
	for _, day := range table.Dates() {
		rates := table[day]
		for _, currency := range rates.Currencies() {
			row := entities.Row{
				Date:           day,
				BaseCurrency:   base,
				TargetCurrency: currency,
				ExchangeRate:   rates[currency],
			}
			if !yield(row) {
				return false
			}
		}
	}
	return true
}
