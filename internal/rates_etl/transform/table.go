// Package transform turns pivot-referenced rate observations into dense,
// gap-filled tables re-based to any requested currency.
//
// A Rates value maps a currency code to the number of units of that currency
// worth one unit of the table's reference currency (the pivot, or the base
// after Rebase). Every stage returns a new Table; inputs are never mutated.
package transform

import (
	"maps"
	"slices"

	"github.com/langowen/fxledger/internal/date"
)

// Rates maps a currency code to its rate against the reference currency.
type Rates map[string]float64

// Clone returns an independent copy.
func (r Rates) Clone() Rates {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Currencies returns the codes in ascending order.
func (r Rates) Currencies() []string {
	return slices.Sorted(maps.Keys(r))
}

// Table maps a day to the rates published for it.
type Table map[date.Date]Rates

// Clone deep-copies the table, so no two tables share a Rates map.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	for day, rates := range t {
		out[day] = rates.Clone()
	}
	return out
}

// Dates returns the days present in ascending order.
func (t Table) Dates() []date.Date {
	return slices.SortedFunc(maps.Keys(t), date.Date.Compare)
}

// Earliest returns the first day of the table, false when it is empty.
func (t Table) Earliest() (date.Date, bool) {
	var first date.Date
	found := false
	for day := range t {
		if !found || day.Before(first) {
			first, found = day, true
		}
	}
	return first, found
}

// Get returns the rate of currency on day.
func (t Table) Get(day date.Date, currency string) (float64, bool) {
	rates, ok := t[day]
	if !ok {
		return 0, false
	}
	rate, ok := rates[currency]
	return rate, ok
}

// Has reports whether currency appears on at least one day.
func (t Table) Has(currency string) bool {
	for _, rates := range t {
		if _, ok := rates[currency]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of (day, currency) cells.
func (t Table) Len() int {
	n := 0
	for _, rates := range t {
		n += len(rates)
	}
	return n
}
