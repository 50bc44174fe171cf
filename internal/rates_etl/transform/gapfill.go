package transform

import (
	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
)

// Fill returns a table holding one entry per calendar day from the earliest
// day of table through the given day, inclusive. A day missing from table
// receives a copy of the most recent known day.
func Fill(table Table, through date.Date) (Table, error) {
	first, ok := table.Earliest()
	if !ok {
		return nil, entities.ErrEmptyInput
	}

	days := first.DaysUntil(through) + 1
	if days < 0 {
		days = 0
	}
	out := make(Table, days)

	var last Rates
	for day := first; !day.After(through); day = day.Add(1) {
		if rates, ok := table[day]; ok {
			last = rates
		}
		if last == nil {
			continue
		}
		out[day] = last.Clone()
	}

	return out, nil
}
