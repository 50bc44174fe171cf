package transform

import (
	"fmt"

	"github.com/langowen/fxledger/internal/entities"
)

// Rebase re-expresses a dense table against base, dividing each rate of a
// day by base's rate on that same day. Days on which base has no rate are
// left out. No rounding is applied.
func Rebase(dense Table, base string) (Table, error) {
	base = normalizeCode(base)
	if !dense.Has(base) {
		return nil, fmt.Errorf("%w: %q has no rate in the table", entities.ErrInvalidBaseCurrency, base)
	}

	out := make(Table, len(dense))
	for day, rates := range dense {
		p, ok := rates[base]
		if !ok || p <= 0 {
			continue
		}

		rebased := make(Rates, len(rates))
		for currency, rate := range rates {
			rebased[currency] = rate / p
		}
		out[day] = rebased
	}

	return out, nil
}
