package transform

import (
	"fmt"
	"math"
	"strings"

	"github.com/langowen/fxledger/internal/entities"
)

// Build groups observations by day into a table referenced on pivot.
//
// An observation pivot->X stores X as is, X->pivot stores the inverse, and
// pairs not involving the pivot are skipped. The pivot is 1.0 on every day.
// When two observations target the same day and currency the later one wins.
func Build(pivot string, observations []entities.RateObservation) (Table, error) {
	pivot = normalizeCode(pivot)
	if pivot == "" {
		return nil, fmt.Errorf("%w: empty pivot currency", entities.ErrValidation)
	}

	table := make(Table)

	for i, obs := range observations {
		if err := validate(obs); err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}

		source, target := normalizeCode(obs.Source), normalizeCode(obs.Target)

		var (
			currency string
			rate     float64
		)

		switch {
		case source == pivot && target == pivot:
			continue
		case source == pivot:
			currency, rate = target, obs.Rate
		case target == pivot:
			inverted, err := invert(obs.Rate)
			if err != nil {
				return nil, fmt.Errorf("observation %d (%s): %w", i, obs, err)
			}
			currency, rate = source, inverted
		default:
			continue
		}

		rates, ok := table[obs.Date]
		if !ok {
			rates = Rates{pivot: 1.0}
			table[obs.Date] = rates
		}
		rates[currency] = rate
	}

	return table, nil
}

func validate(obs entities.RateObservation) error {
	switch {
	case obs.Date.IsZero():
		return fmt.Errorf("%w: missing date in %s", entities.ErrValidation, obs)
	case normalizeCode(obs.Source) == "" || normalizeCode(obs.Target) == "":
		return fmt.Errorf("%w: missing currency in %s", entities.ErrValidation, obs)
	case math.IsNaN(obs.Rate) || math.IsInf(obs.Rate, 0):
		return fmt.Errorf("%w: rate is not finite in %s", entities.ErrValidation, obs)
	case obs.Rate <= 0:
		return fmt.Errorf("%w: rate must be positive in %s", entities.ErrValidation, obs)
	}
	return nil
}

func invert(rate float64) (float64, error) {
	if rate == 0 {
		return 0, fmt.Errorf("%w: cannot invert a zero rate", entities.ErrValidation)
	}
	return 1 / rate, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
