package transform

import (
	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
)

func obs(day, source, target string, rate float64) entities.RateObservation {
	return entities.NewObservation(date.MustParse(day), source, target, rate)
}

// sampleObservations mirrors an ECB week: EUR quoted against three currencies,
// with the weekend missing and USD also reported inverted.
func sampleObservations() []entities.RateObservation {
	return []entities.RateObservation{
		obs("2023-08-04", "EUR", "USD", 1.10),
		obs("2023-08-04", "EUR", "CZK", 24.20),
		obs("2023-08-04", "GBP", "EUR", 1.16),
		obs("2023-08-07", "EUR", "USD", 1.12),
		obs("2023-08-07", "EUR", "CZK", 24.05),
		obs("2023-08-07", "GBP", "EUR", 1.15),
	}
}

func sampleDense() Table {
	table, err := Build("EUR", sampleObservations())
	if err != nil {
		panic(err)
	}
	dense, err := Fill(table, date.MustParse("2023-08-07"))
	if err != nil {
		panic(err)
	}
	return dense
}
