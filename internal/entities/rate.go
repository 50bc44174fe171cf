package entities

import (
	"fmt"

	"github.com/langowen/fxledger/internal/date"
)

// RateObservation reads as "1 Source = Rate Target" on Date.
type RateObservation struct {
	Date   date.Date
	Source string
	Target string
	Rate   float64
}

func NewObservation(day date.Date, source, target string, rate float64) RateObservation {
	return RateObservation{
		Date:   day,
		Source: source,
		Target: target,
		Rate:   rate,
	}
}

func (o RateObservation) String() string {
	return fmt.Sprintf("%s %s/%s=%g", o.Date, o.Source, o.Target, o.Rate)
}

// Row is one flattened ledger line: 1 BaseCurrency = ExchangeRate TargetCurrency.
type Row struct {
	Date           date.Date `json:"date"`
	BaseCurrency   string    `json:"base_currency"`
	TargetCurrency string    `json:"target_currency"`
	ExchangeRate   float64   `json:"exchange_rate"`
}

// DayRates is every rate of one base currency on one day.
type DayRates struct {
	Base  string             `json:"base"`
	Date  date.Date          `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// RatesUpdated announces a committed load.
type RatesUpdated struct {
	Table   string    `json:"table"`
	Bases   []string  `json:"bases"`
	From    date.Date `json:"from"`
	Through date.Date `json:"through"`
	Rows    int64     `json:"rows"`
}
