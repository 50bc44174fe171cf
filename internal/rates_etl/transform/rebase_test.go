package transform

import (
	"testing"

	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebaseExample(t *testing.T) {
	table, err := Build("EUR", []entities.RateObservation{
		obs("2023-08-04", "EUR", "USD", 1.10),
		obs("2023-08-07", "EUR", "USD", 1.12),
	})
	require.NoError(t, err)
	dense, err := Fill(table, date.MustParse("2023-08-07"))
	require.NoError(t, err)

	usd, err := Rebase(dense, "USD")
	require.NoError(t, err)

	assert.InDelta(t, 0.9091, usd[date.MustParse("2023-08-04")]["EUR"], 1e-4)
	assert.InDelta(t, 1/1.12, usd[date.MustParse("2023-08-07")]["EUR"], 1e-12)
	assert.Equal(t, 1.0, usd[date.MustParse("2023-08-04")]["USD"])
}

func TestRebaseSelfRateIsOne(t *testing.T) {
	dense := sampleDense()

	for _, base := range []string{"EUR", "USD", "CZK", "GBP"} {
		rebased, err := Rebase(dense, base)
		require.NoError(t, err)
		require.Len(t, rebased, len(dense))

		for day, rates := range rebased {
			assert.Equal(t, 1.0, rates[base], "%s on %s", base, day)
		}
	}
}

func TestRebaseTriangulation(t *testing.T) {
	dense := sampleDense()
	currencies := []string{"EUR", "USD", "CZK", "GBP"}

	rebased := make(map[string]Table, len(currencies))
	for _, c := range currencies {
		table, err := Rebase(dense, c)
		require.NoError(t, err)
		rebased[c] = table
	}

	for _, day := range dense.Dates() {
		for _, a := range currencies {
			for _, b := range currencies {
				for _, c := range currencies {
					got := rebased[a][day][b] * rebased[b][day][c]
					assert.InEpsilon(t, rebased[a][day][c], got, 1e-12, "%s %s/%s/%s", day, a, b, c)
				}
			}
		}
	}
}

func TestRebaseToPivotIsIdentity(t *testing.T) {
	dense := sampleDense()

	eur, err := Rebase(dense, "EUR")
	require.NoError(t, err)
	assert.Equal(t, dense, eur)
}

func TestRebaseUnknownBase(t *testing.T) {
	_, err := Rebase(sampleDense(), "XYZ")
	assert.ErrorIs(t, err, entities.ErrInvalidBaseCurrency)
}

func TestRebaseSkipsDaysWithoutBase(t *testing.T) {
	table, err := Build("EUR", []entities.RateObservation{
		obs("2023-08-04", "EUR", "USD", 1.10),
		obs("2023-08-05", "EUR", "USD", 1.11),
		obs("2023-08-05", "EUR", "PLN", 4.4),
	})
	require.NoError(t, err)

	pln, err := Rebase(table, "PLN")
	require.NoError(t, err)
	assert.Len(t, pln, 1)
	assert.Contains(t, pln, date.MustParse("2023-08-05"))
}

func TestRebaseDoesNotMutateInput(t *testing.T) {
	dense := sampleDense()
	before := dense.Clone()

	_, err := Rebase(dense, "USD")
	require.NoError(t, err)
	assert.Equal(t, before, dense)
}
