// Package ecb reads daily euro foreign exchange reference rates from the
// European Central Bank data API (https://data.ecb.europa.eu/help/api/data).
package ecb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
	"github.com/langowen/fxledger/internal/rates_etl/adapter/api_client/httpretry"
	"github.com/pkg/errors"
)

const (
	DefaultURL = "https://data-api.ecb.europa.eu/service/data/EXR/"

	// Pivot is the currency every ECB series is quoted against.
	Pivot = "EUR"

	frequency  = "D"
	rateType   = "SP00"
	seriesKind = "A"
	seriesKey  = "0:0:0:0:0"
)

type Getter interface {
	GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error
}

type Client struct {
	http    Getter
	baseURL string
	today   func() date.Date
}

func NewClient(getter Getter, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		http:    getter,
		baseURL: baseURL,
		today:   date.Today,
	}
}

// Pivot returns the currency observations are quoted against.
func (c *Client) Pivot() string { return Pivot }

// resource identifies a series: frequency, measured currency, reference
// currency, rate type and series variation, e.g. D.USD.EUR.SP00.A.
func resource(currency string) string {
	return strings.Join([]string{frequency, currency, Pivot, rateType, seriesKind}, ".")
}

type response struct {
	DataSets []struct {
		Series map[string]struct {
			Observations map[string][]*float64 `json:"observations"`
		} `json:"series"`
	} `json:"dataSets"`
	Structure struct {
		Dimensions struct {
			Observation []struct {
				ID     string `json:"id"`
				Values []struct {
					ID string `json:"id"`
				} `json:"values"`
			} `json:"observation"`
		} `json:"dimensions"`
	} `json:"structure"`
}

// ListRates returns one EUR->currency observation per published day from
// start through today.
func (c *Client) ListRates(ctx context.Context, currency string, start date.Date) ([]entities.RateObservation, error) {
	const op = "ecb.ListRates"

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == Pivot {
		return nil, nil
	}

	query := url.Values{
		"startPeriod":    {start.String()},
		"endPeriod":      {c.today().String()},
		"detail":         {"dataonly"},
		"includeHistory": {"false"},
		"format":         {"jsondata"},
	}

	var resp response
	if err := c.http.GetJSON(ctx, c.baseURL+resource(currency), query, &resp); err != nil {
		// The ECB answers 404 when the period holds no published day.
		var statusErr *httpretry.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "%s: %s", op, currency)
	}

	observations, err := resp.observations(currency)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}

	return observations, nil
}

func (r response) observations(currency string) ([]entities.RateObservation, error) {
	if len(r.DataSets) == 0 || len(r.Structure.Dimensions.Observation) == 0 {
		return nil, nil
	}

	series, ok := r.DataSets[0].Series[seriesKey]
	if !ok {
		return nil, nil
	}
	periods := r.Structure.Dimensions.Observation[0].Values

	out := make([]entities.RateObservation, 0, len(series.Observations))
	for key, values := range series.Observations {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(periods) {
			return nil, fmt.Errorf("%s: unknown observation index %q", currency, key)
		}
		if len(values) == 0 || values[0] == nil {
			continue
		}

		day, err := date.Parse(periods[idx].ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", currency, err)
		}

		out = append(out, entities.NewObservation(day, Pivot, currency, *values[0]))
	}

	slices.SortStableFunc(out, func(a, b entities.RateObservation) int {
		return a.Date.Compare(b.Date)
	})

	return out, nil
}
