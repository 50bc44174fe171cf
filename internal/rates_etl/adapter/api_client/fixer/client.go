// Package fixer reads exchange rates from the Fixer API (https://fixer.io/documentation).
package fixer

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
	"github.com/pkg/errors"
)

const DefaultURL = "http://data.fixer.io/api"

// ErrAPI is returned when Fixer answers with "success": false.
var ErrAPI = errors.New("fixer api error")

type Getter interface {
	GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error
}

type Client struct {
	http    Getter
	baseURL string
	apiKey  string
	base    string
	today   func() date.Date
}

func NewClient(getter Getter, baseURL, apiKey, base string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		http:    getter,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		base:    strings.ToUpper(base),
		today:   date.Today,
	}
}

// Pivot returns the base currency requested from Fixer.
func (c *Client) Pivot() string { return c.base }

type response struct {
	Success bool               `json:"success"`
	Base    string             `json:"base"`
	Date    string             `json:"date"`
	Rates   map[string]float64 `json:"rates"`
	Error   *struct {
		Code int    `json:"code"`
		Type string `json:"type"`
		Info string `json:"info"`
	} `json:"error"`
}

// Latest returns the most recent base->currency rate.
func (c *Client) Latest(ctx context.Context, currency string) (entities.RateObservation, error) {
	const op = "fixer.Latest"

	obs, err := c.fetch(ctx, "latest", currency)
	if err != nil {
		return entities.RateObservation{}, errors.Wrap(err, op)
	}
	return obs, nil
}

// Historical returns the base->currency rate published for day.
func (c *Client) Historical(ctx context.Context, currency string, day date.Date) (entities.RateObservation, error) {
	const op = "fixer.Historical"

	obs, err := c.fetch(ctx, day.String(), currency)
	if err != nil {
		return entities.RateObservation{}, errors.Wrap(err, op)
	}
	return obs, nil
}

// ListRates requests every day from start through today, one call per day.
func (c *Client) ListRates(ctx context.Context, currency string, start date.Date) ([]entities.RateObservation, error) {
	const op = "fixer.ListRates"

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == c.base {
		return nil, nil
	}

	today := c.today()
	out := make([]entities.RateObservation, 0, max(start.DaysUntil(today)+1, 0))

	for day := start; !day.After(today); day = day.Add(1) {
		var (
			obs entities.RateObservation
			err error
		)
		// Today's rate may not be published as historical yet.
		if day == today {
			obs, err = c.Latest(ctx, currency)
		} else {
			obs, err = c.Historical(ctx, currency, day)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "%s: %s on %s", op, currency, day)
		}
		// Fixer answers a weekend request with the last business day.
		if n := len(out); n > 0 && out[n-1].Date == obs.Date {
			continue
		}
		out = append(out, obs)
	}

	return out, nil
}

func (c *Client) fetch(ctx context.Context, endpoint, currency string) (entities.RateObservation, error) {
	query := url.Values{
		"access_key": {c.apiKey},
		"base":       {c.base},
		"symbols":    {currency},
	}

	var resp response
	if err := c.http.GetJSON(ctx, c.baseURL+"/"+endpoint, query, &resp); err != nil {
		return entities.RateObservation{}, err
	}

	if !resp.Success {
		if resp.Error != nil {
			return entities.RateObservation{}, fmt.Errorf("%w: %s (%d)", ErrAPI, resp.Error.Type, resp.Error.Code)
		}
		return entities.RateObservation{}, ErrAPI
	}

	rate, ok := resp.Rates[currency]
	if !ok {
		return entities.RateObservation{}, fmt.Errorf("%w: no rate for %s", ErrAPI, currency)
	}

	day, err := date.Parse(resp.Date)
	if err != nil {
		return entities.RateObservation{}, err
	}

	base := resp.Base
	if base == "" {
		base = c.base
	}

	return entities.NewObservation(day, base, currency, rate), nil
}
