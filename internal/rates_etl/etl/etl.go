package etl

import (
	"context"
	"log/slog"
	"time"

	"github.com/langowen/fxledger/internal/date"
	"github.com/langowen/fxledger/internal/entities"
	"github.com/langowen/fxledger/internal/rates_etl/metrics"
	"github.com/langowen/fxledger/internal/rates_etl/transform"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	StageExtract   = "extract"
	StageTransform = "transform"
	StageLoad      = "load"
)

type Params struct {
	Provider    string
	Table       string
	Start       date.Date
	Pivot       string
	Bases       []string
	Targets     []string
	Interval    time.Duration
	Concurrency int
}

// Report summarises one successful run.
type Report struct {
	From         date.Date
	Through      date.Date
	Observations int
	Bases        []string
	Rows         int64
}

type ETL struct {
	extractor Extractor
	storage   Storage
	notifier  Notifier
	metrics   *metrics.ETLMetrics
	params    Params
	today     func() date.Date
}

// NewETL wires the pipeline; notifier may be nil.
func NewETL(extractor Extractor, storage Storage, notifier Notifier, m *metrics.ETLMetrics, params Params) *ETL {
	if params.Concurrency <= 0 {
		params.Concurrency = 1
	}
	return &ETL{
		extractor: extractor,
		storage:   storage,
		notifier:  notifier,
		metrics:   m,
		params:    params,
		today:     date.Today,
	}
}

// Start runs the pipeline once, then on every Interval tick until ctx is
// done. With a zero Interval the first run's error is returned.
func (e *ETL) Start(ctx context.Context) error {
	const op = "etl.Start"

	if _, err := e.Run(ctx); err != nil && e.params.Interval <= 0 {
		return errors.Wrap(err, op)
	}
	if e.params.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(e.params.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Failures are already logged by Run; the next tick retries.
			_, _ = e.Run(ctx)
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), op)
		}
	}
}

// Run extracts, transforms and loads once. Nothing is written when a stage
// before the load fails.
func (e *ETL) Run(ctx context.Context) (Report, error) {
	const op = "etl.Run"

	started := time.Now()
	through := e.today()
	log := slog.With("op", op, "from", e.params.Start, "through", through)

	fail := func(stage string, err error, args ...any) (Report, error) {
		e.metrics.RecordFailure(stage, time.Since(started))
		log.Error("run failed", append([]any{"stage", stage, "error", err}, args...)...)
		return Report{}, errors.Wrapf(err, "%s: %s", op, stage)
	}

	log.Info("run started", "targets", e.params.Targets, "bases", e.params.Bases)

	observations, err := e.extract(ctx)
	if err != nil {
		return fail(StageExtract, err, "targets", e.params.Targets)
	}

	ledger, err := e.transform(observations, through)
	if err != nil {
		return fail(StageTransform, err, "bases", e.params.Bases)
	}

	rows, err := e.load(ctx, ledger)
	if err != nil {
		return fail(StageLoad, err, "table", e.params.Table)
	}

	report := Report{
		From:         e.params.Start,
		Through:      through,
		Observations: len(observations),
		Bases:        ledger.Bases(),
		Rows:         rows,
	}

	e.notify(ctx, ledger, report)

	e.metrics.RecordSuccess(time.Since(started))
	log.Info("run finished", "observations", report.Observations, "bases", report.Bases, "rows", report.Rows,
		"took", time.Since(started))

	return report, nil
}

// extract fetches every target concurrently and keeps the result in target
// order, so later observations for the same day stay later.
func (e *ETL) extract(ctx context.Context) ([]entities.RateObservation, error) {
	results := make([][]entities.RateObservation, len(e.params.Targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.params.Concurrency)

	for i, currency := range e.params.Targets {
		g.Go(func() error {
			started := time.Now()

			observations, err := e.extractor.ListRates(gctx, currency, e.params.Start)
			if err != nil {
				return errors.Wrapf(err, "fetch %s", currency)
			}

			e.metrics.RecordFetch(e.params.Provider, currency, len(observations), time.Since(started))
			slog.Debug("currency fetched", "currency", currency, "observations", len(observations))

			results[i] = observations
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []entities.RateObservation
	for _, observations := range results {
		out = append(out, observations...)
	}

	return out, nil
}

func (e *ETL) transform(observations []entities.RateObservation, through date.Date) (*transform.Ledger, error) {
	table, err := transform.Build(e.params.Pivot, observations)
	if err != nil {
		return nil, err
	}

	dense, err := transform.Fill(table, through)
	if err != nil {
		return nil, err
	}

	ledger := transform.NewLedger(dense, e.params.Pivot)
	for _, base := range e.params.Bases {
		if _, err := ledger.ComputeBase(base); err != nil {
			return nil, errors.Wrapf(err, "base %s", base)
		}
	}

	return ledger, nil
}

func (e *ETL) load(ctx context.Context, ledger *transform.Ledger) (int64, error) {
	if err := e.storage.EnsureTable(ctx, e.params.Table); err != nil {
		return 0, err
	}

	rows, err := e.storage.UpsertRows(ctx, e.params.Table, ledger.Rows())
	if err != nil {
		return 0, err
	}

	e.metrics.RecordRows(e.params.Table, rows)

	return rows, nil
}

// notify refreshes the latest-rates cache and announces the load. The rows
// are already committed, so failures here are only logged.
func (e *ETL) notify(ctx context.Context, ledger *transform.Ledger, report Report) {
	const op = "etl.notify"

	if e.notifier == nil {
		return
	}

	for _, base := range ledger.Bases() {
		latest, ok := latestRates(ledger, base)
		if !ok {
			continue
		}
		if err := e.notifier.SaveLatest(ctx, latest); err != nil {
			slog.Warn("latest rates not cached", "op", op, "base", base, "error", err)
		}
	}

	event := entities.RatesUpdated{
		Table:   e.params.Table,
		Bases:   report.Bases,
		From:    report.From,
		Through: report.Through,
		Rows:    report.Rows,
	}
	if err := e.notifier.PublishUpdated(ctx, event); err != nil {
		slog.Warn("update not published", "op", op, "error", err)
	}
}

func latestRates(ledger *transform.Ledger, base string) (entities.DayRates, bool) {
	table, ok := ledger.Table(base)
	if !ok {
		return entities.DayRates{}, false
	}
	dates := table.Dates()
	if len(dates) == 0 {
		return entities.DayRates{}, false
	}
	last := dates[len(dates)-1]

	return entities.DayRates{
		Base:  base,
		Date:  last,
		Rates: table[last].Clone(),
	}, true
}
