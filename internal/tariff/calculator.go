package tariff

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBase prices packages no tariff row matches.
var DefaultBase = decimal.NewFromInt(5000)

var insuranceRate = decimal.RequireFromString("0.01")

// Lookup returns the rows that may price a package. Implementations may
// pre-filter; the calculator re-checks eligibility itself.
type Lookup interface {
	Candidates(ctx context.Context, class ServiceClass, weight decimal.Decimal, today time.Time) ([]Tariff, error)
}

// Recorder counts computations by Source.
type Recorder interface {
	ObserveTariffLookup(source string)
}

// Calculator computes tariff breakdowns.
type Calculator struct {
	lookup      Lookup
	logger      *slog.Logger
	recorder    Recorder
	defaultBase decimal.Decimal
	now         func() time.Time
}

// CalculatorOption customises a Calculator.
type CalculatorOption func(*Calculator)

// WithDefaultBase overrides the base used when no row matches.
func WithDefaultBase(base decimal.Decimal) CalculatorOption {
	return func(c *Calculator) { c.defaultBase = base }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) CalculatorOption {
	return func(c *Calculator) { c.recorder = r }
}

// WithClock overrides the clock deciding which rows are valid today.
func WithClock(now func() time.Time) CalculatorOption {
	return func(c *Calculator) { c.now = now }
}

// NewCalculator builds a Calculator over lookup.
func NewCalculator(lookup Lookup, logger *slog.Logger, opts ...CalculatorOption) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Calculator{
		lookup:      lookup,
		logger:      logger,
		defaultBase: DefaultBase,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute prices a package against the live tariff table. It never fails:
// lookup errors are logged and priced at the default base.
func (c *Calculator) Compute(ctx context.Context, in Input) Breakdown {
	today := c.now()
	rows, err := c.lookup.Candidates(ctx, in.Priority.ServiceClass(), in.Weight, today)
	var b Breakdown
	if err != nil {
		c.logger.Warn("tariff lookup failed, using default base",
			slog.String("priority", string(in.Priority)),
			slog.String("weight", in.Weight.String()),
			slog.Any("error", err))
		b = c.price(nil, in, SourceFallback)
	} else {
		b = c.ComputeWith(rows, in, today)
	}
	if c.recorder != nil {
		c.recorder.ObserveTariffLookup(string(b.Source))
	}
	return b
}

// ComputeWith prices a package against a table snapshot. Identical inputs
// always yield identical output.
func (c *Calculator) ComputeWith(rows []Tariff, in Input, today time.Time) Breakdown {
	row, ok := Select(rows, in.Weight, in.Priority.ServiceClass(), today)
	if !ok {
		return c.price(nil, in, SourceDefault)
	}
	return c.price(&row, in, SourceTable)
}

func (c *Calculator) price(row *Tariff, in Input, source Source) Breakdown {
	b := Breakdown{
		Base:               c.defaultBase,
		DistanceSurcharge:  decimal.Zero,
		WeightSurcharge:    decimal.Zero,
		InsuranceSurcharge: decimal.Zero,
		Source:             source,
	}
	if row != nil {
		id := row.ID
		b.Base = row.Price
		b.TariffID = &id
	}
	b.Base = b.Base.Round(2)
	b.ExpressSurcharge = b.Base.Mul(in.Priority.surchargeRate()).Round(2)
	if in.Insured && in.DeclaredValue.IsPositive() {
		b.InsuranceSurcharge = in.DeclaredValue.Mul(insuranceRate).Round(2)
	}
	return b
}

// Select picks the row that prices a package: the narrowest eligible weight
// range, then the most recent valid_from, then the lowest id.
func Select(rows []Tariff, weight decimal.Decimal, class ServiceClass, today time.Time) (Tariff, bool) {
	var best Tariff
	found := false
	for _, row := range rows {
		if !row.Eligible(weight, class, today) {
			continue
		}
		if !found || preferred(row, best) {
			best = row
			found = true
		}
	}
	return best, found
}

func preferred(a, b Tariff) bool {
	if c := a.weightSpan().Cmp(b.weightSpan()); c != 0 {
		return c < 0
	}
	if !a.ValidFrom.Equal(b.ValidFrom) {
		return a.ValidFrom.After(b.ValidFrom)
	}
	return a.ID < b.ID
}
