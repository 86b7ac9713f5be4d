/*
Package factory provides JSON to Go conversion for declared ranges.

PURPOSE:
  Converts JSON definitions of planned operations and budgets into
  core.PlannedOperation and core.Budget values, and back. The API and the
  seed file loader both go through here so defaults live in one place.

JSON SCHEMA:
  {
    "description": "Rent",
    "amount": "-950.00",
    "currency": "EUR",
    "category": "rent",
    "start_date": "2025-01-05",
    "duration": {"days": 1},
    "period": {"months": 1},
    "end_date": "2025-12-31",
    "matcher": {
      "description_hints": ["RENT"],
      "approximation_days": 5,
      "approximation_amount_ratio": 0.05
    }
  }

DEFAULTS:
  - currency: the factory's default currency
  - category: "uncategorized"
  - duration: 1 day for planned operations; the period (or 1 month) for
    budgets
  - period absent: one-off span; end_date absent: recurs forever
  - matcher: 5 days / 5% for planned operations, 0 days / unbounded for
    budgets. An omitted ratio means the kind's default.

USAGE:
  f := factory.NewRangeFactory("EUR")
  rent, err := f.ParsePlannedOperation(data)

SEE ALSO:
  - core/types.go: PlannedOperation and Budget
  - core/interval.go: Span and PeriodicSpan
*/
package factory

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/warp/budget-forecaster/core"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RangeJSON is the JSON representation of a planned operation or budget.
type RangeJSON struct {
	ID          core.RangeID    `json:"id,omitempty"`
	Kind        core.RangeKind  `json:"kind,omitempty"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	Category    string          `json:"category,omitempty"`
	StartDate   string          `json:"start_date"`
	Duration    *core.Delta     `json:"duration,omitempty"`
	Period      *core.Delta     `json:"period,omitempty"`
	EndDate     string          `json:"end_date,omitempty"`
	Matcher     *MatcherJSON    `json:"matcher,omitempty"`
}

// MatcherJSON carries the heuristic tolerances. A nil ratio means the
// default for the range kind; budgets default to unbounded.
type MatcherJSON struct {
	DescriptionHints         []string `json:"description_hints,omitempty"`
	ApproximationDays        *int     `json:"approximation_days,omitempty"`
	ApproximationAmountRatio *float64 `json:"approximation_amount_ratio,omitempty"`
}

// ForecastJSON is a whole forecast, used for seed files.
type ForecastJSON struct {
	PlannedOperations []RangeJSON `json:"planned_operations"`
	Budgets           []RangeJSON `json:"budgets"`
}

// =============================================================================
// RANGE FACTORY
// =============================================================================

type RangeFactory struct {
	DefaultCurrency string
}

func NewRangeFactory(defaultCurrency string) *RangeFactory {
	return &RangeFactory{DefaultCurrency: defaultCurrency}
}

func (f *RangeFactory) ParsePlannedOperation(data []byte) (core.PlannedOperation, error) {
	var rj RangeJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return core.PlannedOperation{}, fmt.Errorf("%w: %v", core.ErrInvalidRange, err)
	}
	return f.PlannedOperation(rj)
}

func (f *RangeFactory) ParseBudget(data []byte) (core.Budget, error) {
	var rj RangeJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return core.Budget{}, fmt.Errorf("%w: %v", core.ErrInvalidRange, err)
	}
	return f.Budget(rj)
}

// ParseForecast converts a seed file. Ids in the file are ignored.
func (f *RangeFactory) ParseForecast(data []byte) (core.Forecast, error) {
	var fj ForecastJSON
	if err := json.Unmarshal(data, &fj); err != nil {
		return core.Forecast{}, fmt.Errorf("%w: %v", core.ErrInvalidRange, err)
	}
	var out core.Forecast
	for i, rj := range fj.PlannedOperations {
		p, err := f.PlannedOperation(rj)
		if err != nil {
			return core.Forecast{}, fmt.Errorf("planned operation %d: %w", i, err)
		}
		out.PlannedOperations = append(out.PlannedOperations, p)
	}
	for i, rj := range fj.Budgets {
		b, err := f.Budget(rj)
		if err != nil {
			return core.Forecast{}, fmt.Errorf("budget %d: %w", i, err)
		}
		out.Budgets = append(out.Budgets, b)
	}
	return out, nil
}

// PlannedOperation builds an unpersisted planned operation from rj.
func (f *RangeFactory) PlannedOperation(rj RangeJSON) (core.PlannedOperation, error) {
	rng, err := f.operationRange(rj, core.Days(1), core.DefaultPlannedMatcherParams())
	if err != nil {
		return core.PlannedOperation{}, err
	}
	return core.NewPlannedOperation(rng)
}

// Budget builds an unpersisted budget from rj.
func (f *RangeFactory) Budget(rj RangeJSON) (core.Budget, error) {
	duration := core.Months(1)
	if rj.Period != nil {
		duration = *rj.Period
	}
	rng, err := f.operationRange(rj, duration, core.DefaultBudgetMatcherParams())
	if err != nil {
		return core.Budget{}, err
	}
	return core.NewBudget(rng)
}

func (f *RangeFactory) operationRange(rj RangeJSON, defaultDuration core.Delta, params core.MatcherParams) (core.OperationRange, error) {
	currency := rj.Currency
	if currency == "" {
		currency = f.DefaultCurrency
	}
	category := core.Category(rj.Category)
	if category == "" {
		category = core.CategoryUncategorized
	}
	iv, err := Interval(rj.StartDate, rj.Duration, rj.Period, rj.EndDate, defaultDuration)
	if err != nil {
		return core.OperationRange{}, err
	}
	if rj.Matcher != nil {
		params.DescriptionHints = rj.Matcher.DescriptionHints
		if rj.Matcher.ApproximationDays != nil {
			params.ApproximationDays = *rj.Matcher.ApproximationDays
		}
		if rj.Matcher.ApproximationAmountRatio != nil {
			params.ApproximationAmountRatio = *rj.Matcher.ApproximationAmountRatio
		}
	}
	return core.OperationRange{
		Description: rj.Description,
		Amount:      core.Amount{Value: rj.Amount, Currency: currency},
		Category:    category,
		Interval:    iv,
		Matcher:     params,
	}, nil
}

// Interval builds a Span, or a PeriodicSpan when period is set.
func Interval(startDate string, duration, period *core.Delta, endDate string, defaultDuration core.Delta) (core.Interval, error) {
	start, err := core.ParseDate(startDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date: %v", core.ErrInvalidInterval, err)
	}
	d := defaultDuration
	if duration != nil {
		d = *duration
	}
	span, err := core.NewSpan(start, d)
	if err != nil {
		return nil, err
	}
	if period == nil {
		if endDate != "" {
			return nil, fmt.Errorf("%w: end_date requires a period", core.ErrInvalidInterval)
		}
		return span, nil
	}
	var until core.Date
	if endDate != "" {
		if until, err = core.ParseDate(endDate); err != nil {
			return nil, fmt.Errorf("%w: end_date: %v", core.ErrInvalidInterval, err)
		}
	}
	return core.NewPeriodicSpan(span, *period, until)
}

// =============================================================================
// GO TO JSON
// =============================================================================

// ToJSON converts a range for API responses.
func ToJSON(r core.DeclaredRange) RangeJSON {
	rng := r.Range()
	duration := core.OccurrenceDuration(rng.Interval)
	rj := RangeJSON{
		ID:          r.RangeID(),
		Kind:        r.Kind(),
		Description: rng.Description,
		Amount:      rng.Amount.Value,
		Currency:    rng.Amount.Currency,
		Category:    string(rng.Category),
		StartDate:   rng.Interval.InitialDate().String(),
		Duration:    &duration,
	}
	if p, ok := rng.Interval.(core.PeriodicSpan); ok {
		period := p.Period()
		rj.Period = &period
		if !p.IsUnbounded() {
			rj.EndDate = p.Expiration().String()
		}
	}

	days := rng.Matcher.ApproximationDays
	rj.Matcher = &MatcherJSON{
		DescriptionHints:  rng.Matcher.DescriptionHints,
		ApproximationDays: &days,
	}
	if ratio := rng.Matcher.ApproximationAmountRatio; !math.IsInf(ratio, 1) {
		rj.Matcher.ApproximationAmountRatio = &ratio
	}
	return rj
}

// ForecastToJSON converts a whole forecast.
func ForecastToJSON(f core.Forecast) ForecastJSON {
	out := ForecastJSON{
		PlannedOperations: make([]RangeJSON, 0, len(f.PlannedOperations)),
		Budgets:           make([]RangeJSON, 0, len(f.Budgets)),
	}
	for _, p := range f.PlannedOperations {
		out.PlannedOperations = append(out.PlannedOperations, ToJSON(p))
	}
	for _, b := range f.Budgets {
		out.Budgets = append(out.Budgets, ToJSON(b))
	}
	return out
}
