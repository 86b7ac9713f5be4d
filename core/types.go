/*
Package core provides the budget forecasting engine.

PURPOSE:
  This package contains the data model and algorithms that turn an
  account's recorded operations plus a declarative forecast (planned
  operations and budgets) into a view of the account at any date.

KEY CONCEPTS IN THIS FILE (types.go):
  - HistoricOperation: A recorded bank transaction (immutable)
  - PlannedOperation: An expected one-day flow, possibly recurring
  - Budget: An envelope of spending spread over a window, possibly recurring
  - OperationLink: Ties an operation to one occurrence of a range
  - Account / Forecast: The inputs of projection and reconciliation

DESIGN PRINCIPLES:
  1. Immutability: values are rebuilt through Replace, never mutated
  2. Precision: amounts use decimal.Decimal
  3. Type Safety: distinct id types for operations, ranges and links

USAGE:
  rent, _ := core.NewPlannedOperation(core.OperationRange{
      Description: "Rent",
      Amount:      core.NewAmount(-950, "EUR"),
      Category:    core.CategoryRent,
      Interval:    monthly,
  })

SEE ALSO:
  - interval.go: Span and PeriodicSpan
  - matcher.go: Heuristic matching of operations to ranges
  - projection.go: Account state at a date
  - reconcile.go: Forecast actualization
*/
package core

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OperationID int64
type RangeID int64
type LinkID int64

// Category labels operations and ranges. Free-form; the constants below are
// the ones the importer and UI know about.
type Category string

const (
	CategoryUncategorized Category = "uncategorized"
	CategorySalary        Category = "salary"
	CategoryRent          Category = "rent"
	CategoryGroceries     Category = "groceries"
	CategoryUtilities     Category = "utilities"
	CategoryTransport     Category = "transport"
	CategoryLeisure       Category = "leisure"
	CategoryHealth        Category = "health"
	CategorySavings       Category = "savings"
	CategoryOther         Category = "other"
)

// RangeKind distinguishes the two kinds of declared ranges. It is also the
// target type of an OperationLink.
type RangeKind string

const (
	KindPlannedOperation RangeKind = "planned_operation"
	KindBudget           RangeKind = "budget"
)

func (k RangeKind) Valid() bool { return k == KindPlannedOperation || k == KindBudget }

// =============================================================================
// MATCHER PARAMS - Heuristic tolerances attached to each range
// =============================================================================

type MatcherParams struct {
	// DescriptionHints must all appear in an operation's description. No
	// hints means the description is not checked.
	DescriptionHints []string
	// ApproximationDays widens each occurrence on both sides.
	ApproximationDays int
	// ApproximationAmountRatio bounds |op - amount| by |amount| * ratio.
	// +Inf accepts any amount.
	ApproximationAmountRatio float64
}

func DefaultPlannedMatcherParams() MatcherParams {
	return MatcherParams{ApproximationDays: 5, ApproximationAmountRatio: 0.05}
}

func DefaultBudgetMatcherParams() MatcherParams {
	return MatcherParams{ApproximationDays: 0, ApproximationAmountRatio: math.Inf(1)}
}

func (p MatcherParams) validate() error {
	if p.ApproximationDays < 0 {
		return fmt.Errorf("%w: negative approximation days", ErrInvalidRange)
	}
	if p.ApproximationAmountRatio < 0 || math.IsNaN(p.ApproximationAmountRatio) {
		return fmt.Errorf("%w: invalid amount ratio", ErrInvalidRange)
	}
	return nil
}

// =============================================================================
// HISTORIC OPERATION - Recorded transaction
// =============================================================================

type HistoricOperation struct {
	ID          OperationID
	Description string
	Amount      Amount
	Category    Category
	Date        Date
}

type OperationPatch struct {
	Description *string
	Amount      *Amount
	Category    *Category
	Date        *Date
}

// Replace returns a copy with the patched fields. The id never changes.
func (op HistoricOperation) Replace(p OperationPatch) HistoricOperation {
	if p.Description != nil {
		op.Description = *p.Description
	}
	if p.Amount != nil {
		op.Amount = *p.Amount
	}
	if p.Category != nil {
		op.Category = *p.Category
	}
	if p.Date != nil {
		op.Date = *p.Date
	}
	return op
}

func compareOperations(a, b HistoricOperation) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// SortOperations orders by date, then id.
func SortOperations(ops []HistoricOperation) {
	slices.SortStableFunc(ops, compareOperations)
}

// =============================================================================
// DECLARED RANGES - Planned operations and budgets
// =============================================================================

// OperationRange is the part shared by planned operations and budgets.
type OperationRange struct {
	Description string
	Amount      Amount
	Category    Category
	Interval    Interval
	Matcher     MatcherParams
}

// DeclaredRange is implemented by PlannedOperation and Budget.
type DeclaredRange interface {
	Kind() RangeKind
	RangeID() RangeID
	Range() OperationRange
}

type PlannedOperation struct {
	// ID is zero until the range is persisted.
	ID RangeID
	OperationRange
}

// NewPlannedOperation validates that every occurrence is a single day.
func NewPlannedOperation(r OperationRange) (PlannedOperation, error) {
	if err := validateRange(r); err != nil {
		return PlannedOperation{}, err
	}
	if OccurrenceDuration(r.Interval).normalize() != Days(1) {
		return PlannedOperation{}, fmt.Errorf("%w: planned operation %q must occur on single days", ErrInvalidRange, r.Description)
	}
	return PlannedOperation{OperationRange: r}, nil
}

func (p PlannedOperation) Kind() RangeKind { return KindPlannedOperation }
func (p PlannedOperation) RangeID() RangeID { return p.ID }
func (p PlannedOperation) Range() OperationRange { return p.OperationRange }

// WithInterval returns a copy attached to iv, keeping the id.
func (p PlannedOperation) WithInterval(iv Interval) PlannedOperation {
	p.Interval = iv
	return p
}

// SplitAt ends the recurrence before d and starts a new one from the first
// occurrence on or after d, optionally with a new amount or period.
func (p PlannedOperation) SplitAt(d Date, newAmount *Amount, newPeriod *Delta) (PlannedOperation, PlannedOperation, error) {
	terminated, continuation, err := splitRange(p.OperationRange, d, newAmount, newPeriod, nil)
	if err != nil {
		return PlannedOperation{}, PlannedOperation{}, err
	}
	return PlannedOperation{ID: p.ID, OperationRange: terminated}, PlannedOperation{OperationRange: continuation}, nil
}

type Budget struct {
	// ID is zero until the range is persisted.
	ID RangeID
	OperationRange
}

func NewBudget(r OperationRange) (Budget, error) {
	if err := validateRange(r); err != nil {
		return Budget{}, err
	}
	return Budget{OperationRange: r}, nil
}

func (b Budget) Kind() RangeKind { return KindBudget }
func (b Budget) RangeID() RangeID { return b.ID }
func (b Budget) Range() OperationRange { return b.OperationRange }

func (b Budget) WithInterval(iv Interval) Budget {
	b.Interval = iv
	return b
}

func (b Budget) WithAmount(a Amount) Budget {
	b.Amount = a
	return b
}

func (b Budget) SplitAt(d Date, newAmount *Amount, newPeriod, newDuration *Delta) (Budget, Budget, error) {
	terminated, continuation, err := splitRange(b.OperationRange, d, newAmount, newPeriod, newDuration)
	if err != nil {
		return Budget{}, Budget{}, err
	}
	return Budget{ID: b.ID, OperationRange: terminated}, Budget{OperationRange: continuation}, nil
}

func validateRange(r OperationRange) error {
	if r.Interval == nil {
		return fmt.Errorf("%w: %q has no interval", ErrInvalidRange, r.Description)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: empty description", ErrInvalidRange)
	}
	if r.Amount.Currency == "" {
		return fmt.Errorf("%w: %q has no currency", ErrInvalidRange, r.Description)
	}
	return r.Matcher.validate()
}

func splitRange(r OperationRange, d Date, newAmount *Amount, newPeriod, newDuration *Delta) (OperationRange, OperationRange, error) {
	periodic, ok := r.Interval.(PeriodicSpan)
	if !ok {
		return OperationRange{}, OperationRange{}, fmt.Errorf("%w: only periodic ranges can be split", ErrInvalidRange)
	}
	terminatedIv, continuationIv, err := periodic.SplitAt(d)
	if err != nil {
		return OperationRange{}, OperationRange{}, err
	}
	if newPeriod != nil || newDuration != nil {
		continuationIv, err = continuationIv.Replace(PeriodicPatch{Period: newPeriod, Duration: newDuration})
		if err != nil {
			return OperationRange{}, OperationRange{}, err
		}
	}

	terminated, continuation := r, r
	terminated.Interval = terminatedIv
	continuation.Interval = continuationIv
	continuation.Matcher.DescriptionHints = slices.Clone(r.Matcher.DescriptionHints)
	if newAmount != nil {
		continuation.Amount = *newAmount
	}
	return terminated, continuation, nil
}

// =============================================================================
// OPERATION LINK - Operation to range occurrence
// =============================================================================

type OperationLink struct {
	ID            LinkID
	OperationID   OperationID
	TargetKind    RangeKind
	TargetID      RangeID
	IterationDate Date
	// Manual links are user decisions and survive heuristic recalculation.
	Manual bool
	Notes  string
}

func (l OperationLink) Targets(r DeclaredRange) bool {
	return l.TargetKind == r.Kind() && l.TargetID == r.RangeID()
}

// =============================================================================
// ACCOUNT & FORECAST
// =============================================================================

type Account struct {
	Name        string
	Balance     Amount
	BalanceDate Date
	Operations  []HistoricOperation
}

func (a Account) Currency() string { return a.Balance.Currency }

// Operation looks up an operation by id.
func (a Account) Operation(id OperationID) (HistoricOperation, bool) {
	for _, op := range a.Operations {
		if op.ID == id {
			return op, true
		}
	}
	return HistoricOperation{}, false
}

type Forecast struct {
	PlannedOperations []PlannedOperation
	Budgets           []Budget
}

// Ranges returns planned operations followed by budgets.
func (f Forecast) Ranges() []DeclaredRange {
	out := make([]DeclaredRange, 0, len(f.PlannedOperations)+len(f.Budgets))
	for _, p := range f.PlannedOperations {
		out = append(out, p)
	}
	for _, b := range f.Budgets {
		out = append(out, b)
	}
	return out
}
