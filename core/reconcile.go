/*
reconcile.go - Forecast actualization against what already happened

PURPOSE:
  Rewrites a forecast so it only describes what is still expected after
  the account's balance date, using operation links as the record of
  which occurrences were realized.

PLANNED OPERATIONS:
  1. Occurrences that started before the balance date, whose tolerance
     window still covers it and that have no link, are LATE. Each late
     occurrence becomes a one-off on balance date + 1 and the recurrence
     resumes at its first occurrence after balance date + 1.
  2. Otherwise the range advances past its latest ACTUALIZED occurrence
     (occurrence date <= balance date, or a linked operation dated on or
     before the balance date). With nothing actualized, a future range is
     kept as is and a due one advances past the balance date.
  3. A range with no remaining occurrence disappears.

BUDGETS:
  1. Expired budgets disappear.
  2. The occurrence active at the balance date is reduced by its linked
     operations; consumption never overshoots zero and operations of the
     opposite sign are ignored. A fully consumed occurrence disappears,
     otherwise the remainder covers balance date + 1 to its last day.
  3. A periodic budget also yields its next occurrence onwards, untouched.
  4. A future budget passes through.

The reconciler never mutates its inputs. Derived ranges keep the source
range id so links keep resolving.

SEE ALSO:
  - links.go: LinkIndex built once per pass
  - projection.go: Consumes the actualized forecast
*/
package core

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	account Account
	index   LinkIndex
	ops     map[OperationID]HistoricOperation
	logger  logrus.FieldLogger
}

// NewReconciler indexes links against account. Links whose operation is
// not in the account are ignored.
func NewReconciler(account Account, links []OperationLink, logger logrus.FieldLogger) *Reconciler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ops := make(map[OperationID]HistoricOperation, len(account.Operations))
	for _, op := range account.Operations {
		ops[op.ID] = op
	}
	live := make([]OperationLink, 0, len(links))
	for _, l := range links {
		if _, ok := ops[l.OperationID]; ok {
			live = append(live, l)
		}
	}
	return &Reconciler{
		account: account,
		index:   NewLinkIndex(live),
		ops:     ops,
		logger:  logger.WithField("account", account.Name),
	}
}

// Reconcile returns the actualized forecast.
func (r *Reconciler) Reconcile(f Forecast) (Forecast, error) {
	planned, err := r.ActualizePlannedOperations(f.PlannedOperations)
	if err != nil {
		return Forecast{}, err
	}
	budgets, err := r.ActualizeBudgets(f.Budgets)
	if err != nil {
		return Forecast{}, err
	}
	return Forecast{PlannedOperations: planned, Budgets: budgets}, nil
}

// Actualize is a shorthand for NewReconciler(...).Reconcile(f).
func Actualize(account Account, f Forecast, links []OperationLink) (Forecast, error) {
	return NewReconciler(account, links, nil).Reconcile(f)
}

// =============================================================================
// PLANNED OPERATIONS
// =============================================================================

func (r *Reconciler) ActualizePlannedOperations(planned []PlannedOperation) ([]PlannedOperation, error) {
	sorted := slices.Clone(planned)
	slices.SortStableFunc(sorted, func(a, b PlannedOperation) int {
		return CompareIntervals(a.Interval, b.Interval)
	})

	out := make([]PlannedOperation, 0, len(sorted))
	for _, p := range sorted {
		// Unpersisted ranges cannot have links.
		if p.ID == 0 {
			out = append(out, p)
			continue
		}
		next, err := r.actualizePlanned(p)
		if err != nil {
			return nil, fmt.Errorf("actualize planned operation %d: %w", p.ID, err)
		}
		out = append(out, next...)
	}
	return out, nil
}

func (r *Reconciler) actualizePlanned(p PlannedOperation) ([]PlannedOperation, error) {
	bd := r.account.BalanceDate
	links := r.index.LinksFor(KindPlannedOperation, p.ID)
	log := r.logger.WithFields(logrus.Fields{"planned_operation": p.ID, "description": p.Description})

	if late := r.lateIterations(p, links); len(late) > 0 {
		out := make([]PlannedOperation, 0, len(late)+1)
		for _, d := range late {
			log.WithField("iteration", d).Debug("late iteration postponed")
			out = append(out, p.WithInterval(SingleDay(bd.AddDays(1))))
		}
		if next, ok := p.Interval.NextOccurrence(bd.AddDays(1)); ok {
			iv, err := WithInitialDate(p.Interval, next.InitialDate())
			if err != nil {
				return nil, err
			}
			out = append(out, p.WithInterval(iv))
		}
		return out, nil
	}

	last, actualized := r.lastActualized(links)
	if !actualized {
		if p.Interval.IsFuture(bd) {
			return []PlannedOperation{p}, nil
		}
		last = bd
	}
	next, ok := p.Interval.NextOccurrence(last)
	if !ok {
		log.Debug("planned operation has no remaining occurrence")
		return nil, nil
	}
	iv, err := WithInitialDate(p.Interval, next.InitialDate())
	if err != nil {
		return nil, err
	}
	return []PlannedOperation{p.WithInterval(iv)}, nil
}

// lateIterations lists occurrence starts that are overdue but still within
// tolerance at the balance date and have no link.
func (r *Reconciler) lateIterations(p PlannedOperation, links []OperationLink) []Date {
	bd := r.account.BalanceDate
	approx := p.Matcher.ApproximationDays
	linked := make(map[Date]bool, len(links))
	for _, l := range links {
		linked[l.IterationDate] = true
	}

	var late []Date
	for occ := range p.Interval.OccurrencesFrom(bd.AddDays(-approx)) {
		if !occ.InitialDate().Before(bd) {
			break
		}
		if !occ.IsWithin(bd, 0, approx) {
			continue
		}
		if !linked[occ.InitialDate()] {
			late = append(late, occ.InitialDate())
		}
	}
	return late
}

// lastActualized returns the latest linked occurrence that is due or was
// paid early.
func (r *Reconciler) lastActualized(links []OperationLink) (Date, bool) {
	bd := r.account.BalanceDate
	var last Date
	found := false
	for _, l := range links {
		due := !l.IterationDate.After(bd)
		paid := !r.ops[l.OperationID].Date.After(bd)
		if !due && !paid {
			continue
		}
		if !found || l.IterationDate.After(last) {
			last, found = l.IterationDate, true
		}
	}
	return last, found
}

// =============================================================================
// BUDGETS
// =============================================================================

func (r *Reconciler) ActualizeBudgets(budgets []Budget) ([]Budget, error) {
	sorted := slices.Clone(budgets)
	slices.SortStableFunc(sorted, func(a, b Budget) int {
		return CompareIntervals(a.Interval, b.Interval)
	})

	out := make([]Budget, 0, len(sorted))
	for _, b := range sorted {
		next, err := r.actualizeBudget(b)
		if err != nil {
			return nil, fmt.Errorf("actualize budget %d: %w", b.ID, err)
		}
		out = append(out, next...)
	}
	return out, nil
}

func (r *Reconciler) actualizeBudget(b Budget) ([]Budget, error) {
	bd := r.account.BalanceDate
	if b.Interval.IsExpired(bd) {
		return nil, nil
	}

	current, active := b.Interval.CurrentOccurrence(bd, 0, 0)
	if !active {
		if b.Interval.IsFuture(bd) {
			return []Budget{b}, nil
		}
		// Between two occurrences of a periodic budget.
		return r.budgetContinuation(b, nil)
	}

	remaining, err := r.consume(b, current)
	if err != nil {
		return nil, err
	}

	var out []Budget
	if remaining.IsZero() {
		r.logger.WithField("budget", b.ID).Debug("budget occurrence fully consumed")
	} else if start := bd.AddDays(1); !start.After(current.LastDate()) {
		span, err := SpanBetween(start, current.LastDate())
		if err != nil {
			return nil, err
		}
		out = append(out, b.WithInterval(span).WithAmount(remaining))
	}
	return r.budgetContinuation(b, out)
}

func (r *Reconciler) budgetContinuation(b Budget, out []Budget) ([]Budget, error) {
	next, ok := b.Interval.NextOccurrence(r.account.BalanceDate)
	if !ok {
		return out, nil
	}
	iv, err := WithInitialDate(b.Interval, next.InitialDate())
	if err != nil {
		return nil, err
	}
	return append(out, b.WithInterval(iv)), nil
}

// consume subtracts the operations linked to the occurrence from the
// budget amount. The result keeps the sign of the budget or is zero.
func (r *Reconciler) consume(b Budget, occurrence Span) (Amount, error) {
	remaining := b.Amount
	if b.ID == 0 {
		return remaining, nil
	}

	var linked []HistoricOperation
	for _, l := range r.index.LinksFor(KindBudget, b.ID) {
		if l.IterationDate.Equal(occurrence.InitialDate()) {
			linked = append(linked, r.ops[l.OperationID])
		}
	}
	SortOperations(linked)

	for _, op := range linked {
		if remaining.IsZero() {
			break
		}
		if err := remaining.sameCurrency(op.Amount); err != nil {
			return Amount{}, err
		}
		if op.Amount.Value.Sign()*remaining.Value.Sign() < 0 {
			continue
		}
		var consumed decimal.Decimal
		if remaining.IsPositive() {
			consumed = decimal.Min(op.Amount.Value, remaining.Value)
		} else {
			consumed = decimal.Max(op.Amount.Value, remaining.Value)
		}
		remaining.Value = remaining.Value.Sub(consumed)
	}
	return remaining, nil
}
