/*
analysis.go - Reports built on projection and reconciliation

PURPOSE:
  Read-side helpers used by the API: how much a range weighs over a
  window, how the balance moves day by day, and planned vs actual per
  category and month.

SEE ALSO:
  - projection.go: Synthetic future operations
  - reconcile.go: Actualized forecast used for the projected figures
*/
package core

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT ON PERIOD
// =============================================================================

// AmountOnPeriod returns the share of rng falling in [start, end]. A
// multi-day occurrence counts pro rata to the days inside the window.
func AmountOnPeriod(rng OperationRange, start, end Date) Amount {
	total := rng.Amount.Zero()
	if end.Before(start) {
		return total
	}
	for occ := range rng.Interval.OccurrencesFrom(start) {
		if occ.InitialDate().After(end) {
			break
		}
		first := MaxDate(occ.InitialDate(), start)
		last := MinDate(occ.LastDate(), end)
		if first.After(last) {
			continue
		}
		days := decimal.NewFromInt(int64(first.DaysUntil(last) + 1))
		share := rng.Amount.Value.Mul(days).Div(decimal.NewFromInt(int64(occ.TotalDays())))
		total.Value = total.Value.Add(share)
	}
	return total
}

// =============================================================================
// BALANCE EVOLUTION
// =============================================================================

type DailyBalance struct {
	Date    Date
	Balance Amount
}

// BalanceEvolution returns the end-of-day balance for every day in
// [start, end]. Days up to the balance date replay history; later days
// use the actualized forecast.
func BalanceEvolution(account Account, forecast Forecast, links []OperationLink, start, end Date) ([]DailyBalance, error) {
	if end.Before(start) {
		return nil, nil
	}
	bd := account.BalanceDate
	deltas := make(map[Date]decimal.Decimal)
	for _, op := range account.Operations {
		if !op.Date.After(bd) {
			deltas[op.Date] = deltas[op.Date].Add(op.Amount.Value)
		}
	}

	if end.After(bd) {
		actualized, err := Actualize(account, forecast, links)
		if err != nil {
			return nil, err
		}
		seq := SequenceAfter(account.Operations)
		future, _, err := ProjectAccount(account, actualized, end, seq)
		if err != nil {
			return nil, err
		}
		for _, op := range future.Operations {
			if op.ID > seq.Last {
				deltas[op.Date] = deltas[op.Date].Add(op.Amount.Value)
			}
		}
	}

	// Rewind from the balance date to the day before start.
	balance := account.Balance.Value
	for d, v := range deltas {
		if !d.Before(start) && !d.After(bd) {
			balance = balance.Sub(v)
		}
		if d.Before(start) && d.After(bd) {
			balance = balance.Add(v)
		}
	}

	out := make([]DailyBalance, 0, start.DaysUntil(end)+1)
	for d := start; !d.After(end); d = d.AddDays(1) {
		balance = balance.Add(deltas[d])
		out = append(out, DailyBalance{Date: d, Balance: Amount{Value: balance, Currency: account.Currency()}})
	}
	return out, nil
}

// =============================================================================
// MONTHLY SUMMARY
// =============================================================================

// CategorySummary compares forecast and reality for one category in one
// month. Projected is Actual plus what the actualized forecast still
// expects after the balance date.
type CategorySummary struct {
	Month     Date
	Category  Category
	Planned   Amount
	Actual    Amount
	Projected Amount
}

type summaryKey struct {
	month    Date
	category Category
}

// MonthlySummary covers every month overlapping [from, to].
func MonthlySummary(account Account, forecast Forecast, links []OperationLink, from, to Date) ([]CategorySummary, error) {
	if to.Before(from) {
		return nil, nil
	}
	actualized, err := Actualize(account, forecast, links)
	if err != nil {
		return nil, err
	}
	bd := account.BalanceDate
	zero := account.Balance.Zero()
	rows := make(map[summaryKey]*CategorySummary)
	row := func(month Date, c Category) *CategorySummary {
		k := summaryKey{month, c}
		if rows[k] == nil {
			rows[k] = &CategorySummary{Month: month, Category: c, Planned: zero, Actual: zero, Projected: zero}
		}
		return rows[k]
	}

	for month := StartOfMonth(from.Year(), from.Month()); !month.After(to); month = month.Add(Months(1)) {
		monthEnd := EndOfMonth(month.Year(), month.Month())

		for _, r := range forecast.Ranges() {
			rng := r.Range()
			if v := AmountOnPeriod(rng, month, monthEnd).Value; !v.IsZero() {
				s := row(month, rng.Category)
				s.Planned.Value = s.Planned.Value.Add(v)
			}
		}

		for _, op := range account.Operations {
			if op.Date.Before(month) || op.Date.After(monthEnd) || op.Date.After(bd) {
				continue
			}
			s := row(month, op.Category)
			s.Actual.Value = s.Actual.Value.Add(op.Amount.Value)
			s.Projected.Value = s.Projected.Value.Add(op.Amount.Value)
		}

		if monthEnd.After(bd) {
			start := MaxDate(month, bd.AddDays(1))
			for _, r := range actualized.Ranges() {
				rng := r.Range()
				if v := AmountOnPeriod(rng, start, monthEnd).Value; !v.IsZero() {
					s := row(month, rng.Category)
					s.Projected.Value = s.Projected.Value.Add(v)
				}
			}
		}
	}

	out := make([]CategorySummary, 0, len(rows))
	for _, s := range rows {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b CategorySummary) int {
		if c := a.Month.Compare(b.Month); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return out, nil
}
