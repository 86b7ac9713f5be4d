package core_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-forecaster/core"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(s string) core.Date { return core.MustParseDate(s) }

func eur(s string) core.Amount {
	return core.Amount{Value: decimal.RequireFromString(s), Currency: "EUR"}
}

func op(id core.OperationID, desc, amount string, category core.Category, date string) core.HistoricOperation {
	return core.HistoricOperation{
		ID:          core.OperationID(id),
		Description: desc,
		Amount:      eur(amount),
		Category:    category,
		Date:        day(date),
	}
}

func span(t *testing.T, start string, duration core.Delta) core.Span {
	t.Helper()
	s, err := core.NewSpan(day(start), duration)
	require.NoError(t, err)
	return s
}

func periodic(t *testing.T, start string, duration, period core.Delta, expiration string) core.PeriodicSpan {
	t.Helper()
	var exp core.Date
	if expiration != "" {
		exp = day(expiration)
	}
	p, err := core.NewPeriodicSpan(span(t, start, duration), period, exp)
	require.NoError(t, err)
	return p
}

func monthly(t *testing.T, start string) core.PeriodicSpan {
	return periodic(t, start, core.Days(1), core.Months(1), "")
}

func plannedOp(t *testing.T, id core.RangeID, desc, amount string, category core.Category, iv core.Interval) core.PlannedOperation {
	t.Helper()
	p, err := core.NewPlannedOperation(core.OperationRange{
		Description: desc,
		Amount:      eur(amount),
		Category:    category,
		Interval:    iv,
		Matcher:     core.DefaultPlannedMatcherParams(),
	})
	require.NoError(t, err)
	p.ID = id
	return p
}

func budget(t *testing.T, id core.RangeID, desc, amount string, category core.Category, iv core.Interval) core.Budget {
	t.Helper()
	b, err := core.NewBudget(core.OperationRange{
		Description: desc,
		Amount:      eur(amount),
		Category:    category,
		Interval:    iv,
		Matcher:     core.DefaultBudgetMatcherParams(),
	})
	require.NoError(t, err)
	b.ID = id
	return b
}

func link(opID core.OperationID, kind core.RangeKind, target core.RangeID, iteration string) core.OperationLink {
	return core.OperationLink{
		OperationID:   opID,
		TargetKind:    kind,
		TargetID:      target,
		IterationDate: day(iteration),
	}
}

// requireAmount compares decimal values numerically.
func requireAmount(t *testing.T, want string, got core.Amount, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got.Value),
		"expected %s, got %s %v", want, got.Value.String(), msgAndArgs)
}
