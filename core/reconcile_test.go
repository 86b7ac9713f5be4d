package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-forecaster/core"
)

// =============================================================================
// BUDGETS
// =============================================================================

func monthlyGroceries(t *testing.T) core.Budget {
	return budget(t, 7, "Groceries", "-300", core.CategoryGroceries,
		periodic(t, "2023-03-01", core.Months(1), core.Months(1), ""))
}

func TestActualizeBudgets_PartialConsumption(t *testing.T) {
	// GIVEN: A -300 monthly budget and -100 spent on March 10th
	// WHEN: Actualizing on March 15th
	// THEN: -200 remains until March 31st and April starts a fresh -300

	acc := testAccount("1000", "2023-03-15", op(1, "SHOP", "-100", core.CategoryGroceries, "2023-03-10"))
	links := []core.OperationLink{link(1, core.KindBudget, 7, "2023-03-01")}

	out, err := core.NewReconciler(acc, links, nil).ActualizeBudgets([]core.Budget{monthlyGroceries(t)})
	require.NoError(t, err)
	require.Len(t, out, 2)

	remainder := out[0]
	requireAmount(t, "-200", remainder.Amount)
	assert.True(t, remainder.Amount.IsNegative(), "remaining keeps the budget sign")
	assert.False(t, core.IsPeriodic(remainder.Interval))
	assert.Equal(t, day("2023-03-16"), remainder.Interval.InitialDate())
	assert.Equal(t, day("2023-03-31"), remainder.Interval.LastDate())
	assert.Equal(t, core.RangeID(7), remainder.ID)

	renewed := out[1]
	requireAmount(t, "-300", renewed.Amount)
	assert.True(t, core.IsPeriodic(renewed.Interval))
	assert.Equal(t, day("2023-04-01"), renewed.Interval.InitialDate())
}

func TestActualizeBudgets_NeverOvershoots(t *testing.T) {
	tests := []struct {
		name      string
		ops       []core.HistoricOperation
		remaining string // empty when the occurrence is closed
	}{
		{
			name: "overspent closes the occurrence",
			ops:  []core.HistoricOperation{op(1, "SHOP", "-500", core.CategoryGroceries, "2023-03-10")},
		},
		{
			name:      "refunds are ignored",
			ops:       []core.HistoricOperation{op(1, "SHOP", "-100", core.CategoryGroceries, "2023-03-10"), op(2, "REFUND", "50", core.CategoryGroceries, "2023-03-11")},
			remaining: "-200",
		},
		{
			name: "exact consumption closes the occurrence",
			ops:  []core.HistoricOperation{op(1, "SHOP", "-120", core.CategoryGroceries, "2023-03-02"), op(2, "SHOP", "-180", core.CategoryGroceries, "2023-03-12")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := testAccount("1000", "2023-03-15", tt.ops...)
			var links []core.OperationLink
			for _, o := range tt.ops {
				links = append(links, link(o.ID, core.KindBudget, 7, "2023-03-01"))
			}

			out, err := core.NewReconciler(acc, links, nil).ActualizeBudgets([]core.Budget{monthlyGroceries(t)})
			require.NoError(t, err)

			if tt.remaining == "" {
				require.Len(t, out, 1, "only the renewed budget")
				assert.Equal(t, day("2023-04-01"), out[0].Interval.InitialDate())
				return
			}
			require.Len(t, out, 2)
			requireAmount(t, tt.remaining, out[0].Amount)
			for _, b := range out {
				assert.False(t, b.Amount.IsPositive(), "sign never flips")
			}
		})
	}
}

func TestActualizeBudgets_LinksToOtherOccurrencesIgnored(t *testing.T) {
	acc := testAccount("1000", "2023-03-15", op(1, "SHOP", "-100", core.CategoryGroceries, "2023-02-27"))
	links := []core.OperationLink{link(1, core.KindBudget, 7, "2023-04-01")}

	out, err := core.NewReconciler(acc, links, nil).ActualizeBudgets([]core.Budget{monthlyGroceries(t)})
	require.NoError(t, err)
	require.Len(t, out, 2)
	requireAmount(t, "-300", out[0].Amount)
}

func TestActualizeBudgets_Lifecycle(t *testing.T) {
	acc := testAccount("1000", "2023-03-15")
	r := core.NewReconciler(acc, nil, nil)

	t.Run("expired is dropped", func(t *testing.T) {
		expired := budget(t, 1, "Trip", "-500", core.CategoryLeisure, span(t, "2023-02-01", core.Days(10)))
		out, err := r.ActualizeBudgets([]core.Budget{expired})
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("future passes through", func(t *testing.T) {
		future := budget(t, 2, "Trip", "-500", core.CategoryLeisure, span(t, "2023-06-01", core.Days(10)))
		out, err := r.ActualizeBudgets([]core.Budget{future})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.True(t, core.IntervalsEqual(future.Interval, out[0].Interval))
	})

	t.Run("between two periods advances", func(t *testing.T) {
		firstDays := budget(t, 3, "Commute", "-40", core.CategoryTransport,
			periodic(t, "2023-01-01", core.Days(10), core.Months(1), ""))
		out, err := r.ActualizeBudgets([]core.Budget{firstDays})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, day("2023-04-01"), out[0].Interval.InitialDate())
	})

	t.Run("zero amount occurrence is dropped", func(t *testing.T) {
		empty := budget(t, 4, "Nothing", "0", core.CategoryOther, span(t, "2023-03-01", core.Months(1)))
		out, err := r.ActualizeBudgets([]core.Budget{empty})
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestActualizeBudgets_CurrencyMismatch(t *testing.T) {
	spent := op(1, "SHOP", "-100", core.CategoryGroceries, "2023-03-10")
	spent.Amount.Currency = "USD"
	acc := testAccount("1000", "2023-03-15", spent)

	_, err := core.NewReconciler(acc, []core.OperationLink{link(1, core.KindBudget, 7, "2023-03-01")}, nil).
		ActualizeBudgets([]core.Budget{monthlyGroceries(t)})
	assert.ErrorIs(t, err, core.ErrCurrencyMismatch)
}

// =============================================================================
// PLANNED OPERATIONS
// =============================================================================

func TestActualizePlanned_LateIterationsArePostponed(t *testing.T) {
	// GIVEN: A daily planned operation missed for the 5 days before the balance date
	// WHEN: Actualizing
	// THEN: 5 one-off occurrences land on the next day and the series resumes after it

	daily, err := core.Every(day("2023-01-01"), core.Days(1))
	require.NoError(t, err)
	coffee := plannedOp(t, 3, "Coffee", "-5", core.CategoryLeisure, daily)
	acc := testAccount("1000", "2023-01-20")

	out, err := core.NewReconciler(acc, nil, nil).ActualizePlannedOperations([]core.PlannedOperation{coffee})
	require.NoError(t, err)
	require.Len(t, out, 6)

	for _, p := range out[:5] {
		assert.False(t, core.IsPeriodic(p.Interval))
		assert.Equal(t, day("2023-01-21"), p.Interval.InitialDate())
		assert.Equal(t, day("2023-01-21"), p.Interval.LastDate())
		assert.Equal(t, core.RangeID(3), p.ID)
	}
	continuation := out[5]
	assert.True(t, core.IsPeriodic(continuation.Interval))
	assert.Equal(t, day("2023-01-22"), continuation.Interval.InitialDate())
}

func TestActualizePlanned_LinkedIterationsAdvance(t *testing.T) {
	rent := plannedOp(t, 1, "Rent", "-950", core.CategoryRent, monthly(t, "2023-01-01"))

	t.Run("paid on time", func(t *testing.T) {
		acc := testAccount("1000", "2023-03-10", op(1, "RENT", "-950", core.CategoryRent, "2023-03-01"))
		links := []core.OperationLink{link(1, core.KindPlannedOperation, 1, "2023-03-01")}

		out, err := core.NewReconciler(acc, links, nil).ActualizePlannedOperations([]core.PlannedOperation{rent})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, day("2023-04-01"), out[0].Interval.InitialDate())
	})

	t.Run("paid early", func(t *testing.T) {
		acc := testAccount("1000", "2023-03-29", op(1, "RENT", "-950", core.CategoryRent, "2023-03-28"))
		links := []core.OperationLink{link(1, core.KindPlannedOperation, 1, "2023-04-01")}

		out, err := core.NewReconciler(acc, links, nil).ActualizePlannedOperations([]core.PlannedOperation{rent})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, day("2023-05-01"), out[0].Interval.InitialDate())
	})

	t.Run("unlinked and past tolerance", func(t *testing.T) {
		acc := testAccount("1000", "2023-03-10")

		out, err := core.NewReconciler(acc, nil, nil).ActualizePlannedOperations([]core.PlannedOperation{rent})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, day("2023-04-01"), out[0].Interval.InitialDate())
	})
}

func TestActualizePlanned_Lifecycle(t *testing.T) {
	acc := testAccount("1000", "2023-03-10")
	r := core.NewReconciler(acc, nil, nil)

	future := plannedOp(t, 1, "Insurance", "-400", core.CategoryOther, core.SingleDay(day("2023-06-01")))
	past := plannedOp(t, 2, "Gift", "-50", core.CategoryOther, core.SingleDay(day("2023-01-05")))
	unsaved := plannedOp(t, 0, "Draft", "-10", core.CategoryOther, core.SingleDay(day("2023-01-05")))

	out, err := r.ActualizePlannedOperations([]core.PlannedOperation{future, past, unsaved})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, core.RangeID(0), out[0].ID, "unpersisted passes through, sorted by date")
	assert.Equal(t, core.RangeID(1), out[1].ID)
	assert.True(t, core.IntervalsEqual(future.Interval, out[1].Interval))
}

// =============================================================================
// WHOLE FORECAST
// =============================================================================

func TestReconcile_InertLinks(t *testing.T) {
	// GIVEN: Links to an operation missing from the account and to a deleted range
	// WHEN: Reconciling
	// THEN: They change nothing and do not fail

	acc := testAccount("1000", "2023-03-15")
	links := []core.OperationLink{
		link(99, core.KindBudget, 7, "2023-03-01"),
		link(98, core.KindPlannedOperation, 42, "2023-03-01"),
	}
	forecast := core.Forecast{Budgets: []core.Budget{monthlyGroceries(t)}}

	out, err := core.Actualize(acc, forecast, links)
	require.NoError(t, err)
	require.Len(t, out.Budgets, 2)
	requireAmount(t, "-300", out.Budgets[0].Amount)
	assert.Empty(t, out.PlannedOperations)
}

func TestReconcile_DoesNotMutateInput(t *testing.T) {
	forecast := core.Forecast{
		PlannedOperations: []core.PlannedOperation{plannedOp(t, 1, "Rent", "-950", core.CategoryRent, monthly(t, "2023-01-01"))},
		Budgets:           []core.Budget{monthlyGroceries(t)},
	}
	before := forecast.PlannedOperations[0].Interval

	_, err := core.Actualize(testAccount("1000", "2023-03-15"), forecast, nil)
	require.NoError(t, err)
	assert.True(t, core.IntervalsEqual(before, forecast.PlannedOperations[0].Interval))
	assert.Equal(t, day("2023-03-01"), forecast.Budgets[0].Interval.InitialDate())
}
