package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-forecaster/core"
)

func testAccount(balance, balanceDate string, ops ...core.HistoricOperation) core.Account {
	return core.Account{
		Name:        "checking",
		Balance:     eur(balance),
		BalanceDate: day(balanceDate),
		Operations:  ops,
	}
}

// salaryAndGroceries is +2000 every 1st and a -280 grocery budget over
// February 2023 (28 days, so -10 per day).
func salaryAndGroceries(t *testing.T) core.Forecast {
	return core.Forecast{
		PlannedOperations: []core.PlannedOperation{
			plannedOp(t, 1, "Salary", "2000", core.CategorySalary, monthly(t, "2023-01-01")),
		},
		Budgets: []core.Budget{
			budget(t, 2, "Groceries", "-280", core.CategoryGroceries, span(t, "2023-02-01", core.Months(1))),
		},
	}
}

// =============================================================================
// PAST
// =============================================================================

func TestProjectAccount_Past_RemovesLaterOperations(t *testing.T) {
	// GIVEN: Balance 1000 on 2023-02-28 after debits of 50 and 30
	// WHEN: Projecting back to 2023-01-01 without a forecast
	// THEN: Both debits are undone and removed

	acc := testAccount("1000", "2023-02-28",
		op(1, "SHOP", "-50", core.CategoryGroceries, "2023-01-15"),
		op(2, "SHOP", "-30", core.CategoryGroceries, "2023-02-15"),
	)

	projected, seq, err := core.ProjectAccount(acc, core.Forecast{}, day("2023-01-01"), core.SequenceAfter(acc.Operations))
	require.NoError(t, err)

	requireAmount(t, "1080", projected.Balance)
	assert.Equal(t, day("2023-01-01"), projected.BalanceDate)
	assert.Empty(t, projected.Operations)
	assert.Equal(t, core.OperationID(2), seq.Last, "past projection allocates no id")

	requireAmount(t, "1000", acc.Balance, "input account untouched")
	assert.Len(t, acc.Operations, 2)
}

func TestProjectAccount_SameDate_ReturnsCopy(t *testing.T) {
	acc := testAccount("1000", "2023-02-28", op(1, "SHOP", "-50", core.CategoryGroceries, "2023-01-15"))

	projected, _, err := core.ProjectAccount(acc, salaryAndGroceries(t), day("2023-02-28"), core.IDSequence{})
	require.NoError(t, err)
	requireAmount(t, "1000", projected.Balance)

	projected.Operations[0].Description = "changed"
	assert.Equal(t, "SHOP", acc.Operations[0].Description)
}

// =============================================================================
// FUTURE
// =============================================================================

func TestProjectAccount_Future_AddsSyntheticOperations(t *testing.T) {
	// GIVEN: Balance 1000 on 2023-01-31, salary on the 1st, groceries over February
	// WHEN: Projecting to 2023-02-28
	// THEN: Salary is credited once and groceries spread at -10 per day

	acc := testAccount("1000", "2023-01-31", op(5, "SHOP", "-50", core.CategoryGroceries, "2023-01-15"))

	projected, seq, err := core.ProjectAccount(acc, salaryAndGroceries(t), day("2023-02-28"), core.SequenceAfter(acc.Operations))
	require.NoError(t, err)

	requireAmount(t, "2720", projected.Balance)
	assert.Equal(t, day("2023-02-28"), projected.BalanceDate)
	require.Len(t, projected.Operations, 1+1+28)
	assert.Equal(t, core.OperationID(5+29), seq.Last)

	prev := core.OperationID(5)
	for _, o := range projected.Operations[1:] {
		assert.Greater(t, o.ID, prev, "synthetic ids strictly increase")
		prev = o.ID
		assert.True(t, o.Date.After(acc.BalanceDate))
	}
	salary := projected.Operations[1]
	assert.Equal(t, core.CategorySalary, salary.Category)
	assert.Equal(t, day("2023-02-01"), salary.Date)
	requireAmount(t, "-10", projected.Operations[2].Amount)
}

func TestProjectAccount_Future_SharesRoundToTheCent(t *testing.T) {
	// GIVEN: A -100 budget spread over three days
	// WHEN: Projecting past its end
	// THEN: Daily shares are whole cents and the last day takes the remainder

	acc := testAccount("1000", "2023-01-31")
	forecast := core.Forecast{Budgets: []core.Budget{
		budget(t, 1, "Weekend", "-100", core.CategoryLeisure, span(t, "2023-02-03", core.Days(3))),
	}}

	projected, _, err := core.ProjectAccount(acc, forecast, day("2023-02-10"), core.IDSequence{})
	require.NoError(t, err)
	require.Len(t, projected.Operations, 3)
	requireAmount(t, "-33.33", projected.Operations[0].Amount)
	requireAmount(t, "-33.33", projected.Operations[1].Amount)
	requireAmount(t, "-33.34", projected.Operations[2].Amount)
	requireAmount(t, "900", projected.Balance)

	t.Run("window ending mid-occurrence", func(t *testing.T) {
		partial, _, err := core.ProjectAccount(acc, forecast, day("2023-02-04"), core.IDSequence{})
		require.NoError(t, err)
		requireAmount(t, "933.34", partial.Balance)
	})
}

func TestProjectAccount_Consistency(t *testing.T) {
	// GIVEN: d1 <= d2 <= d3 on the same side of the balance date
	// WHEN: Projecting to d3 directly or through d2
	// THEN: Balance and operation count agree

	forecast := salaryAndGroceries(t)
	acc := testAccount("1000", "2023-01-31",
		op(1, "SHOP", "-50", core.CategoryGroceries, "2023-01-15"),
		op(2, "SHOP", "-30", core.CategoryGroceries, "2023-01-20"),
	)

	t.Run("future", func(t *testing.T) {
		direct, _, err := core.ProjectAccount(acc, forecast, day("2023-02-28"), core.SequenceAfter(acc.Operations))
		require.NoError(t, err)

		mid, seq, err := core.ProjectAccount(acc, forecast, day("2023-02-10"), core.SequenceAfter(acc.Operations))
		require.NoError(t, err)
		chained, _, err := core.ProjectAccount(mid, forecast, day("2023-02-28"), seq)
		require.NoError(t, err)

		assert.True(t, direct.Balance.Equal(chained.Balance), "%s vs %s", direct.Balance, chained.Balance)
		assert.Len(t, chained.Operations, len(direct.Operations))
	})

	t.Run("past", func(t *testing.T) {
		direct, _, err := core.ProjectAccount(acc, forecast, day("2023-01-10"), core.IDSequence{})
		require.NoError(t, err)

		mid, _, err := core.ProjectAccount(acc, forecast, day("2023-01-18"), core.IDSequence{})
		require.NoError(t, err)
		chained, _, err := core.ProjectAccount(mid, forecast, day("2023-01-10"), core.IDSequence{})
		require.NoError(t, err)

		requireAmount(t, "1080", direct.Balance)
		assert.True(t, direct.Balance.Equal(chained.Balance))
		assert.Len(t, chained.Operations, len(direct.Operations))
	})
}

func TestProjectAccount_CurrencyMismatch(t *testing.T) {
	forecast := salaryAndGroceries(t)
	forecast.PlannedOperations[0].Amount.Currency = "USD"

	_, _, err := core.ProjectAccount(testAccount("1000", "2023-01-31"), forecast, day("2023-02-28"), core.IDSequence{})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCurrencyMismatch)

	var mismatch *core.CurrencyMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "USD", mismatch.Right)
}

func TestProjector_At(t *testing.T) {
	acc := testAccount("1000", "2023-01-31", op(3, "SHOP", "-50", core.CategoryGroceries, "2023-01-15"))
	p := core.Projector{Account: acc, Forecast: salaryAndGroceries(t)}

	projected, err := p.At(day("2023-02-01"))
	require.NoError(t, err)
	requireAmount(t, "2990", projected.Balance)
	require.Len(t, projected.Operations, 3)
	assert.Equal(t, core.OperationID(4), projected.Operations[1].ID)
}
