// Package storetest checks a core.Repository implementation against the
// behavior the reconciler and the API rely on. Each backend runs it from
// its own tests.
package storetest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-forecaster/core"
)

// Run executes the suite. newRepo must return an empty repository.
func Run(t *testing.T, newRepo func(t *testing.T) core.Repository) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newRepo(t)) })
	t.Run("Operations", func(t *testing.T) { testOperations(t, newRepo(t)) })
	t.Run("Ranges", func(t *testing.T) { testRanges(t, newRepo(t)) })
	t.Run("Links", func(t *testing.T) { testLinks(t, newRepo(t)) })
	t.Run("Runs", func(t *testing.T) { testRuns(t, newRepo(t)) })
}

func eur(s string) core.Amount {
	return core.Amount{Value: decimal.RequireFromString(s), Currency: "EUR"}
}

func day(s string) core.Date { return core.MustParseDate(s) }

// =============================================================================
// ACCOUNTS & OPERATIONS
// =============================================================================

func testAccounts(t *testing.T, repo core.Repository) {
	ctx := context.Background()

	acc := core.Account{Name: "checking", Balance: eur("1000.50"), BalanceDate: day("2023-03-15")}
	require.NoError(t, repo.CreateAccount(ctx, acc))
	require.NoError(t, repo.CreateAccount(ctx, core.Account{Name: "savings", Balance: eur("0"), BalanceDate: day("2023-03-15")}))

	err := repo.CreateAccount(ctx, acc)
	assert.ErrorIs(t, err, core.ErrAccountExists)

	got, err := repo.GetAccount(ctx, "checking")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(acc.Balance), "%s", got.Balance)
	assert.Equal(t, acc.BalanceDate, got.BalanceDate)

	_, err = repo.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrAccountNotFound)

	require.NoError(t, repo.UpdateBalance(ctx, "checking", eur("800"), day("2023-03-20")))
	got, err = repo.GetAccount(ctx, "checking")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(eur("800")))
	assert.Equal(t, day("2023-03-20"), got.BalanceDate)

	assert.ErrorIs(t, repo.UpdateBalance(ctx, "missing", eur("1"), day("2023-03-20")), core.ErrAccountNotFound)

	all, err := repo.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "checking", all[0].Name)
	assert.Equal(t, "savings", all[1].Name)
}

func testOperations(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	require.NoError(t, repo.CreateAccount(ctx, core.Account{Name: "checking", Balance: eur("1000"), BalanceDate: day("2023-03-15")}))
	require.NoError(t, repo.CreateAccount(ctx, core.Account{Name: "savings", Balance: eur("0"), BalanceDate: day("2023-03-15")}))

	maxID, err := repo.MaxOperationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.OperationID(0), maxID)

	ops := []core.HistoricOperation{
		{ID: 2, Description: "SHOP", Amount: eur("-42.10"), Category: core.CategoryGroceries, Date: day("2023-03-10")},
		{ID: 1, Description: "RENT", Amount: eur("-950"), Category: core.CategoryRent, Date: day("2023-03-01")},
	}
	require.NoError(t, repo.AddOperations(ctx, "checking", ops))
	require.NoError(t, repo.AddOperations(ctx, "savings", []core.HistoricOperation{
		{ID: 7, Description: "TRANSFER", Amount: eur("100"), Category: core.CategorySavings, Date: day("2023-03-02")},
	}))

	err = repo.AddOperations(ctx, "savings", []core.HistoricOperation{ops[0]})
	assert.ErrorIs(t, err, core.ErrDuplicateOperation, "ids are unique across accounts")
	assert.ErrorIs(t, repo.AddOperations(ctx, "missing", nil), core.ErrAccountNotFound)

	acc, err := repo.GetAccount(ctx, "checking")
	require.NoError(t, err)
	require.Len(t, acc.Operations, 2)
	assert.Equal(t, core.OperationID(1), acc.Operations[0].ID, "sorted by date")
	assert.True(t, acc.Operations[1].Amount.Equal(eur("-42.1")))

	maxID, err = repo.MaxOperationID(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.OperationID(7), maxID)

	updated := acc.Operations[1]
	updated.Category = core.CategoryLeisure
	require.NoError(t, repo.UpdateOperation(ctx, "checking", updated))
	acc, err = repo.GetAccount(ctx, "checking")
	require.NoError(t, err)
	assert.Equal(t, core.CategoryLeisure, acc.Operations[1].Category)

	updated.ID = 99
	assert.ErrorIs(t, repo.UpdateOperation(ctx, "checking", updated), core.ErrOperationNotFound)
}

// =============================================================================
// RANGES
// =============================================================================

func testRanges(t *testing.T, repo core.Repository) {
	ctx := context.Background()

	once, err := core.NewSpan(day("2023-06-01"), core.Days(1))
	require.NoError(t, err)
	planned, err := core.NewPlannedOperation(core.OperationRange{
		Description: "Insurance",
		Amount:      eur("-400"),
		Category:    core.CategoryOther,
		Interval:    once,
		Matcher: core.MatcherParams{
			DescriptionHints:         []string{"AXA", "CONTRACT 12"},
			ApproximationDays:        3,
			ApproximationAmountRatio: 0.1,
		},
	})
	require.NoError(t, err)

	base, err := core.NewSpan(day("2023-01-01"), core.Months(1))
	require.NoError(t, err)
	monthly, err := core.NewPeriodicSpan(base, core.Months(1), day("2023-12-31"))
	require.NoError(t, err)
	budget, err := core.NewBudget(core.OperationRange{
		Description: "Groceries",
		Amount:      eur("-300"),
		Category:    core.CategoryGroceries,
		Interval:    monthly,
		Matcher:     core.DefaultBudgetMatcherParams(),
	})
	require.NoError(t, err)

	savedPlanned, err := repo.AddPlannedOperation(ctx, planned)
	require.NoError(t, err)
	savedBudget, err := repo.AddBudget(ctx, budget)
	require.NoError(t, err)
	assert.NotZero(t, savedPlanned.ID)
	assert.NotEqual(t, savedPlanned.ID, savedBudget.ID, "one id space for both kinds")

	gotPlanned, err := repo.GetPlannedOperation(ctx, savedPlanned.ID)
	require.NoError(t, err)
	assert.True(t, core.IntervalsEqual(planned.Interval, gotPlanned.Interval))
	assert.Equal(t, planned.Matcher.DescriptionHints, gotPlanned.Matcher.DescriptionHints)
	assert.Equal(t, 3, gotPlanned.Matcher.ApproximationDays)
	assert.InDelta(t, 0.1, gotPlanned.Matcher.ApproximationAmountRatio, 1e-12)
	assert.True(t, gotPlanned.Amount.Equal(planned.Amount))

	gotBudget, err := repo.GetBudget(ctx, savedBudget.ID)
	require.NoError(t, err)
	assert.True(t, core.IntervalsEqual(budget.Interval, gotBudget.Interval), "%s vs %s", budget.Interval, gotBudget.Interval)
	assert.True(t, math.IsInf(gotBudget.Matcher.ApproximationAmountRatio, 1))
	assert.Empty(t, gotBudget.Matcher.DescriptionHints)

	_, err = repo.GetBudget(ctx, savedPlanned.ID)
	assert.ErrorIs(t, err, core.ErrRangeNotFound, "kinds do not mix")

	savedBudget.Amount = eur("-350")
	require.NoError(t, repo.UpdateBudget(ctx, savedBudget))
	gotBudget, err = repo.GetBudget(ctx, savedBudget.ID)
	require.NoError(t, err)
	assert.True(t, gotBudget.Amount.Equal(eur("-350")))

	f, err := repo.Forecast(ctx)
	require.NoError(t, err)
	assert.Len(t, f.PlannedOperations, 1)
	assert.Len(t, f.Budgets, 1)

	require.NoError(t, repo.DeletePlannedOperation(ctx, savedPlanned.ID))
	assert.ErrorIs(t, repo.DeletePlannedOperation(ctx, savedPlanned.ID), core.ErrRangeNotFound)
	assert.ErrorIs(t, repo.UpdatePlannedOperation(ctx, savedPlanned), core.ErrRangeNotFound)

	f, err = repo.Forecast(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.PlannedOperations)
}

// =============================================================================
// LINKS
// =============================================================================

func testLinks(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	link := func(op core.OperationID, kind core.RangeKind, target core.RangeID, manual bool) core.OperationLink {
		return core.OperationLink{
			OperationID:   op,
			TargetKind:    kind,
			TargetID:      target,
			IterationDate: day("2023-03-01"),
			Manual:        manual,
		}
	}

	first, err := repo.CreateLink(ctx, link(1, core.KindBudget, 5, false))
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	_, err = repo.CreateLink(ctx, link(2, core.KindBudget, 5, true))
	require.NoError(t, err)
	_, err = repo.CreateLink(ctx, link(3, core.KindPlannedOperation, 6, false))
	require.NoError(t, err)

	_, err = repo.CreateLink(ctx, link(1, core.KindPlannedOperation, 6, false))
	assert.ErrorIs(t, err, core.ErrDuplicateLink)

	manual := link(1, core.KindPlannedOperation, 6, true)
	manual.Notes = "moved by hand"
	_, err = repo.UpsertLink(ctx, manual)
	require.NoError(t, err)
	got, err := repo.GetLink(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.KindPlannedOperation, got.TargetKind)
	assert.True(t, got.Manual)
	assert.Equal(t, "moved by hand", got.Notes)
	assert.Equal(t, day("2023-03-01"), got.IterationDate)

	forBudget, err := repo.LinksForTarget(ctx, core.KindBudget, 5)
	require.NoError(t, err)
	assert.Len(t, forBudget, 1)

	removed, err := repo.DeleteAutomaticLinks(ctx, core.KindPlannedOperation, 6)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "manual link kept")

	all, err := repo.ListLinks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	later := link(4, core.KindBudget, 5, true)
	later.IterationDate = day("2023-04-01")
	later.Notes = "paid early"
	_, err = repo.CreateLink(ctx, later)
	require.NoError(t, err)
	moved, err := repo.MoveLinks(ctx, core.KindBudget, 5, 9, day("2023-03-15"))
	require.NoError(t, err)
	assert.Equal(t, 1, moved, "only iterations on or after the date move")
	got, err = repo.GetLink(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, core.RangeID(9), got.TargetID)
	assert.True(t, got.Manual)
	assert.Equal(t, "paid early", got.Notes)
	got, err = repo.GetLink(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, core.RangeID(5), got.TargetID)

	require.NoError(t, repo.DeleteLinksForTarget(ctx, core.KindBudget, 5))
	_, err = repo.GetLink(ctx, 2)
	assert.ErrorIs(t, err, core.ErrLinkNotFound)

	require.NoError(t, repo.DeleteLink(ctx, 1))
	assert.ErrorIs(t, repo.DeleteLink(ctx, 1), core.ErrLinkNotFound)
}

// =============================================================================
// RUNS
// =============================================================================

func testRuns(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	at := time.Date(2023, time.March, 15, 2, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, repo.RecordRun(ctx, core.ActualizationRun{
			ID:                id,
			Account:           "checking",
			BalanceDate:       day("2023-03-15"),
			RanAt:             at.Add(time.Duration(i) * time.Hour),
			PlannedOperations: 2,
			Budgets:           1,
			LinksCreated:      i,
		}))
	}

	runs, err := repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].ID, "most recent first")
	assert.Equal(t, "run-b", runs[1].ID)
	assert.True(t, runs[0].RanAt.Equal(at.Add(2*time.Hour)))
	assert.Equal(t, 2, runs[0].LinksCreated)

	runs, err = repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
