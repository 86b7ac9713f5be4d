package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-forecaster/core"
	"github.com/warp/budget-forecaster/core/store/storetest"
	"github.com/warp/budget-forecaster/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Repository { return newStore(t) })
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	// GIVEN: A file database with one account and one budget
	// WHEN: Closing and reopening it
	// THEN: The data and the schema survive the migration running again

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "forecast.db")

	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(ctx, core.Account{
		Name:        "checking",
		Balance:     core.NewAmountFromInt(1000, "EUR"),
		BalanceDate: core.MustParseDate("2023-03-15"),
	}))
	base, err := core.NewSpan(core.MustParseDate("2023-03-01"), core.Months(1))
	require.NoError(t, err)
	b, err := core.NewBudget(core.OperationRange{
		Description: "Groceries",
		Amount:      core.NewAmountFromInt(-300, "EUR"),
		Category:    core.CategoryGroceries,
		Interval:    base,
		Matcher:     core.DefaultBudgetMatcherParams(),
	})
	require.NoError(t, err)
	saved, err := s.AddBudget(ctx, b)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	acc, err := reopened.GetAccount(ctx, "checking")
	require.NoError(t, err)
	assert.Equal(t, core.MustParseDate("2023-03-15"), acc.BalanceDate)

	got, err := reopened.GetBudget(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Description)
	assert.Equal(t, core.MustParseDate("2023-03-31"), got.Interval.LastDate())
}
