package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-forecaster/core"
	"github.com/warp/budget-forecaster/core/store"
	"github.com/warp/budget-forecaster/core/store/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Repository { return store.NewMemory() })
}

func TestMemory_GetAccountReturnsCopy(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateAccount(ctx, core.Account{
		Name:        "checking",
		Balance:     core.NewAmountFromInt(10, "EUR"),
		BalanceDate: core.MustParseDate("2023-03-01"),
		Operations: []core.HistoricOperation{
			{ID: 1, Description: "SHOP", Amount: core.NewAmountFromInt(-5, "EUR"), Date: core.MustParseDate("2023-02-20")},
		},
	}))

	acc, err := mem.GetAccount(ctx, "checking")
	require.NoError(t, err)
	acc.Operations[0].Description = "changed"

	again, err := mem.GetAccount(ctx, "checking")
	require.NoError(t, err)
	assert.Equal(t, "SHOP", again.Operations[0].Description)
}
