package api_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-forecaster/api"
	"github.com/warp/budget-forecaster/core"
	"github.com/warp/budget-forecaster/core/store"
	"github.com/warp/budget-forecaster/factory"
	"github.com/warp/budget-forecaster/logging"
)

func newScheduler(t *testing.T) (*api.ActualizationScheduler, core.Repository) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateAccount(ctx, core.Account{
		Name:        "main",
		Balance:     core.NewAmountFromInt(1000, "EUR"),
		BalanceDate: core.MustParseDate("2023-01-31"),
		Operations: []core.HistoricOperation{{
			ID:          1,
			Description: "RENT",
			Amount:      core.NewAmountFromInt(-950, "EUR"),
			Category:    core.CategoryRent,
			Date:        core.MustParseDate("2023-01-02"),
		}},
	}))
	rent, err := factory.NewRangeFactory("EUR").ParsePlannedOperation([]byte(monthlyRent))
	require.NoError(t, err)
	_, err = mem.AddPlannedOperation(ctx, rent)
	require.NoError(t, err)

	logger := logging.New("error", "json", io.Discard)
	s := api.NewActualizationScheduler(mem, core.NewLinkService(mem, logger), logger)
	s.Now = func() time.Time { return time.Date(2023, 2, 1, 6, 0, 0, 0, time.UTC) }
	return s, mem
}

func TestScheduler_RunNow(t *testing.T) {
	// GIVEN: An unlinked rent operation and the rent planned operation
	// WHEN: Running the job twice
	// THEN: The first run links the operation, the second has nothing to do

	ctx := context.Background()
	s, repo := newScheduler(t)

	runs, err := s.RunNow(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	_, err = uuid.Parse(run.ID)
	assert.NoError(t, err, "run ids are uuids")
	assert.Equal(t, "main", run.Account)
	assert.Equal(t, core.MustParseDate("2023-01-31"), run.BalanceDate)
	assert.Equal(t, time.Date(2023, 2, 1, 6, 0, 0, 0, time.UTC), run.RanAt)
	assert.Equal(t, 1, run.LinksCreated)
	assert.Equal(t, 1, run.PlannedOperations)

	again, err := s.RunNow(ctx)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, 0, again[0].LinksCreated)
	assert.NotEqual(t, run.ID, again[0].ID)

	stored, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestScheduler_StartStop(t *testing.T) {
	s, _ := newScheduler(t)

	t.Run("empty schedule disables the job", func(t *testing.T) {
		require.NoError(t, s.Start(""))
		assert.True(t, s.NextRun().IsZero())
	})

	t.Run("invalid schedule", func(t *testing.T) {
		assert.Error(t, s.Start("every tuesday"))
		assert.True(t, s.NextRun().IsZero())
	})

	require.NoError(t, s.Start("@every 1h"))
	t.Cleanup(s.Stop)
	assert.False(t, s.NextRun().IsZero())
	assert.Error(t, s.Start("@every 1h"), "already started")

	s.Stop()
	assert.True(t, s.NextRun().IsZero())
	s.Stop()
}
