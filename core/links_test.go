package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-forecaster/core"
	"github.com/warp/budget-forecaster/core/store"
)

func rentAndGroceries(t *testing.T) (core.PlannedOperation, core.Budget, []core.DeclaredRange) {
	rent := plannedOp(t, 1, "Rent", "-950", core.CategoryRent, monthly(t, "2023-01-01"))
	groceries := budget(t, 2, "Groceries", "-300", core.CategoryGroceries,
		periodic(t, "2023-03-01", core.Months(1), core.Months(1), ""))
	return rent, groceries, []core.DeclaredRange{rent, groceries}
}

// =============================================================================
// LINK INDEX
// =============================================================================

func TestLinkIndex_FirstLinkPerOperationWins(t *testing.T) {
	ix := core.NewLinkIndex([]core.OperationLink{
		link(1, core.KindBudget, 2, "2023-03-01"),
		link(1, core.KindPlannedOperation, 1, "2023-03-01"),
		link(2, core.KindBudget, 2, "2023-03-01"),
	})

	assert.Equal(t, 2, ix.Len())
	l, ok := ix.ForOperation(1)
	require.True(t, ok)
	assert.Equal(t, core.KindBudget, l.TargetKind)

	assert.Len(t, ix.LinksFor(core.KindBudget, 2), 2)
	assert.Empty(t, ix.LinksFor(core.KindPlannedOperation, 1))
	assert.Equal(t, map[core.OperationID]core.Date{1: day("2023-03-01"), 2: day("2023-03-01")},
		ix.ForTarget(core.KindBudget, 2))
}

// =============================================================================
// HEURISTIC LINKING
// =============================================================================

func TestSuggestLinks(t *testing.T) {
	// GIVEN: A rent planned operation, a grocery budget and four operations
	// WHEN: Suggesting links
	// THEN: Matching unlinked operations get one link each, at their occurrence

	_, _, ranges := rentAndGroceries(t)
	ops := []core.HistoricOperation{
		op(4, "CINEMA", "-12", core.CategoryLeisure, "2023-03-05"),
		op(2, "SHOP", "-40", core.CategoryGroceries, "2023-03-10"),
		op(1, "RENT", "-950", core.CategoryRent, "2023-03-02"),
		op(3, "SHOP", "-25", core.CategoryGroceries, "2023-03-11"),
	}
	ix := core.NewLinkIndex([]core.OperationLink{link(3, core.KindBudget, 2, "2023-03-01")})

	got := core.SuggestLinks(ops, ranges, ix)
	require.Len(t, got, 2)

	assert.Equal(t, core.OperationID(1), got[0].OperationID)
	assert.Equal(t, core.KindPlannedOperation, got[0].TargetKind)
	assert.Equal(t, core.RangeID(1), got[0].TargetID)
	assert.Equal(t, day("2023-03-01"), got[0].IterationDate)
	assert.False(t, got[0].Manual)

	assert.Equal(t, core.OperationID(2), got[1].OperationID)
	assert.Equal(t, core.KindBudget, got[1].TargetKind)
	assert.Equal(t, day("2023-03-01"), got[1].IterationDate)
}

func TestSuggestLinks_EarlyPaymentTargetsNextOccurrence(t *testing.T) {
	rent := plannedOp(t, 1, "Rent", "-950", core.CategoryRent, monthly(t, "2023-01-01"))

	got := core.SuggestLinks([]core.HistoricOperation{op(1, "RENT", "-950", core.CategoryRent, "2023-03-28")},
		[]core.DeclaredRange{rent}, core.NewLinkIndex(nil))
	require.Len(t, got, 1)
	assert.Equal(t, day("2023-04-01"), got[0].IterationDate)
}

func TestSuggestLinks_SkipsUnpersistedRanges(t *testing.T) {
	draft := plannedOp(t, 0, "Rent", "-950", core.CategoryRent, monthly(t, "2023-01-01"))

	got := core.SuggestLinks([]core.HistoricOperation{op(1, "RENT", "-950", core.CategoryRent, "2023-03-01")},
		[]core.DeclaredRange{draft}, core.NewLinkIndex(nil))
	assert.Empty(t, got)
}

func TestRankTargets(t *testing.T) {
	_, _, ranges := rentAndGroceries(t)
	rentOp := op(1, "RENT", "-950", core.CategoryRent, "2023-03-02")

	got := core.RankTargets(rentOp, ranges, core.NewLinkIndex(nil))
	require.Len(t, got, 2)
	assert.Equal(t, core.RangeID(1), got[0].TargetID)
	assert.True(t, got[0].Matches)
	assert.Equal(t, day("2023-03-01"), got[0].IterationDate)
	assert.False(t, got[1].Matches)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
}

// =============================================================================
// LINK SERVICE
// =============================================================================

func TestLinkService_CreateHeuristicLinks_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc := core.NewLinkService(store.NewMemory(), nil)
	_, _, ranges := rentAndGroceries(t)
	ops := []core.HistoricOperation{
		op(1, "RENT", "-950", core.CategoryRent, "2023-03-02"),
		op(2, "SHOP", "-40", core.CategoryGroceries, "2023-03-10"),
	}

	created, err := svc.CreateHeuristicLinks(ctx, ops, ranges)
	require.NoError(t, err)
	assert.Len(t, created, 2)
	for _, l := range created {
		assert.NotZero(t, l.ID, "store assigns ids")
	}

	again, err := svc.CreateHeuristicLinks(ctx, ops, ranges)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestLinkService_RecalculateKeepsManualLinks(t *testing.T) {
	// GIVEN: A manual link and an automatic link on the same planned operation
	// WHEN: Recalculating links for that range
	// THEN: The manual link survives and the automatic one is recreated

	ctx := context.Background()
	mem := store.NewMemory()
	svc := core.NewLinkService(mem, nil)
	rent, _, _ := rentAndGroceries(t)

	odd := op(1, "TRANSFER", "-10", core.CategoryOther, "2023-03-15")
	regular := op(2, "RENT", "-950", core.CategoryRent, "2023-04-01")
	ops := []core.HistoricOperation{odd, regular}

	_, err := svc.LinkManually(ctx, odd, rent, day("2023-03-01"), "paid by friend")
	require.NoError(t, err)
	_, err = svc.CreateHeuristicLinks(ctx, ops, []core.DeclaredRange{rent})
	require.NoError(t, err)

	recreated, err := svc.RecalculateLinksForTarget(ctx, rent, ops)
	require.NoError(t, err)
	require.Len(t, recreated, 1)
	assert.Equal(t, regular.ID, recreated[0].OperationID)

	manual, err := mem.GetLink(ctx, odd.ID)
	require.NoError(t, err)
	assert.True(t, manual.Manual)
	assert.Equal(t, "paid by friend", manual.Notes)

	all, err := mem.ListLinks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLinkService_RecalculateAfterRangeChange(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := core.NewLinkService(mem, nil)
	rent, _, _ := rentAndGroceries(t)
	ops := []core.HistoricOperation{op(1, "RENT", "-950", core.CategoryRent, "2023-03-02")}

	_, err := svc.CreateHeuristicLinks(ctx, ops, []core.DeclaredRange{rent})
	require.NoError(t, err)

	// The rent moves to the 15th: the old link no longer holds.
	moved, err := core.WithInitialDate(rent.Interval, day("2023-01-15"))
	require.NoError(t, err)
	rent = rent.WithInterval(moved)

	recreated, err := svc.RecalculateLinksForTarget(ctx, rent, ops)
	require.NoError(t, err)
	assert.Empty(t, recreated)

	_, err = mem.GetLink(ctx, 1)
	assert.ErrorIs(t, err, core.ErrLinkNotFound)
}

func TestLinkService_LinkManually(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := core.NewLinkService(mem, nil)
	rent, groceries, _ := rentAndGroceries(t)
	o := op(1, "RENT", "-950", core.CategoryRent, "2023-03-02")

	t.Run("rejects a date that is not an occurrence start", func(t *testing.T) {
		_, err := svc.LinkManually(ctx, o, rent, day("2023-03-02"), "")
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrInvalidIteration)

		var iterErr *core.IterationError
		require.ErrorAs(t, err, &iterErr)
		assert.Equal(t, core.RangeID(1), iterErr.TargetID)
	})

	t.Run("rejects unpersisted ranges", func(t *testing.T) {
		draft := rent
		draft.ID = 0
		_, err := svc.LinkManually(ctx, o, draft, day("2023-03-01"), "")
		assert.ErrorIs(t, err, core.ErrInvalidRange)
	})

	t.Run("replaces an existing link", func(t *testing.T) {
		_, err := svc.LinkManually(ctx, o, rent, day("2023-03-01"), "")
		require.NoError(t, err)
		_, err = svc.LinkManually(ctx, o, groceries, day("2023-03-01"), "moved")
		require.NoError(t, err)

		l, err := mem.GetLink(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, core.KindBudget, l.TargetKind)
		assert.True(t, l.Manual)
	})
}
