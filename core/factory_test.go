package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/budget-forecaster/core"
)

func TestIDSequence(t *testing.T) {
	seq := core.SequenceAfter([]core.HistoricOperation{
		op(4, "", "-1", core.CategoryOther, "2023-01-01"),
		op(9, "", "-1", core.CategoryOther, "2023-01-02"),
		op(2, "", "-1", core.CategoryOther, "2023-01-03"),
	})
	assert.Equal(t, core.OperationID(9), seq.Last)

	id, next := seq.Next()
	assert.Equal(t, core.OperationID(10), id)
	assert.Equal(t, core.OperationID(9), seq.Last, "Next does not mutate the receiver")
	id, _ = next.Next()
	assert.Equal(t, core.OperationID(11), id)

	assert.Equal(t, core.OperationID(0), core.SequenceAfter(nil).Last)
}

func TestOperationFactory(t *testing.T) {
	f := core.NewOperationFactory(10)

	a := f.Create("COFFEE", eur("-3.20"), "", day("2023-03-01"))
	b := f.Create("SALARY", eur("2000"), core.CategorySalary, day("2023-03-01"))

	assert.Equal(t, core.OperationID(11), a.ID)
	assert.Equal(t, core.OperationID(12), b.ID)
	assert.Equal(t, core.CategoryUncategorized, a.Category)
	assert.Equal(t, core.CategorySalary, b.Category)
	assert.Equal(t, core.OperationID(12), f.LastID())
}
