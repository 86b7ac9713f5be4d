package core_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-forecaster/core"
)

func TestDate_AddMonths_ClampsToEndOfMonth(t *testing.T) {
	tests := []struct {
		from  string
		delta core.Delta
		want  string
	}{
		{"2023-01-31", core.Months(1), "2023-02-28"},
		{"2024-01-31", core.Months(1), "2024-02-29"},
		{"2023-03-31", core.Months(-1), "2023-02-28"},
		{"2023-01-15", core.Years(1), "2024-01-15"},
		{"2023-12-31", core.Delta{Months: 1, Days: 1}, "2024-02-01"},
		{"2023-03-01", core.Weeks(2), "2023-03-15"},
	}
	for _, tt := range tests {
		t.Run(tt.from+"+"+tt.delta.String(), func(t *testing.T) {
			assert.Equal(t, day(tt.want), day(tt.from).Add(tt.delta))
		})
	}
}

func TestDelta_Times_ComputedFromFirstStart(t *testing.T) {
	// GIVEN: A date on the 31st
	// WHEN: Adding 1 month then 1 month again vs 2 months at once
	// THEN: The chained result drifts to the 28th, Times does not

	start := day("2023-01-31")
	chained := start.Add(core.Months(1)).Add(core.Months(1))
	direct := start.Add(core.Months(1).Times(2))

	assert.Equal(t, day("2023-03-28"), chained)
	assert.Equal(t, day("2023-03-31"), direct)
}

func TestDelta_NormalizesMonths(t *testing.T) {
	assert.True(t, core.Months(12).Equal(core.Years(1)))
	assert.Equal(t, core.Delta{Years: 1, Months: 2}, core.Months(14))
	assert.Equal(t, "2w", core.Weeks(2).String())
	assert.Equal(t, "1y1m", core.Months(13).String())
	assert.Equal(t, "0d", core.Delta{}.String())
}

func TestDate_DaysUntil_Forever(t *testing.T) {
	// Spans close to Forever exceed time.Duration; the day count must not
	// saturate.
	n := day("2023-01-01").DaysUntil(core.Forever)
	assert.Greater(t, n, 2_900_000)
	assert.Equal(t, -n, core.Forever.DaysUntil(day("2023-01-01")))
}

func TestDate_JSON(t *testing.T) {
	type payload struct {
		At core.Date `json:"at"`
	}
	data, err := json.Marshal(payload{At: core.NewDate(2023, time.March, 1)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"2023-03-01"}`, string(data))

	var back payload
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, day("2023-03-01"), back.At)

	assert.Error(t, json.Unmarshal([]byte(`{"at":"03/01/2023"}`), &back))
}

func TestEndOfMonth(t *testing.T) {
	assert.Equal(t, day("2024-02-29"), core.EndOfMonth(2024, time.February))
	assert.Equal(t, day("2023-12-31"), core.EndOfMonth(2023, time.December))
	assert.Equal(t, day("2023-12-01"), core.StartOfMonth(2023, time.December))
}
