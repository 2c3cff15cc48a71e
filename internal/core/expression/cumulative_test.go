package expression

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// discharge air flow readings at six minute spacing after an initial reading of 1
var dischargeAirFlow = []int64{50, 52, 55, 58, 60, 57, 54, 51, 49, 53, 56, 59, 61, 55, 52, 47, 49}

func runCumulative(t *testing.T, typ CumulativeType) decimal.Decimal {
	t.Helper()
	c, ok := Cumulatives[typ]
	require.True(t, ok)

	total := c.Initial(decimal.NewFromInt(1))
	for _, v := range dischargeAirFlow {
		total = c.Apply(total, decimal.NewFromInt(v), 6*time.Minute)
	}
	return total
}

func TestCumulatives(t *testing.T) {
	tests := []struct {
		typ  CumulativeType
		want string
	}{
		{typ: Accumulate, want: "919"},
		{typ: AccumulateTimeSeconds, want: "330481"},
		{typ: AccumulateTimeMinutes, want: "5509"},
		{typ: AccumulateTimeHours, want: "92.8"},
	}
	for _, tc := range tests {
		t.Run(string(tc.typ), func(t *testing.T) {
			got := runCumulative(t, tc.typ)
			require.True(t, decimal.RequireFromString(tc.want).Equal(got), "got %s", got)
		})
	}
}

func TestCumulatives_ZeroGapIgnoredForTimeWeighted(t *testing.T) {
	c := Cumulatives[AccumulateTimeSeconds]
	cur := decimal.NewFromInt(10)
	require.True(t, cur.Equal(c.Apply(cur, decimal.NewFromInt(5), 0)))
}

func TestParseCumulativeType(t *testing.T) {
	got, err := ParseCumulativeType("accumulatetimeminutes")
	require.NoError(t, err)
	require.Equal(t, AccumulateTimeMinutes, got)

	got, err = ParseCumulativeType("")
	require.NoError(t, err)
	require.Equal(t, CumulativeNone, got)

	_, err = ParseCumulativeType("integrate")
	require.Error(t, err)
}
