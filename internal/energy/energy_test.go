package energy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartsAtMax(t *testing.T) {
	r := New(10)
	assert.Equal(t, Max, r.Current())
}

func TestConsumeClampsAtMin(t *testing.T) {
	r := New(10)
	r.Consume(1000)
	assert.Equal(t, Min, r.Current())
}

func TestConsumeAllowsNegativeAmount(t *testing.T) {
	r := New(10)
	r.Consume(-10)
	assert.InDelta(t, Max+10, r.Current(), 0.001, "consume clamps only at Min; a negative amount can raise E above Max")
}

func TestConsumeNegativeAmountBelowMax(t *testing.T) {
	r := New(10)
	r.Consume(50)
	require.InDelta(t, 50.0, r.Current(), 0.001)
	r.Consume(-10)
	assert.InDelta(t, 60.0, r.Current(), 0.001)
}

func TestSleepReplenishes(t *testing.T) {
	r := New(100) // 100 units/sec for a fast test
	r.Consume(50)
	require.InDelta(t, 50.0, r.Current(), 0.001)
	r.Sleep(context.Background(), 0.2)
	assert.InDelta(t, Max, r.Current(), 1.0)
}

func TestAwaitLevelReturnsImmediatelyWhenSatisfied(t *testing.T) {
	r := New(1)
	start := time.Now()
	r.AwaitLevel(context.Background(), 10)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAwaitLevelDeepRecovery(t *testing.T) {
	r := New(1000) // fast replenishment to keep the test quick
	r.Consume(1000)
	require.Equal(t, Min, r.Current())
	r.AwaitLevel(context.Background(), 10)
	assert.Equal(t, Max, r.Current())
}

func TestStatusBoundaries(t *testing.T) {
	cases := []struct {
		e    float64
		want Status
	}{
		{100, StatusHigh},
		{51, StatusHigh},
		{50, StatusMedium},
		{21, StatusMedium},
		{20, StatusLow},
		{1, StatusLow},
		{0, StatusDepleted},
		{-1, StatusUrgent},
		{-50, StatusUrgent},
	}
	for _, tc := range cases {
		r := New(1)
		r.Consume(Max - tc.e)
		assert.Equal(t, tc.want, r.Status(), "E=%v", tc.e)
	}
}

func TestPercentageNeverNegative(t *testing.T) {
	r := New(1)
	r.Consume(1000)
	assert.Equal(t, 0, r.Percentage())
}
