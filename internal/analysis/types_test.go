package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransition(t *testing.T) {
	t.Parallel()

	require.True(t, StatusPending.CanTransition(StatusProcessing))
	require.True(t, StatusPending.CanTransition(StatusFailed))
	require.True(t, StatusProcessing.CanTransition(StatusCompleted))
	require.True(t, StatusProcessing.CanTransition(StatusFailed))

	require.False(t, StatusPending.CanTransition(StatusCompleted))
	require.False(t, StatusProcessing.CanTransition(StatusPending))
	require.False(t, StatusCompleted.CanTransition(StatusProcessing))
	require.False(t, StatusCompleted.CanTransition(StatusFailed))
	require.False(t, StatusFailed.CanTransition(StatusProcessing))
}

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()

	require.False(t, StatusPending.Terminal())
	require.False(t, StatusProcessing.Terminal())
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusFailed.Terminal())
}

func TestTierFor_Bands(t *testing.T) {
	t.Parallel()

	require.Equal(t, TierGood, TierFor(100))
	require.Equal(t, TierGood, TierFor(70))
	require.Equal(t, TierWarning, TierFor(69))
	require.Equal(t, TierWarning, TierFor(40))
	require.Equal(t, TierBad, TierFor(39))
	require.Equal(t, TierBad, TierFor(0))
}

func TestWeightedRound_RuleComposite(t *testing.T) {
	t.Parallel()

	// total == round(meta*0.4 + headers*0.2 + schema*0.2 + perf*0.2)
	for _, tc := range []struct {
		meta, headers, schema, perf int
		want                        int
	}{
		{100, 100, 100, 100, 100},
		{0, 0, 0, 0, 0},
		{50, 50, 50, 50, 50},
		{88, 75, 100, 50, 80},
		{63, 40, 20, 95, 56},
	} {
		got := WeightedRound(
			WeightedScore{tc.meta, RuleWeightMeta},
			WeightedScore{tc.headers, RuleWeightHeaders},
			WeightedScore{tc.schema, RuleWeightSchema},
			WeightedScore{tc.perf, RuleWeightPerformance},
		)
		require.Equal(t, tc.want, got)
	}
}

func TestTotalScore(t *testing.T) {
	t.Parallel()

	require.Equal(t, 100, TotalScore(100, 100))
	require.Equal(t, 50, TotalScore(50, 50))
	// round(80*0.4 + 55*0.6) = round(65) = 65
	require.Equal(t, 65, TotalScore(80, 55))
	// round(75*0.4 + 62*0.6) = round(67.2) = 67
	require.Equal(t, 67, TotalScore(75, 62))
}
