package blocks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/transfer-analytics/internal/apperr"
	"github.com/example/transfer-analytics/internal/mock"
	"github.com/example/transfer-analytics/internal/models"
)

// irregular spacing with repeated timestamps, still non-decreasing
var irregular = []uint64{100, 100, 103, 110, 110, 110, 125, 126, 140, 200}

func TestResolve(t *testing.T) {
	r := NewResolver("test", &mock.Chain{Timestamps: irregular})
	ctx := context.Background()

	tests := []struct {
		name   string
		target uint64
		want   uint64
	}{
		{"before genesis", 0, 0},
		{"genesis exact", 100, 0},
		{"between blocks", 101, 2},
		{"first of duplicates", 110, 3},
		{"just after duplicates", 111, 6},
		{"head exact", 200, 9},
		{"after head", 10_000, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveIsMonotonic(t *testing.T) {
	chain := mock.LinearChain(5000, 1_600_000_000, 3)
	chain.Timestamps[1234] = chain.Timestamps[1233] // a zero-gap block
	r := NewResolver("test", chain)

	var prev uint64
	for target := uint64(1_599_999_990); target < 1_600_015_100; target += 7 {
		got, err := r.Resolve(context.Background(), target)
		require.NoError(t, err)
		require.GreaterOrEqual(t, got, prev, "target %d", target)
		prev = got
	}
}

func TestResolveProbeCountIsLogarithmic(t *testing.T) {
	chain := mock.LinearChain(1<<16, 0, 12)
	r := NewResolver("test", chain)

	_, err := r.Resolve(context.Background(), 12*40_000+5)
	require.NoError(t, err)
	assert.LessOrEqual(t, chain.TimestampCalls(), 17)
}

func TestResolveUpstreamFailure(t *testing.T) {
	chain := mock.LinearChain(100, 0, 1)
	chain.FailTimestamps = map[uint64]error{49: errors.New("rpc down")}
	r := NewResolver("test", chain)

	_, err := r.Resolve(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, apperr.IsUpstream(err))
}

func TestResolveWindow(t *testing.T) {
	r := NewResolver("test", &mock.Chain{Timestamps: irregular})

	br, err := r.ResolveWindow(context.Background(), models.Window{Start: 104, End: 126})
	require.NoError(t, err)
	assert.Equal(t, models.BlockRange{From: 3, To: 7, Latest: 9}, br)
	assert.False(t, br.ReachesHead())

	br, err = r.ResolveWindow(context.Background(), models.Window{Start: 104, End: 500})
	require.NoError(t, err)
	assert.True(t, br.ReachesHead())

	_, err = r.ResolveWindow(context.Background(), models.Window{Start: 200, End: 100})
	assert.True(t, apperr.IsConfiguration(err))
}
