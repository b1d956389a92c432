package retriever

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/transfer-analytics/internal/apperr"
	"github.com/example/transfer-analytics/internal/eth"
	"github.com/example/transfer-analytics/internal/mock"
	"github.com/example/transfer-analytics/internal/models"
)

var (
	token = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestBatches(t *testing.T) {
	assert.Equal(t, []models.BlockRange{{From: 0, To: 1999}, {From: 2000, To: 3999}, {From: 4000, To: 4500}}, Batches(0, 4500, 2000))
	assert.Equal(t, []models.BlockRange{{From: 7, To: 7}}, Batches(7, 7, 2000))
	assert.Equal(t, []models.BlockRange{{From: 10, To: 11}, {From: 12, To: 13}}, Batches(10, 13, 2))
	assert.Nil(t, Batches(5, 4, 10))
}

func TestFetchOrdersAcrossBatches(t *testing.T) {
	chain := mock.LinearChain(10_000, 1_700_000_000, 12)
	chain.Logs = []mock.LogAt{
		mock.TransferLog(9_001, bob, alice, 5),
		mock.TransferLog(15, alice, bob, 1),
		mock.TransferLog(4_200, alice, bob, 3),
		mock.TransferLog(2_500, bob, alice, 2),
		mock.TransferLog(9_999, alice, bob, 6),
	}
	r := New("test", token, chain, chain, Options{BatchSize: 1000, Concurrency: 3})

	events, err := r.Fetch(context.Background(), 0, 9_999)
	require.NoError(t, err)
	require.Len(t, events, 5)

	var blocks []uint64
	for _, ev := range events {
		blocks = append(blocks, ev.BlockNumber)
		assert.Equal(t, chain.Timestamps[ev.BlockNumber], ev.Timestamp)
	}
	assert.Equal(t, []uint64{15, 2_500, 4_200, 9_001, 9_999}, blocks)
	assert.Equal(t, alice, events[0].From)
	assert.Equal(t, bob, events[0].To)
	assert.Equal(t, int64(1), events[0].Value.Int64())

	queries := chain.Queries()
	require.Len(t, queries, 10)
	for i, q := range queries {
		assert.Equal(t, uint64(i*1000), q.FromBlock)
		assert.Equal(t, uint64(i*1000+999), q.ToBlock)
		assert.Equal(t, token, q.Address)
		assert.Equal(t, eth.TransferTopic, q.Topic)
	}
}

func TestFetchLooksUpEachBlockOnce(t *testing.T) {
	chain := mock.LinearChain(100, 0, 3)
	chain.Logs = []mock.LogAt{
		mock.TransferLog(10, alice, bob, 1),
		mock.TransferLog(10, bob, alice, 1),
		mock.TransferLog(10, alice, bob, 1),
		mock.TransferLog(11, alice, bob, 1),
		mock.TransferLog(50, alice, bob, 1),
	}
	r := New("test", token, chain, chain, Options{BatchSize: 20})

	events, err := r.Fetch(context.Background(), 0, 99)
	require.NoError(t, err)
	assert.Len(t, events, 5)
	assert.Equal(t, 3, chain.TimestampCalls())
}

func TestFetchSkipsMalformedLogs(t *testing.T) {
	chain := mock.LinearChain(100, 0, 3)
	bad := mock.TransferLog(20, alice, bob, 99)
	bad.Log.Topics = bad.Log.Topics[:2]
	chain.Logs = []mock.LogAt{mock.TransferLog(10, alice, bob, 7), bad, mock.TransferLog(30, bob, alice, 8)}
	r := New("test", token, chain, chain, Options{})

	events, err := r.Fetch(context.Background(), 0, 99)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(7), events[0].Value.Int64())
	assert.Equal(t, int64(8), events[1].Value.Int64())
}

func TestFetchFailsOnMissingBlockNumber(t *testing.T) {
	chain := mock.LinearChain(100, 0, 3)
	orphan := mock.TransferLog(40, alice, bob, 1)
	orphan.Log.BlockNumber = nil
	chain.Logs = []mock.LogAt{mock.TransferLog(10, alice, bob, 1), orphan}
	r := New("test", token, chain, chain, Options{BatchSize: 10})

	events, err := r.Fetch(context.Background(), 0, 99)
	require.Error(t, err)
	assert.Nil(t, events)
	assert.True(t, apperr.IsUpstream(err))
	assert.ErrorIs(t, err, errMissingBlockNumber)
}

func TestFetchSplitsOversizedRanges(t *testing.T) {
	chain := mock.LinearChain(1_000, 0, 3)
	for b := uint64(100); b < 110; b++ {
		chain.Logs = append(chain.Logs, mock.TransferLog(b, alice, bob, int64(b)))
	}
	chain.MaxLogs = 3
	r := New("test", token, chain, chain, Options{BatchSize: 1_000})

	events, err := r.Fetch(context.Background(), 0, 999)
	require.NoError(t, err)
	require.Len(t, events, 10)
	for i, ev := range events {
		assert.Equal(t, uint64(100+i), ev.BlockNumber)
	}
	assert.Greater(t, chain.LogCalls(), 1)
}

func TestFetchFailsWhenSingleBlockTooLarge(t *testing.T) {
	chain := mock.LinearChain(100, 0, 3)
	for i := 0; i < 4; i++ {
		chain.Logs = append(chain.Logs, mock.TransferLog(42, alice, bob, 1))
	}
	chain.MaxLogs = 3
	r := New("test", token, chain, chain, Options{BatchSize: 100})

	_, err := r.Fetch(context.Background(), 0, 99)
	require.Error(t, err)
	assert.True(t, eth.IsRangeTooLarge(err))
	assert.True(t, apperr.IsUpstream(err))
}

func TestFetchPropagatesUpstreamErrors(t *testing.T) {
	chain := mock.LinearChain(100, 0, 3)
	chain.FailLogs = errors.New("connection reset")
	r := New("test", token, chain, chain, Options{BatchSize: 10})

	_, err := r.Fetch(context.Background(), 0, 99)
	require.Error(t, err)
	assert.True(t, apperr.IsUpstream(err))

	chain.FailLogs = nil
	chain.Logs = []mock.LogAt{mock.TransferLog(5, alice, bob, 1)}
	chain.FailTimestamps = map[uint64]error{5: errors.New("header not found")}
	_, err = r.Fetch(context.Background(), 0, 99)
	require.Error(t, err)
	assert.True(t, apperr.IsUpstream(err))
}

func TestFetchEmptyRange(t *testing.T) {
	chain := mock.LinearChain(100, 0, 3)
	r := New("test", token, chain, chain, Options{})

	events, err := r.Fetch(context.Background(), 0, 99)
	require.NoError(t, err)
	assert.Empty(t, events)
}

// gaugedLogs tracks the highest number of concurrent GetLogs calls.
type gaugedLogs struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (g *gaugedLogs) GetLogs(ctx context.Context, q eth.FilterQuery) ([]eth.Log, error) {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.peak {
		g.peak = g.inFlight
	}
	g.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	return nil, nil
}

func TestFetchRespectsConcurrencyLimit(t *testing.T) {
	logs := &gaugedLogs{}
	r := New("test", token, logs, mock.LinearChain(1, 0, 1), Options{BatchSize: 10, Concurrency: 2})

	_, err := r.Fetch(context.Background(), 0, 199)
	require.NoError(t, err)
	assert.LessOrEqual(t, logs.peak, 2)
	assert.GreaterOrEqual(t, logs.peak, 1)
}

func TestDecodeTransfer(t *testing.T) {
	l := mock.TransferLog(77, alice, bob, 1_000_000).Log
	ev, err := DecodeTransfer(l)
	require.NoError(t, err)
	assert.Equal(t, alice, ev.From)
	assert.Equal(t, bob, ev.To)
	assert.Equal(t, "1000000", ev.Value.String())
	assert.Equal(t, uint64(77), ev.BlockNumber)

	l.Data = nil
	ev, err = DecodeTransfer(l)
	require.NoError(t, err)
	assert.Equal(t, 0, ev.Value.Sign())

	l.Topics = l.Topics[:1]
	_, err = DecodeTransfer(l)
	assert.ErrorIs(t, err, ErrMalformedLog)
}
