package mock

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/example/transfer-analytics/internal/eth"
)

// LogAt places a log at a block; Log.BlockNumber may be nil to simulate a
// provider omitting the field.
type LogAt struct {
	Block uint64
	Log   eth.Log
}

// TransferLog builds a well-formed Transfer log.
func TransferLog(block uint64, from, to common.Address, value int64) LogAt {
	return TransferLogBig(block, from, to, big.NewInt(value))
}

func TransferLogBig(block uint64, from, to common.Address, value *big.Int) LogAt {
	n := block
	return LogAt{Block: block, Log: eth.Log{
		Topics:      []common.Hash{eth.TransferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        common.LeftPadBytes(value.Bytes(), 32),
		BlockNumber: &n,
	}}
}

// Chain is an in-memory block/log source. Timestamps[i] is the timestamp of
// block i, so the head is len(Timestamps)-1.
type Chain struct {
	Timestamps []uint64
	Logs       []LogAt

	// MaxLogs rejects log queries matching more entries, like a provider's
	// result-size cap. Zero disables.
	MaxLogs int
	// FailTimestamps makes BlockTimestamp fail for these blocks.
	FailTimestamps map[uint64]error
	// FailLogs makes every GetLogs call fail.
	FailLogs error

	mu             sync.Mutex
	timestampCalls int
	logCalls       int
	queried        []eth.FilterQuery
}

// LinearChain returns blocks 0..n-1 with timestamps genesis + i*spacing.
func LinearChain(n int, genesis, spacing uint64) *Chain {
	ts := make([]uint64, n)
	for i := range ts {
		ts[i] = genesis + uint64(i)*spacing
	}
	return &Chain{Timestamps: ts}
}

func (c *Chain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(c.Timestamps) == 0 {
		return 0, errors.New("empty chain")
	}
	return uint64(len(c.Timestamps) - 1), nil
}

func (c *Chain) BlockTimestamp(ctx context.Context, n uint64) (uint64, error) {
	c.mu.Lock()
	c.timestampCalls++
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err, ok := c.FailTimestamps[n]; ok {
		return 0, err
	}
	if n >= uint64(len(c.Timestamps)) {
		return 0, errors.New("block not found")
	}
	return c.Timestamps[n], nil
}

func (c *Chain) GetLogs(ctx context.Context, q eth.FilterQuery) ([]eth.Log, error) {
	c.mu.Lock()
	c.logCalls++
	c.queried = append(c.queried, q)
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.FailLogs != nil {
		return nil, c.FailLogs
	}
	var out []eth.Log
	for _, l := range c.Logs {
		if l.Block >= q.FromBlock && l.Block <= q.ToBlock {
			out = append(out, l.Log)
		}
	}
	if c.MaxLogs > 0 && len(out) > c.MaxLogs {
		return nil, &eth.RPCError{Method: "eth_getLogs", Code: -32005, Message: "query returned more than 10000 results"}
	}
	return out, nil
}

func (c *Chain) TimestampCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timestampCalls
}

func (c *Chain) LogCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logCalls
}

// Queries returns the log filters seen so far ordered by FromBlock.
func (c *Chain) Queries() []eth.FilterQuery {
	c.mu.Lock()
	out := append([]eth.FilterQuery(nil), c.queried...)
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FromBlock < out[j].FromBlock })
	return out
}
