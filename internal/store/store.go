// Package store keeps a durable index of block timestamps so repeated
// resolutions and event stamping avoid RPC round trips.
package store

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// BlockIndex persists block timestamps per chain. A miss is (0, false, nil).
type BlockIndex interface {
	BlockTimestamp(ctx context.Context, chain string, number uint64) (uint64, bool, error)
	SaveBlockTimestamp(ctx context.Context, chain string, number, timestamp uint64) error
}

// HeaderSource matches the chain RPC methods CachedHeaders decorates.
type HeaderSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, n uint64) (uint64, error)
}

// CachedHeaders reads block timestamps from an index before asking the
// chain, and writes fetched timestamps back once they are ReorgDepth blocks
// behind the last head it saw. Index failures only cost a round trip.
type CachedHeaders struct {
	Chain      string
	Source     HeaderSource
	Index      BlockIndex
	ReorgDepth uint64

	head atomic.Uint64
}

func NewCachedHeaders(chain string, src HeaderSource, idx BlockIndex, reorgDepth uint64) *CachedHeaders {
	return &CachedHeaders{Chain: chain, Source: src, Index: idx, ReorgDepth: reorgDepth}
}

func (c *CachedHeaders) LatestBlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.Source.LatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	for {
		cur := c.head.Load()
		if n <= cur || c.head.CompareAndSwap(cur, n) {
			break
		}
	}
	return n, nil
}

func (c *CachedHeaders) BlockTimestamp(ctx context.Context, n uint64) (uint64, error) {
	ts, ok, err := c.Index.BlockTimestamp(ctx, c.Chain, n)
	if err != nil {
		log.Warn().Err(err).Str("chain", c.Chain).Uint64("block", n).Msg("block index read failed")
	} else if ok {
		return ts, nil
	}

	ts, err = c.Source.BlockTimestamp(ctx, n)
	if err != nil {
		return 0, err
	}
	if c.final(n) {
		if err := c.Index.SaveBlockTimestamp(ctx, c.Chain, n, ts); err != nil {
			log.Warn().Err(err).Str("chain", c.Chain).Uint64("block", n).Msg("block index write failed")
		}
	}
	return ts, nil
}

func (c *CachedHeaders) final(n uint64) bool {
	head := c.head.Load()
	return head >= c.ReorgDepth && n <= head-c.ReorgDepth
}
