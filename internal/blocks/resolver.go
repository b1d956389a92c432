// Package blocks maps unix timestamps to block numbers.
package blocks

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/example/transfer-analytics/internal/apperr"
	"github.com/example/transfer-analytics/internal/models"
)

// HeaderSource is the part of the chain RPC the resolver needs.
type HeaderSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, n uint64) (uint64, error)
}

// Resolver finds the earliest block whose timestamp is >= a target, assuming
// block timestamps never decrease with block number.
type Resolver struct {
	Headers HeaderSource
	Chain   string // for logging only
}

func NewResolver(chain string, headers HeaderSource) *Resolver {
	return &Resolver{Headers: headers, Chain: chain}
}

// Resolve returns the lowest block number with timestamp >= target.
// A target before genesis yields 0, one after the head yields the head.
func (r *Resolver) Resolve(ctx context.Context, target uint64) (uint64, error) {
	latest, err := r.Headers.LatestBlockNumber(ctx)
	if err != nil {
		return 0, apperr.Upstream("latest block number", err)
	}
	n, probes, err := search(ctx, r.Headers, target, latest)
	if err != nil {
		return 0, err
	}
	log.Debug().Str("chain", r.Chain).Uint64("target", target).Uint64("block", n).
		Uint64("latest", latest).Int("probes", probes).Msg("resolved timestamp")
	return n, nil
}

// search keeps the answer inside [low, high] and narrows until they meet.
func search(ctx context.Context, h HeaderSource, target, latest uint64) (uint64, int, error) {
	low, high := uint64(0), latest
	probes := 0
	for low < high {
		mid := low + (high-low)/2
		ts, err := h.BlockTimestamp(ctx, mid)
		probes++
		if err != nil {
			return 0, probes, apperr.Upstream(fmt.Sprintf("timestamp of block %d", mid), err)
		}
		if ts < target {
			low = mid + 1
		} else {
			high = mid
		}
	}
	return low, probes, nil
}

// ResolveWindow resolves both ends of w against a single head, searching
// concurrently. The returned range records that head in Latest.
func (r *Resolver) ResolveWindow(ctx context.Context, w models.Window) (models.BlockRange, error) {
	if w.Start > w.End {
		return models.BlockRange{}, apperr.Config("window", "start %d is after end %d", w.Start, w.End)
	}
	latest, err := r.Headers.LatestBlockNumber(ctx)
	if err != nil {
		return models.BlockRange{}, apperr.Upstream("latest block number", err)
	}
	br := models.BlockRange{Latest: latest}
	var fromProbes, toProbes int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		br.From, fromProbes, err = search(gctx, r.Headers, w.Start, latest)
		return err
	})
	g.Go(func() (err error) {
		br.To, toProbes, err = search(gctx, r.Headers, w.End, latest)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.BlockRange{}, err
	}
	log.Debug().Str("chain", r.Chain).Uint64("from_block", br.From).Uint64("to_block", br.To).
		Uint64("latest", latest).Int("probes", fromProbes+toProbes).Msg("resolved window")
	return br, nil
}
