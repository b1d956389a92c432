// Package retriever pulls ERC20 Transfer events for a block range in bounded,
// concurrent batches and stamps each event with its block's exact timestamp.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/example/transfer-analytics/internal/apperr"
	"github.com/example/transfer-analytics/internal/eth"
	"github.com/example/transfer-analytics/internal/models"
)

const (
	DefaultBatchSize   = 2000
	DefaultConcurrency = 4
)

// ErrMalformedLog marks a log with fewer than the three Transfer topics.
// Such logs are skipped, never returned to callers.
var ErrMalformedLog = errors.New("malformed transfer log")

// errMissingBlockNumber is a provider contract violation and fails the batch.
var errMissingBlockNumber = errors.New("log entry has no block number")

type LogSource interface {
	GetLogs(ctx context.Context, q eth.FilterQuery) ([]eth.Log, error)
}

type TimestampSource interface {
	BlockTimestamp(ctx context.Context, n uint64) (uint64, error)
}

type Options struct {
	BatchSize   uint64 // blocks per eth_getLogs call
	Concurrency int    // batches in flight
}

type Retriever struct {
	chain   string
	token   common.Address
	logs    LogSource
	headers TimestampSource
	opts    Options
}

func New(chain string, token common.Address, logs LogSource, headers TimestampSource, opts Options) *Retriever {
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Retriever{chain: chain, token: token, logs: logs, headers: headers, opts: opts}
}

// Batches splits [from, to] into consecutive ranges of at most size blocks.
func Batches(from, to, size uint64) []models.BlockRange {
	if from > to || size == 0 {
		return nil
	}
	var out []models.BlockRange
	for start := from; ; start += size {
		end := start + size - 1
		if end >= to || end < start {
			out = append(out, models.BlockRange{From: start, To: to})
			return out
		}
		out = append(out, models.BlockRange{From: start, To: end})
	}
}

// fetchRun is the per-call state shared by every batch of one Fetch.
type fetchRun struct {
	mu         sync.Mutex
	timestamps map[uint64]uint64
	lookups    atomic.Int64
	skipped    atomic.Int64
	splits     atomic.Int64
}

// Fetch returns every Transfer event of the token in [from, to] in ascending
// block order. Any failed batch fails the whole call.
func (r *Retriever) Fetch(ctx context.Context, from, to uint64) ([]models.TransferEvent, error) {
	started := time.Now()
	batches := Batches(from, to, r.opts.BatchSize)
	results := make([][]models.TransferEvent, len(batches))
	run := &fetchRun{timestamps: make(map[uint64]uint64)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, b := range batches {
		i, b := i, b
		g.Go(func() error {
			evs, err := r.fetchRange(gctx, run, b.From, b.To)
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", b.From, b.To, err)
			}
			results[i] = evs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, evs := range results {
		total += len(evs)
	}
	events := make([]models.TransferEvent, 0, total)
	for _, evs := range results {
		events = append(events, evs...)
	}
	log.Info().Str("chain", r.chain).Uint64("from_block", from).Uint64("to_block", to).
		Int("batches", len(batches)).Int64("splits", run.splits.Load()).Int("events", len(events)).
		Int64("skipped", run.skipped.Load()).Int64("timestamp_lookups", run.lookups.Load()).
		Dur("latency", time.Since(started)).Msg("fetched transfer events")
	return events, nil
}

// fetchRange fetches one batch, halving it while the provider rejects the
// query for size.
func (r *Retriever) fetchRange(ctx context.Context, run *fetchRun, from, to uint64) ([]models.TransferEvent, error) {
	logs, err := r.logs.GetLogs(ctx, eth.FilterQuery{Address: r.token, Topic: eth.TransferTopic, FromBlock: from, ToBlock: to})
	if err != nil {
		if eth.IsRangeTooLarge(err) && from < to {
			run.splits.Add(1)
			mid := from + (to-from)/2
			log.Debug().Str("chain", r.chain).Uint64("from_block", from).Uint64("to_block", to).Msg("log query too large, splitting")
			left, err := r.fetchRange(ctx, run, from, mid)
			if err != nil {
				return nil, err
			}
			right, err := r.fetchRange(ctx, run, mid+1, to)
			if err != nil {
				return nil, err
			}
			return append(left, right...), nil
		}
		return nil, apperr.Upstream("eth_getLogs", err)
	}

	events := make([]models.TransferEvent, 0, len(logs))
	skipped := 0
	for _, l := range logs {
		ev, err := DecodeTransfer(l)
		if errors.Is(err, ErrMalformedLog) {
			skipped++
			continue
		}
		if err != nil {
			return nil, apperr.Upstream("eth_getLogs", err)
		}
		events = append(events, ev)
	}
	if skipped > 0 {
		run.skipped.Add(int64(skipped))
		log.Warn().Str("chain", r.chain).Uint64("from_block", from).Uint64("to_block", to).
			Int("skipped", skipped).Msg("skipped malformed transfer logs")
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].BlockNumber < events[j].BlockNumber })

	for i := range events {
		ts, err := r.timestamp(ctx, run, events[i].BlockNumber)
		if err != nil {
			return nil, err
		}
		events[i].Timestamp = ts
	}
	return events, nil
}

// timestamp fetches a block timestamp at most once per Fetch.
func (r *Retriever) timestamp(ctx context.Context, run *fetchRun, n uint64) (uint64, error) {
	run.mu.Lock()
	ts, ok := run.timestamps[n]
	run.mu.Unlock()
	if ok {
		return ts, nil
	}
	ts, err := r.headers.BlockTimestamp(ctx, n)
	if err != nil {
		return 0, apperr.Upstream(fmt.Sprintf("timestamp of block %d", n), err)
	}
	run.lookups.Add(1)
	run.mu.Lock()
	run.timestamps[n] = ts
	run.mu.Unlock()
	return ts, nil
}

// DecodeTransfer turns a raw log into an event without a timestamp.
func DecodeTransfer(l eth.Log) (models.TransferEvent, error) {
	if len(l.Topics) < 3 {
		return models.TransferEvent{}, ErrMalformedLog
	}
	if l.BlockNumber == nil {
		return models.TransferEvent{}, errMissingBlockNumber
	}
	return models.TransferEvent{
		From:        common.BytesToAddress(l.Topics[1].Bytes()),
		To:          common.BytesToAddress(l.Topics[2].Bytes()),
		Value:       new(big.Int).SetBytes(l.Data),
		BlockNumber: *l.BlockNumber,
	}, nil
}
