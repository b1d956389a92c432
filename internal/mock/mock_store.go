package mock

import (
	"context"
	"fmt"
	"sync"
)

// BlockIndex is an in-memory store.BlockIndex.
type BlockIndex struct {
	mu   sync.Mutex
	rows map[string]uint64
	Err  error

	Reads, Writes int
}

func NewBlockIndex() *BlockIndex { return &BlockIndex{rows: make(map[string]uint64)} }

func indexKey(chain string, n uint64) string { return fmt.Sprintf("%s/%d", chain, n) }

func (b *BlockIndex) BlockTimestamp(ctx context.Context, chain string, number uint64) (uint64, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Reads++
	if b.Err != nil {
		return 0, false, b.Err
	}
	ts, ok := b.rows[indexKey(chain, number)]
	return ts, ok, nil
}

func (b *BlockIndex) SaveBlockTimestamp(ctx context.Context, chain string, number, timestamp uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Writes++
	if b.Err != nil {
		return b.Err
	}
	b.rows[indexKey(chain, number)] = timestamp
	return nil
}

func (b *BlockIndex) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}
