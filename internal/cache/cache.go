package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/example/transfer-analytics/internal/models"
)

// Cache stores computed responses and token metadata. A miss is (zero, false, nil).
type Cache interface {
	GetStats(ctx context.Context, chain string, w models.Window) (*models.TransferStats, bool, error)
	SetStats(ctx context.Context, chain string, w models.Window, stats *models.TransferStats, ttl time.Duration) error

	GetTokenMetadata(ctx context.Context, chain string) (models.TokenMetadata, bool, error)
	SetTokenMetadata(ctx context.Context, chain string, md models.TokenMetadata, ttl time.Duration) error
}

func statsKey(chain string, w models.Window) string {
	return fmt.Sprintf("transfers:%s:%d:%d", chain, w.Start, w.End)
}

func metadataKey(chain string) string { return "token:" + chain }
