// Package aggregator reduces a set of transfer events into the volume chart
// and the top senders ranking. Both reductions are pure and safe to run
// concurrently over the same slice.
package aggregator

import (
	"math/big"
	"sort"

	"github.com/example/transfer-analytics/internal/amount"
	"github.com/example/transfer-analytics/internal/models"
)

// BucketWidth is the volume chart resolution in seconds.
const BucketWidth = 1800

// Bucket is an unrendered chart point.
type Bucket struct {
	Start  uint64
	Volume *big.Int
}

// VolumeBuckets sums event values per bucket of the given width and returns
// the non-empty buckets in ascending order.
func VolumeBuckets(events []models.TransferEvent, width uint64) []Bucket {
	if width == 0 {
		width = BucketWidth
	}
	sums := make(map[uint64]*big.Int)
	for _, ev := range events {
		start := ev.Timestamp / width * width
		sum, ok := sums[start]
		if !ok {
			sum = new(big.Int)
			sums[start] = sum
		}
		if ev.Value != nil {
			sum.Add(sum, ev.Value)
		}
	}
	out := make([]Bucket, 0, len(sums))
	for start, v := range sums {
		out = append(out, Bucket{Start: start, Volume: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// AggregateVolume is VolumeBuckets rendered with the token's decimals.
func AggregateVolume(events []models.TransferEvent, width uint64, decimals uint) []models.VolumePoint {
	buckets := VolumeBuckets(events, width)
	points := make([]models.VolumePoint, len(buckets))
	for i, b := range buckets {
		points[i] = models.VolumePoint{Timestamp: b.Start, Volume: amount.Format(b.Volume, decimals)}
	}
	return points
}

// TotalVolume sums every event value.
func TotalVolume(events []models.TransferEvent) *big.Int {
	total := new(big.Int)
	for _, ev := range events {
		if ev.Value != nil {
			total.Add(total, ev.Value)
		}
	}
	return total
}
