package aggregator

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/example/transfer-analytics/internal/amount"
	"github.com/example/transfer-analytics/internal/models"
)

// TopShare is the share of total volume, in percent, the ranked senders must
// reach before the rest collapse into Others.
const TopShare = 90

type senderTotal struct {
	addr   common.Address
	volume *big.Int
}

// RankSenders orders senders by volume and keeps the greedy prefix whose
// running total, checked before each sender is added, is still below
// TopShare percent of the total. The remaining senders are summed into a
// single trailing Others entry. No events, or only zero-value ones, yield an
// empty ranking.
func RankSenders(events []models.TransferEvent, decimals uint) []models.SenderVolume {
	perSender := make(map[common.Address]*big.Int)
	total := new(big.Int)
	for _, ev := range events {
		if ev.Value == nil {
			continue
		}
		v, ok := perSender[ev.From]
		if !ok {
			v = new(big.Int)
			perSender[ev.From] = v
		}
		v.Add(v, ev.Value)
		total.Add(total, ev.Value)
	}
	if total.Sign() == 0 {
		return []models.SenderVolume{}
	}

	senders := make([]senderTotal, 0, len(perSender))
	for addr, v := range perSender {
		senders = append(senders, senderTotal{addr: addr, volume: v})
	}
	sort.Slice(senders, func(i, j int) bool {
		if c := senders[i].volume.Cmp(senders[j].volume); c != 0 {
			return c > 0
		}
		return bytes.Compare(senders[i].addr.Bytes(), senders[j].addr.Bytes()) < 0
	})

	threshold := new(big.Int).Mul(total, big.NewInt(TopShare))
	accumulated := new(big.Int)
	scaled := new(big.Int)
	out := make([]models.SenderVolume, 0, len(senders))
	i := 0
	for ; i < len(senders); i++ {
		if scaled.Mul(accumulated, big.NewInt(100)).Cmp(threshold) >= 0 {
			break
		}
		accumulated.Add(accumulated, senders[i].volume)
		out = append(out, entry(senders[i].addr.Hex(), senders[i].volume, total, decimals))
	}

	others := new(big.Int)
	for _, s := range senders[i:] {
		others.Add(others, s.volume)
	}
	if others.Sign() > 0 {
		out = append(out, entry(models.OthersLabel, others, total, decimals))
	}
	return out
}

func entry(addr string, volume, total *big.Int, decimals uint) models.SenderVolume {
	pct, _ := new(big.Rat).SetFrac(new(big.Int).Mul(volume, big.NewInt(100)), total).Float64()
	return models.SenderVolume{Address: addr, Volume: amount.Format(volume, decimals), Percentage: pct}
}
