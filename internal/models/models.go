package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OthersLabel is the address used for the remainder entry of a sender ranking.
const OthersLabel = "Others"

// TransferEvent is one decoded ERC20 Transfer log.
type TransferEvent struct {
	From        common.Address
	To          common.Address
	Value       *big.Int // smallest token unit
	BlockNumber uint64
	Timestamp   uint64 // unix seconds of the containing block
}

// VolumePoint is one non-empty bucket of the volume chart.
type VolumePoint struct {
	Timestamp uint64 `json:"timestamp"` // bucket start
	Volume    string `json:"volume"`
}

// SenderVolume is one slice of the top senders chart.
type SenderVolume struct {
	Address    string  `json:"address"`
	Volume     string  `json:"volume"`
	Percentage float64 `json:"percentage"`
}

// TransferStats is the response for one chain and window.
type TransferStats struct {
	VolumeChart []VolumePoint  `json:"volumeChart"`
	TopSenders  []SenderVolume `json:"topSenders"`
	TotalVolume string         `json:"totalVolume"`
}

// Window is a closed unix-seconds interval.
type Window struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// BlockRange is a closed block-number interval.
type BlockRange struct {
	From uint64 `json:"fromBlock"`
	To   uint64 `json:"toBlock"`
	// Latest is the head block the range was resolved against.
	Latest uint64 `json:"latest"`
}

// ReachesHead reports whether the range end was clamped to the head block,
// i.e. the window extends to the present.
func (b BlockRange) ReachesHead() bool { return b.To >= b.Latest }

// TokenMetadata represents ERC20 static-ish fields.
type TokenMetadata struct {
	TokenAddress string `json:"token_address"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Decimals     int32  `json:"decimals"`
}

// ChainInfo describes one served chain for /api/chains.
type ChainInfo struct {
	Chain        string `json:"chain"`
	TokenAddress string `json:"tokenAddress"`
	Symbol       string `json:"symbol,omitempty"`
	Name         string `json:"name,omitempty"`
	Decimals     int32  `json:"decimals"`
	// OnChainDecimals is what the token contract reports; zero when unknown.
	OnChainDecimals int32 `json:"onChainDecimals,omitempty"`
}
