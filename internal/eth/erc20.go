package eth

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Precomputed function selectors
const (
	selName     = "0x06fdde03"
	selSymbol   = "0x95d89b41"
	selDecimals = "0x313ce567"
)

// parseStringOutput decodes ABI-encoded string return value
func parseStringOutput(hexData string) (string, error) {
	data, err := hexutil.Decode(hexData)
	if err != nil {
		return "", err
	}
	if len(data) < 64 {
		return "", errors.New("short data")
	}
	// bytes 0..31 hold the offset, 32..63 the length
	length := new(big.Int).SetBytes(data[32:64])
	if !length.IsInt64() || int64(len(data)) < 64+length.Int64() {
		return "", errors.New("incomplete")
	}
	return string(data[64 : 64+length.Int64()]), nil
}

// parseBytes32String tries to decode a fixed 32-byte string (bytes32), trimming trailing zeros.
func parseBytes32String(hexData string) (string, error) {
	data, err := hexutil.Decode(hexData)
	if err != nil {
		return "", err
	}
	if len(data) < 32 {
		return "", errors.New("short data")
	}
	return cleanString(string(data[len(data)-32:])), nil
}

// parseUint256 decodes a single uint256
func parseUint256(hexData string) (*big.Int, error) {
	data, err := hexutil.Decode(hexData)
	if err != nil {
		return nil, err
	}
	if len(data) < 32 {
		return nil, errors.New("short data")
	}
	return new(big.Int).SetBytes(data[len(data)-32:]), nil
}

func cleanString(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// ERC20Client reads token metadata through eth_call.
type ERC20Client struct{ rpc *Client }

func NewERC20Client(rpc *Client) *ERC20Client { return &ERC20Client{rpc: rpc} }

// GetCode proxies eth_getCode to check if an address is a contract.
func (e *ERC20Client) GetCode(ctx context.Context, address string) (string, error) {
	return e.rpc.EthGetCode(ctx, address)
}

func (e *ERC20Client) Name(ctx context.Context, token string) (string, error) {
	return e.stringCall(ctx, token, selName)
}

func (e *ERC20Client) Symbol(ctx context.Context, token string) (string, error) {
	return e.stringCall(ctx, token, selSymbol)
}

// stringCall handles both ABI strings and the bytes32 variant older tokens return.
func (e *ERC20Client) stringCall(ctx context.Context, token, selector string) (string, error) {
	out, err := e.rpc.EthCall(ctx, token, selector)
	if err != nil {
		return "", err
	}
	if s, err := parseStringOutput(out); err == nil && s != "" {
		return cleanString(s), nil
	}
	return parseBytes32String(out)
}

func (e *ERC20Client) Decimals(ctx context.Context, token string) (uint8, error) {
	out, err := e.rpc.EthCall(ctx, token, selDecimals)
	if err != nil {
		return 0, err
	}
	n, err := parseUint256(out)
	if err != nil {
		return 0, err
	}
	if n.BitLen() > 8 {
		return 0, errors.New("decimals out of range")
	}
	return uint8(n.Uint64()), nil
}
