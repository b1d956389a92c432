package eth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// TransferTopic is topic0 of the ERC20 Transfer(address,address,uint256) event.
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

type Client struct {
	url   string
	httpc *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{url: url, httpc: &http.Client{Timeout: timeout}}
}

type rpcReq struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id"`
}

type rpcResp struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	body, err := json.Marshal(rpcReq{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", method, err)
	}
	var rr rpcResp
	if err := json.Unmarshal(b, &rr); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: http status %d", method, resp.StatusCode)
		}
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if rr.Error != nil {
		return &RPCError{Method: method, Code: rr.Error.Code, Message: rr.Error.Message}
	}
	if result != nil {
		if err := json.Unmarshal(rr.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// limitMarkers are fragments providers use when an eth_getLogs range or its
// result set is too large (geth, erigon, infura, alchemy, bsc dataseed).
var limitMarkers = []string{
	"query returned more than",
	"response size exceeded",
	"block range",
	"range is too large",
	"too many results",
	"limit exceeded",
	"exceed maximum block range",
	"log response size",
}

// IsRangeTooLarge reports whether err is a provider rejecting a log query for
// its size rather than for its content.
func IsRangeTooLarge(err error) bool {
	var re *RPCError
	if !errors.As(err, &re) {
		return false
	}
	if re.Code == -32005 {
		return true
	}
	msg := strings.ToLower(re.Message)
	for _, m := range limitMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// EthCall performs eth_call and returns hex-encoded data string.
func (c *Client) EthCall(ctx context.Context, to string, data string) (string, error) {
	// params: [ { to, data }, "latest" ]
	var res string
	err := c.call(ctx, "eth_call", []interface{}{map[string]string{"to": to, "data": data}, "latest"}, &res)
	return res, err
}

// EthGetCode returns the runtime code at an address; empty code means non-contract.
func (c *Client) EthGetCode(ctx context.Context, address string) (string, error) {
	var res string
	if err := c.call(ctx, "eth_getCode", []interface{}{address, "latest"}, &res); err != nil {
		return "", err
	}
	return res, nil
}

// LatestBlockNumber returns the head block number (eth_blockNumber).
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var res hexutil.Uint64
	if err := c.call(ctx, "eth_blockNumber", []interface{}{}, &res); err != nil {
		return 0, err
	}
	return uint64(res), nil
}

// BlockTimestamp returns the unix timestamp of block n.
func (c *Client) BlockTimestamp(ctx context.Context, n uint64) (uint64, error) {
	var blk *struct {
		Timestamp *hexutil.Uint64 `json:"timestamp"`
	}
	if err := c.call(ctx, "eth_getBlockByNumber", []interface{}{hexutil.EncodeUint64(n), false}, &blk); err != nil {
		return 0, err
	}
	if blk == nil {
		return 0, fmt.Errorf("eth_getBlockByNumber: block %d not found", n)
	}
	if blk.Timestamp == nil {
		return 0, fmt.Errorf("eth_getBlockByNumber: block %d has no timestamp", n)
	}
	return uint64(*blk.Timestamp), nil
}

// FilterQuery selects logs of one contract and topic0 in a closed block range.
type FilterQuery struct {
	Address   common.Address
	Topic     common.Hash
	FromBlock uint64
	ToBlock   uint64
}

// Log is the subset of an eth_getLogs entry the retriever needs.
// BlockNumber is nil when the provider omitted it.
type Log struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber *uint64
	LogIndex    uint64
}

type rpcLog struct {
	Address     common.Address  `json:"address"`
	Topics      []common.Hash   `json:"topics"`
	Data        hexutil.Bytes   `json:"data"`
	BlockNumber *hexutil.Uint64 `json:"blockNumber"`
	LogIndex    hexutil.Uint64  `json:"logIndex"`
}

// GetLogs runs eth_getLogs for q.
func (c *Client) GetLogs(ctx context.Context, q FilterQuery) ([]Log, error) {
	filter := map[string]interface{}{
		"address":   q.Address,
		"topics":    []common.Hash{q.Topic},
		"fromBlock": hexutil.EncodeUint64(q.FromBlock),
		"toBlock":   hexutil.EncodeUint64(q.ToBlock),
	}
	var raw []rpcLog
	if err := c.call(ctx, "eth_getLogs", []interface{}{filter}, &raw); err != nil {
		return nil, err
	}
	out := make([]Log, 0, len(raw))
	for _, r := range raw {
		l := Log{Address: r.Address, Topics: r.Topics, Data: r.Data, LogIndex: uint64(r.LogIndex)}
		if r.BlockNumber != nil {
			n := uint64(*r.BlockNumber)
			l.BlockNumber = &n
		}
		out = append(out, l)
	}
	return out, nil
}
