// Package config loads the process configuration once from the environment
// (and an optional .env file) into a value passed to constructors.
package config

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/example/transfer-analytics/internal/amount"
	"github.com/example/transfer-analytics/internal/apperr"
	"github.com/example/transfer-analytics/internal/models"
)

const (
	Ethereum = "ethereum"
	BSC      = "bsc"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvUint64(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getenvDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Common holds the optional backing services. Empty addresses disable them.
type Common struct {
	PgDSN     string
	RedisAddr string
	RedisDB   int
	CacheTTL  time.Duration
}

// ChainConfig is one served chain.
type ChainConfig struct {
	Name     string
	RPCURL   string
	TokenHex string
	Decimals uint
}

// Token is the parsed token address. Only meaningful after Validate.
func (c ChainConfig) Token() common.Address { return common.HexToAddress(c.TokenHex) }

type Config struct {
	Common
	Addr string

	Chains map[string]ChainConfig
	Window models.Window

	BatchSize   int
	Concurrency int
	RPCTimeout  time.Duration
	// ReorgDepth keeps the newest blocks out of the block index.
	ReorgDepth uint64

	LogLevel  string
	LogPretty bool
}

func loadChain(name, prefix, defaultToken string, decimals uint) ChainConfig {
	return ChainConfig{
		Name:     name,
		RPCURL:   getenv(prefix+"_RPC_URL", ""),
		TokenHex: getenv(prefix+"_USDT_ADDRESS", defaultToken),
		Decimals: decimals,
	}
}

// Load reads .env if present, then the environment. Values that fail to
// parse fall back to their defaults; Validate catches what must not.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	decimals := uint(getenvInt("TOKEN_DECIMALS", amount.USDTDecimals))
	chains := map[string]ChainConfig{}
	for _, c := range []ChainConfig{
		loadChain(Ethereum, "ETHEREUM", "0xdAC17F958D2ee523a2206206994597C13D831ec7", decimals),
		loadChain(BSC, "BSC", "0x55d398326f99059fF775485246999027B3197955", decimals),
	} {
		if c.RPCURL != "" {
			chains[c.Name] = c
		}
	}
	return Config{
		Common: Common{
			PgDSN:     getenv("PG_DSN", ""),
			RedisAddr: getenv("REDIS_ADDR", ""),
			RedisDB:   getenvInt("REDIS_DB", 0),
			CacheTTL:  getenvDur("CACHE_TTL", 5*time.Minute),
		},
		Addr:   getenv("API_ADDR", ":8080"),
		Chains: chains,
		Window: models.Window{
			Start: getenvUint64("START_TIMESTAMP", 0),
			End:   getenvUint64("END_TIMESTAMP", 0),
		},
		BatchSize:   getenvInt("BATCH_SIZE", 2000),
		Concurrency: getenvInt("FETCH_CONCURRENCY", 4),
		RPCTimeout:  getenvDur("RPC_TIMEOUT", 30*time.Second),
		ReorgDepth:  getenvUint64("REORG_DEPTH", 12),
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getenvBool("LOG_PRETTY", false),
	}
}

// Validate reports the first setting that makes the configuration unusable.
func (c Config) Validate() error {
	if c.Window.Start == 0 || c.Window.End == 0 {
		return apperr.Config("START_TIMESTAMP/END_TIMESTAMP", "window is not set")
	}
	if err := ValidateWindow(c.Window); err != nil {
		return err
	}
	if c.BatchSize < 1 {
		return apperr.Config("BATCH_SIZE", "must be at least 1, got %d", c.BatchSize)
	}
	if c.Concurrency < 1 {
		return apperr.Config("FETCH_CONCURRENCY", "must be at least 1, got %d", c.Concurrency)
	}
	if len(c.Chains) == 0 {
		return apperr.Config("ETHEREUM_RPC_URL/BSC_RPC_URL", "no chain configured")
	}
	for _, name := range c.ChainNames() {
		ch := c.Chains[name]
		if !common.IsHexAddress(ch.TokenHex) {
			return apperr.Config(strings.ToUpper(name)+"_USDT_ADDRESS", "invalid token address %q", ch.TokenHex)
		}
		if ch.Decimals > 36 {
			return apperr.Config("TOKEN_DECIMALS", "out of range: %d", ch.Decimals)
		}
	}
	return nil
}

// ValidateWindow rejects a window that ends before it starts.
func ValidateWindow(w models.Window) error {
	if w.Start > w.End {
		return apperr.Config("window", "start %d is after end %d", w.Start, w.End)
	}
	return nil
}

// Chain returns the configuration of a served chain, or a ConfigurationError
// for an unknown or unconfigured one.
func (c Config) Chain(name string) (ChainConfig, error) {
	ch, ok := c.Chains[strings.ToLower(name)]
	if !ok {
		return ChainConfig{}, apperr.Config("chain", "unsupported chain %q", name)
	}
	return ch, nil
}

// ChainNames lists the served chains in a stable order.
func (c Config) ChainNames() []string {
	names := make([]string, 0, len(c.Chains))
	for n := range c.Chains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
