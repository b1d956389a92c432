// Command transfer-stats computes TransferStats for one chain and window and
// prints them as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/example/transfer-analytics/internal/config"
	"github.com/example/transfer-analytics/internal/logging"
	"github.com/example/transfer-analytics/internal/metadata"
	"github.com/example/transfer-analytics/internal/pipeline"
)

type flags struct {
	chain         string
	start, end    uint64
	checkDecimals bool
}

func newRootCmd(out io.Writer, opts ...pipeline.Option) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "transfer-stats",
		Short: "Print stablecoin transfer volume and top senders for a chain and time window.",
		Long: `Resolves the window to blocks, fetches every Transfer event of the configured
token, and prints the 30 minute volume chart, the senders covering 90% of the
volume and the total as JSON. Settings come from the environment or .env;
--start and --end override START_TIMESTAMP and END_TIMESTAMP.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, cfg.LogPretty)
			if cmd.Flags().Changed("start") {
				cfg.Window.Start = f.start
			}
			if cmd.Flags().Changed("end") {
				cfg.Window.End = f.end
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f, out, opts...)
		},
	}
	cmd.Flags().StringVar(&f.chain, "chain", config.Ethereum, "chain to query (ethereum or bsc)")
	cmd.Flags().Uint64Var(&f.start, "start", 0, "window start, unix seconds")
	cmd.Flags().Uint64Var(&f.end, "end", 0, "window end, unix seconds")
	cmd.Flags().BoolVar(&f.checkDecimals, "check-decimals", false, "compare the token's on-chain decimals with TOKEN_DECIMALS first")
	return cmd
}

func run(ctx context.Context, cfg config.Config, f flags, out io.Writer, opts ...pipeline.Option) error {
	p := pipeline.New(cfg, opts...)

	if f.checkDecimals {
		readers := map[string]metadata.TokenReader{}
		for name, c := range p.ERC20Clients() {
			readers[name] = c
		}
		info, err := metadata.NewResolver(cfg, readers, nil).Lookup(ctx, f.chain)
		if err != nil {
			return fmt.Errorf("check decimals: %w", err)
		}
		if info.OnChainDecimals != info.Decimals {
			return fmt.Errorf("token %s reports %d decimals, configured %d", info.TokenAddress, info.OnChainDecimals, info.Decimals)
		}
		log.Info().Str("chain", info.Chain).Str("symbol", info.Symbol).Int32("decimals", info.Decimals).Msg("token decimals match")
	}

	stats, err := p.Run(ctx, f.chain)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
