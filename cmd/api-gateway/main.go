package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/example/transfer-analytics/internal/api"
	"github.com/example/transfer-analytics/internal/cache"
	"github.com/example/transfer-analytics/internal/config"
	"github.com/example/transfer-analytics/internal/logging"
	"github.com/example/transfer-analytics/internal/metadata"
	"github.com/example/transfer-analytics/internal/pipeline"
	"github.com/example/transfer-analytics/internal/store"
)

const serviceName = "transfer-analytics"

func main() {
	cfg, err := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogPretty)
	if err != nil {
		log.Fatal().Err(err).Msg("load .env")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var opts []pipeline.Option
	var rc cache.Cache
	if cfg.RedisAddr != "" {
		rds := cache.NewRedis(cfg.RedisAddr, cfg.RedisDB)
		defer rds.Close()
		if err := rds.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable")
		}
		rc = rds
		opts = append(opts, pipeline.WithCache(rds))
	}
	if cfg.PgDSN != "" {
		pg, err := store.NewPostgres(ctx, cfg.PgDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres")
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres schema")
		}
		opts = append(opts, pipeline.WithBlockIndex(pg))
	}

	p := pipeline.New(cfg, opts...)
	readers := map[string]metadata.TokenReader{}
	for name, c := range p.ERC20Clients() {
		readers[name] = c
	}

	gin.SetMode(gin.ReleaseMode)
	h := &api.Handler{
		Stats:   p,
		Chains:  metadata.NewResolver(cfg, readers, rc),
		Window:  cfg.Window,
		Service: serviceName,
	}
	srv := &http.Server{Addr: cfg.Addr, Handler: api.NewRouter(h), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info().Str("addr", cfg.Addr).Strs("chains", cfg.ChainNames()).
		Uint64("start", cfg.Window.Start).Uint64("end", cfg.Window.End).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
