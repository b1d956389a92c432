package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS block_timestamps (
            chain     TEXT   NOT NULL,
            number    BIGINT NOT NULL,
            timestamp BIGINT NOT NULL,
            PRIMARY KEY (chain, number)
        )
    `)
	return err
}

func (p *Postgres) BlockTimestamp(ctx context.Context, chain string, number uint64) (uint64, bool, error) {
	var ts int64
	err := p.pool.QueryRow(ctx, `
        SELECT timestamp
        FROM block_timestamps
        WHERE chain = $1 AND number = $2
    `, chain, int64(number)).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return uint64(ts), true, nil
}

func (p *Postgres) SaveBlockTimestamp(ctx context.Context, chain string, number, timestamp uint64) error {
	_, err := p.pool.Exec(ctx, `
        INSERT INTO block_timestamps (chain, number, timestamp)
        VALUES ($1, $2, $3)
        ON CONFLICT (chain, number) DO UPDATE SET timestamp = EXCLUDED.timestamp
    `, chain, int64(number), int64(timestamp))
	return err
}

// CountBlocks reports how many timestamps are indexed for chain.
func (p *Postgres) CountBlocks(ctx context.Context, chain string) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM block_timestamps WHERE chain = $1`, chain).Scan(&n)
	return n, err
}
