package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"procurement-insight/api"
	"procurement-insight/db/clickhouse"
	"procurement-insight/db/postgres"
	"procurement-insight/source"
)

// resolved is the order source picked from the global flags plus anything that
// must be closed afterwards
type resolved struct {
	source.OrderSource
	name    string
	erp     *source.ERPSource
	ready   []api.Pinger
	closers []func() error
}

func (r *resolved) Close() {
	for _, c := range r.closers {
		if err := c(); err != nil {
			logger.Warn().Err(err).Msg("close failed")
		}
	}
}

// openSource picks, in order: --orders, --s3-bucket, --erp-url, --store.
func openSource(ctx context.Context, c *cli.Context) (*resolved, error) {
	switch {
	case c.String("orders") != "":
		fs := source.NewFileSource(c.String("orders"))
		return &resolved{OrderSource: fs, name: fs.String()}, nil

	case c.String("s3-bucket") != "":
		if c.String("s3-key") == "" {
			return nil, fmt.Errorf("--s3-key is required with --s3-bucket")
		}
		src, err := source.NewS3Source(ctx, source.S3Config{
			Bucket:   c.String("s3-bucket"),
			Key:      c.String("s3-key"),
			Region:   c.String("s3-region"),
			Endpoint: c.String("s3-endpoint"),
		})
		if err != nil {
			return nil, err
		}
		return &resolved{OrderSource: src, name: src.String()}, nil

	case c.String("erp-url") != "":
		cfg := source.ERPConfigFromEnv()
		cfg.BaseURL = c.String("erp-url")
		cfg.APIKey = c.String("erp-api-key")
		cfg.APISecret = c.String("erp-api-secret")
		erp, err := source.NewERPSource(cfg)
		if err != nil {
			return nil, err
		}
		return &resolved{OrderSource: erp, name: "erp", erp: erp}, nil

	case c.String("store") == "clickhouse":
		store, err := openClickHouse(ctx, c)
		if err != nil {
			return nil, err
		}
		return &resolved{
			OrderSource: store.ForSource(c.String("batch-source")),
			name:        "clickhouse",
			ready:       []api.Pinger{store},
			closers:     []func() error{store.Close},
		}, nil

	case c.String("store") == "postgres":
		store, err := openPostgres(ctx, c)
		if err != nil {
			return nil, err
		}
		return &resolved{
			OrderSource: store,
			name:        store.String(),
			ready:       []api.Pinger{store},
			closers:     []func() error{store.Close},
		}, nil

	case c.String("store") != "":
		return nil, fmt.Errorf("unknown store %q (expected clickhouse or postgres)", c.String("store"))
	}
	return nil, fmt.Errorf("no order source configured: set --orders, --s3-bucket, --erp-url or --store")
}

func openClickHouse(ctx context.Context, c *cli.Context) (*clickhouse.Store, error) {
	store, err := clickhouse.NewStore(&clickhouse.Config{
		Host:     c.String("clickhouse-host"),
		Port:     c.Int("clickhouse-port"),
		Database: c.String("clickhouse-database"),
		Username: c.String("clickhouse-user"),
		Password: c.String("clickhouse-password"),
		Debug:    c.String("log-level") == "debug",
	})
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to reach ClickHouse: %w", err)
	}
	return store, nil
}

func openPostgres(ctx context.Context, c *cli.Context) (*postgres.Store, error) {
	dsn := c.String("postgres-dsn")
	if dsn == "" {
		return nil, fmt.Errorf("--postgres-dsn is required")
	}
	return postgres.Open(ctx, dsn)
}
