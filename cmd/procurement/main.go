// Procurement Insight CLI - spend analytics and purchase-order approval
//
// Usage:
//
//	procurement insights --orders orders.json
//	procurement explain --intent total_spend --erp-url https://erp.example.com
//	procurement approve --order PO-0042 --format markdown
//	procurement ingest --s3-bucket exports --s3-key po/latest.json
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"procurement-insight/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var logger = zerolog.Nop()

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "procurement",
		Usage:   "Procurement spend insights and purchase-order approval decisions",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: globalFlags(),
		Before: func(c *cli.Context) error {
			logger = platform.InitLogger(c.String("log-level"))
			return nil
		},

		Commands: []*cli.Command{
			insightsCommand(),
			recommendCommand(),
			explainCommand(),
			approveCommand(),
			anomaliesCommand(),
			delaysCommand(),
			ingestCommand(),
			ratesCommand(),
			serveCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			EnvVars: []string{"PROCUREMENT_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "orders",
			Usage:   "Path to a JSON order export (array or ERPNext envelope)",
			EnvVars: []string{"PROCUREMENT_ORDERS_FILE"},
		},
		&cli.StringFlag{
			Name:    "s3-bucket",
			Usage:   "S3 bucket holding the order export",
			EnvVars: []string{"PROCUREMENT_S3_BUCKET"},
		},
		&cli.StringFlag{
			Name:    "s3-key",
			Usage:   "S3 object key of the order export",
			EnvVars: []string{"PROCUREMENT_S3_KEY"},
		},
		&cli.StringFlag{
			Name:    "s3-region",
			Value:   "us-east-1",
			Usage:   "S3 region",
			EnvVars: []string{"AWS_REGION"},
		},
		&cli.StringFlag{
			Name:    "s3-endpoint",
			Usage:   "Custom S3 endpoint (MinIO, LocalStack)",
			EnvVars: []string{"PROCUREMENT_S3_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "erp-url",
			Usage:   "ERPNext base URL",
			EnvVars: []string{"ERP_URL"},
		},
		&cli.StringFlag{
			Name:    "erp-api-key",
			Usage:   "ERPNext API key",
			EnvVars: []string{"ERP_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "erp-api-secret",
			Usage:   "ERPNext API secret",
			EnvVars: []string{"ERP_API_SECRET"},
		},
		&cli.StringFlag{
			Name:    "store",
			Usage:   "Read orders from a store instead of a live source (clickhouse, postgres)",
			EnvVars: []string{"PROCUREMENT_STORE"},
		},
		&cli.StringFlag{
			Name:    "batch-source",
			Value:   "default",
			Usage:   "Source name of ClickHouse batches",
			EnvVars: []string{"PROCUREMENT_BATCH_SOURCE"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-host",
			Value:   "localhost",
			Usage:   "ClickHouse host",
			EnvVars: []string{"CLICKHOUSE_HOST"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-port",
			Value:   9000,
			Usage:   "ClickHouse native port",
			EnvVars: []string{"CLICKHOUSE_PORT"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-database",
			Value:   "procurement",
			Usage:   "ClickHouse database",
			EnvVars: []string{"CLICKHOUSE_DATABASE"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-user",
			Value:   "default",
			Usage:   "ClickHouse user",
			EnvVars: []string{"CLICKHOUSE_USER"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-password",
			Usage:   "ClickHouse password",
			EnvVars: []string{"CLICKHOUSE_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "postgres-dsn",
			Usage:   "PostgreSQL DSN for the order repository and verdict audit",
			EnvVars: []string{"POSTGRES_DSN"},
		},
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "table",
		Usage:   "Output format (table, json, markdown)",
	}
}
