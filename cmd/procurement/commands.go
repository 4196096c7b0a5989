package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"procurement-insight/api"
	"procurement-insight/db/ingestion"
	"procurement-insight/decision/anomaly"
	"procurement-insight/decision/approval"
	"procurement-insight/decision/delay"
	"procurement-insight/decision/explain"
	"procurement-insight/decision/insights"
	"procurement-insight/decision/order"
	"procurement-insight/decision/recommend"
	"procurement-insight/pkg/platform"
)

// =============================================================================
// INSIGHTS / RECOMMEND
// =============================================================================

func insightsCommand() *cli.Command {
	return &cli.Command{
		Name:   "insights",
		Usage:  "Aggregate spend metrics and recommendations",
		Flags:  []cli.Flag{formatFlag()},
		Action: runInsights,
	}
}

func runInsights(c *cli.Context) error {
	orders, err := fetchOrders(c)
	if err != nil {
		return err
	}
	snapshot := insights.ComputeAggregate(orders)
	return newPrinter(c).insights(snapshot, recommend.Generate(snapshot))
}

func recommendCommand() *cli.Command {
	return &cli.Command{
		Name:  "recommend",
		Usage: "Print recommendations only",
		Flags: []cli.Flag{
			formatFlag(),
			&cli.BoolFlag{
				Name:  "core",
				Usage: "Skip the receiving and billing backlog rules",
			},
		},
		Action: func(c *cli.Context) error {
			orders, err := fetchOrders(c)
			if err != nil {
				return err
			}
			rules := recommend.DefaultRules()
			if c.Bool("core") {
				rules = recommend.CoreRules()
			}
			return newPrinter(c).recommendations(recommend.GenerateWith(insights.ComputeAggregate(orders), rules))
		},
	}
}

// =============================================================================
// EXPLAIN
// =============================================================================

func explainCommand() *cli.Command {
	return &cli.Command{
		Name:  "explain",
		Usage: "Explain an intent in plain language",
		Flags: []cli.Flag{
			formatFlag(),
			&cli.StringFlag{
				Name:     "intent",
				Aliases:  []string{"i"},
				Usage:    "Intent name (total_spend, list_purchase_orders, detect_price_anomalies, ...)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "order",
				Usage: "Target order for approve_purchase_order",
			},
			&cli.StringFlag{
				Name:  "as-of",
				Usage: "Reference date for detect_delayed_orders (YYYY-MM-DD)",
			},
		},
		Action: runExplain,
	}
}

func runExplain(c *cli.Context) error {
	ctx := c.Context
	intent, err := explain.Lookup(c.String("intent"))
	if err != nil {
		return err
	}

	src, err := openSource(ctx, c)
	if err != nil {
		return err
	}
	defer src.Close()

	orders, err := src.ListOrders(ctx)
	if err != nil {
		return err
	}

	snapshot := insights.ComputeAggregate(orders)
	facts := explain.Facts{Snapshot: &snapshot, Recommendations: recommend.Generate(snapshot)}

	switch intent {
	case explain.DetectPriceAnomalies:
		report := anomaly.Detect(orders, anomaly.DefaultConfig())
		facts.Anomalies = &report
	case explain.DetectDelayedOrders:
		asOf, err := parseAsOf(c.String("as-of"))
		if err != nil {
			return err
		}
		report := delay.Detect(orders, asOf)
		facts.Delays = &report
	case explain.ApprovePurchaseOrder:
		verdict, err := analyzer().Analyze(c.String("order"), orders)
		if err != nil {
			return err
		}
		facts.Verdict = verdict
	case explain.TotalSpend, explain.ListPurchaseOrders:
	default:
		if src.erp == nil {
			return fmt.Errorf("intent %s requires --erp-url", intent)
		}
		set, err := src.erp.ListEntities(ctx, intent)
		if err != nil {
			return err
		}
		facts.Entities = set
	}

	e := explain.Build(intent, facts)
	if e == nil {
		return fmt.Errorf("no explanation available for %s", intent)
	}
	return newPrinter(c).explanation(e)
}

// =============================================================================
// APPROVE
// =============================================================================

func approveCommand() *cli.Command {
	return &cli.Command{
		Name:  "approve",
		Usage: "Decide whether a purchase order should be approved (exit 2 on DO_NOT_APPROVE)",
		Flags: []cli.Flag{
			formatFlag(),
			&cli.StringFlag{
				Name:     "order",
				Aliases:  []string{"o"},
				Usage:    "Purchase order ID",
				Required: true,
			},
		},
		Action: runApprove,
	}
}

func analyzer() *approval.Analyzer {
	return approval.NewAnalyzer(approval.ConfigFromEnv())
}

func runApprove(c *cli.Context) error {
	ctx := c.Context
	cfg := approval.ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	orders, err := fetchOrders(c)
	if err != nil {
		return err
	}

	verdict, err := approval.NewAnalyzer(cfg).Analyze(c.String("order"), orders)
	if err != nil {
		return err
	}

	if c.String("postgres-dsn") != "" {
		store, err := openPostgres(ctx, c)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveVerdict(ctx, verdict, time.Now()); err != nil {
			return err
		}
	}

	e := explain.Build(explain.ApprovePurchaseOrder, explain.Facts{Verdict: verdict})
	if err := newPrinter(c).verdict(verdict, e); err != nil {
		return err
	}
	return exitForDecision(verdict.Decision)
}

func exitForDecision(d approval.Decision) error {
	if d == approval.DoNotApprove {
		return cli.Exit("", 2)
	}
	return nil
}

// =============================================================================
// ANOMALIES / DELAYS
// =============================================================================

func anomaliesCommand() *cli.Command {
	return &cli.Command{
		Name:  "anomalies",
		Usage: "Detect line items priced above their item average",
		Flags: []cli.Flag{
			formatFlag(),
			&cli.Float64Flag{
				Name:    "threshold",
				Value:   anomaly.DefaultConfig().ThresholdPercent,
				Usage:   "Percent above the item average that flags a line",
				EnvVars: []string{"PROCUREMENT_ANOMALY_THRESHOLD"},
			},
		},
		Action: func(c *cli.Context) error {
			orders, err := fetchOrders(c)
			if err != nil {
				return err
			}
			cfg := anomaly.DefaultConfig()
			cfg.ThresholdPercent = c.Float64("threshold")
			return newPrinter(c).anomalies(anomaly.Detect(orders, cfg))
		},
	}
}

func delaysCommand() *cli.Command {
	return &cli.Command{
		Name:  "delays",
		Usage: "List open orders past their schedule date",
		Flags: []cli.Flag{
			formatFlag(),
			&cli.StringFlag{
				Name:  "as-of",
				Usage: "Reference date (YYYY-MM-DD), defaults to today",
			},
		},
		Action: func(c *cli.Context) error {
			asOf, err := parseAsOf(c.String("as-of"))
			if err != nil {
				return err
			}
			orders, err := fetchOrders(c)
			if err != nil {
				return err
			}
			return newPrinter(c).delays(delay.Detect(orders, asOf))
		},
	}
}

func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: expected YYYY-MM-DD", raw)
	}
	return t, nil
}

// =============================================================================
// INGEST / RATES
// =============================================================================

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Copy orders from the configured source into ClickHouse",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "migrate",
				Value: true,
				Usage: "Create tables before ingesting",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Value: ingestion.DefaultBatchSize,
				Usage: "Orders per insert",
			},
		},
		Action: runIngest,
	}
}

func runIngest(c *cli.Context) error {
	ctx := c.Context
	if c.String("store") == "clickhouse" {
		return fmt.Errorf("ingest reads from a live source; --store clickhouse is the destination")
	}

	src, err := openSource(ctx, c)
	if err != nil {
		return err
	}
	defer src.Close()

	store, err := openClickHouse(ctx, c)
	if err != nil {
		return err
	}
	defer store.Close()

	if c.Bool("migrate") {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}

	adapter := ingestion.NewAdapter(store, logger).WithBatchSize(c.Int("batch-size"))
	result, err := adapter.Ingest(ctx, c.String("batch-source"), src)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	if c.String("postgres-dsn") != "" && c.String("store") != "postgres" {
		orders, err := src.ListOrders(ctx)
		if err != nil {
			return err
		}
		pg, err := openPostgres(ctx, c)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		if err := pg.UpsertOrders(ctx, orders); err != nil {
			return err
		}
	}

	state := "written"
	if result.Unchanged {
		state = "unchanged"
	}
	fmt.Fprintf(stdout, "Batch %s (%s): %d orders from %s in %s\n",
		result.BatchID, state, result.OrderCount, src.name, result.Duration.Round(time.Millisecond))
	return nil
}

func ratesCommand() *cli.Command {
	return &cli.Command{
		Name:  "rates",
		Usage: "Show per-item rate history from the active ClickHouse batch",
		Flags: []cli.Flag{formatFlag()},
		Action: func(c *cli.Context) error {
			store, err := openClickHouse(c.Context, c)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.ForSource(c.String("batch-source")).ItemRateHistory(c.Context)
			if err != nil {
				return err
			}
			return newPrinter(c).rates(stats)
		},
	}
}

// =============================================================================
// SERVE COMMAND (API SERVER)
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the procurement insight API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "API server port",
				EnvVars: []string{"PORT"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Require this X-API-Key on /api/v1 routes",
				EnvVars: []string{"PROCUREMENT_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "api-user",
				Usage:   "Basic auth username for /api/v1 routes",
				EnvVars: []string{"PROCUREMENT_API_USER"},
			},
			&cli.StringFlag{
				Name:    "api-password",
				Usage:   "Basic auth password for /api/v1 routes",
				EnvVars: []string{"PROCUREMENT_API_PASSWORD"},
			},
		},
		Action: runServe,
	}
}

// fatal ends the process on serve failures
var fatal = platform.LogFatal

func runServe(c *cli.Context) error {
	if err := serve(c); err != nil {
		fatal(logger, "Server failed", err)
	}
	return nil
}

func serve(c *cli.Context) error {
	ctx := c.Context
	src, err := openSource(ctx, c)
	if err != nil {
		return err
	}
	defer src.Close()

	cfg := api.DefaultConfig()
	cfg.Port = c.Int("port")
	cfg.APIKey = c.String("api-key")
	cfg.APIUser = c.String("api-user")
	cfg.APIPassword = c.String("api-password")

	approvalCfg := approval.ConfigFromEnv()
	if err := approvalCfg.Validate(); err != nil {
		return err
	}

	server := api.NewServer(src, cfg, logger).WithAnalyzer(approval.NewAnalyzer(approvalCfg))
	if src.erp != nil {
		server.WithEntities(src.erp)
	}
	for _, p := range src.ready {
		server.WithReadinessCheck(p)
	}

	if c.String("postgres-dsn") != "" {
		pg, err := openPostgres(ctx, c)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		server.WithVerdictRecorder(pg).WithVerdictHistory(pg).WithReadinessCheck(pg)
	}

	logger.Info().Str("source", src.name).Msg("serving orders")
	return server.StartWithGracefulShutdown()
}

// =============================================================================
// HELPERS
// =============================================================================

func fetchOrders(c *cli.Context) ([]order.Order, error) {
	ctx := c.Context
	src, err := openSource(ctx, c)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	orders, err := src.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("source", src.name).Int("orders", len(orders)).Msg("orders loaded")
	return orders, nil
}
