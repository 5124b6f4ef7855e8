// Package cli wires configuration, storage and the ledger behind the
// tradeledger command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tradeledger/config"
	"tradeledger/internal/adapters/logger"
	"tradeledger/internal/adapters/postgres"
	"tradeledger/internal/adapters/sqlite"
	"tradeledger/internal/ledger"
	"tradeledger/internal/ports"
)

const (
	outputTable = "table"
	outputYAML  = "yaml"
)

type rootOptions struct {
	output string
	store  string
	dbPath string
}

// NewRootCommand builds the tradeledger command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "tradeledger",
		Short: "Trade and order ledger with profit accounting",
		Long: `tradeledger records exchange fills as trades, computes realised profit
and answers performance queries over the stored history.

Storage and fee settings come from the environment (or a .env file):
  LEDGER_STORE, DB_PATH, POSTGRES_DSN, LOG_LEVEL, FEE_MODEL, FEE_RATE,
  FEE_FLAT, AMOUNT_EPSILON, DEFAULT_LEVERAGE

Examples:
  tradeledger import fills.csv
  tradeledger import orders.json --format binance
  tradeledger trades --status open
  tradeledger performance --by exit_reason -o yaml`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case outputTable, outputYAML:
				return nil
			default:
				return fmt.Errorf("%w: --output must be table or yaml", ports.ErrInvalidRequest)
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "output format: table or yaml")
	root.PersistentFlags().StringVar(&opts.store, "store", "", "override LEDGER_STORE (sqlite, postgres, memory)")
	root.PersistentFlags().StringVarP(&opts.dbPath, "db", "d", "", "override DB_PATH for the sqlite store")

	root.AddCommand(
		newImportCmd(opts),
		newTradesCmd(opts),
		newTradeCmd(opts),
		newSummaryCmd(opts),
		newPerformanceCmd(opts),
		newStatsCmd(opts),
		newExportCmd(opts),
	)
	return root
}

// Execute runs the root command until completion or SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// session is everything a command needs: configuration, a logger and a
// ledger loaded from the configured store.
type session struct {
	cfg    *config.Config
	logger ports.Logger
	repo   ports.TradeRepository
	ledger *ledger.Ledger
}

func (o *rootOptions) open(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if o.store != "" {
		cfg.Store = config.Store(o.store)
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}

	log := logger.NewWithWriter(cfg.LogLevel, cmd.ErrOrStderr())
	s := &session{cfg: cfg, logger: log}

	switch cfg.Store {
	case config.StoreSQLite:
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: log})
		if err != nil {
			return nil, err
		}
		s.repo = repo
	case config.StorePostgres:
		client, err := postgres.New(ctx, postgres.ClientConfig{DSN: cfg.PostgresDSN, Logger: log})
		if err != nil {
			return nil, err
		}
		if err := client.RunMigrations(ctx); err != nil {
			client.Close()
			return nil, err
		}
		s.repo = postgres.NewTradeStore(client)
	case config.StoreMemory:
		log.Warn(ctx, "Using in-memory store; nothing will be persisted")
	default:
		return nil, fmt.Errorf("%w: unknown store %q", ports.ErrConfigurationError, cfg.Store)
	}

	l, err := ledger.New(ledger.Config{
		Fees:          cfg.Fees,
		AmountEpsilon: cfg.AmountEpsilon,
		Repository:    s.repo,
		Logger:        log,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := l.Load(ctx); err != nil {
		s.Close()
		return nil, err
	}
	s.ledger = l
	return s, nil
}

// Close releases the store.
func (s *session) Close() {
	if s.repo == nil {
		return
	}
	if err := s.repo.Close(); err != nil {
		s.logger.Error(context.Background(), err, "Error closing trade store")
	}
}
