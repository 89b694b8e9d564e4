package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"example.com/fitledger/internal/config"
	"example.com/fitledger/internal/domain"
	"example.com/fitledger/internal/persistence/sqlite"
)

type options struct {
	as         string
	dbPath     string
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Administer a fitness activity ledger",
		Long: `ledgerctl reads and mutates a fitness activity ledger stored in a sqlite file.

Mutating commands run as the principal given with --as and fail with
"access denied" unless that principal is an administrator. A new ledger
file is created on first use; its administrators come from the genesis
section of --config, or default to the --as principal.

Examples:
  ledgerctl --as owner user add pawel
  ledgerctl --as owner activity add pawel --minutes 30 --steps 4000 --date 2024-05-01
  ledgerctl user score pawel`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.as, "as", "", "Principal performing the operation")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Path to the sqlite ledger (defaults to SQLITE_PATH)")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Optional YAML config overlay")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log ledger events to stderr")

	root.AddCommand(
		newAdminCmd(opts),
		newUserCmd(opts),
		newActivityCmd(opts),
		newThresholdsCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

// withLedger opens the ledger under an exclusive file lock so concurrent invocations
// apply one after another.
func withLedger(cmd *cobra.Command, opts *options, fn func(ctx context.Context, svc *domain.Service) error) error {
	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return err
	}
	path := cfg.SQLitePath
	if opts.dbPath != "" {
		path = opts.dbPath
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer lock.Unlock()

	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	genesis := cfg.Genesis.DomainGenesis()
	if len(genesis.Owners) == 0 && opts.as != "" {
		genesis.Owners = []domain.Principal{domain.Principal(opts.as)}
	}

	logOut := io.Discard
	if opts.verbose {
		logOut = cmd.ErrOrStderr()
	}
	svc, err := domain.Open(cmd.Context(), store, genesis,
		domain.WithLogger(log.New(logOut, "[ledger] ", log.LstdFlags)))
	if err != nil {
		return err
	}
	return fn(cmd.Context(), svc)
}

func (o *options) caller() (domain.Principal, error) {
	if strings.TrimSpace(o.as) == "" {
		return "", fmt.Errorf("--as is required for this command")
	}
	return domain.Principal(o.as), nil
}
