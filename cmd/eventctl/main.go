package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"campusevents/internal/accounts"
	"campusevents/internal/attendance"
	"campusevents/internal/auth"
	"campusevents/internal/config"
	"campusevents/internal/credential"
	"campusevents/internal/export"
	"campusevents/internal/logging"
	"campusevents/internal/store"
)

const programName = "eventctl"

var globalFlags = struct {
	debug       bool
	databaseURL string
}{}

// operator is the identity eventctl acts as inside admin-only operations.
var operator = auth.Identity{Role: auth.RoleAdmin, Name: programName}

// env holds what every subcommand needs once the database is open.
type env struct {
	log zerolog.Logger
	db  *store.DB
	att *attendance.Service
	acc *accounts.Service
	out io.Writer
}

func (e *env) Close() error {
	return e.db.Close()
}

func commonRun(ctx context.Context, out io.Writer) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if globalFlags.databaseURL != "" {
		cfg.DatabaseURL = globalFlags.databaseURL
	}
	level := cfg.LogLevel
	if globalFlags.debug {
		level = "debug"
	}
	log := logging.New(cfg.Env, level).With().Str("component", programName).Logger()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	signer, err := credential.NewSigner(cfg.CredentialSecret)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	att := attendance.NewService(attendance.NewRepository(db.Client), attendance.Options{
		Signer:         signer,
		Exporter:       export.Exporter{PDFEnabled: cfg.ExportPDFEnabled},
		Logger:         log,
		AcceptUnsigned: cfg.CredentialAcceptUnsigned,
	})
	return &env{log: log, db: db, att: att, acc: accounts.NewService(db.Client), out: out}, nil
}

// withEnv opens the environment for the duration of run.
func withEnv(cmd *cobra.Command, run func(e *env) error) error {
	e, err := commonRun(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()
	return run(e)
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Administer campus events: migrations, accounts, events and exports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.databaseURL, "database-url", "", "database to use instead of DATABASE_URL")

	rootCmd.AddCommand(
		migrateCommand(),
		accountCommand(),
		eventsCommand(),
		exportCommand(),
		credentialCommand(),
	)
	return rootCmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
