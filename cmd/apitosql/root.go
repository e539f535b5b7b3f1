package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/apitosql/internal/app"
	"github.com/JakeFAU/apitosql/internal/config"
	"github.com/JakeFAU/apitosql/internal/logging"
	"github.com/JakeFAU/apitosql/internal/pipeline"
)

// variantAnnotation marks a subcommand with the config.Variant it loads.
// Commands without it only touch the database.
const variantAnnotation = "variant"

// App is what the subcommands need from internal/app. Tests swap in a fake.
type App interface {
	Run(ctx context.Context, flatten bool) (pipeline.Result, error)
	Flatten(ctx context.Context) error
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, opts app.Options, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, opts, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type rootFlags struct {
	configFile string
	section    string
	envFile    string
	dryRun     bool
}

// session carries the services built by the pre-run hook to the subcommand
// and back out to execute, which closes them whatever the outcome.
type session struct {
	app    App
	logger *zap.Logger
}

func newRootCmd(s *session) *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "apitosql",
		Short: "Loads JSON documents from the property management API into Postgres.",
		Long: `apitosql pages through a listing endpoint of the property management REST API,
expands each summary into its full JSON document and upserts the documents into
a Postgres table keyed by id, keeping the most recently modified version.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.open(cmd, flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "database.yaml", "config file holding the database section")
	pf.StringVar(&flags.section, "section", "postgresql", "name of the database section")
	pf.StringVar(&flags.envFile, "env-file", ".env", "env file loaded before reading the environment")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "keep documents and notifications in memory")

	cmd.AddCommand(newRentalContractsCmd(s), newValuationsCmd(s), newFlattenCmd(s))
	return cmd
}

func (s *session) open(cmd *cobra.Command, flags *rootFlags) error {
	variant := config.Variant(cmd.Annotations[variantAnnotation])
	cfg, err := config.Load(config.Options{
		Variant:      variant,
		ConfigFile:   flags.configFile,
		Section:      flags.section,
		EnvFile:      flags.envFile,
		SkipDatabase: flags.dryRun,
		SkipAPI:      variant == "",
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	s.logger = logger.With(zap.String("command", cmd.Name()))

	a, err := newApp(cmd.Context(), cfg, app.Options{DryRun: flags.dryRun}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	s.app = a
	return nil
}

func (s *session) resolve() (App, error) {
	if s.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return s.app, nil
}

func (s *session) close() {
	if s.app != nil {
		s.app.Close()
		s.app = nil
		return
	}
	if s.logger != nil {
		_ = s.logger.Sync()
	}
}
