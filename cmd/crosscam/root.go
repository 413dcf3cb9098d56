package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/okian/crosscam/internal/adapters/persistence/backend"
	app "github.com/okian/crosscam/internal/app"
	"github.com/okian/crosscam/internal/config"
	"github.com/okian/crosscam/internal/domain/topology"
	"github.com/okian/crosscam/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

// Output formats.
const (
	outputJSON = "json"
	outputYAML = "yaml"
)

// cli holds the state shared by every subcommand once the root has loaded
// configuration.
type cli struct {
	configPath string
	envFile    string
	output     string

	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "crosscam",
		Short: "Cross-camera worker re-identification and tracking engine",
		Long: `crosscam resolves per-frame attribute observations from site cameras into
persistent tracking identities, keeps their trajectories and lets operators
link identities to known workers.

Configuration is layered: defaults, then the YAML file given by --config or
CROSSCAM_CONFIG, then CROSSCAM_* environment variables. A .env file is loaded
first when present.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "YAML config file (defaults to $"+config.EnvConfig+")")
	pf.StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before configuration; a missing file is ignored")
	pf.StringVarP(&c.output, "output", "o", outputJSON, "output format: json or yaml")

	root.AddCommand(
		newServeCmd(c),
		newResolveCmd(c),
		newTopologyCmd(c),
		newLinkCmd(c),
		newTrajectoryCmd(c),
		newSearchCmd(c),
		newStatsCmd(c),
		newCleanupCmd(c),
		newSimulateCmd(c),
		newVersionCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", c.envFile, err)
		}
	}

	switch c.output {
	case outputJSON, outputYAML:
	default:
		return fmt.Errorf("unknown output format %q", c.output)
	}

	path := c.configPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}
	cfg, err := config.LoadFile(cmd.Context(), path)
	if err != nil {
		return err
	}

	format, err := logger.ParseFormat(cfg.LogFormat)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(format), logger.WithOutput(cmd.ErrOrStderr())); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return err
	}

	c.cfg = cfg
	c.log = logger.Get()
	return nil
}

// serviceOptions maps configuration onto engine options. The retention
// sweeper only runs when sweep is set; one-shot commands still honor the
// hard-delete setting.
func (c *cli) serviceOptions(sweep bool) []app.Option {
	cfg := c.cfg
	return []app.Option{
		app.WithLogger(c.log.Named("tracking")),
		app.WithBackend(backend.Config{
			Kind:         backend.Kind(strings.ToLower(cfg.Backend)),
			DSN:          cfg.DBDSN,
			MaxOpenConns: cfg.DBMaxOpenConns,
			MaxIdleConns: cfg.DBMaxIdleConns,
			Logger:       c.log.Named("sqlstore"),
		}),
		app.WithScope(cfg.Scope),
		app.WithTimeWindow(cfg.TimeWindow()),
		app.WithMatchThreshold(cfg.MatchThreshold),
		app.WithGraceFactor(cfg.TransitGraceFactor),
		app.WithTopologyPolicy(topology.Policy(strings.ToLower(cfg.TopologyPolicy))),
		app.WithWriteMode(app.WriteMode(strings.ToLower(cfg.WriteMode))),
		app.WithWriteQueueSize(cfg.WriteQueueSize),
		app.WithStoreTimeout(cfg.StoreTimeout()),
		app.WithActiveWindow(cfg.ActiveWindow()),
		app.WithRetention(app.Retention{
			Enabled:    sweep && cfg.RetentionEnabled,
			Interval:   cfg.RetentionInterval(),
			MaxAge:     cfg.RetentionMaxAge(),
			KeepLinked: cfg.RetentionKeepLinked,
			Hard:       cfg.RetentionHardDelete,
		}),
	}
}

// withService starts an engine, runs fn and stops the engine again. Pending
// writes are flushed by Stop.
func (c *cli) withService(ctx context.Context, fn func(*app.Service) error) (err error) {
	svc := app.New(c.serviceOptions(false)...)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, svc.Stop(stopCtx))
	}()
	return fn(svc)
}

func (c *cli) print(cmd *cobra.Command, v any) error {
	w := cmd.OutOrStdout()
	if c.output == outputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseTime accepts RFC 3339 timestamps; empty means zero.
func parseTime(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: must be RFC3339", s)
	}
	return t, nil
}
