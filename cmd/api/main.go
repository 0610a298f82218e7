package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/melih/simfleet/internal/adapters/docker"
	"github.com/melih/simfleet/internal/adapters/memory"
	"github.com/melih/simfleet/internal/config"
	"github.com/melih/simfleet/internal/core/domain"
	"github.com/melih/simfleet/internal/core/fleet"
	"github.com/melih/simfleet/internal/core/ports"
	"github.com/melih/simfleet/internal/log"
	"github.com/melih/simfleet/internal/metrics"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"

	cfgFile string
	v       = viper.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "simfleet",
	Short: "simfleet - run and manage simulator container instances",
	Long: `simfleet starts, stops and inspects a fixed pool of GPU simulator
containers on a single host. Each instance gets its own port block and
cache directories, and everything is exposed through a small HTTP API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("simfleet version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/simfleet/simfleet.yaml)")

	cobra.OnInitialize(initViper)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(cleanupCmd)
}

func initViper() {
	config.SetDefaults(v)
	config.BindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("simfleet")
		v.SetConfigType("yaml")
		v.AddConfigPath(config.ConfigDir())
		v.AddConfigPath(".")
	}
}

// loadConfig reads the optional config file and returns the validated config.
// A missing file is fine, defaults and environment still apply.
func loadConfig() (*config.Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Logging.Level),
		JSONOutput: cfg.Logging.JSON,
	})
	if used := v.ConfigFileUsed(); used != "" {
		log.Logger.Debug().Str("file", used).Msg("Loaded config file")
	}
	return cfg, nil
}

// newEngine picks the engine adapter once at startup.
func newEngine(ctx context.Context, cfg *config.Config) ports.Engine {
	if cfg.Engine.Mode == string(domain.ModeMemory) {
		metrics.SetEngineMode(string(domain.ModeMemory))
		logger := log.WithComponent("engine")
		logger.Warn().Msg("Using in-memory engine, no containers will be created")
		return memory.New()
	}
	return docker.NewDetector(&cfg.Engine).Detect(ctx)
}

// newManager wires config, engine and spec builder into the lifecycle manager.
func newManager(ctx context.Context, cfg *config.Config) (*fleet.Manager, ports.Engine, error) {
	engine := newEngine(ctx, cfg)
	builder, err := fleet.NewSpecBuilder(cfg, afero.NewOsFs())
	if err != nil {
		closeEngine(engine)
		return nil, nil, err
	}
	return fleet.NewManager(cfg, engine, builder), engine, nil
}

func closeEngine(engine ports.Engine) {
	if c, ok := engine.(io.Closer); ok {
		_ = c.Close()
	}
}
