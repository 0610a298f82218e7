package docker

import (
	"context"

	"github.com/melih/simfleet/internal/config"
	"github.com/melih/simfleet/internal/core/ports"
	"github.com/melih/simfleet/internal/log"
	"github.com/melih/simfleet/internal/metrics"
)

// Detector picks the engine access mode once at startup.
type Detector struct {
	cfg *config.EngineConfig
	// newSDK builds an SDK adapter for host ("" means from environment).
	newSDK func(host string) (*Adapter, error)
	run    commandRunner
}

// NewDetector returns a detector using the real Docker client and exec.
func NewDetector(cfg *config.EngineConfig) *Detector {
	return &Detector{
		cfg: cfg,
		newSDK: func(host string) (*Adapter, error) {
			return NewAdapter(host, cfg)
		},
		run: execRunner,
	}
}

// Detect tries, in order: the SDK configured from the environment, the SDK
// against the explicit socket, then the command line tool. When all fail the
// Unavailable engine is returned. engine.mode can force a single path.
func (d *Detector) Detect(ctx context.Context) ports.Engine {
	logger := log.WithComponent("engine")

	var engine ports.Engine = Unavailable{}
	switch d.cfg.Mode {
	case "sdk":
		if a := d.trySDK(ctx); a != nil {
			engine = a
		}
	case "cli":
		if c := d.tryCLI(ctx); c != nil {
			engine = c
		}
	case "unavailable":
	default:
		if a := d.trySDK(ctx); a != nil {
			engine = a
		} else if c := d.tryCLI(ctx); c != nil {
			engine = c
		}
	}

	if engine.Available() {
		logger.Info().Str("mode", string(engine.Mode())).Msg("Container engine initialized")
	} else {
		logger.Warn().Msg("Container engine not available, running in limited mode. Ensure Docker is installed and running.")
	}
	metrics.SetEngineMode(string(engine.Mode()))
	return engine
}

func (d *Detector) trySDK(ctx context.Context) *Adapter {
	logger := log.WithComponent("engine")
	for _, host := range []string{"", d.cfg.Socket} {
		a, err := d.newSDK(host)
		if err != nil {
			logger.Debug().Err(err).Str("host", host).Msg("Docker client could not be created")
			continue
		}
		if err := a.Ping(ctx); err != nil {
			logger.Debug().Err(err).Str("host", host).Msg("Docker daemon ping failed")
			_ = a.Close()
			continue
		}
		return a
	}
	return nil
}

func (d *Detector) tryCLI(ctx context.Context) *CLIAdapter {
	c := newCLIAdapter(d.cfg, d.run)
	if err := c.Ping(ctx); err != nil {
		logger := log.WithComponent("engine")
		logger.Debug().Err(err).Str("bin", d.cfg.CLIPath).Msg("Docker CLI probe failed")
		return nil
	}
	return c
}
