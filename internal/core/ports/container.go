package ports

import (
	"context"
	"time"

	"github.com/melih/simfleet/internal/core/domain"
)

// Engine defines the operations the lifecycle manager needs from a container engine.
// This interface allows us to switch between the Docker SDK, the docker CLI or an
// in-memory fake without changing the lifecycle logic.
type Engine interface {
	// Mode reports which access path backs this engine.
	Mode() domain.EngineMode
	// Available is false when no access path works.
	Available() bool
	Ping(ctx context.Context) error

	// Inspect answers existence, status, engine id and creation time in one call.
	// It returns domain.ErrNotFound when the container does not exist.
	Inspect(ctx context.Context, name string) (*domain.ContainerRecord, error)
	// Run creates and starts a container from spec.
	Run(ctx context.Context, spec domain.LaunchSpec) (*domain.ContainerRecord, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string, grace time.Duration) error
	Remove(ctx context.Context, name string) error
	// Logs returns the last tail lines with timestamps.
	Logs(ctx context.Context, name string, tail int) (string, error)
}
