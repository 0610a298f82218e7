package docker

import (
	"context"
	"time"

	"github.com/melih/simfleet/internal/core/domain"
	"github.com/melih/simfleet/internal/core/ports"
)

// Unavailable is the engine used when no access mode works.
// Every operation fails with domain.ErrEngineUnavailable.
type Unavailable struct{}

var _ ports.Engine = Unavailable{}

func (Unavailable) Mode() domain.EngineMode { return domain.ModeUnavailable }

func (Unavailable) Available() bool { return false }

func (Unavailable) Ping(context.Context) error { return domain.ErrEngineUnavailable }

func (Unavailable) Inspect(context.Context, string) (*domain.ContainerRecord, error) {
	return nil, domain.ErrEngineUnavailable
}

func (Unavailable) Run(context.Context, domain.LaunchSpec) (*domain.ContainerRecord, error) {
	return nil, domain.ErrEngineUnavailable
}

func (Unavailable) Start(context.Context, string) error { return domain.ErrEngineUnavailable }

func (Unavailable) Stop(context.Context, string, time.Duration) error {
	return domain.ErrEngineUnavailable
}

func (Unavailable) Remove(context.Context, string) error { return domain.ErrEngineUnavailable }

func (Unavailable) Logs(context.Context, string, int) (string, error) {
	return "", domain.ErrEngineUnavailable
}
