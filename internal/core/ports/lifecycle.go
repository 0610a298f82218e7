package ports

import (
	"context"

	"github.com/melih/simfleet/internal/core/domain"
)

// LifecycleService is what the API layer drives.
type LifecycleService interface {
	Start(ctx context.Context, id int) (*domain.InstanceStatus, error)
	Stop(ctx context.Context, id int) (*domain.InstanceStatus, error)
	Restart(ctx context.Context, id int) (*domain.InstanceStatus, error)
	Remove(ctx context.Context, id int) (*domain.RemoveResult, error)
	Status(ctx context.Context, id int) (*domain.InstanceStatus, error)
	List(ctx context.Context) ([]domain.InstanceStatus, error)
	CleanupAll(ctx context.Context) (*domain.CleanupReport, error)
	Logs(ctx context.Context, id, tail int) (string, error)
	Ports(id int) (domain.PortMapping, error)
	Health(ctx context.Context) error
	EngineMode() domain.EngineMode
}
