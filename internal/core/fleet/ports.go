package fleet

import (
	"fmt"

	"github.com/melih/simfleet/internal/config"
	"github.com/melih/simfleet/internal/core/domain"
)

// ValidateID rejects identifiers outside [0, max_instances).
func ValidateID(id int, cfg *config.InstancesConfig) error {
	if id < 0 || id >= cfg.MaxInstances {
		return &domain.InvalidIdentifierError{ID: id, Max: cfg.MaxInstances}
	}
	return nil
}

// PortsFor returns the ports reserved for instance id: base[role] + id.
func PortsFor(id int, cfg *config.InstancesConfig) (domain.PortMapping, error) {
	if err := ValidateID(id, cfg); err != nil {
		return nil, err
	}
	return domain.PortMapping{
		domain.RoleHTTP:          cfg.Ports.HTTP + id,
		domain.RoleStreaming:     cfg.Ports.Streaming + id,
		domain.RoleNative:        cfg.Ports.Native + id,
		domain.RoleRemoteDesktop: cfg.Ports.RemoteDesktop + id,
	}, nil
}

// AllPortMappings returns one mapping per instance in ascending id order.
func AllPortMappings(cfg *config.InstancesConfig) []domain.PortMapping {
	out := make([]domain.PortMapping, 0, cfg.MaxInstances)
	for id := 0; id < cfg.MaxInstances; id++ {
		p, _ := PortsFor(id, cfg)
		out = append(out, p)
	}
	return out
}

// ContainerName is "<prefix>-<id>".
func ContainerName(prefix string, id int) string {
	return fmt.Sprintf("%s-%d", prefix, id)
}
