package domain

import "time"

// Container status strings as reported by the engine.
const (
	StatusCreated    = "created"
	StatusRunning    = "running"
	StatusExited     = "exited"
	StatusNotCreated = "not_created"
)

// State is the lifecycle state of an instance, derived from the engine on every read.
type State string

const (
	StateNotCreated State = "NOT_CREATED"
	StateStopped    State = "STOPPED"
	StateRunning    State = "RUNNING"
)

// EngineMode identifies which engine access path is active.
type EngineMode string

const (
	ModeSDK         EngineMode = "sdk"
	ModeCLI         EngineMode = "cli"
	ModeMemory      EngineMode = "memory"
	ModeUnavailable EngineMode = "unavailable"
)

// ContainerRecord is the engine's view of a container (Docker, Podman CLI, fake).
// The engine owns it; we only observe it.
type ContainerRecord struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Status  string    `json:"status"` // running, exited, created, ...
	Created time.Time `json:"created"`
}

// State maps the raw engine status onto the three lifecycle states.
func (c *ContainerRecord) State() State {
	if c == nil {
		return StateNotCreated
	}
	if c.Status == StatusRunning {
		return StateRunning
	}
	return StateStopped
}

// ShortID returns the 12 character form of the engine id.
func (c *ContainerRecord) ShortID() string {
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}
