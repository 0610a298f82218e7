package domain

import (
	"fmt"
	"sort"
)

// Role names a logical port of an instance.
type Role string

const (
	RoleHTTP          Role = "http"
	RoleStreaming     Role = "streaming"
	RoleNative        Role = "native"
	RoleRemoteDesktop Role = "remote_desktop"
)

// Roles lists every port role in a stable order.
var Roles = []Role{RoleHTTP, RoleStreaming, RoleNative, RoleRemoteDesktop}

// PortMapping maps each role to the concrete host port of one instance.
type PortMapping map[Role]int

// Ports returns the port numbers in Roles order.
func (p PortMapping) Ports() []int {
	out := make([]int, 0, len(p))
	for _, r := range Roles {
		if port, ok := p[r]; ok {
			out = append(out, port)
		}
	}
	return out
}

// Sorted returns the ports in ascending order.
func (p PortMapping) Sorted() []int {
	out := p.Ports()
	sort.Ints(out)
	return out
}

// WebRTCURL is the streaming client address served on the instance HTTP port.
// It is derived whether or not streaming is enabled.
func (p PortMapping) WebRTCURL() string {
	return fmt.Sprintf("http://localhost:%d/streaming/webrtc-client/", p[RoleHTTP])
}

// VolumeBind mounts a host directory into the container.
type VolumeBind struct {
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
	ReadOnly      bool   `json:"read_only"`
}

// String renders the bind in engine "host:container:mode" form.
func (v VolumeBind) String() string {
	mode := "rw"
	if v.ReadOnly {
		mode = "ro"
	}
	return v.HostPath + ":" + v.ContainerPath + ":" + mode
}

// GPURequest asks the engine for GPU devices. Count -1 means all.
type GPURequest struct {
	Count        int      `json:"count"`
	Capabilities []string `json:"capabilities"`
}

// LaunchSpec is everything needed to create one instance container.
// It is rebuilt on every start attempt.
type LaunchSpec struct {
	InstanceID  int               `json:"instance_id"`
	Image       string            `json:"image"`
	Name        string            `json:"name"`
	Env         map[string]string `json:"env"`
	Volumes     []VolumeBind      `json:"volumes"`
	GPUs        []GPURequest      `json:"gpus,omitempty"`
	NetworkMode string            `json:"network_mode"`
	Runtime     string            `json:"runtime,omitempty"`
	MemoryBytes int64             `json:"memory_bytes"`
	ShmBytes    int64             `json:"shm_bytes"`
	User        string            `json:"user"`
	Command     []string          `json:"command"`
	Labels      map[string]string `json:"labels,omitempty"`
	Ports       PortMapping       `json:"ports"`
}

// EnvList renders Env as sorted KEY=VALUE pairs.
func (s *LaunchSpec) EnvList() []string {
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+s.Env[k])
	}
	return out
}

// InstanceStatus is the status record returned to API callers.
type InstanceStatus struct {
	InstanceID  int         `json:"instance_id"`
	Status      string      `json:"status"`
	Ports       PortMapping `json:"ports"`
	WebRTCURL   string      `json:"webrtc_url"`
	ContainerID string      `json:"container_id,omitempty"`
	Created     string      `json:"created,omitempty"`
}

// State derives the lifecycle state from the status string.
func (s *InstanceStatus) State() State {
	switch s.Status {
	case StatusNotCreated:
		return StateNotCreated
	case StatusRunning:
		return StateRunning
	default:
		return StateStopped
	}
}

// Remove outcomes.
const (
	RemoveRemoved  = "removed"
	RemoveNotFound = "not_found"
	RemoveError    = "error"
)

// RemoveResult reports what remove did for one instance.
type RemoveResult struct {
	InstanceID int    `json:"instance_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// CleanupReport collects per-instance remove results of a bulk cleanup.
type CleanupReport struct {
	Results []RemoveResult `json:"results"`
}

// Failed returns the results that ended in error.
func (r *CleanupReport) Failed() []RemoveResult {
	var out []RemoveResult
	for _, res := range r.Results {
		if res.Status == RemoveError {
			out = append(out, res)
		}
	}
	return out
}
