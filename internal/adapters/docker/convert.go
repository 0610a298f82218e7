package docker

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/melih/simfleet/internal/core/domain"
)

// containerConfig translates a LaunchSpec into SDK create parameters.
func containerConfig(spec domain.LaunchSpec) (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:  spec.Image,
		Env:    spec.EnvList(),
		Cmd:    spec.Command,
		User:   spec.User,
		Labels: spec.Labels,
	}

	binds := make([]string, 0, len(spec.Volumes))
	for _, v := range spec.Volumes {
		binds = append(binds, v.String())
	}

	var devices []container.DeviceRequest
	for _, g := range spec.GPUs {
		devices = append(devices, container.DeviceRequest{
			Count:        g.Count,
			Capabilities: [][]string{g.Capabilities},
		})
	}

	hostCfg := &container.HostConfig{
		Binds:       binds,
		NetworkMode: container.NetworkMode(spec.NetworkMode),
		Runtime:     spec.Runtime,
		ShmSize:     spec.ShmBytes,
		AutoRemove:  false,
		Resources: container.Resources{
			Memory:         spec.MemoryBytes,
			DeviceRequests: devices,
		},
	}
	return cfg, hostCfg
}

// runArgs translates a LaunchSpec into `docker run` arguments.
func runArgs(spec domain.LaunchSpec) []string {
	args := []string{"run", "--detach", "--name", spec.Name}
	if spec.NetworkMode != "" {
		args = append(args, "--network", spec.NetworkMode)
	}
	if spec.Runtime != "" {
		args = append(args, "--runtime", spec.Runtime)
	}
	for _, g := range spec.GPUs {
		args = append(args, "--gpus", gpuFlag(g))
	}
	if spec.MemoryBytes > 0 {
		args = append(args, "--memory", strconv.FormatInt(spec.MemoryBytes, 10))
	}
	if spec.ShmBytes > 0 {
		args = append(args, "--shm-size", strconv.FormatInt(spec.ShmBytes, 10))
	}
	if spec.User != "" {
		args = append(args, "--user", spec.User)
	}

	keys := make([]string, 0, len(spec.Labels))
	for k := range spec.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--label", k+"="+spec.Labels[k])
	}
	for _, kv := range spec.EnvList() {
		args = append(args, "--env", kv)
	}
	for _, v := range spec.Volumes {
		args = append(args, "--volume", v.String())
	}

	args = append(args, spec.Image)
	return append(args, spec.Command...)
}

// gpuFlag renders a GPU request in the CSV form `--gpus` parses, e.g.
// all,"capabilities=compute,utility". The gpu capability is implied.
func gpuFlag(g domain.GPURequest) string {
	count := "all"
	if g.Count >= 0 {
		count = fmt.Sprintf("count=%d", g.Count)
	}
	var caps []string
	for _, c := range g.Capabilities {
		if c != "gpu" {
			caps = append(caps, c)
		}
	}
	if len(caps) == 0 {
		return count
	}
	return count + `,"capabilities=` + strings.Join(caps, ",") + `"`
}
