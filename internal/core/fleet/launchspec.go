package fleet

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/melih/simfleet/internal/config"
	"github.com/melih/simfleet/internal/core/domain"
	"github.com/melih/simfleet/internal/log"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Labels put on every managed container.
const (
	LabelManaged  = "simfleet.managed"
	LabelInstance = "simfleet.instance"
)

// cacheMounts maps directories under the per-instance cache root to their
// fixed location inside the simulator image.
var cacheMounts = []struct {
	host      string
	container string
}{
	{"cache/main", "/isaac-sim/.cache"},
	{"cache/computecache", "/isaac-sim/.nv/ComputeCache"},
	{"logs", "/isaac-sim/.nvidia-omniverse/logs"},
	{"config", "/isaac-sim/.nvidia-omniverse/config"},
	{"data", "/isaac-sim/.local/share/ov/data"},
	{"pkg", "/isaac-sim/.local/share/ov/pkg"},
}

// SpecBuilder turns an instance id into a LaunchSpec.
// Building creates the instance cache directories as a side effect.
type SpecBuilder struct {
	cfg       *config.Config
	fs        afero.Fs
	cacheRoot string
	logger    zerolog.Logger
}

// NewSpecBuilder resolves the cache root once; fs is usually afero.NewOsFs().
func NewSpecBuilder(cfg *config.Config, fs afero.Fs) (*SpecBuilder, error) {
	root, err := cfg.Instances.ResolveCacheRoot()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache root: %w", err)
	}
	return &SpecBuilder{
		cfg:       cfg,
		fs:        fs,
		cacheRoot: root,
		logger:    log.WithComponent("launchspec"),
	}, nil
}

// InstanceDir is the host cache root of one instance.
func (b *SpecBuilder) InstanceDir(id int) string {
	return filepath.Join(b.cacheRoot, fmt.Sprintf("isaac-sim-%d", id))
}

// Build returns the launch spec for id plus any non-fatal setup warnings,
// e.g. cache directories whose ownership could not be changed.
func (b *SpecBuilder) Build(id int) (*domain.LaunchSpec, []string, error) {
	in := &b.cfg.Instances
	ports, err := PortsFor(id, in)
	if err != nil {
		return nil, nil, err
	}

	volumes, warnings, err := b.prepareVolumes(id)
	if err != nil {
		return nil, warnings, err
	}

	memory, err := units.RAMInBytes(in.MemoryLimit)
	if err != nil {
		return nil, warnings, fmt.Errorf("invalid memory limit %q: %w", in.MemoryLimit, err)
	}
	shm, err := units.RAMInBytes(in.ShmSize)
	if err != nil {
		return nil, warnings, fmt.Errorf("invalid shm size %q: %w", in.ShmSize, err)
	}

	spec := &domain.LaunchSpec{
		InstanceID: id,
		Image:      in.Image,
		Name:       ContainerName(b.cfg.Engine.ContainerPrefix, id),
		Env: map[string]string{
			"ACCEPT_EULA":     "Y",
			"PRIVACY_CONSENT": "Y",
			// The RTX renderer needs a display even when headless.
			"DISPLAY": in.ResolveDisplay(),
		},
		Volumes:     volumes,
		NetworkMode: in.NetworkMode,
		MemoryBytes: memory,
		ShmBytes:    shm,
		User:        in.User,
		Command:     b.command(ports),
		Labels: map[string]string{
			LabelManaged:  "true",
			LabelInstance: strconv.Itoa(id),
		},
		Ports: ports,
	}

	if in.GPUEnabled {
		spec.GPUs = []domain.GPURequest{{
			Count:        -1,
			Capabilities: []string{"gpu", "compute", "utility"},
		}}
		spec.Runtime = in.GPURuntime
	}

	return spec, warnings, nil
}

// command picks the headless template (explicit ports) when streaming is on,
// otherwise the desktop template whose ports are fixed by the image.
func (b *SpecBuilder) command(ports domain.PortMapping) []string {
	in := &b.cfg.Instances
	if !in.StreamingEnabled {
		return append([]string(nil), in.DesktopCommand...)
	}

	r := strings.NewReplacer(
		"{http_port}", strconv.Itoa(ports[domain.RoleHTTP]),
		"{streaming_port}", strconv.Itoa(ports[domain.RoleStreaming]),
		"{native_port}", strconv.Itoa(ports[domain.RoleNative]),
		"{remote_desktop_port}", strconv.Itoa(ports[domain.RoleRemoteDesktop]),
	)
	out := make([]string, len(in.HeadlessCommand))
	for i, arg := range in.HeadlessCommand {
		out[i] = r.Replace(arg)
	}
	return out
}

func (b *SpecBuilder) prepareVolumes(id int) ([]domain.VolumeBind, []string, error) {
	root := b.InstanceDir(id)
	in := &b.cfg.Instances
	logger := log.WithInstance(b.logger, id)

	var uid, gid int
	chown := in.ChownVolumes
	if chown {
		var err error
		if uid, gid, err = config.ParseUser(in.User); err != nil {
			return nil, nil, fmt.Errorf("invalid user %q: %w", in.User, err)
		}
	}

	var warnings []string
	volumes := make([]domain.VolumeBind, 0, len(cacheMounts))
	for _, m := range cacheMounts {
		hostPath := filepath.Join(root, filepath.FromSlash(m.host))
		if err := b.fs.MkdirAll(hostPath, 0o755); err != nil {
			return nil, warnings, fmt.Errorf("failed to create %s: %w", hostPath, err)
		}
		volumes = append(volumes, domain.VolumeBind{HostPath: hostPath, ContainerPath: m.container})
	}

	if chown {
		if failed, err := b.chownTree(root, uid, gid); err != nil {
			msg := fmt.Sprintf("could not set ownership %d:%d on %d path(s) under %s: %v", uid, gid, failed, root, err)
			logger.Warn().Err(err).Int("failed", failed).Str("path", root).Msg("Could not set cache directory ownership")
			warnings = append(warnings, msg)
		}
	}
	return volumes, warnings, nil
}

// chownTree changes ownership of root and everything below it. It keeps going
// past failures and returns how many paths failed along with the first error.
func (b *SpecBuilder) chownTree(root string, uid, gid int) (int, error) {
	var (
		failed int
		first  error
	)
	note := func(err error) {
		failed++
		if first == nil {
			first = err
		}
	}
	walkErr := afero.Walk(b.fs, root, func(path string, _ os.FileInfo, err error) error {
		if err != nil {
			note(err)
			return nil
		}
		if err := b.fs.Chown(path, uid, gid); err != nil {
			note(err)
		}
		return nil
	})
	if walkErr != nil {
		note(walkErr)
	}
	return failed, first
}
