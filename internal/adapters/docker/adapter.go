package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/melih/simfleet/internal/config"
	"github.com/melih/simfleet/internal/core/domain"
	"github.com/melih/simfleet/internal/core/ports"
	"github.com/melih/simfleet/internal/log"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
)

// apiClient is the subset of *client.Client the adapter uses.
type apiClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, refStr string, options types.ImagePullOptions) (io.ReadCloser, error)
	Close() error
}

// Adapter implements ports.Engine using the Docker SDK
type Adapter struct {
	cli         apiClient
	timeout     time.Duration
	pullTimeout time.Duration
	logger      zerolog.Logger
}

var _ ports.Engine = (*Adapter)(nil)

// NewAdapter creates a Docker adapter. With an empty host the client is
// configured from the environment (DOCKER_HOST etc). An explicit host
// ignores the environment, so a broken DOCKER_HOST cannot shadow it.
func NewAdapter(host string, cfg *config.EngineConfig) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(clientOpts(host)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newAdapter(cli, cfg), nil
}

func clientOpts(host string) []client.Opt {
	if host == "" {
		return []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	}
	return []client.Opt{client.WithHost(host), client.WithAPIVersionNegotiation()}
}

func newAdapter(cli apiClient, cfg *config.EngineConfig) *Adapter {
	return &Adapter{
		cli:         cli,
		timeout:     cfg.CommandTimeout,
		pullTimeout: cfg.PullTimeout,
		logger:      log.WithComponent("docker-sdk"),
	}
}

func (a *Adapter) Mode() domain.EngineMode { return domain.ModeSDK }

func (a *Adapter) Available() bool { return true }

// Close releases the underlying client.
func (a *Adapter) Close() error { return a.cli.Close() }

// wrapErr maps SDK failures onto the domain taxonomy.
func wrapErr(ctx context.Context, op, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%s %s: %w", op, name, domain.ErrNotFound)
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s %s: %w", op, name, domain.ErrTimeout)
	}
	return domain.NewEngineError(op, name, err)
}

func (a *Adapter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	_, err := a.cli.Ping(ctx)
	return wrapErr(ctx, "ping", "", err)
}

func (a *Adapter) Inspect(ctx context.Context, name string) (*domain.ContainerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.cli.ContainerInspect(ctx, name)
	if err != nil {
		return nil, wrapErr(ctx, "inspect", name, err)
	}
	if resp.ContainerJSONBase == nil {
		return nil, domain.NewEngineError("inspect", name, errors.New("empty inspect response"))
	}

	rec := &domain.ContainerRecord{ID: resp.ID, Name: name}
	if resp.State != nil {
		rec.Status = resp.State.Status
	}
	if created, err := time.Parse(time.RFC3339Nano, resp.Created); err == nil {
		rec.Created = created
	}
	return rec, nil
}

// Run pulls the image when missing, then creates and starts the container.
func (a *Adapter) Run(ctx context.Context, spec domain.LaunchSpec) (*domain.ContainerRecord, error) {
	if err := a.ensureImage(ctx, spec.Image); err != nil {
		return nil, err
	}

	cfg, hostCfg := containerConfig(spec)

	createCtx, cancel := context.WithTimeout(ctx, a.timeout)
	resp, err := a.cli.ContainerCreate(createCtx, cfg, hostCfg, nil, nil, spec.Name)
	err = wrapErr(createCtx, "create", spec.Name, err)
	cancel()
	if err != nil {
		return nil, err
	}
	for _, w := range resp.Warnings {
		a.logger.Warn().Str("container", spec.Name).Msg(w)
	}

	startCtx, cancel := context.WithTimeout(ctx, a.timeout)
	err = wrapErr(startCtx, "start", spec.Name, a.cli.ContainerStart(startCtx, resp.ID, container.StartOptions{}))
	cancel()
	if err != nil {
		a.removeQuietly(resp.ID)
		return nil, err
	}

	return &domain.ContainerRecord{
		ID:      resp.ID,
		Name:    spec.Name,
		Status:  domain.StatusRunning,
		Created: time.Now(),
	}, nil
}

// removeQuietly drops a container that was created but failed to start.
func (a *Adapter) removeQuietly(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		a.logger.Warn().Err(err).Str("container_id", id).Msg("Failed to remove container after start failure")
	}
}

func (a *Adapter) Start(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return wrapErr(ctx, "start", name, a.cli.ContainerStart(ctx, name, container.StartOptions{}))
}

// Stop asks the daemon to wait grace before killing the container.
func (a *Adapter) Stop(ctx context.Context, name string, grace time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, grace+a.timeout)
	defer cancel()
	secs := int(grace.Seconds())
	return wrapErr(ctx, "stop", name, a.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &secs}))
}

func (a *Adapter) Remove(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return wrapErr(ctx, "remove", name, a.cli.ContainerRemove(ctx, name, container.RemoveOptions{}))
}

// Logs returns stdout and stderr interleaved, each line prefixed with its timestamp.
func (a *Adapter) Logs(ctx context.Context, name string, tail int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	rc, err := a.cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     false,
		Timestamps: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", wrapErr(ctx, "logs", name, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return "", wrapErr(ctx, "logs", name, err)
	}
	return buf.String(), nil
}
