package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/melih/simfleet/internal/config"
	"github.com/melih/simfleet/internal/core/domain"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	pingErr    error
	inspect    map[string]types.ContainerJSON
	images     map[string]bool
	createErr  error
	startErr   error
	removeErr  error
	logs       []byte
	calls      []string
	created    *container.Config
	hostConfig *container.HostConfig
	stopOpts   container.StopOptions
	pulled     []string
	closed     bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		inspect: map[string]types.ContainerJSON{},
		images:  map[string]bool{},
	}
}

func notFound(what string) error {
	return errdefs.NotFound(errors.New("No such " + what))
}

func (f *fakeClient) Ping(ctx context.Context) (types.Ping, error) {
	f.calls = append(f.calls, "ping")
	return types.Ping{}, f.pingErr
}

func (f *fakeClient) ContainerInspect(ctx context.Context, id string) (types.ContainerJSON, error) {
	f.calls = append(f.calls, "inspect")
	c, ok := f.inspect[id]
	if !ok {
		return types.ContainerJSON{}, notFound("container: " + id)
	}
	return c, nil
}

func (f *fakeClient) ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.calls = append(f.calls, "create")
	f.created, f.hostConfig = cfg, hostCfg
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	return container.CreateResponse{ID: "0123456789abcdef0123"}, nil
}

func (f *fakeClient) ContainerStart(ctx context.Context, id string, _ container.StartOptions) error {
	f.calls = append(f.calls, "start")
	return f.startErr
}

func (f *fakeClient) ContainerStop(ctx context.Context, id string, opts container.StopOptions) error {
	f.calls = append(f.calls, "stop")
	f.stopOpts = opts
	return nil
}

func (f *fakeClient) ContainerRemove(ctx context.Context, id string, _ container.RemoveOptions) error {
	f.calls = append(f.calls, "remove")
	return f.removeErr
}

func (f *fakeClient) ContainerLogs(ctx context.Context, id string, _ container.LogsOptions) (io.ReadCloser, error) {
	f.calls = append(f.calls, "logs")
	return io.NopCloser(bytes.NewReader(f.logs)), nil
}

func (f *fakeClient) ImageInspectWithRaw(ctx context.Context, ref string) (types.ImageInspect, []byte, error) {
	f.calls = append(f.calls, "image-inspect")
	if !f.images[ref] {
		return types.ImageInspect{}, nil, notFound("image: " + ref)
	}
	return types.ImageInspect{ID: "sha256:abc"}, nil, nil
}

func (f *fakeClient) ImagePull(ctx context.Context, ref string, _ types.ImagePullOptions) (io.ReadCloser, error) {
	f.calls = append(f.calls, "pull")
	f.pulled = append(f.pulled, ref)
	return io.NopCloser(bytes.NewBufferString(`{"status":"Downloaded"}`)), nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func testEngineConfig() *config.EngineConfig {
	cfg := config.Default().Engine
	return &cfg
}

func testSpec() domain.LaunchSpec {
	return domain.LaunchSpec{
		Name:        "isaac-sim-instance-0",
		Image:       "nvcr.io/nvidia/isaac-sim:5.1.0",
		Env:         map[string]string{"ACCEPT_EULA": "Y", "DISPLAY": ":0"},
		Volumes:     []domain.VolumeBind{{HostPath: "/cache/logs", ContainerPath: "/isaac-sim/.nvidia-omniverse/logs"}},
		GPUs:        []domain.GPURequest{{Count: -1, Capabilities: []string{"gpu", "compute", "utility"}}},
		NetworkMode: "host",
		Runtime:     "nvidia",
		MemoryBytes: 8 << 30,
		ShmBytes:    2 << 30,
		User:        "1234:1234",
		Command:     []string{"./runheadless.sh", "-v"},
		Labels:      map[string]string{"simfleet.instance": "0"},
	}
}

func TestAdapterInspect(t *testing.T) {
	fc := newFakeClient()
	fc.inspect["sim-0"] = types.ContainerJSON{ContainerJSONBase: &types.ContainerJSONBase{
		ID:      "0123456789abcdef0123",
		Created: "2025-03-01T10:00:00.123456789Z",
		State:   &types.ContainerState{Status: "exited"},
	}}
	a := newAdapter(fc, testEngineConfig())

	rec, err := a.Inspect(context.Background(), "sim-0")
	require.NoError(t, err)
	assert.Equal(t, "exited", rec.Status)
	assert.Equal(t, domain.StateStopped, rec.State())
	assert.Equal(t, "0123456789ab", rec.ShortID())
	assert.Equal(t, 2025, rec.Created.Year())

	_, err = a.Inspect(context.Background(), "sim-9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdapterRun_PullsMissingImage(t *testing.T) {
	fc := newFakeClient()
	a := newAdapter(fc, testEngineConfig())

	rec, err := a.Run(context.Background(), testSpec())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, rec.Status)
	assert.Equal(t, []string{"image-inspect", "pull", "create", "start"}, fc.calls)
	assert.Equal(t, []string{"nvcr.io/nvidia/isaac-sim:5.1.0"}, fc.pulled)

	assert.Equal(t, container.NetworkMode("host"), fc.hostConfig.NetworkMode)
	assert.Equal(t, "nvidia", fc.hostConfig.Runtime)
	assert.Equal(t, int64(8<<30), fc.hostConfig.Memory)
	assert.Equal(t, int64(2<<30), fc.hostConfig.ShmSize)
	assert.Equal(t, []string{"/cache/logs:/isaac-sim/.nvidia-omniverse/logs:rw"}, fc.hostConfig.Binds)
	require.Len(t, fc.hostConfig.DeviceRequests, 1)
	assert.Equal(t, -1, fc.hostConfig.DeviceRequests[0].Count)
	assert.Equal(t, [][]string{{"gpu", "compute", "utility"}}, fc.hostConfig.DeviceRequests[0].Capabilities)
	assert.Equal(t, []string{"ACCEPT_EULA=Y", "DISPLAY=:0"}, fc.created.Env)
	assert.Equal(t, "1234:1234", fc.created.User)
}

func TestAdapterRun_StartFailureRemovesContainer(t *testing.T) {
	fc := newFakeClient()
	fc.images["nvcr.io/nvidia/isaac-sim:5.1.0"] = true
	fc.startErr = errors.New("could not select device driver")
	a := newAdapter(fc, testEngineConfig())

	_, err := a.Run(context.Background(), testSpec())
	require.Error(t, err)
	var engErr *domain.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "start", engErr.Op)
	assert.Equal(t, []string{"image-inspect", "create", "start", "remove"}, fc.calls)
}

func TestAdapterStopUsesGrace(t *testing.T) {
	fc := newFakeClient()
	a := newAdapter(fc, testEngineConfig())

	require.NoError(t, a.Stop(context.Background(), "sim-0", 10*time.Second))
	require.NotNil(t, fc.stopOpts.Timeout)
	assert.Equal(t, 10, *fc.stopOpts.Timeout)
}

func TestAdapterLogsDemultiplexes(t *testing.T) {
	var buf bytes.Buffer
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte("2025-03-01T10:00:00Z out\n"))
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte("2025-03-01T10:00:01Z err\n"))

	fc := newFakeClient()
	fc.logs = buf.Bytes()
	a := newAdapter(fc, testEngineConfig())

	logs, err := a.Logs(context.Background(), "sim-0", 100)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T10:00:00Z out\n2025-03-01T10:00:01Z err\n", logs)
}

func TestWrapErr(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, wrapErr(ctx, "op", "c", nil))
	assert.ErrorIs(t, wrapErr(ctx, "op", "c", notFound("container")), domain.ErrNotFound)
	assert.ErrorIs(t, wrapErr(ctx, "op", "c", context.DeadlineExceeded), domain.ErrTimeout)

	err := wrapErr(ctx, "remove", "c", errors.New("conflict"))
	var engErr *domain.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "remove", engErr.Op)
}

func TestNewAdapter_ExplicitHostIgnoresEnvironment(t *testing.T) {
	t.Setenv("DOCKER_HOST", "not-a-docker-host")
	cfg := testEngineConfig()

	_, err := NewAdapter("", cfg)
	assert.Error(t, err)

	a, err := NewAdapter("unix:///var/run/docker.sock", cfg)
	require.NoError(t, err)
	assert.NoError(t, a.Close())
}
