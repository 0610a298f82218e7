package docker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/melih/simfleet/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResult struct {
	stdout, stderr string
	err            error
}

type fakeRunner struct {
	results map[string]fakeResult // keyed by first arg
	calls   [][]string
	// deadlines holds the time left on each call's context
	deadlines []time.Duration
	block     bool
}

func (f *fakeRunner) run(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{bin}, args...))
	if dl, ok := ctx.Deadline(); ok {
		f.deadlines = append(f.deadlines, time.Until(dl))
	}
	if f.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	r := f.results[args[0]]
	return []byte(r.stdout), []byte(r.stderr), r.err
}

var errExit = errors.New("exit status 1")

func TestCLIInspect(t *testing.T) {
	fr := &fakeRunner{results: map[string]fakeResult{
		"ps": {stdout: "abc123\tisaac-sim-instance-10\trunning\t2025-03-01 10:00:00 +0000 UTC\n" +
			"def456\tisaac-sim-instance-1\texited\t2025-03-01 09:00:00 +0000 UTC\n"},
	}}
	c := newCLIAdapter(testEngineConfig(), fr.run)

	rec, err := c.Inspect(context.Background(), "isaac-sim-instance-1")
	require.NoError(t, err)
	assert.Equal(t, "def456", rec.ID)
	assert.Equal(t, "exited", rec.Status)
	assert.Equal(t, 9, rec.Created.Hour())
	assert.Contains(t, fr.calls[0], "name=^isaac-sim-instance-1$")
}

func TestCLIInspect_NotFound(t *testing.T) {
	fr := &fakeRunner{results: map[string]fakeResult{"ps": {stdout: ""}}}
	c := newCLIAdapter(testEngineConfig(), fr.run)

	_, err := c.Inspect(context.Background(), "isaac-sim-instance-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCLIErrors(t *testing.T) {
	fr := &fakeRunner{results: map[string]fakeResult{
		"stop": {stderr: "Error response from daemon: No such container: sim-0", err: errExit},
		"rm":   {stderr: "Error response from daemon: permission denied", err: errExit},
	}}
	c := newCLIAdapter(testEngineConfig(), fr.run)

	assert.ErrorIs(t, c.Stop(context.Background(), "sim-0", 10*time.Second), domain.ErrNotFound)
	assert.Equal(t, []string{"docker", "stop", "--time", "10", "sim-0"}, fr.calls[0])

	err := c.Remove(context.Background(), "sim-0")
	var engErr *domain.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Contains(t, engErr.Error(), "permission denied")
}

func TestCLITimeout(t *testing.T) {
	cfg := testEngineConfig()
	cfg.CommandTimeout = 20 * time.Millisecond
	fr := &fakeRunner{block: true}
	c := newCLIAdapter(cfg, fr.run)

	err := c.Start(context.Background(), "sim-0")
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestCLIRun(t *testing.T) {
	fr := &fakeRunner{results: map[string]fakeResult{
		"run": {stdout: "Unable to find image locally\nfeedbeef1234\n"},
	}}
	c := newCLIAdapter(testEngineConfig(), fr.run)

	rec, err := c.Run(context.Background(), testSpec())
	require.NoError(t, err)
	assert.Equal(t, "feedbeef1234", rec.ID)

	args := strings.Join(fr.calls[0], " ")
	assert.Contains(t, args, "--name isaac-sim-instance-0")
	assert.Contains(t, args, "--network host")
	assert.Contains(t, args, `--gpus all,"capabilities=compute,utility"`)
	assert.Contains(t, args, "--volume /cache/logs:/isaac-sim/.nvidia-omniverse/logs:rw")
	assert.True(t, strings.HasSuffix(args, "nvcr.io/nvidia/isaac-sim:5.1.0 ./runheadless.sh -v"))
}

func TestCLIRun_BoundedByPullTimeout(t *testing.T) {
	cfg := testEngineConfig()
	cfg.CommandTimeout = time.Second
	cfg.PullTimeout = time.Hour
	fr := &fakeRunner{results: map[string]fakeResult{"run": {stdout: "feedbeef1234\n"}}}
	c := newCLIAdapter(cfg, fr.run)

	_, err := c.Run(context.Background(), testSpec())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background(), "isaac-sim-instance-0"))

	require.Len(t, fr.deadlines, 2)
	assert.Greater(t, fr.deadlines[0], time.Minute)
	assert.LessOrEqual(t, fr.deadlines[1], time.Second)
}

func TestCLILogs(t *testing.T) {
	fr := &fakeRunner{results: map[string]fakeResult{
		"logs": {stdout: "t1 out\n", stderr: "t2 err\n"},
	}}
	c := newCLIAdapter(testEngineConfig(), fr.run)

	logs, err := c.Logs(context.Background(), "sim-0", 50)
	require.NoError(t, err)
	assert.Equal(t, "t1 out\nt2 err\n", logs)
	assert.Equal(t, []string{"docker", "logs", "--tail", "50", "--timestamps", "sim-0"}, fr.calls[0])
}

func TestGPUFlag(t *testing.T) {
	assert.Equal(t, "all", gpuFlag(domain.GPURequest{Count: -1, Capabilities: []string{"gpu"}}))
	assert.Equal(t, `count=2,"capabilities=compute"`, gpuFlag(domain.GPURequest{Count: 2, Capabilities: []string{"gpu", "compute"}}))
}
