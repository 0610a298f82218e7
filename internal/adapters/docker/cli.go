package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/melih/simfleet/internal/config"
	"github.com/melih/simfleet/internal/core/domain"
	"github.com/melih/simfleet/internal/core/ports"
	"github.com/melih/simfleet/internal/log"
	"github.com/rs/zerolog"
)

// psFormat is the tabular layout parsed by Inspect.
const psFormat = "{{.ID}}\t{{.Names}}\t{{.State}}\t{{.CreatedAt}}"

// createdAtLayout is how `docker ps` prints CreatedAt.
const createdAtLayout = "2006-01-02 15:04:05 -0700 MST"

// commandRunner executes bin with args and returns its stdout and stderr.
type commandRunner func(ctx context.Context, bin string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, bin string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// CLIAdapter implements ports.Engine by invoking the docker command line tool.
// It is the fallback when the daemon API cannot be reached directly.
type CLIAdapter struct {
	bin         string
	run         commandRunner
	timeout     time.Duration
	pullTimeout time.Duration
	logger      zerolog.Logger
}

var _ ports.Engine = (*CLIAdapter)(nil)

// NewCLIAdapter creates an adapter driving cfg.CLIPath.
func NewCLIAdapter(cfg *config.EngineConfig) *CLIAdapter {
	return newCLIAdapter(cfg, execRunner)
}

func newCLIAdapter(cfg *config.EngineConfig, run commandRunner) *CLIAdapter {
	return &CLIAdapter{
		bin:         cfg.CLIPath,
		run:         run,
		timeout:     cfg.CommandTimeout,
		pullTimeout: cfg.PullTimeout,
		logger:      log.WithComponent("docker-cli"),
	}
}

func (c *CLIAdapter) Mode() domain.EngineMode { return domain.ModeCLI }

func (c *CLIAdapter) Available() bool { return true }

// exec runs one bounded command. A missing container maps to ErrNotFound,
// an expired deadline to ErrTimeout and any other non-zero exit to an EngineError.
func (c *CLIAdapter) exec(ctx context.Context, timeout time.Duration, op, name string, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.logger.Debug().Str("op", op).Strs("args", args).Msg("Running engine command")
	stdout, stderr, err := c.run(ctx, c.bin, args...)
	if err == nil {
		return string(stdout), string(stderr), nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", "", fmt.Errorf("%s %s: %w after %s", op, name, domain.ErrTimeout, timeout)
	}
	msg := strings.TrimSpace(string(stderr))
	if isNoSuchContainer(msg) {
		return "", "", fmt.Errorf("%s %s: %w", op, name, domain.ErrNotFound)
	}
	if msg != "" {
		err = fmt.Errorf("%s: %w", msg, err)
	}
	return "", "", domain.NewEngineError(op, name, err)
}

func isNoSuchContainer(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "no such container")
}

// Ping checks that the tool can still list containers.
func (c *CLIAdapter) Ping(ctx context.Context) error {
	_, _, err := c.exec(ctx, c.timeout, "ping", "", "ps", "--quiet")
	return err
}

func (c *CLIAdapter) Inspect(ctx context.Context, name string) (*domain.ContainerRecord, error) {
	out, _, err := c.exec(ctx, c.timeout, "inspect", name,
		"ps", "--all", "--no-trunc",
		"--filter", "name=^"+name+"$",
		"--format", psFormat,
	)
	if err != nil {
		return nil, err
	}
	rec, ok := parsePS(out, name)
	if !ok {
		return nil, fmt.Errorf("inspect %s: %w", name, domain.ErrNotFound)
	}
	return rec, nil
}

// parsePS finds the row for name in `docker ps` output.
func parsePS(out, name string) (*domain.ContainerRecord, bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			continue
		}
		found := false
		for _, n := range strings.Split(fields[1], ",") {
			if strings.TrimPrefix(n, "/") == name {
				found = true
				break
			}
		}
		if !found {
			continue
		}
		rec := &domain.ContainerRecord{ID: fields[0], Name: name, Status: strings.ToLower(fields[2])}
		if len(fields) > 3 {
			if t, err := time.Parse(createdAtLayout, fields[3]); err == nil {
				rec.Created = t
			}
		}
		return rec, true
	}
	return nil, false
}

// Run uses `docker run --detach`, which pulls a missing image itself. The call
// is therefore bounded by the pull timeout rather than the command timeout.
func (c *CLIAdapter) Run(ctx context.Context, spec domain.LaunchSpec) (*domain.ContainerRecord, error) {
	out, _, err := c.exec(ctx, c.pullTimeout, "run", spec.Name, runArgs(spec)...)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return &domain.ContainerRecord{
		ID:      strings.TrimSpace(lines[len(lines)-1]),
		Name:    spec.Name,
		Status:  domain.StatusRunning,
		Created: time.Now(),
	}, nil
}

func (c *CLIAdapter) Start(ctx context.Context, name string) error {
	_, _, err := c.exec(ctx, c.timeout, "start", name, "start", name)
	return err
}

func (c *CLIAdapter) Stop(ctx context.Context, name string, grace time.Duration) error {
	secs := strconv.Itoa(int(grace.Seconds()))
	_, _, err := c.exec(ctx, grace+c.timeout, "stop", name, "stop", "--time", secs, name)
	return err
}

func (c *CLIAdapter) Remove(ctx context.Context, name string) error {
	_, _, err := c.exec(ctx, c.timeout, "remove", name, "rm", name)
	return err
}

// Logs concatenates the container's stdout and stderr streams.
func (c *CLIAdapter) Logs(ctx context.Context, name string, tail int) (string, error) {
	stdout, stderr, err := c.exec(ctx, c.timeout, "logs", name,
		"logs", "--tail", strconv.Itoa(tail), "--timestamps", name)
	if err != nil {
		return "", err
	}
	return stdout + stderr, nil
}
