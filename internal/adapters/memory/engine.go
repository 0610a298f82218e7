// Package memory is an in-process Engine used by tests and by the
// "memory" engine mode for dry runs without a container daemon.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/melih/simfleet/internal/core/domain"
	"github.com/melih/simfleet/internal/core/ports"
)

type container struct {
	record domain.ContainerRecord
	spec   domain.LaunchSpec
	logs   []string
}

// Engine keeps container records in a map. It is safe for concurrent use.
type Engine struct {
	mu         sync.Mutex
	available  bool
	containers map[string]*container
	calls      map[string]int
	failures   map[string]error
	vanish     map[string]bool
	// RunDelay widens the create window so tests can provoke races.
	RunDelay time.Duration
	now      func() time.Time
}

var _ ports.Engine = (*Engine)(nil)

// New returns an available, empty engine.
func New() *Engine {
	return &Engine{
		available:  true,
		containers: make(map[string]*container),
		calls:      make(map[string]int),
		failures:   make(map[string]error),
		vanish:     make(map[string]bool),
		now:        time.Now,
	}
}

// NewUnavailable returns an engine that reports itself unreachable.
func NewUnavailable() *Engine {
	e := New()
	e.available = false
	return e
}

// FailOn makes op ("run", "start", "stop", "remove", "logs", "inspect")
// against name return err until cleared with a nil err.
func (e *Engine) FailOn(op, name string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := op + "/" + name
	if err == nil {
		delete(e.failures, key)
		return
	}
	e.failures[key] = err
}

// VanishOn deletes name the next time op is called against it and fails that
// call with ErrNotFound, as if the container was removed by someone else.
func (e *Engine) VanishOn(op, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vanish[op+"/"+name] = true
}

// Calls returns how often op was invoked.
func (e *Engine) Calls(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

// TotalCalls returns the number of engine calls of any kind.
func (e *Engine) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		n += c
	}
	return n
}

// Spec returns the launch spec a container was created from.
func (e *Engine) Spec(name string) (domain.LaunchSpec, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[name]
	if !ok {
		return domain.LaunchSpec{}, false
	}
	return c.spec, true
}

// SetStatus forces the raw status of an existing container, e.g. "exited".
func (e *Engine) SetStatus(name, status string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.containers[name]; ok {
		c.record.Status = status
	}
}

// record counts the call and returns an injected failure, if any. Caller holds mu.
func (e *Engine) record(op, name string) error {
	e.calls[op]++
	if !e.available {
		return domain.ErrEngineUnavailable
	}
	key := op + "/" + name
	if e.vanish[key] {
		delete(e.vanish, key)
		delete(e.containers, name)
		return domain.ErrNotFound
	}
	if err, ok := e.failures[key]; ok {
		return err
	}
	return nil
}

func (e *Engine) Mode() domain.EngineMode {
	if !e.available {
		return domain.ModeUnavailable
	}
	return domain.ModeMemory
}

func (e *Engine) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available
}

func (e *Engine) Ping(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record("ping", "")
}

func (e *Engine) Inspect(ctx context.Context, name string) (*domain.ContainerRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("inspect", name); err != nil {
		return nil, err
	}
	c, ok := e.containers[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec := c.record
	return &rec, nil
}

func (e *Engine) Run(ctx context.Context, spec domain.LaunchSpec) (*domain.ContainerRecord, error) {
	if e.RunDelay > 0 {
		select {
		case <-time.After(e.RunDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("run", spec.Name); err != nil {
		return nil, err
	}
	if _, exists := e.containers[spec.Name]; exists {
		return nil, fmt.Errorf("conflict: container name %q is already in use", spec.Name)
	}

	c := &container{
		record: domain.ContainerRecord{
			ID:      newID(),
			Name:    spec.Name,
			Status:  domain.StatusRunning,
			Created: e.now(),
		},
		spec: spec,
	}
	c.logs = append(c.logs, e.logLine("started "+strings.Join(spec.Command, " ")))
	e.containers[spec.Name] = c
	rec := c.record
	return &rec, nil
}

func (e *Engine) Start(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("start", name); err != nil {
		return err
	}
	c, ok := e.containers[name]
	if !ok {
		return domain.ErrNotFound
	}
	c.record.Status = domain.StatusRunning
	c.logs = append(c.logs, e.logLine("resumed"))
	return nil
}

func (e *Engine) Stop(ctx context.Context, name string, grace time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("stop", name); err != nil {
		return err
	}
	c, ok := e.containers[name]
	if !ok {
		return domain.ErrNotFound
	}
	c.record.Status = domain.StatusExited
	c.logs = append(c.logs, e.logLine("stopped"))
	return nil
}

func (e *Engine) Remove(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("remove", name); err != nil {
		return err
	}
	c, ok := e.containers[name]
	if !ok {
		return domain.ErrNotFound
	}
	if c.record.Status == domain.StatusRunning {
		return fmt.Errorf("cannot remove running container %s", name)
	}
	delete(e.containers, name)
	return nil
}

func (e *Engine) Logs(ctx context.Context, name string, tail int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("logs", name); err != nil {
		return "", err
	}
	c, ok := e.containers[name]
	if !ok {
		return "", domain.ErrNotFound
	}
	lines := c.logs
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return strings.Join(lines, ""), nil
}

func (e *Engine) logLine(msg string) string {
	return e.now().UTC().Format(time.RFC3339Nano) + " " + msg + "\n"
}

// newID mimics a 64 hex character engine id.
func newID() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
