package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/melih/simfleet/internal/config"
	"github.com/melih/simfleet/internal/core/domain"
	"github.com/melih/simfleet/internal/core/ports"
	"github.com/melih/simfleet/internal/log"
	"github.com/melih/simfleet/internal/metrics"
	"github.com/rs/zerolog"
)

// Manager drives simulator instances through not_created -> running -> stopped -> removed.
// The engine is the source of truth: every transition re-reads the container
// before deciding what to do.
type Manager struct {
	cfg     *config.Config
	engine  ports.Engine
	builder *SpecBuilder
	locks   *keyedMutex
	logger  zerolog.Logger

	// handles is an advisory cache of engine ids keyed by instance id.
	// It is never consulted to answer a status query.
	mu      sync.Mutex
	handles map[int]string
}

var _ ports.LifecycleService = (*Manager)(nil)

// NewManager wires the builder and engine together.
func NewManager(cfg *config.Config, engine ports.Engine, builder *SpecBuilder) *Manager {
	return &Manager{
		cfg:     cfg,
		engine:  engine,
		builder: builder,
		locks:   newKeyedMutex(),
		logger:  log.WithComponent("fleet"),
		handles: make(map[int]string),
	}
}

// EngineMode reports the engine access mode chosen at startup.
func (m *Manager) EngineMode() domain.EngineMode {
	return m.engine.Mode()
}

// Ports returns the port mapping of id.
func (m *Manager) Ports(id int) (domain.PortMapping, error) {
	return PortsFor(id, &m.cfg.Instances)
}

// Handle returns the cached engine id of id, if any.
func (m *Manager) Handle(id int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[id]
	return h, ok
}

func (m *Manager) remember(id int, containerID string) {
	m.mu.Lock()
	m.handles[id] = containerID
	m.mu.Unlock()
}

func (m *Manager) forget(id int) {
	m.mu.Lock()
	delete(m.handles, id)
	m.mu.Unlock()
}

func (m *Manager) name(id int) string {
	return ContainerName(m.cfg.Engine.ContainerPrefix, id)
}

// precheck validates the id first, then engine availability.
func (m *Manager) precheck(id int) error {
	if err := ValidateID(id, &m.cfg.Instances); err != nil {
		return err
	}
	if !m.engine.Available() {
		return domain.ErrEngineUnavailable
	}
	return nil
}

// inspect returns nil, nil when the container does not exist.
func (m *Manager) inspect(ctx context.Context, id int) (*domain.ContainerRecord, error) {
	rec, err := m.engine.Inspect(ctx, m.name(id))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func observe(op string, timer *metrics.Timer, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.OperationsTotal.WithLabelValues(op, result).Inc()
	timer.ObserveDurationVec(metrics.OperationDuration, op)
}

// Start brings id to running. A running instance is left alone, a stopped one
// is resumed and a missing one is created from a fresh launch spec.
func (m *Manager) Start(ctx context.Context, id int) (st *domain.InstanceStatus, err error) {
	timer := metrics.NewTimer()
	defer func() { observe("start", timer, err) }()

	if err := m.precheck(id); err != nil {
		return nil, err
	}
	unlock := m.locks.Lock(id)
	defer unlock()

	if err := m.start(ctx, id); err != nil {
		return nil, err
	}
	return m.status(ctx, id)
}

func (m *Manager) start(ctx context.Context, id int) error {
	logger := log.WithInstance(m.logger, id)
	name := m.name(id)

	rec, err := m.inspect(ctx, id)
	if err != nil {
		return err
	}

	switch rec.State() {
	case domain.StateRunning:
		logger.Info().Msg("Instance is already running")
		m.remember(id, rec.ID)
		return nil
	case domain.StateStopped:
		logger.Info().Str("container", name).Msg("Starting existing container")
		err := m.engine.Start(ctx, name)
		if err == nil {
			m.remember(id, rec.ID)
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Error().Err(err).Msg("Failed to start existing container")
			return err
		}
		// Removed behind our back; create a fresh one.
		logger.Warn().Msg("Container disappeared before start")
		m.forget(id)
	}

	logger.Info().Str("container", name).Msg("Creating new container")
	spec, warnings, err := m.builder.Build(id)
	if err != nil {
		return fmt.Errorf("failed to build launch spec: %w", err)
	}
	for _, w := range warnings {
		logger.Warn().Msg(w)
	}

	created, err := m.engine.Run(ctx, *spec)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start instance")
		return err
	}
	m.remember(id, created.ID)
	logger.Info().Str("container_id", created.ShortID()).Msg("Successfully started instance")
	return nil
}

// Stop stops a running instance with the configured grace period.
// Stopped and missing instances are left as they are.
func (m *Manager) Stop(ctx context.Context, id int) (st *domain.InstanceStatus, err error) {
	timer := metrics.NewTimer()
	defer func() { observe("stop", timer, err) }()

	if err := m.precheck(id); err != nil {
		return nil, err
	}
	unlock := m.locks.Lock(id)
	defer unlock()

	if err := m.stop(ctx, id); err != nil {
		return nil, err
	}
	return m.status(ctx, id)
}

func (m *Manager) stop(ctx context.Context, id int) error {
	logger := log.WithInstance(m.logger, id)

	rec, err := m.inspect(ctx, id)
	if err != nil {
		return err
	}
	switch rec.State() {
	case domain.StateNotCreated:
		logger.Warn().Msg("Container for instance not found")
		return nil
	case domain.StateStopped:
		logger.Info().Str("status", rec.Status).Msg("Instance is not running")
		return nil
	}

	logger.Info().Msg("Stopping instance")
	if err := m.engine.Stop(ctx, m.name(id), m.cfg.Engine.StopTimeout); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Error().Err(err).Msg("Failed to stop instance")
			return err
		}
		logger.Warn().Msg("Container disappeared before stop")
	}
	m.forget(id)
	return nil
}

// Restart is stop followed by start under one lock. It is not atomic: if
// start fails the instance stays stopped.
func (m *Manager) Restart(ctx context.Context, id int) (st *domain.InstanceStatus, err error) {
	timer := metrics.NewTimer()
	defer func() { observe("restart", timer, err) }()

	if err := m.precheck(id); err != nil {
		return nil, err
	}
	unlock := m.locks.Lock(id)
	defer unlock()

	logger := log.WithInstance(m.logger, id)
	logger.Info().Msg("Restarting instance")
	if err := m.stop(ctx, id); err != nil {
		return nil, err
	}
	if err := m.start(ctx, id); err != nil {
		return nil, err
	}
	return m.status(ctx, id)
}

// Remove stops id if needed and deletes its container. A missing container
// is reported as not_found rather than as an error.
func (m *Manager) Remove(ctx context.Context, id int) (res *domain.RemoveResult, err error) {
	timer := metrics.NewTimer()
	defer func() { observe("remove", timer, err) }()

	if err := m.precheck(id); err != nil {
		return nil, err
	}
	unlock := m.locks.Lock(id)
	defer unlock()

	return m.remove(ctx, id)
}

func (m *Manager) remove(ctx context.Context, id int) (*domain.RemoveResult, error) {
	logger := log.WithInstance(m.logger, id)
	name := m.name(id)

	rec, err := m.inspect(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		logger.Warn().Msg("Container for instance not found")
		m.forget(id)
		return &domain.RemoveResult{InstanceID: id, Status: domain.RemoveNotFound}, nil
	}

	if rec.State() == domain.StateRunning {
		if err := m.engine.Stop(ctx, name, m.cfg.Engine.StopTimeout); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				m.forget(id)
				return &domain.RemoveResult{InstanceID: id, Status: domain.RemoveNotFound}, nil
			}
			logger.Error().Err(err).Msg("Failed to stop instance before removal")
			return nil, err
		}
	}
	if err := m.engine.Remove(ctx, name); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			m.forget(id)
			return &domain.RemoveResult{InstanceID: id, Status: domain.RemoveNotFound}, nil
		}
		logger.Error().Err(err).Msg("Failed to remove instance")
		return nil, err
	}
	m.forget(id)
	logger.Info().Msg("Removed instance")
	return &domain.RemoveResult{InstanceID: id, Status: domain.RemoveRemoved}, nil
}

// Status never fails for a missing container; it returns the not_created shape.
// With no engine at all every instance reads as not_created.
func (m *Manager) Status(ctx context.Context, id int) (*domain.InstanceStatus, error) {
	if err := ValidateID(id, &m.cfg.Instances); err != nil {
		return nil, err
	}
	return m.status(ctx, id)
}

func (m *Manager) status(ctx context.Context, id int) (*domain.InstanceStatus, error) {
	ports, err := PortsFor(id, &m.cfg.Instances)
	if err != nil {
		return nil, err
	}
	st := &domain.InstanceStatus{
		InstanceID: id,
		Status:     domain.StatusNotCreated,
		Ports:      ports,
		WebRTCURL:  ports.WebRTCURL(),
	}
	if !m.engine.Available() {
		return st, nil
	}

	rec, err := m.inspect(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return st, nil
	}
	st.Status = rec.Status
	st.ContainerID = rec.ShortID()
	if !rec.Created.IsZero() {
		st.Created = rec.Created.UTC().Format(time.RFC3339Nano)
	}
	return st, nil
}

// List returns the status of every instance in ascending id order.
func (m *Manager) List(ctx context.Context) ([]domain.InstanceStatus, error) {
	out := make([]domain.InstanceStatus, 0, m.cfg.Instances.MaxInstances)
	counts := map[domain.State]int{}
	for id := 0; id < m.cfg.Instances.MaxInstances; id++ {
		st, err := m.status(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", id, err)
		}
		counts[st.State()]++
		out = append(out, *st)
	}
	for _, s := range []domain.State{domain.StateNotCreated, domain.StateStopped, domain.StateRunning} {
		metrics.InstancesByState.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
	return out, nil
}

// CleanupAll removes every instance. A failing instance is recorded with
// status "error" and never stops the batch.
func (m *Manager) CleanupAll(ctx context.Context) (report *domain.CleanupReport, err error) {
	timer := metrics.NewTimer()
	defer func() { observe("cleanup", timer, err) }()

	if !m.engine.Available() {
		return nil, domain.ErrEngineUnavailable
	}

	m.logger.Info().Int("max_instances", m.cfg.Instances.MaxInstances).Msg("Cleaning up all instances")
	report = &domain.CleanupReport{Results: make([]domain.RemoveResult, 0, m.cfg.Instances.MaxInstances)}
	for id := 0; id < m.cfg.Instances.MaxInstances; id++ {
		res, err := m.cleanupOne(ctx, id)
		if err != nil {
			logger := log.WithInstance(m.logger, id)
			logger.Error().Err(err).Msg("Error cleaning up instance")
			res = &domain.RemoveResult{InstanceID: id, Status: domain.RemoveError, Error: err.Error()}
		}
		report.Results = append(report.Results, *res)
	}
	return report, nil
}

func (m *Manager) cleanupOne(ctx context.Context, id int) (*domain.RemoveResult, error) {
	unlock := m.locks.Lock(id)
	defer unlock()
	return m.remove(ctx, id)
}

// Logs returns the last tail log lines. Missing containers and retrieval
// failures come back as the log text, not as errors.
func (m *Manager) Logs(ctx context.Context, id, tail int) (string, error) {
	if err := ValidateID(id, &m.cfg.Instances); err != nil {
		return "", err
	}
	if !m.engine.Available() {
		return fmt.Sprintf("Error retrieving logs: %v", domain.ErrEngineUnavailable), nil
	}

	logs, err := m.engine.Logs(ctx, m.name(id), tail)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Sprintf("Container for instance %d not found", id), nil
	case err != nil:
		return fmt.Sprintf("Error retrieving logs: %v", err), nil
	}
	return logs, nil
}

// Health pings the engine.
func (m *Manager) Health(ctx context.Context) error {
	if !m.engine.Available() {
		return domain.ErrEngineUnavailable
	}
	return m.engine.Ping(ctx)
}
