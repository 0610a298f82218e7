package http

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/simfleet/internal/config"
	"github.com/melih/simfleet/internal/core/domain"
	"github.com/melih/simfleet/internal/core/ports"
	"github.com/melih/simfleet/internal/log"
	"github.com/rs/zerolog"
)

const (
	defaultLogTail = 100
	maxLogTail     = 1000
)

// InstanceHandler translates HTTP requests into lifecycle calls.
type InstanceHandler struct {
	service ports.LifecycleService
	cfg     *config.Config
	logger  zerolog.Logger
}

func NewInstanceHandler(service ports.LifecycleService, cfg *config.Config) *InstanceHandler {
	return &InstanceHandler{service: service, cfg: cfg, logger: log.WithComponent("api")}
}

// InstanceRequest is the body of start, stop and restart.
type InstanceRequest struct {
	InstanceID *int `json:"instance_id"`
}

// APIResponse wraps the result of a mutating call.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// errorStatus maps the domain error taxonomy onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidIdentifier):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrEngineUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTimeout):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *InstanceHandler) fail(c *fiber.Ctx, action string, err error) error {
	status := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		h.logger.Error().Err(err).Str("action", action).Msg("Request failed")
	}
	return c.Status(status).JSON(fiber.Map{
		"error": fmt.Sprintf("Failed to %s: %v", action, err),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func paramID(c *fiber.Ctx) (int, bool) {
	id, err := strconv.Atoi(c.Params("id"))
	return id, err == nil
}

func bodyID(c *fiber.Ctx) (int, bool) {
	var req InstanceRequest
	if err := c.BodyParser(&req); err != nil || req.InstanceID == nil {
		return 0, false
	}
	return *req.InstanceID, true
}

func (h *InstanceHandler) ListInstances(c *fiber.Ctx) error {
	instances, err := h.service.List(c.UserContext())
	if err != nil {
		return h.fail(c, "list instances", err)
	}
	return c.JSON(fiber.Map{"instances": instances})
}

func (h *InstanceHandler) GetInstance(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "Instance ID must be an integer")
	}
	st, err := h.service.Status(c.UserContext(), id)
	if err != nil {
		return h.fail(c, "get instance status", err)
	}
	return c.JSON(st)
}

// mutate runs a start/stop/restart style call for the id in the request body.
func (h *InstanceHandler) mutate(c *fiber.Ctx, verb, past string, fn func(*fiber.Ctx, int) (*domain.InstanceStatus, error)) error {
	id, ok := bodyID(c)
	if !ok {
		return badRequest(c, "Invalid request body, instance_id is required")
	}
	st, err := fn(c, id)
	if err != nil {
		return h.fail(c, verb+" instance", err)
	}
	return c.JSON(APIResponse{
		Success: true,
		Message: fmt.Sprintf("Instance %d %s successfully", id, past),
		Data:    st,
	})
}

func (h *InstanceHandler) StartInstance(c *fiber.Ctx) error {
	return h.mutate(c, "start", "started", func(c *fiber.Ctx, id int) (*domain.InstanceStatus, error) {
		return h.service.Start(c.UserContext(), id)
	})
}

func (h *InstanceHandler) StopInstance(c *fiber.Ctx) error {
	return h.mutate(c, "stop", "stopped", func(c *fiber.Ctx, id int) (*domain.InstanceStatus, error) {
		return h.service.Stop(c.UserContext(), id)
	})
}

func (h *InstanceHandler) RestartInstance(c *fiber.Ctx) error {
	return h.mutate(c, "restart", "restarted", func(c *fiber.Ctx, id int) (*domain.InstanceStatus, error) {
		return h.service.Restart(c.UserContext(), id)
	})
}

func (h *InstanceHandler) RemoveInstance(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "Instance ID must be an integer")
	}
	res, err := h.service.Remove(c.UserContext(), id)
	if err != nil {
		return h.fail(c, "remove instance", err)
	}
	return c.JSON(APIResponse{
		Success: true,
		Message: fmt.Sprintf("Instance %d removed successfully", id),
		Data:    res,
	})
}

func (h *InstanceHandler) GetInstanceLogs(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "Instance ID must be an integer")
	}
	tail, err := strconv.Atoi(c.Query("tail", strconv.Itoa(defaultLogTail)))
	if err != nil || tail < 1 || tail > maxLogTail {
		return badRequest(c, fmt.Sprintf("Tail parameter must be between 1 and %d", maxLogTail))
	}

	logs, err := h.service.Logs(c.UserContext(), id, tail)
	if err != nil {
		return h.fail(c, "get logs", err)
	}
	return c.JSON(fiber.Map{"instance_id": id, "logs": logs})
}

func (h *InstanceHandler) Cleanup(c *fiber.Ctx) error {
	report, err := h.service.CleanupAll(c.UserContext())
	if err != nil {
		return h.fail(c, "cleanup instances", err)
	}
	msg := "All instances cleaned up successfully"
	if failed := report.Failed(); len(failed) > 0 {
		msg = fmt.Sprintf("Cleanup finished with %d failed instance(s)", len(failed))
	}
	return c.JSON(APIResponse{Success: true, Message: msg, Data: report})
}

func (h *InstanceHandler) GetConfig(c *fiber.Ctx) error {
	in := h.cfg.Instances
	return c.JSON(fiber.Map{
		"max_instances":            in.MaxInstances,
		"image":                    in.Image,
		"network_mode":             in.NetworkMode,
		"http_port_base":           in.Ports.HTTP,
		"streaming_port_base":      in.Ports.Streaming,
		"native_port_base":         in.Ports.Native,
		"remote_desktop_port_base": in.Ports.RemoteDesktop,
		"memory_limit":             in.MemoryLimit,
		"shm_size":                 in.ShmSize,
		"gpu_enabled":              in.GPUEnabled,
		"streaming_enabled":        in.StreamingEnabled,
		"presentation":             in.Presentation,
		"engine_mode":              h.service.EngineMode(),
	})
}

func (h *InstanceHandler) Health(c *fiber.Ctx) error {
	mode := h.service.EngineMode()
	if err := h.service.Health(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"engine": "disconnected",
			"mode":   mode,
			"error":  err.Error(),
		})
	}
	return c.JSON(fiber.Map{"status": "healthy", "engine": "connected", "mode": mode})
}

func (h *InstanceHandler) GetInstancePorts(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "Instance ID must be an integer")
	}
	mapping, err := h.service.Ports(id)
	if err != nil {
		return h.fail(c, "get ports", err)
	}
	return c.JSON(fiber.Map{"instance_id": id, "ports": mapping, "webrtc_url": mapping.WebRTCURL()})
}
