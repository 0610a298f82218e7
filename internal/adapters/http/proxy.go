package http

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/melih/simfleet/internal/core/domain"
	"github.com/melih/simfleet/internal/core/ports"
)

// ProxyHandler forwards /instances/:id/stream/* to the HTTP port of a
// running instance, so the streaming client is reachable through the API port.
type ProxyHandler struct {
	service ports.LifecycleService
	host    string
}

// NewProxyHandler creates a new proxy handler. host is where instance ports listen.
func NewProxyHandler(service ports.LifecycleService, host string) *ProxyHandler {
	return &ProxyHandler{service: service, host: host}
}

func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("Instance ID must be an integer")
	}

	st, err := h.service.Status(c.UserContext(), id)
	if err != nil {
		return c.Status(errorStatus(err)).SendString(err.Error())
	}
	// Only proxy to running instances
	if st.State() != domain.StateRunning {
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("Instance %d is not running", id))
	}

	remote, err := url.Parse(fmt.Sprintf("http://%s:%d", h.host, st.Ports[domain.RoleHTTP]))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Invalid target URL")
	}
	// The wildcard param loses a trailing slash under non-strict routing,
	// which breaks relative asset paths in the streaming client.
	path := utils.CopyString(strings.TrimPrefix(c.Path(), "/instances/"+c.Params("id")+"/stream"))
	if path == "" {
		path = "/"
	}

	proxy := httputil.NewSingleHostReverseProxy(remote)

	// Rewrite Host and strip the /instances/:id/stream prefix so the
	// simulator sees the request as if it were addressed directly.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
		req.URL.Host = remote.Host
		req.URL.Scheme = remote.Scheme
		req.URL.Path = path
		req.URL.RawPath = ""
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(fmt.Sprintf("Proxy Info: instance=%d target=%s error=%v", id, remote.Host, err)))
	}

	return adaptor.HTTPHandler(proxy)(c)
}
