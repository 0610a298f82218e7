package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/melih/simfleet/internal/config"
	"github.com/melih/simfleet/internal/core/ports"
	"github.com/melih/simfleet/internal/metrics"
)

// NewApp builds the fiber app with every route registered.
func NewApp(service ports.LifecycleService, cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "simfleet",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(requestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: "GET,POST,DELETE,OPTIONS",
	}))

	instanceHandler := NewInstanceHandler(service, cfg)
	proxyHandler := NewProxyHandler(service, cfg.Server.ProxyHost)

	app.Get("/health", instanceHandler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")
	api.Get("/config", instanceHandler.GetConfig)
	api.Post("/cleanup", instanceHandler.Cleanup)

	instances := api.Group("/instances")
	instances.Get("/", instanceHandler.ListInstances)
	instances.Post("/start", instanceHandler.StartInstance)
	instances.Post("/stop", instanceHandler.StopInstance)
	instances.Post("/restart", instanceHandler.RestartInstance)
	instances.Get("/:id", instanceHandler.GetInstance)
	instances.Delete("/:id", instanceHandler.RemoveInstance)
	instances.Get("/:id/logs", instanceHandler.GetInstanceLogs)
	instances.Get("/:id/ports", instanceHandler.GetInstancePorts)

	app.All("/instances/:id/stream/*", proxyHandler.ProxyRequest)

	return app
}
