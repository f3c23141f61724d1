// handlers/app.go
package handlers

import (
	"strings"

	"realm-rivals/config"
	"realm-rivals/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Handlers groups everything the HTTP API serves.
type Handlers struct {
	Game        *GameHandler
	Invitations *InvitationHandler
	Profiles    *ProfileHandler
	Store       *StoreHandler
}

// NewApp builds the Fiber app: gateway auth on every route, then CORS, then the /api
// routes behind the user context middleware.
func NewApp(cfg config.Config, h Handlers, quiet bool) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit: 4 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return respondError(c, code, err.Error())
		},
	})

	app.Use(recover.New())
	if !quiet {
		app.Use(logger.New(logger.Config{
			Format: "[HTTP] ${time} ${status} ${latency} ${method} ${path}\n",
		}))
	}

	// 🔐❗ GLOBAL: Only Gateway requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	if h.Game != nil {
		SetupStreamRoutes(app, h.Game)
	}

	api := app.Group("/api", middleware.UserContextMiddleware())
	if h.Game != nil {
		SetupGameRoutes(api, h.Game)
	}
	if h.Invitations != nil {
		SetupInvitationRoutes(api, h.Invitations)
	}
	if h.Profiles != nil {
		SetupProfileRoutes(api, h.Profiles)
	}
	if h.Store != nil {
		SetupStoreRoutes(api, h.Store)
	}
	return app
}
