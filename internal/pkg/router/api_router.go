package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/ReelPass/app/controllers"
	"github.com/ManuelReschke/ReelPass/app/repository"
	apiv1 "github.com/ManuelReschke/ReelPass/internal/api/v1"
	"github.com/ManuelReschke/ReelPass/internal/pkg/middleware"
)

type ApiRouter struct {
	ctl       *controllers.Controller
	users     repository.UserRepository
	jwtSecret string

	// RateLimit requests per RateWindow and caller. Storage keeps the
	// counters; nil means process memory.
	RateLimit  int
	RateWindow time.Duration
	Storage    fiber.Storage
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(h.limiterConfig()))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1", middleware.Authenticate(h.users, h.jwtSecret))
	apiServer := apiv1.NewAPIServer(h.ctl)
	apiv1.RegisterHandlers(v1, apiServer)
}

func (h ApiRouter) limiterConfig() limiter.Config {
	cfg := limiter.Config{
		Max:        h.RateLimit,
		Expiration: h.RateWindow,
		Storage:    h.Storage,
		// gateway deliveries must never be throttled into retry storms
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/api/v1/payments/webhook"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "Rate limit exceeded",
			})
		},
	}
	if cfg.Max <= 0 {
		cfg.Max = 60
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = time.Minute
	}
	return cfg
}

func NewApiRouter(ctl *controllers.Controller, users repository.UserRepository, jwtSecret string) *ApiRouter {
	return &ApiRouter{ctl: ctl, users: users, jwtSecret: jwtSecret}
}
