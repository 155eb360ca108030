package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/ReelPass/app/controllers"
	"github.com/ManuelReschke/ReelPass/app/repository"
	"github.com/ManuelReschke/ReelPass/internal/pkg/billing"
	"github.com/ManuelReschke/ReelPass/internal/pkg/cache"
	"github.com/ManuelReschke/ReelPass/internal/pkg/config"
	"github.com/ManuelReschke/ReelPass/internal/pkg/database"
	"github.com/ManuelReschke/ReelPass/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReelPass/internal/pkg/events"
	"github.com/ManuelReschke/ReelPass/internal/pkg/playback"
	"github.com/ManuelReschke/ReelPass/internal/pkg/pricing"
	"github.com/ManuelReschke/ReelPass/internal/pkg/purchase"
	"github.com/ManuelReschke/ReelPass/internal/pkg/router"
	"github.com/ManuelReschke/ReelPass/internal/pkg/wallet"
)

type application struct {
	app        *fiber.App
	reconciler *billing.Reconciler
	publisher  events.Publisher
}

// NewApplication wires storage, services and routes.
func NewApplication(cfg *config.Config) (*application, error) {
	db, err := database.SetupDatabase(cfg.DatabaseDriver)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()

	publisher := events.New(cfg.AMQPURL, cfg.EventsExchange)

	// redis is optional: without it purchases rely on the row lock alone and
	// rate limits are kept per process
	var limiterStorage fiber.Storage
	purchaseOpts := []purchase.Option{purchase.WithPublisher(publisher)}
	cache.SetupCache()
	if rdb := cache.GetClient(); rdb.Ping(context.Background()).Err() == nil {
		purchaseOpts = append(purchaseOpts, purchase.WithGuard(cache.NewLocker(rdb, "reelpass:purchase:"), cfg.PurchaseLockTTL))
		opts := rdb.Options()
		host, port := splitAddr(opts.Addr)
		limiterStorage = redisstorage.New(redisstorage.Config{
			Host:     host,
			Port:     port,
			Password: opts.Password,
			Database: 1, // limiter counters apart from locks in DB 0
			Reset:    false,
		})
	}

	w := wallet.NewService(repos, cfg.Currency, cfg.WelcomeBonus)
	coord := purchase.NewCoordinator(repos, w, pricing.NewResolver(cfg.PriceRounding), purchaseOpts...)
	access := entitlements.NewAccessResolver(repos)

	var signer playback.Signer
	if s3cfg, err := playback.LoadConfig(); err != nil {
		log.Warnf("[Playback] Signed URLs disabled: %v", err)
	} else if s, err := playback.NewS3Signer(s3cfg); err != nil {
		log.Warnf("[Playback] Signed URLs disabled: %v", err)
	} else {
		signer = s
	}
	play := playback.NewService(access, signer, cfg.PlaybackURLTTL)

	bill := billing.NewService(repos, billing.NewHTTPGateway(cfg.Gateway), w, coord, publisher, billing.Options{
		Provider:      cfg.Gateway.Provider,
		WebhookSecret: cfg.Gateway.WebhookSecret,
		CallbackURL:   cfg.Gateway.CallbackURL,
	})
	if cfg.Gateway.WebhookSecret == "" {
		log.Warn("[Billing] GATEWAY_WEBHOOK_SECRET is empty, every webhook will be rejected")
	}

	ctl := controllers.New(repos.User, w, coord, access, play, bill)

	app := fiber.New(fiber.Config{
		AppName:   "ReelPass",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: cfg.OpenAPIDocPath,
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	api := router.NewApiRouter(ctl, repos.User, cfg.JWTSecret)
	api.RateLimit = cfg.APIRateLimit
	api.RateWindow = cfg.APIRateWindow
	api.Storage = limiterStorage
	router.InstallRouter(app, api)

	return &application{
		app:        app,
		reconciler: billing.NewReconciler(bill, cfg.Reconcile),
		publisher:  publisher,
	}, nil
}

// Shutdown stops accepting requests, then stops the background worker and
// closes the broker connection.
func (a *application) Shutdown(ctx context.Context) {
	if err := a.app.ShutdownWithContext(ctx); err != nil {
		log.Errorf("[App] shutdown: %v", err)
	}
	a.reconciler.Stop()
	a.publisher.Close()
	if db := database.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	log.Info("[App] Stopped")
}

func splitAddr(addr string) (string, int) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return host, 6379
	}
	return host, port
}
