package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReelPass/internal/pkg/middleware"
)

// Pong is the body of GET /ping.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface lists the operations of public/docs/v1/openapi.yml.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (GET /wallet)
	GetWallet(c *fiber.Ctx) error
	// (GET /wallet/transactions)
	GetWalletTransactions(c *fiber.Ctx) error
	// (POST /wallet/topups)
	PostWalletTopUp(c *fiber.Ctx) error
	// (POST /purchases)
	PostPurchase(c *fiber.Ctx) error
	// (GET /purchases)
	GetPurchases(c *fiber.Ctx) error
	// (GET /purchases/quote)
	GetPurchaseQuote(c *fiber.Ctx) error
	// (POST /purchases/checkout)
	PostPurchaseCheckout(c *fiber.Ctx) error
	// (GET /access)
	GetAccess(c *fiber.Ctx) error
	// (GET /playback)
	GetPlayback(c *fiber.Ctx) error
	// (GET /payments/callback)
	GetPaymentCallback(c *fiber.Ctx) error
	// (POST /payments/webhook)
	PostPaymentWebhook(c *fiber.Ctx) error
	// (GET /payments/{ref})
	GetPayment(c *fiber.Ctx, ref string) error
	// (POST /admin/wallets/{id}/adjustments)
	PostAdminWalletAdjustment(c *fiber.Ctx, userID string) error
	// (GET /admin/wallets/{id}/reconcile)
	GetAdminWalletReconcile(c *fiber.Ctx, userID string) error
	// (POST /admin/users/{id}/api-key)
	PostAdminUserAPIKey(c *fiber.Ctx, userID string) error
}

// RegisterHandlers mounts si on router. Authentication must already have
// run; the routes only enforce whether a caller is required.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	router.Get("/ping", si.GetPing)

	router.Get("/wallet", middleware.RequireAuth, si.GetWallet)
	router.Get("/wallet/transactions", middleware.RequireAuth, si.GetWalletTransactions)
	router.Post("/wallet/topups", middleware.RequireAuth, si.PostWalletTopUp)

	router.Post("/purchases", middleware.RequireAuth, si.PostPurchase)
	router.Get("/purchases", middleware.RequireAuth, si.GetPurchases)
	router.Get("/purchases/quote", middleware.RequireAuth, si.GetPurchaseQuote)
	router.Post("/purchases/checkout", middleware.RequireAuth, si.PostPurchaseCheckout)

	router.Get("/access", si.GetAccess)
	router.Get("/playback", si.GetPlayback)

	// static segments before the :ref parameter
	router.Get("/payments/callback", si.GetPaymentCallback)
	router.Post("/payments/webhook", si.PostPaymentWebhook)
	router.Get("/payments/:ref", middleware.RequireAuth, func(c *fiber.Ctx) error {
		return si.GetPayment(c, c.Params("ref"))
	})

	admin := router.Group("/admin", middleware.RequireAdmin)
	admin.Post("/wallets/:id/adjustments", func(c *fiber.Ctx) error {
		return si.PostAdminWalletAdjustment(c, c.Params("id"))
	})
	admin.Get("/wallets/:id/reconcile", func(c *fiber.Ctx) error {
		return si.GetAdminWalletReconcile(c, c.Params("id"))
	})
	admin.Post("/users/:id/api-key", func(c *fiber.Ctx) error {
		return si.PostAdminUserAPIKey(c, c.Params("id"))
	})
}
