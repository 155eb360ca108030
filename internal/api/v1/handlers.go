package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to the controllers to keep behavior consistent
	"github.com/ManuelReschke/ReelPass/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	ctl *controllers.Controller
}

// NewAPIServer creates a new API server instance
func NewAPIServer(ctl *controllers.Controller) *APIServer {
	return &APIServer{ctl: ctl}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

func (s *APIServer) GetWallet(c *fiber.Ctx) error {
	return s.ctl.HandleGetWallet(c)
}

func (s *APIServer) GetWalletTransactions(c *fiber.Ctx) error {
	return s.ctl.HandleGetWalletTransactions(c)
}

// PostWalletTopUp opens a gateway checkout that credits the primary pool on settlement.
func (s *APIServer) PostWalletTopUp(c *fiber.Ctx) error {
	return s.ctl.HandleCreateTopUp(c)
}

// PostPurchase buys with wallet funds.
func (s *APIServer) PostPurchase(c *fiber.Ctx) error {
	return s.ctl.HandleCreatePurchase(c)
}

func (s *APIServer) GetPurchases(c *fiber.Ctx) error {
	return s.ctl.HandleListPurchases(c)
}

func (s *APIServer) GetPurchaseQuote(c *fiber.Ctx) error {
	return s.ctl.HandleQuotePurchase(c)
}

// PostPurchaseCheckout buys through the payment gateway.
func (s *APIServer) PostPurchaseCheckout(c *fiber.Ctx) error {
	return s.ctl.HandleCheckoutPurchase(c)
}

// GetAccess is public; anonymous callers only pass for free content.
func (s *APIServer) GetAccess(c *fiber.Ctx) error {
	return s.ctl.HandleCheckAccess(c)
}

func (s *APIServer) GetPlayback(c *fiber.Ctx) error {
	return s.ctl.HandlePlayback(c)
}

func (s *APIServer) GetPaymentCallback(c *fiber.Ctx) error {
	return s.ctl.HandlePaymentCallback(c)
}

// PostPaymentWebhook is unauthenticated; the payload carries its own signature.
func (s *APIServer) PostPaymentWebhook(c *fiber.Ctx) error {
	return s.ctl.HandlePaymentWebhook(c)
}

func (s *APIServer) GetPayment(c *fiber.Ctx, ref string) error {
	if ref == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "ref missing"})
	}
	return s.ctl.HandleGetPayment(c)
}

func (s *APIServer) PostAdminWalletAdjustment(c *fiber.Ctx, userID string) error {
	return s.ctl.HandleAdminWalletAdjustment(c)
}

func (s *APIServer) GetAdminWalletReconcile(c *fiber.Ctx, userID string) error {
	return s.ctl.HandleAdminWalletReconcile(c)
}

func (s *APIServer) PostAdminUserAPIKey(c *fiber.Ctx, userID string) error {
	return s.ctl.HandleAdminIssueAPIKey(c)
}
