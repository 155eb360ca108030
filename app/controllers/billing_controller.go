package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReelPass/internal/pkg/usercontext"
)

// HandlePaymentWebhook receives asynchronous gateway confirmations. The
// delivery is always acknowledged with 200 so the provider stops retrying;
// rejected payloads are reported in the body only.
func (ctl *Controller) HandlePaymentWebhook(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 15*time.Second)
	defer cancel()

	result, err := ctl.Billing.HandleWebhook(ctx, c.BodyRaw())
	if err != nil {
		log.Warnw("[Billing] webhook rejected", "error", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": false, "error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":        true,
		"duplicate": result.Duplicate,
		"status":    result.Status,
	})
}

// HandlePaymentCallback settles a payment after the user returns from the
// gateway. The transaction is verified with the gateway first.
func (ctl *Controller) HandlePaymentCallback(c *fiber.Ctx) error {
	txID := c.Query("transaction_id")
	if txID == "" {
		return badRequest(c, "transaction_id missing")
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), 30*time.Second)
	defer cancel()

	result, err := ctl.Billing.HandleCallback(ctx, txID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// HandleGetPayment shows one of the caller's payments.
func (ctl *Controller) HandleGetPayment(c *fiber.Ctx) error {
	payment, err := ctl.Billing.Payment(c.UserContext(), usercontext.GetUserID(c), c.Params("ref"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(payment)
}
