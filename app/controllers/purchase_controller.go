package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReelPass/internal/pkg/usercontext"
)

// HandleCreatePurchase buys a unit with wallet funds.
func (ctl *Controller) HandleCreatePurchase(c *fiber.Ctx) error {
	var req TargetRequest
	if err := ctl.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	userID := usercontext.GetUserID(c)
	record, err := ctl.Purchases.Purchase(c.UserContext(), userID, req.Target())
	if err != nil {
		return respondError(c, err)
	}
	balance, err := ctl.Wallet.Balance(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"purchase": record,
		"balance":  balance,
	})
}

// HandleListPurchases returns the caller's library.
func (ctl *Controller) HandleListPurchases(c *fiber.Ctx) error {
	records, err := ctl.Purchases.Library(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"purchases": records})
}

// HandleQuotePurchase prices a unit for the caller without buying it.
func (ctl *Controller) HandleQuotePurchase(c *fiber.Ctx) error {
	var req TargetRequest
	if err := c.QueryParser(&req); err != nil {
		return badRequest(c, "Invalid query")
	}
	if err := ctl.validate.Struct(req); err != nil {
		return badRequest(c, validationMessage(err))
	}
	quote, err := ctl.Purchases.Quote(c.UserContext(), usercontext.GetUserID(c), req.Target())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(quote)
}

// HandleCheckoutPurchase pays for a unit through the gateway instead of the wallet.
func (ctl *Controller) HandleCheckoutPurchase(c *fiber.Ctx) error {
	var req TargetRequest
	if err := ctl.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	checkout, err := ctl.Billing.InitiateContentPurchase(c.UserContext(), usercontext.GetUserID(c), req.Target())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(checkout)
}
