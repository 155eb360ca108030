package controllers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReelPass/app/repository"
	"github.com/ManuelReschke/ReelPass/internal/pkg/billing"
	"github.com/ManuelReschke/ReelPass/internal/pkg/catalog"
	"github.com/ManuelReschke/ReelPass/internal/pkg/playback"
	"github.com/ManuelReschke/ReelPass/internal/pkg/pricing"
	"github.com/ManuelReschke/ReelPass/internal/pkg/purchase"
	"github.com/ManuelReschke/ReelPass/internal/pkg/wallet"
)

type apiError struct {
	status int
	code   string
}

// errorTable maps domain errors to responses. Order matters: the first match wins.
var errorTable = []struct {
	err error
	apiError
}{
	{catalog.ErrInvalidTarget, apiError{fiber.StatusBadRequest, "invalid_target"}},
	{wallet.ErrInvalidAmount, apiError{fiber.StatusBadRequest, "invalid_amount"}},
	{billing.ErrInvalidPayload, apiError{fiber.StatusBadRequest, "invalid_payload"}},
	{purchase.ErrFreeContent, apiError{fiber.StatusBadRequest, "free_content"}},
	{wallet.ErrInsufficientFunds, apiError{fiber.StatusPaymentRequired, "insufficient_funds"}},
	{billing.ErrInvalidSignature, apiError{fiber.StatusUnauthorized, "invalid_signature"}},
	{playback.ErrAccessDenied, apiError{fiber.StatusForbidden, "access_denied"}},
	{catalog.ErrNotFound, apiError{fiber.StatusNotFound, "not_found"}},
	{playback.ErrNoAsset, apiError{fiber.StatusNotFound, "no_asset"}},
	{purchase.ErrAlreadyOwned, apiError{fiber.StatusConflict, "already_owned"}},
	{purchase.ErrPurchaseInProgress, apiError{fiber.StatusConflict, "purchase_in_progress"}},
	{pricing.ErrInvalidPricing, apiError{fiber.StatusUnprocessableEntity, "invalid_pricing"}},
	{billing.ErrGatewayUnavailable, apiError{fiber.StatusServiceUnavailable, "gateway_unavailable"}},
	{playback.ErrDisabled, apiError{fiber.StatusServiceUnavailable, "playback_unavailable"}},
}

// respondError writes the JSON error body for err.
func respondError(c *fiber.Ctx, err error) error {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			body := fiber.Map{"error": e.code, "message": err.Error()}
			var denied *playback.DeniedError
			if errors.As(err, &denied) {
				body["reason"] = denied.Decision.Reason
				body["message"] = denied.Decision.Message
			}
			return c.Status(e.status).JSON(body)
		}
	}
	if repository.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Resource not found"})
	}

	log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Internal server error"})
}

// bind parses the JSON body into out and validates it. The returned error is
// already user-facing.
func (ctl *Controller) bind(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return errors.New("Invalid JSON body")
	}
	if err := ctl.validate.Struct(out); err != nil {
		return errors.New(validationMessage(err))
	}
	return nil
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}
