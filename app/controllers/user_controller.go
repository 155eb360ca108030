package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReelPass/internal/pkg/usercontext"
)

// HandleAdminIssueAPIKey rotates a user's API key. The raw key is returned
// once; only its hash is stored.
func (ctl *Controller) HandleAdminIssueAPIKey(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return badRequest(c, "Invalid user id")
	}
	user, err := ctl.Users.GetByID(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	rawKey, err := user.IssueAPIKey()
	if err != nil {
		log.Errorw("[Admin] api key generation failed", "user_id", userID, "error", err)
		return respondError(c, err)
	}
	if err := ctl.Users.UpdateAPIKey(c.UserContext(), user); err != nil {
		return respondError(c, err)
	}

	log.Infow("[Admin] api key issued", "admin_id", usercontext.GetUserID(c), "user_id", userID, "prefix", user.APIKeyPrefix)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user_id":        user.ID,
		"api_key":        rawKey,
		"api_key_prefix": user.APIKeyPrefix,
	})
}
