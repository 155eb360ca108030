package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReelPass/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReelPass/internal/pkg/usercontext"
)

func (ctl *Controller) accessRequest(c *fiber.Ctx) (*AccessRequest, error) {
	var req AccessRequest
	if err := c.QueryParser(&req); err != nil {
		return nil, err
	}
	if err := ctl.validate.Struct(req); err != nil {
		return nil, err
	}
	return &req, nil
}

// HandleCheckAccess answers whether the caller may watch a movie or episode.
// Anonymous callers are allowed; they only pass for free content.
func (ctl *Controller) HandleCheckAccess(c *fiber.Ctx) error {
	req, err := ctl.accessRequest(c)
	if err != nil {
		return badRequest(c, validationMessage(err))
	}
	decision, _, err := ctl.Access.CanAccess(c.UserContext(), usercontext.GetUser(c), entitlements.PlayableTarget(req.ContentID, req.EpisodeID))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(decision)
}

// HandlePlayback returns a signed media URL once access is allowed.
func (ctl *Controller) HandlePlayback(c *fiber.Ctx) error {
	req, err := ctl.accessRequest(c)
	if err != nil {
		return badRequest(c, validationMessage(err))
	}
	grant, err := ctl.Playback.URL(c.UserContext(), usercontext.GetUser(c), entitlements.PlayableTarget(req.ContentID, req.EpisodeID))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(grant)
}
