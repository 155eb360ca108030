package controllers

import (
	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/ReelPass/app/repository"
	"github.com/ManuelReschke/ReelPass/internal/pkg/billing"
	"github.com/ManuelReschke/ReelPass/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReelPass/internal/pkg/playback"
	"github.com/ManuelReschke/ReelPass/internal/pkg/purchase"
	"github.com/ManuelReschke/ReelPass/internal/pkg/wallet"
)

// Controller holds the services behind the HTTP handlers.
type Controller struct {
	Users     repository.UserRepository
	Wallet    *wallet.Service
	Purchases *purchase.Coordinator
	Access    *entitlements.AccessResolver
	Playback  *playback.Service
	Billing   *billing.Service

	validate *validator.Validate
}

func New(users repository.UserRepository, w *wallet.Service, p *purchase.Coordinator, a *entitlements.AccessResolver, pb *playback.Service, b *billing.Service) *Controller {
	return &Controller{
		Users:     users,
		Wallet:    w,
		Purchases: p,
		Access:    a,
		Playback:  pb,
		Billing:   b,
		validate:  validator.New(),
	}
}
