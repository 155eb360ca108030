package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReelPass/app/controllers"
	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/app/repository"
	"github.com/ManuelReschke/ReelPass/internal/pkg/billing"
	"github.com/ManuelReschke/ReelPass/internal/pkg/config"
	"github.com/ManuelReschke/ReelPass/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReelPass/internal/pkg/playback"
	"github.com/ManuelReschke/ReelPass/internal/pkg/pricing"
	"github.com/ManuelReschke/ReelPass/internal/pkg/purchase"
	"github.com/ManuelReschke/ReelPass/internal/pkg/wallet"
)

func newTestApp(t *testing.T, limit int) (*fiber.App, string) {
	t.Helper()
	repos := repository.NewMemoryRepositories()
	user := &models.User{Name: "viewer", Email: "viewer@example.com", Role: models.ROLE_USER, Status: models.STATUS_ACTIVE}
	key, err := user.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, repos.User.Create(context.Background(), user))

	w := wallet.NewService(repos, "USD", 100)
	coord := purchase.NewCoordinator(repos, w, pricing.NewResolver(config.RoundingNearest))
	access := entitlements.NewAccessResolver(repos)
	gw := billing.NewHTTPGateway(config.GatewayConfig{})
	bill := billing.NewService(repos, gw, w, coord, nil, billing.Options{Provider: "gateway"})
	ctl := controllers.New(repos.User, w, coord, access, playback.NewService(access, nil, time.Minute), bill)

	api := NewApiRouter(ctl, repos.User, "secret")
	api.RateLimit = limit
	api.RateWindow = time.Minute

	app := fiber.New()
	InstallRouter(app, api)
	return app, key
}

func get(t *testing.T, app *fiber.App, path, key string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestApiRoutes(t *testing.T) {
	app, key := newTestApp(t, 100)

	assert.Equal(t, fiber.StatusOK, get(t, app, "/api/v1/ping", ""))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/api/v1/wallet", ""))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/api/v1/wallet", key))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/api/v1/wallet", "rlp_unknown"))
	assert.Equal(t, fiber.StatusForbidden, get(t, app, "/api/v1/admin/wallets/1/reconcile", key))
	assert.Equal(t, fiber.StatusNotFound, get(t, app, "/api/v1/payments/missing", key))
}

func TestApiRateLimit(t *testing.T) {
	app, _ := newTestApp(t, 2)

	assert.Equal(t, fiber.StatusOK, get(t, app, "/api/v1/ping", ""))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/api/v1/ping", ""))
	assert.Equal(t, fiber.StatusTooManyRequests, get(t, app, "/api/v1/ping", ""))

	// webhooks bypass the limiter
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
