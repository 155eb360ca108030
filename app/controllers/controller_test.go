package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/app/repository"
	"github.com/ManuelReschke/ReelPass/internal/pkg/billing"
	"github.com/ManuelReschke/ReelPass/internal/pkg/config"
	"github.com/ManuelReschke/ReelPass/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReelPass/internal/pkg/playback"
	"github.com/ManuelReschke/ReelPass/internal/pkg/pricing"
	"github.com/ManuelReschke/ReelPass/internal/pkg/purchase"
	"github.com/ManuelReschke/ReelPass/internal/pkg/usercontext"
	"github.com/ManuelReschke/ReelPass/internal/pkg/wallet"
)

const webhookSecret = "whsec"

type stubGateway struct{}

func (stubGateway) Initiate(_ context.Context, req billing.InitiateRequest) (*billing.InitiateResult, error) {
	return &billing.InitiateResult{
		ExternalRef:  req.ExternalRef,
		ProviderTxID: "tx-" + req.ExternalRef,
		RedirectLink: "https://pay.example/checkout/" + req.ExternalRef,
	}, nil
}

func (stubGateway) Verify(context.Context, string) (*billing.Verification, error) {
	return nil, billing.ErrGatewayUnavailable
}

type stubSigner struct{}

func (stubSigner) Sign(_ context.Context, key string, ttl time.Duration) (string, error) {
	return "https://cdn.example/" + key + "?ttl=" + ttl.String(), nil
}

type testEnv struct {
	app   *fiber.App
	repos *repository.Repositories
	ctl   *Controller
	user  *models.User
	admin *models.User
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	return setupWithBonus(t, 0)
}

func setupWithBonus(t *testing.T, welcomeBonus int64) *testEnv {
	t.Helper()
	ctx := context.Background()
	repos := repository.NewMemoryRepositories()

	c := repos.Content
	require.NoError(t, c.CreateContent(ctx, &models.Content{ID: "show", Kind: models.ContentKindSeries, Title: "Show", DiscountPercent: 15}))
	require.NoError(t, c.CreateSeason(ctx, &models.Season{ID: "s1", ContentID: "show", Number: 1}))
	for i, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, c.CreateEpisode(ctx, &models.Episode{ID: id, SeasonID: "s1", ContentID: "show", Number: i + 1, Price: 500, AssetKey: "media/" + id + ".m3u8"}))
	}
	require.NoError(t, c.CreateEpisode(ctx, &models.Episode{ID: "trailer", SeasonID: "s1", ContentID: "show", Number: 0, Free: true, AssetKey: "media/trailer.m3u8"}))

	user := &models.User{Name: "viewer", Email: "viewer@example.com", Role: models.ROLE_USER, Status: models.STATUS_ACTIVE}
	admin := &models.User{Name: "admin", Email: "admin@example.com", Role: models.ROLE_ADMIN, Status: models.STATUS_ACTIVE}
	require.NoError(t, repos.User.Create(ctx, user))
	require.NoError(t, repos.User.Create(ctx, admin))

	w := wallet.NewService(repos, "USD", welcomeBonus)
	coord := purchase.NewCoordinator(repos, w, pricing.NewResolver(config.RoundingNearest))
	access := entitlements.NewAccessResolver(repos)
	bill := billing.NewService(repos, stubGateway{}, w, coord, nil, billing.Options{Provider: "gateway", WebhookSecret: webhookSecret})
	ctl := New(repos.User, w, coord, access, playback.NewService(access, stubSigner{}, 5*time.Minute), bill)

	app := fiber.New()
	// X-User selects the caller; a real deployment authenticates first
	app.Use(func(c *fiber.Ctx) error {
		if id := c.Get("X-User"); id != "" {
			n, _ := strconv.ParseUint(id, 10, 64)
			u, err := repos.User.GetByID(c.UserContext(), uint(n))
			require.NoError(t, err)
			usercontext.Set(c, u)
		}
		return c.Next()
	})
	app.Get("/wallet", ctl.HandleGetWallet)
	app.Get("/wallet/transactions", ctl.HandleGetWalletTransactions)
	app.Post("/wallet/topups", ctl.HandleCreateTopUp)
	app.Post("/purchases", ctl.HandleCreatePurchase)
	app.Get("/purchases", ctl.HandleListPurchases)
	app.Get("/purchases/quote", ctl.HandleQuotePurchase)
	app.Post("/purchases/checkout", ctl.HandleCheckoutPurchase)
	app.Get("/access", ctl.HandleCheckAccess)
	app.Get("/playback", ctl.HandlePlayback)
	app.Post("/payments/webhook", ctl.HandlePaymentWebhook)
	app.Get("/payments/callback", ctl.HandlePaymentCallback)
	app.Get("/payments/:ref", ctl.HandleGetPayment)
	app.Post("/admin/wallets/:id/adjustments", ctl.HandleAdminWalletAdjustment)
	app.Get("/admin/wallets/:id/reconcile", ctl.HandleAdminWalletReconcile)
	app.Post("/admin/users/:id/api-key", ctl.HandleAdminIssueAPIKey)

	return &testEnv{app: app, repos: repos, ctl: ctl, user: user, admin: admin}
}

func (e *testEnv) do(t *testing.T, method, path string, as *models.User, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			reader = bytes.NewReader(b)
		default:
			raw, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set("X-User", strconv.FormatUint(uint64(as.ID), 10))
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (e *testEnv) fund(t *testing.T, amount int64) {
	t.Helper()
	_, err := e.ctl.Wallet.Credit(context.Background(), e.user.ID, wallet.Entry{Amount: amount, Kind: models.WalletTxTopUp})
	require.NoError(t, err)
}

var seriesTarget = map[string]string{"kind": "series", "content_id": "show"}

func TestPurchaseSeries(t *testing.T) {
	e := setup(t)
	e.fund(t, 2000)

	status, body := e.do(t, http.MethodPost, "/purchases", e.user, seriesTarget)
	require.Equal(t, fiber.StatusCreated, status, body)
	record := body["purchase"].(map[string]interface{})
	assert.EqualValues(t, 1275, record["price_paid"])
	assert.Len(t, record["snapshot_ids"], 3)
	assert.EqualValues(t, 725, body["balance"].(map[string]interface{})["total"])

	status, body = e.do(t, http.MethodPost, "/purchases", e.user, seriesTarget)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "already_owned", body["error"])

	status, body = e.do(t, http.MethodGet, "/wallet", e.user, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 725, body["total"])

	status, body = e.do(t, http.MethodGet, "/purchases", e.user, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["purchases"], 1)
}

func TestPurchaseErrors(t *testing.T) {
	e := setup(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"insufficient funds", seriesTarget, fiber.StatusPaymentRequired, "insufficient_funds"},
		{"unknown content", map[string]string{"kind": "movie", "content_id": "nope"}, fiber.StatusNotFound, "not_found"},
		{"free episode", map[string]string{"kind": "episode", "content_id": "show", "unit_id": "trailer"}, fiber.StatusBadRequest, "free_content"},
		{"bad kind", map[string]string{"kind": "bundle", "content_id": "show"}, fiber.StatusBadRequest, "bad_request"},
		{"missing content", map[string]string{"kind": "series"}, fiber.StatusBadRequest, "bad_request"},
		{"broken json", []byte("{"), fiber.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := e.do(t, http.MethodPost, "/purchases", e.user, tt.body)
			assert.Equal(t, tt.status, status, body)
			assert.Equal(t, tt.code, body["error"])
		})
	}

	_, body := e.do(t, http.MethodPost, "/purchases", e.user, seriesTarget)
	assert.Equal(t, "insufficient balance: need 1275, have 0", body["message"])
}

func TestQuote(t *testing.T) {
	e := setup(t)
	status, body := e.do(t, http.MethodGet, "/purchases/quote?kind=season&content_id=show&unit_id=s1", e.user, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 1275, body["price"])
	assert.Equal(t, false, body["owned"])
	assert.Equal(t, "USD", body["currency"])
}

func TestAccessAndPlayback(t *testing.T) {
	e := setup(t)

	status, body := e.do(t, http.MethodGet, "/access?content_id=show&episode_id=trailer", nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["allowed"])
	assert.Equal(t, "free", body["reason"])

	status, body = e.do(t, http.MethodGet, "/access?content_id=show&episode_id=e1", e.user, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, "not_purchased", body["reason"])

	status, body = e.do(t, http.MethodGet, "/playback?content_id=show&episode_id=e1", e.user, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "access_denied", body["error"])
	assert.Equal(t, "not_purchased", body["reason"])

	e.fund(t, 500)
	status, _ = e.do(t, http.MethodPost, "/purchases", e.user, map[string]string{"kind": "episode", "content_id": "show", "unit_id": "e1"})
	require.Equal(t, fiber.StatusCreated, status)

	status, body = e.do(t, http.MethodGet, "/playback?content_id=show&episode_id=e1", e.user, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Contains(t, body["url"], "media/e1.m3u8")

	status, body = e.do(t, http.MethodGet, "/access?content_id=show&episode_id=e2", e.admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "admin", body["reason"])

	status, _ = e.do(t, http.MethodGet, "/access", e.user, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestTopUpWebhookFlow(t *testing.T) {
	e := setup(t)

	status, body := e.do(t, http.MethodPost, "/wallet/topups", e.user, map[string]int64{"amount": 1000})
	require.Equal(t, fiber.StatusCreated, status, body)
	ref := body["external_ref"].(string)

	status, body = e.do(t, http.MethodGet, "/payments/"+ref, e.user, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "pending", body["status"])

	status, _ = e.do(t, http.MethodGet, "/payments/"+ref, e.admin, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	payload := billing.WebhookPayload{EventID: "evt-1", ExternalRef: ref, Success: true, Signature: billing.SignConfirmation(webhookSecret, ref, true)}
	for i := 0; i < 2; i++ {
		status, body = e.do(t, http.MethodPost, "/payments/webhook", nil, payload)
		require.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, true, body["ok"])
		assert.Equal(t, i == 1, body["duplicate"])
	}

	_, body = e.do(t, http.MethodGet, "/wallet", e.user, nil)
	assert.EqualValues(t, 1000, body["primary"])

	// rejected payloads are still acknowledged
	status, body = e.do(t, http.MethodPost, "/payments/webhook", nil, []byte("not json"))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["ok"])
}

func TestTopUpValidation(t *testing.T) {
	e := setup(t)
	status, body := e.do(t, http.MethodPost, "/wallet/topups", e.user, map[string]int64{"amount": -5})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["message"], "amount")
}

func TestCallbackGatewayUnavailable(t *testing.T) {
	e := setup(t)
	status, body := e.do(t, http.MethodGet, "/payments/callback?transaction_id=tx-1", e.user, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "gateway_unavailable", body["error"])

	status, _ = e.do(t, http.MethodGet, "/payments/callback", e.user, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestAdminAdjustment(t *testing.T) {
	e := setup(t)
	path := "/admin/wallets/" + strconv.FormatUint(uint64(e.user.ID), 10)

	status, body := e.do(t, http.MethodPost, path+"/adjustments", e.admin, map[string]interface{}{"amount": 300, "description": "goodwill", "to_bonus": true})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 300, body["bonus"])

	status, body = e.do(t, http.MethodPost, path+"/adjustments", e.admin, map[string]interface{}{"amount": -100, "description": "correction"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 200, body["total"])

	status, body = e.do(t, http.MethodPost, path+"/adjustments", e.admin, map[string]interface{}{"amount": -1000, "description": "too much"})
	assert.Equal(t, fiber.StatusPaymentRequired, status, body)

	status, body = e.do(t, http.MethodGet, path+"/reconcile", e.admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ok"])

	status, _ = e.do(t, http.MethodPost, "/admin/wallets/999/adjustments", e.admin, map[string]interface{}{"amount": 1, "description": "x"})
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestGetWallet_WelcomeBonusOnFirstVisit(t *testing.T) {
	e := setupWithBonus(t, 500)

	status, body := e.do(t, http.MethodGet, "/wallet", e.user, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 500, body["bonus"])
	assert.EqualValues(t, 0, body["primary"])
	assert.EqualValues(t, 500, body["total"])

	status, body = e.do(t, http.MethodGet, "/wallet/transactions", e.user, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["transactions"], 1)

	// a second visit does not grant the bonus again
	_, body = e.do(t, http.MethodGet, "/wallet", e.user, nil)
	assert.EqualValues(t, 500, body["total"])
}

func TestAdminIssueAPIKey(t *testing.T) {
	e := setup(t)
	path := "/admin/users/" + strconv.FormatUint(uint64(e.user.ID), 10) + "/api-key"

	status, body := e.do(t, http.MethodPost, path, e.admin, nil)
	require.Equal(t, fiber.StatusCreated, status, body)
	first := body["api_key"].(string)
	assert.True(t, strings.HasPrefix(first, models.RawAPIKeyPrefix))
	assert.Equal(t, first[:16], body["api_key_prefix"])

	found, err := e.repos.User.GetByAPIKeyHash(context.Background(), models.HashAPIKey(first))
	require.NoError(t, err)
	assert.Equal(t, e.user.ID, found.ID)

	// rotating revokes the previous key
	_, body = e.do(t, http.MethodPost, path, e.admin, nil)
	second := body["api_key"].(string)
	assert.NotEqual(t, first, second)
	_, err = e.repos.User.GetByAPIKeyHash(context.Background(), models.HashAPIKey(first))
	assert.True(t, repository.IsNotFound(err))

	status, _ = e.do(t, http.MethodPost, "/admin/users/999/api-key", e.admin, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = e.do(t, http.MethodPost, "/admin/users/abc/api-key", e.admin, nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
