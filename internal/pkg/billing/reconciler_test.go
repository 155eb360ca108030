package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/internal/pkg/config"
)

func TestReconciler_RunOnce(t *testing.T) {
	h := newHarness(t)
	checkout, err := h.svc.InitiateTopUp(context.Background(), buyer, 400)
	require.NoError(t, err)
	h.gateway.set("tx-"+checkout.ExternalRef, &Verification{ExternalRef: checkout.ExternalRef, Status: VerifySuccess})

	r := NewReconciler(h.svc, config.ReconcileConfig{Interval: time.Second, MinAge: 0, BatchSize: 5})
	assert.Equal(t, 1, r.RunOnce())
	assert.Equal(t, models.PaymentCompleted, h.status(t, checkout.ExternalRef))
	assert.Equal(t, 0, r.RunOnce())
}

func TestReconciler_StartStop(t *testing.T) {
	h := newHarness(t)
	checkout, err := h.svc.InitiateTopUp(context.Background(), buyer, 250)
	require.NoError(t, err)
	h.gateway.set("tx-"+checkout.ExternalRef, &Verification{ExternalRef: checkout.ExternalRef, Status: VerifySuccess})

	r := NewReconciler(h.svc, config.ReconcileConfig{Interval: 10 * time.Millisecond})
	r.Start()
	r.Start()
	assert.Eventually(t, func() bool {
		b, err := h.wallet.Balance(context.Background(), buyer)
		return err == nil && b.Total == 250
	}, 2*time.Second, 10*time.Millisecond)
	r.Stop()
	r.Stop()
}
