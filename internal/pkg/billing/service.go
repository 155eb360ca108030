// Package billing settles external gateway payments against the ledger.
//
// A pending payment moves from pending to completed or failed exactly once.
// The status change and its effect (a wallet credit or a purchase grant) are
// committed in one transaction that holds the payment row lock, so webhooks,
// callbacks and the reconcile worker may all deliver the same confirmation
// any number of times.
package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/app/repository"
	"github.com/ManuelReschke/ReelPass/internal/pkg/catalog"
	"github.com/ManuelReschke/ReelPass/internal/pkg/events"
	"github.com/ManuelReschke/ReelPass/internal/pkg/purchase"
	"github.com/ManuelReschke/ReelPass/internal/pkg/wallet"
)

var (
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrInvalidPayload      = errors.New("invalid webhook payload")
	ErrDuplicateSettlement = errors.New("payment already settled")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
)

var validate = validator.New()

// Options carries the gateway settings the service needs.
type Options struct {
	Provider      string
	WebhookSecret string
	CallbackURL   string
}

type Service struct {
	repos     *repository.Repositories
	gateway   Gateway
	wallet    *wallet.Service
	purchases *purchase.Coordinator
	events    events.Publisher
	opts      Options
	now       func() time.Time
}

func NewService(repos *repository.Repositories, gw Gateway, w *wallet.Service, coord *purchase.Coordinator, pub events.Publisher, opts Options) *Service {
	if pub == nil {
		pub = events.Fallback{}
	}
	if opts.Provider == "" {
		opts.Provider = "gateway"
	}
	return &Service{
		repos:     repos,
		gateway:   gw,
		wallet:    w,
		purchases: coord,
		events:    pub,
		opts:      opts,
		now:       time.Now,
	}
}

// InitiateTopUp opens a checkout that credits the primary pool once paid.
func (s *Service) InitiateTopUp(ctx context.Context, userID uint, amount int64) (*Checkout, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", wallet.ErrInvalidAmount, amount)
	}
	payment := &models.PendingPayment{
		UserID:  userID,
		Purpose: models.PurposeWalletTopUp,
		Amount:  amount,
	}
	return s.initiate(ctx, payment, "Wallet top-up")
}

// InitiateContentPurchase opens a checkout for target. Ownership and pricing
// are checked up front; they are checked again when the payment settles.
func (s *Service) InitiateContentPurchase(ctx context.Context, userID uint, target catalog.Target) (*Checkout, error) {
	var price int64
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		price, err = s.purchases.PrepareTx(ctx, tx, userID, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	payment := &models.PendingPayment{
		UserID:     userID,
		Purpose:    models.PurposeContentPurchase,
		Amount:     price,
		TargetKind: target.Kind,
		ContentID:  target.ContentID,
		UnitID:     target.UnitID,
	}
	return s.initiate(ctx, payment, "Purchase "+target.String())
}

func (s *Service) initiate(ctx context.Context, payment *models.PendingPayment, description string) (*Checkout, error) {
	payment.ExternalRef = uuid.NewString()
	payment.Currency = s.wallet.Currency()
	payment.Status = models.PaymentPending

	res, err := s.gateway.Initiate(ctx, InitiateRequest{
		ExternalRef: payment.ExternalRef,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Description: description,
		CallbackURL: s.opts.CallbackURL,
		Metadata: map[string]string{
			"user_id": fmt.Sprint(payment.UserID),
			"purpose": string(payment.Purpose),
		},
	})
	if err != nil {
		log.Errorw("[Billing] checkout initiation failed", "user_id", payment.UserID, "purpose", payment.Purpose, "error", err.Error())
		return nil, err
	}
	payment.ExternalRef = res.ExternalRef
	payment.ProviderTxID = res.ProviderTxID
	payment.RedirectLink = res.RedirectLink

	if err := s.repos.Payment.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("store pending payment: %w", err)
	}
	log.Infow("[Billing] checkout created", "user_id", payment.UserID, "external_ref", payment.ExternalRef, "purpose", payment.Purpose, "amount", payment.Amount)
	return &Checkout{
		ExternalRef:  payment.ExternalRef,
		RedirectLink: payment.RedirectLink,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
		Purpose:      payment.Purpose,
	}, nil
}

// HandleWebhook records and processes one webhook delivery. The caller
// acknowledges the delivery whatever this returns.
func (s *Service) HandleWebhook(ctx context.Context, raw []byte) (*SettleResult, error) {
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	sigValid := VerifyWebhookSignature(p, s.opts.WebhookSecret)

	eventID := p.EventID
	if eventID == "" {
		sum := sha256.Sum256(raw)
		eventID = hex.EncodeToString(sum[:])
	}
	created, event, err := s.repos.WebhookEvent.CreateIfNotExists(ctx, &models.PaymentWebhookEvent{
		Provider:        s.opts.Provider,
		ProviderEventID: eventID,
		ExternalRef:     p.ExternalRef,
		PayloadJSON:     string(raw),
		SignatureValid:  sigValid,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		// only a signed delivery for the same payment may claim an event id
		trusted := event.SignatureValid && event.ExternalRef == p.ExternalRef
		if trusted && event.ProcessedAt != nil && event.ProcessingError == "" {
			log.Infow("[Billing] webhook already processed", "event_id", eventID, "external_ref", p.ExternalRef)
			return &SettleResult{ExternalRef: p.ExternalRef, Duplicate: true}, nil
		}
		if !trusted && sigValid {
			if err := s.repos.WebhookEvent.ReplaceDelivery(ctx, event.ID, p.ExternalRef, string(raw), true); err != nil {
				return nil, err
			}
		}
	}

	res, err := s.processWebhook(ctx, p, sigValid)

	processingError := ""
	switch {
	case err != nil:
		processingError = err.Error()
	case !sigValid:
		processingError = ErrInvalidSignature.Error()
	case res.Duplicate && res.Status == "":
		// keep redeliveries processable in case the payment row shows up later
		processingError = "unknown external reference"
	}
	if markErr := s.repos.WebhookEvent.MarkProcessed(ctx, event.ID, processingError); markErr != nil {
		log.Warnf("[Billing] could not mark webhook event %d processed: %v", event.ID, markErr)
	}
	return res, err
}

func (s *Service) processWebhook(ctx context.Context, p WebhookPayload, sigValid bool) (*SettleResult, error) {
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	// unknown and settled references are acknowledged before the signature
	// is even looked at, so provider retries stop
	payment, err := s.repos.Payment.GetByExternalRef(ctx, p.ExternalRef)
	if err != nil {
		if repository.IsNotFound(err) {
			log.Warnw("[Billing] webhook for unknown payment", "external_ref", p.ExternalRef)
			return &SettleResult{ExternalRef: p.ExternalRef, Duplicate: true}, nil
		}
		return nil, err
	}
	if payment.Status.IsTerminal() {
		return &SettleResult{ExternalRef: p.ExternalRef, Status: payment.Status, Duplicate: true}, nil
	}
	if !sigValid {
		log.Warnw("[Billing] webhook signature rejected", "external_ref", p.ExternalRef)
		return nil, ErrInvalidSignature
	}
	return s.Settle(ctx, Confirmation{ExternalRef: p.ExternalRef, ProviderTxID: p.ProviderTxID, Success: p.Success})
}

// HandleCallback verifies a redirect callback with the gateway and settles
// it. ErrGatewayUnavailable leaves the payment pending; the caller may retry.
func (s *Service) HandleCallback(ctx context.Context, providerTxID string) (*SettleResult, error) {
	v, err := s.gateway.Verify(ctx, providerTxID)
	if err != nil {
		return nil, err
	}
	if v.Status == VerifyPending {
		return &SettleResult{ExternalRef: v.ExternalRef, Status: models.PaymentPending}, nil
	}
	return s.Settle(ctx, Confirmation{
		ExternalRef:  v.ExternalRef,
		ProviderTxID: v.ProviderTxID,
		Success:      v.Status == VerifySuccess,
	})
}

// Settle applies a confirmation. Unknown or terminal payments are a no-op
// reported as Duplicate.
func (s *Service) Settle(ctx context.Context, c Confirmation) (*SettleResult, error) {
	res := &SettleResult{ExternalRef: c.ExternalRef}
	var payment *models.PendingPayment
	var grant *purchase.GrantResult

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		payment, err = tx.Payment.GetByExternalRefForUpdate(ctx, c.ExternalRef)
		if err != nil {
			if repository.IsNotFound(err) {
				res.Duplicate = true
				return nil
			}
			return err
		}
		if payment.Status.IsTerminal() {
			res.Status, res.Duplicate = payment.Status, true
			return nil
		}

		now := s.now()
		payment.ResolvedAt = &now
		if c.ProviderTxID != "" {
			payment.ProviderTxID = c.ProviderTxID
		}
		if !c.Success {
			payment.Status = models.PaymentFailed
			payment.FailureReason = "declined by gateway"
		} else {
			payment.Status = models.PaymentCompleted
		}
		if err := tx.Payment.Resolve(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrDuplicateSettlement
			}
			return err
		}
		res.Status = payment.Status
		if !c.Success {
			return nil
		}

		switch payment.Purpose {
		case models.PurposeWalletTopUp:
			_, err = s.wallet.CreditTx(ctx, tx, payment.UserID, wallet.Entry{
				Amount:      payment.Amount,
				Kind:        models.WalletTxTopUp,
				Description: "Wallet top-up",
				Reference:   payment.ExternalRef,
			})
			return err
		case models.PurposeContentPurchase:
			target := catalog.Target{Kind: payment.TargetKind, ContentID: payment.ContentID, UnitID: payment.UnitID}
			grant, err = s.purchases.GrantTx(ctx, tx, payment.UserID, target, payment.Amount, payment.ExternalRef)
			if err != nil {
				return err
			}
			res.Purchase, res.Refunded = grant.Record, grant.Refunded
			return nil
		default:
			return fmt.Errorf("unknown payment purpose %q", payment.Purpose)
		}
	})
	if errors.Is(err, ErrDuplicateSettlement) {
		log.Infow("[Billing] settlement raced, already resolved", "external_ref", c.ExternalRef)
		return &SettleResult{ExternalRef: c.ExternalRef, Duplicate: true}, nil
	}
	if err != nil {
		log.Errorw("[Billing] settlement failed", "external_ref", c.ExternalRef, "error", err.Error())
		return nil, err
	}
	if res.Duplicate {
		return res, nil
	}

	log.Infow("[Billing] payment settled", "external_ref", payment.ExternalRef, "user_id", payment.UserID, "status", payment.Status, "purpose", payment.Purpose)
	s.publish(ctx, payment)
	if grant != nil && grant.Record != nil && !grant.Replayed {
		s.purchases.Notify(ctx, grant.Record)
	}
	return res, nil
}

// ReconcilePending verifies payments that stayed pending for longer than
// minAge. Payments the gateway cannot answer for stay pending.
func (s *Service) ReconcilePending(ctx context.Context, minAge time.Duration, limit int) (int, error) {
	stale, err := s.repos.Payment.ListStalePending(ctx, s.now().Add(-minAge), limit)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, p := range stale {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		if p.ProviderTxID == "" {
			continue
		}
		res, err := s.HandleCallback(ctx, p.ProviderTxID)
		if err != nil {
			log.Warnw("[Billing] reconcile could not verify payment", "external_ref", p.ExternalRef, "error", err.Error())
			continue
		}
		if res.Status.IsTerminal() && !res.Duplicate {
			settled++
		}
	}
	if settled > 0 {
		log.Infof("[Billing] Reconciled %d of %d stale payments", settled, len(stale))
	}
	return settled, nil
}

// Payment returns the pending payment for externalRef if it belongs to userID.
func (s *Service) Payment(ctx context.Context, userID uint, externalRef string) (*models.PendingPayment, error) {
	p, err := s.repos.Payment.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (s *Service) publish(ctx context.Context, p *models.PendingPayment) {
	evt := events.PaymentSettled{
		UserID:      p.UserID,
		ExternalRef: p.ExternalRef,
		Purpose:     string(p.Purpose),
		Status:      string(p.Status),
		Amount:      p.Amount,
		Currency:    p.Currency,
		Timestamp:   s.now(),
	}
	if err := s.events.Publish(ctx, events.RoutingPaymentSettled, evt); err != nil {
		log.Warnf("[Billing] could not publish settlement of %s: %v", p.ExternalRef, err)
	}
}
