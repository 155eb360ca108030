// Package purchase turns a priced catalog unit into a durable purchase record.
//
// The wallet path debits the buyer and writes the record in one transaction
// that holds the buyer's wallet row lock, so two purchases by one user are
// serialized and either both effects are committed or neither is. The unique
// (user, target) index on purchase records backs this up.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/app/repository"
	"github.com/ManuelReschke/ReelPass/internal/pkg/cache"
	"github.com/ManuelReschke/ReelPass/internal/pkg/catalog"
	"github.com/ManuelReschke/ReelPass/internal/pkg/entitlements"
	"github.com/ManuelReschke/ReelPass/internal/pkg/events"
	"github.com/ManuelReschke/ReelPass/internal/pkg/pricing"
	"github.com/ManuelReschke/ReelPass/internal/pkg/wallet"
)

var (
	ErrAlreadyOwned       = errors.New("content already owned")
	ErrFreeContent        = errors.New("content is free and cannot be purchased")
	ErrPurchaseInProgress = errors.New("a purchase for this content is already in progress")
)

// Guard rejects a second in-flight request for the same key before it
// reaches the database. cache.Locker implements it.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

type Coordinator struct {
	repos   *repository.Repositories
	wallet  *wallet.Service
	pricing *pricing.Resolver
	events  events.Publisher
	guard   Guard
	lockTTL time.Duration
	now     func() time.Time
}

type Option func(*Coordinator)

// WithGuard enables the in-flight guard with the given lock TTL.
func WithGuard(g Guard, ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.guard = g
		c.lockTTL = ttl
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) { c.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(repos *repository.Repositories, w *wallet.Service, p *pricing.Resolver, opts ...Option) *Coordinator {
	c := &Coordinator{
		repos:   repos,
		wallet:  w,
		pricing: p,
		events:  events.Fallback{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote describes what buying target would cost the user right now.
type Quote struct {
	Target   catalog.Target `json:"target"`
	Price    int64          `json:"price"`
	Currency string         `json:"currency"`
	Free     bool           `json:"free"`
	Owned    bool           `json:"owned"`
}

func (c *Coordinator) Quote(ctx context.Context, userID uint, target catalog.Target) (*Quote, error) {
	unit, err := catalog.Resolve(ctx, c.repos.Content, target)
	if err != nil {
		return nil, err
	}
	q := &Quote{Target: target, Currency: c.wallet.Currency(), Free: unit.IsFree()}
	if q.Free {
		return q, nil
	}
	if q.Price, err = c.price(unit); err != nil {
		return nil, err
	}
	records, err := c.repos.Purchase.ListByUserAndContent(ctx, userID, target.ContentID)
	if err != nil {
		return nil, err
	}
	q.Owned = entitlements.Owns(records, unit)
	return q, nil
}

// Purchase buys target with wallet funds.
func (c *Coordinator) Purchase(ctx context.Context, userID uint, target catalog.Target) (*models.PurchaseRecord, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	release, err := c.acquire(ctx, userID, target)
	if err != nil {
		return nil, err
	}
	defer release()

	var record *models.PurchaseRecord
	err = c.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if _, err := c.wallet.LockTx(ctx, tx, userID); err != nil {
			return err
		}
		unit, price, err := c.prepare(ctx, tx, userID, target)
		if err != nil {
			return err
		}

		_, err = c.wallet.DebitTx(ctx, tx, userID, wallet.Entry{
			Amount:      price,
			Kind:        models.WalletTxPurchase,
			Description: describe(unit),
			Reference:   target.String(),
		})
		if err != nil {
			return err
		}

		record = c.newRecord(userID, unit, price, models.PaymentMethodWallet, nil)
		return c.insert(ctx, tx, record)
	})
	if err != nil {
		log.Infow("[Purchase] rejected", "user_id", userID, "target", target.String(), "error", err.Error())
		return nil, err
	}

	log.Infow("[Purchase] completed", "user_id", userID, "target", target.String(), "price", record.PricePaid, "purchase_id", record.ID)
	c.Notify(ctx, record)
	return record, nil
}

// PrepareTx validates a gateway checkout inside tx: the unit must exist, be
// paid, be priced and not be owned yet. It returns the charge.
func (c *Coordinator) PrepareTx(ctx context.Context, tx *repository.Repositories, userID uint, target catalog.Target) (int64, error) {
	_, price, err := c.prepare(ctx, tx, userID, target)
	return price, err
}

func (c *Coordinator) prepare(ctx context.Context, tx *repository.Repositories, userID uint, target catalog.Target) (*catalog.Unit, int64, error) {
	unit, err := catalog.Resolve(ctx, tx.Content, target)
	if err != nil {
		return nil, 0, err
	}
	if unit.IsFree() {
		return nil, 0, fmt.Errorf("%w: %s", ErrFreeContent, target)
	}
	price, err := c.price(unit)
	if err != nil {
		return nil, 0, err
	}
	records, err := tx.Purchase.ListByUserAndContent(ctx, userID, target.ContentID)
	if err != nil {
		return nil, 0, err
	}
	if entitlements.Owns(records, unit) {
		return nil, 0, fmt.Errorf("%w: %s", ErrAlreadyOwned, target)
	}
	return unit, price, nil
}

// GrantResult reports what GrantTx did.
type GrantResult struct {
	Record   *models.PurchaseRecord
	Refunded bool
	// Replayed is set when a record for the external reference already existed.
	Replayed bool
}

// GrantTx writes the purchase record for a payment the gateway has already
// collected, so no wallet debit happens. It is idempotent on externalRef.
// When the unit cannot be granted any more (owned in the meantime, removed or
// made free) the paid amount is credited to the primary pool instead.
func (c *Coordinator) GrantTx(ctx context.Context, tx *repository.Repositories, userID uint, target catalog.Target, paid int64, externalRef string) (*GrantResult, error) {
	existing, err := tx.Purchase.GetByExternalRef(ctx, externalRef)
	if err == nil {
		return &GrantResult{Record: existing, Replayed: true}, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}
	if _, err := c.wallet.LockTx(ctx, tx, userID); err != nil {
		return nil, err
	}

	unit, _, err := c.prepare(ctx, tx, userID, target)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyOwned), errors.Is(err, ErrFreeContent),
		errors.Is(err, catalog.ErrNotFound), errors.Is(err, pricing.ErrInvalidPricing):
		log.Warnw("[Purchase] gateway grant not possible, refunding", "user_id", userID, "target", target.String(), "external_ref", externalRef, "reason", err.Error())
		_, err := c.wallet.CreditTx(ctx, tx, userID, wallet.Entry{
			Amount:      paid,
			Kind:        models.WalletTxRefund,
			Description: fmt.Sprintf("Refund for %s", target),
			Reference:   externalRef,
		})
		if err != nil {
			return nil, err
		}
		return &GrantResult{Refunded: true}, nil
	default:
		return nil, err
	}

	ref := externalRef
	record := c.newRecord(userID, unit, paid, models.PaymentMethodGateway, &ref)
	if err := c.insert(ctx, tx, record); err != nil {
		return nil, err
	}
	return &GrantResult{Record: record}, nil
}

// Library lists everything the user has bought.
func (c *Coordinator) Library(ctx context.Context, userID uint) ([]models.PurchaseRecord, error) {
	return c.repos.Purchase.ListByUser(ctx, userID)
}

// Notify publishes purchase.completed for a committed record.
func (c *Coordinator) Notify(ctx context.Context, record *models.PurchaseRecord) {
	evt := events.PurchaseCompleted{
		UserID:        record.UserID,
		PurchaseID:    record.ID,
		TargetKind:    string(record.TargetKind),
		ContentID:     record.ContentID,
		UnitID:        record.UnitID,
		PricePaid:     record.PricePaid,
		Currency:      record.Currency,
		PaymentMethod: record.PaymentMethod,
		Timestamp:     record.PurchaseDate,
	}
	if err := c.events.Publish(ctx, events.RoutingPurchaseCompleted, evt); err != nil {
		log.Warnf("[Purchase] could not publish event for purchase %d: %v", record.ID, err)
	}
}

func (c *Coordinator) price(unit *catalog.Unit) (int64, error) {
	price, err := c.pricing.PriceOf(unit)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: %s has no price", pricing.ErrInvalidPricing, unit.Target)
	}
	return price, nil
}

func (c *Coordinator) newRecord(userID uint, unit *catalog.Unit, price int64, method string, externalRef *string) *models.PurchaseRecord {
	record := &models.PurchaseRecord{
		UserID:        userID,
		TargetKind:    unit.Target.Kind,
		ContentID:     unit.Target.ContentID,
		UnitID:        unit.Target.UnitID,
		PricePaid:     price,
		Currency:      c.wallet.Currency(),
		PaymentMethod: method,
		ExternalRef:   externalRef,
		Status:        models.PurchaseStatusCompleted,
		PurchaseDate:  c.now(),
	}
	if unit.Target.Kind.IsBundle() {
		record.SnapshotIDs = unit.EpisodeIDs()
	}
	return record
}

func (c *Coordinator) insert(ctx context.Context, tx *repository.Repositories, record *models.PurchaseRecord) error {
	if err := tx.Purchase.Create(ctx, record); err != nil {
		if repository.IsDuplicate(err) {
			return fmt.Errorf("%w: %s:%s/%s", ErrAlreadyOwned, record.TargetKind, record.ContentID, record.UnitID)
		}
		return err
	}
	return nil
}

func (c *Coordinator) acquire(ctx context.Context, userID uint, target catalog.Target) (func(), error) {
	if c.guard == nil {
		return func() {}, nil
	}
	release, err := c.guard.Acquire(ctx, fmt.Sprintf("purchase:%d:%s", userID, target), c.lockTTL)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, cache.ErrLocked) {
		return nil, ErrPurchaseInProgress
	}
	// the row lock still serializes; only the fast path is lost
	log.Warnf("[Purchase] in-flight guard unavailable: %v", err)
	return func() {}, nil
}

func describe(unit *catalog.Unit) string {
	switch unit.Target.Kind {
	case models.TargetSeries:
		return fmt.Sprintf("Series %q", unit.Content.Title)
	case models.TargetSeason:
		return fmt.Sprintf("%s, season %d", unit.Content.Title, unit.Season.Number)
	case models.TargetEpisode:
		return fmt.Sprintf("%s, S%02dE%02d", unit.Content.Title, unit.Season.Number, unit.Episode.Number)
	default:
		return fmt.Sprintf("Movie %q", unit.Content.Title)
	}
}
