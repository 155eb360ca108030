package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/ReelPass/app/models"
	"gorm.io/gorm"
)

// ErrConflict is returned when a conditional update matched no rows because
// another writer got there first.
var ErrConflict = errors.New("repository: conditional update matched no rows")

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.User, error)
	UpdateAPIKey(ctx context.Context, user *models.User) error
}

// ContentRepository reads the catalog structure. The create methods exist for
// seeding and tests; authoring is owned by the catalog service.
type ContentRepository interface {
	CreateContent(ctx context.Context, content *models.Content) error
	CreateSeason(ctx context.Context, season *models.Season) error
	CreateEpisode(ctx context.Context, episode *models.Episode) error
	GetContent(ctx context.Context, id string) (*models.Content, error)
}

// WalletRepository persists wallet accounts and their transaction log.
type WalletRepository interface {
	// Create inserts the account unless one already exists for the user and
	// reports whether a row was inserted.
	Create(ctx context.Context, account *models.WalletAccount) (bool, error)
	Get(ctx context.Context, userID uint) (*models.WalletAccount, error)
	// GetForUpdate locks the account row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, userID uint) (*models.WalletAccount, error)
	UpdateBalances(ctx context.Context, account *models.WalletAccount) error
	AppendTransaction(ctx context.Context, tx *models.WalletTransaction) error
	ListTransactions(ctx context.Context, userID uint, limit int) ([]models.WalletTransaction, error)
	SumDeltas(ctx context.Context, userID uint) (int64, error)
}

// PurchaseRepository persists entitlement grants.
type PurchaseRepository interface {
	// Create returns gorm.ErrDuplicatedKey when the (user, target) or external
	// reference uniqueness would be violated.
	Create(ctx context.Context, record *models.PurchaseRecord) error
	ListByUserAndContent(ctx context.Context, userID uint, contentID string) ([]models.PurchaseRecord, error)
	ListByUser(ctx context.Context, userID uint) ([]models.PurchaseRecord, error)
	GetByExternalRef(ctx context.Context, externalRef string) (*models.PurchaseRecord, error)
}

// PaymentRepository persists pending external payments.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.PendingPayment) error
	GetByExternalRef(ctx context.Context, externalRef string) (*models.PendingPayment, error)
	GetByExternalRefForUpdate(ctx context.Context, externalRef string) (*models.PendingPayment, error)
	// Resolve moves a pending payment to its terminal status. It returns
	// ErrConflict if the row is no longer pending.
	Resolve(ctx context.Context, payment *models.PendingPayment) error
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.PendingPayment, error)
}

// WebhookEventRepository records gateway deliveries idempotently.
type WebhookEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint, processingError string) error
	// ReplaceDelivery overwrites a stored delivery that could not be trusted
	// with a newer one under the same event id and clears its processed marker.
	ReplaceDelivery(ctx context.Context, id uint, externalRef, payload string, signatureValid bool) error
}

// TxFunc runs fn inside one unit of work.
type TxFunc func(ctx context.Context, fn func(tx *Repositories) error) error

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Content      ContentRepository
	Wallet       WalletRepository
	Purchase     PurchaseRepository
	Payment      PaymentRepository
	WebhookEvent WebhookEventRepository

	tx TxFunc
}

// Transaction runs fn with repositories bound to a single database
// transaction. A nil return commits, an error rolls everything back. Calling
// Transaction on repositories that are already transactional reuses the
// outer transaction.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.tx(ctx, fn)
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	repos := newGormRepositories(db)
	repos.tx = func(ctx context.Context, fn func(tx *Repositories) error) error {
		return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			inner := newGormRepositories(tx)
			inner.tx = func(_ context.Context, nested func(tx *Repositories) error) error {
				return nested(inner)
			}
			return fn(inner)
		})
	}
	return repos
}

func newGormRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Content:      NewContentRepository(db),
		Wallet:       NewWalletRepository(db),
		Purchase:     NewPurchaseRepository(db),
		Payment:      NewPaymentRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicate reports whether err is a unique constraint violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
