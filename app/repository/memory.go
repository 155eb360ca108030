package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ManuelReschke/ReelPass/app/models"
	"gorm.io/gorm"
)

// memoryData is the complete state of the in-memory store. Transactions work
// on a clone and swap it in on commit, so a failed unit of work leaves no
// trace.
type memoryData struct {
	nextID        uint
	users         map[uint]models.User
	contents      map[string]models.Content
	seasons       map[string]models.Season
	episodes      map[string]models.Episode
	wallets       map[uint]models.WalletAccount
	walletTxs     []models.WalletTransaction
	purchases     []models.PurchaseRecord
	payments      map[string]models.PendingPayment
	webhookEvents []models.PaymentWebhookEvent
}

func newMemoryData() *memoryData {
	return &memoryData{
		users:    make(map[uint]models.User),
		contents: make(map[string]models.Content),
		seasons:  make(map[string]models.Season),
		episodes: make(map[string]models.Episode),
		wallets:  make(map[uint]models.WalletAccount),
		payments: make(map[string]models.PendingPayment),
	}
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		nextID:        d.nextID,
		users:         make(map[uint]models.User, len(d.users)),
		contents:      make(map[string]models.Content, len(d.contents)),
		seasons:       make(map[string]models.Season, len(d.seasons)),
		episodes:      make(map[string]models.Episode, len(d.episodes)),
		wallets:       make(map[uint]models.WalletAccount, len(d.wallets)),
		walletTxs:     append([]models.WalletTransaction(nil), d.walletTxs...),
		purchases:     make([]models.PurchaseRecord, len(d.purchases)),
		payments:      make(map[string]models.PendingPayment, len(d.payments)),
		webhookEvents: append([]models.PaymentWebhookEvent(nil), d.webhookEvents...),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.contents {
		c.contents[k] = v
	}
	for k, v := range d.seasons {
		c.seasons[k] = v
	}
	for k, v := range d.episodes {
		c.episodes[k] = v
	}
	for k, v := range d.wallets {
		c.wallets[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	for i, p := range d.purchases {
		p.SnapshotIDs = append([]string(nil), p.SnapshotIDs...)
		c.purchases[i] = p
	}
	return c
}

func (d *memoryData) id() uint {
	d.nextID++
	return d.nextID
}

type memoryStore struct {
	mu   sync.Mutex
	data *memoryData
}

// memoryHandle is what the repositories hold. Outside a transaction data is
// nil and every call takes the store lock; inside, the lock is already held
// and data points at the working copy.
type memoryHandle struct {
	store *memoryStore
	data  *memoryData
}

func (h memoryHandle) with(fn func(d *memoryData) error) error {
	if h.data != nil {
		return fn(h.data)
	}
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return fn(h.store.data)
}

// NewMemoryRepositories returns repositories backed by process memory. All
// transactions are serialized, which is stricter than the per-row locking of
// the SQL backends. Used by tests and DB_DRIVER=memory. Code running inside a
// transaction must only use the repositories it was handed; the root
// repositories block until the transaction ends.
func NewMemoryRepositories() *Repositories {
	store := &memoryStore{data: newMemoryData()}
	return newMemoryRepositories(memoryHandle{store: store})
}

func newMemoryRepositories(h memoryHandle) *Repositories {
	repos := &Repositories{
		User:         &memoryUserRepository{h},
		Content:      &memoryContentRepository{h},
		Wallet:       &memoryWalletRepository{h},
		Purchase:     &memoryPurchaseRepository{h},
		Payment:      &memoryPaymentRepository{h},
		WebhookEvent: &memoryWebhookEventRepository{h},
	}
	if h.data != nil {
		repos.tx = func(_ context.Context, fn func(tx *Repositories) error) error {
			return fn(repos)
		}
		return repos
	}
	repos.tx = func(ctx context.Context, fn func(tx *Repositories) error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.store.mu.Lock()
		defer h.store.mu.Unlock()
		work := h.store.data.clone()
		if err := fn(newMemoryRepositories(memoryHandle{store: h.store, data: work})); err != nil {
			return err
		}
		h.store.data = work
		return nil
	}
	return repos
}

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now()
	}
}

type memoryUserRepository struct{ h memoryHandle }

func (r *memoryUserRepository) Create(_ context.Context, user *models.User) error {
	return r.h.with(func(d *memoryData) error {
		for _, u := range d.users {
			if u.Email == user.Email {
				return gorm.ErrDuplicatedKey
			}
		}
		if user.ID == 0 {
			user.ID = d.id()
		}
		stamp(&user.CreatedAt)
		user.UpdatedAt = user.CreatedAt
		d.users[user.ID] = *user
		return nil
	})
}

func (r *memoryUserRepository) GetByID(_ context.Context, id uint) (*models.User, error) {
	var out *models.User
	err := r.h.with(func(d *memoryData) error {
		u, ok := d.users[id]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *memoryUserRepository) GetByAPIKeyHash(_ context.Context, hash string) (*models.User, error) {
	var out *models.User
	err := r.h.with(func(d *memoryData) error {
		for _, u := range d.users {
			if hash != "" && u.APIKeyHash == hash {
				u := u
				out = &u
				return nil
			}
		}
		return gorm.ErrRecordNotFound
	})
	return out, err
}

func (r *memoryUserRepository) UpdateAPIKey(_ context.Context, user *models.User) error {
	return r.h.with(func(d *memoryData) error {
		u, ok := d.users[user.ID]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		u.APIKeyHash = user.APIKeyHash
		u.APIKeyPrefix = user.APIKeyPrefix
		u.APIKeyCreatedAt = user.APIKeyCreatedAt
		u.UpdatedAt = time.Now()
		d.users[user.ID] = u
		return nil
	})
}

type memoryContentRepository struct{ h memoryHandle }

func (r *memoryContentRepository) CreateContent(_ context.Context, content *models.Content) error {
	return r.h.with(func(d *memoryData) error {
		if _, ok := d.contents[content.ID]; ok {
			return gorm.ErrDuplicatedKey
		}
		stamp(&content.CreatedAt)
		c := *content
		c.Seasons = nil
		d.contents[c.ID] = c
		return nil
	})
}

func (r *memoryContentRepository) CreateSeason(_ context.Context, season *models.Season) error {
	return r.h.with(func(d *memoryData) error {
		if _, ok := d.seasons[season.ID]; ok {
			return gorm.ErrDuplicatedKey
		}
		stamp(&season.CreatedAt)
		s := *season
		s.Episodes = nil
		d.seasons[s.ID] = s
		return nil
	})
}

func (r *memoryContentRepository) CreateEpisode(_ context.Context, episode *models.Episode) error {
	return r.h.with(func(d *memoryData) error {
		if _, ok := d.episodes[episode.ID]; ok {
			return gorm.ErrDuplicatedKey
		}
		stamp(&episode.CreatedAt)
		d.episodes[episode.ID] = *episode
		return nil
	})
}

func (r *memoryContentRepository) GetContent(_ context.Context, id string) (*models.Content, error) {
	var out *models.Content
	err := r.h.with(func(d *memoryData) error {
		c, ok := d.contents[id]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		c.Seasons = nil
		for _, s := range d.seasons {
			if s.ContentID != id {
				continue
			}
			s.Episodes = nil
			for _, e := range d.episodes {
				if e.SeasonID == s.ID {
					s.Episodes = append(s.Episodes, e)
				}
			}
			c.Seasons = append(c.Seasons, s)
		}
		c.SortStructure()
		out = &c
		return nil
	})
	return out, err
}

type memoryWalletRepository struct{ h memoryHandle }

func (r *memoryWalletRepository) Create(_ context.Context, account *models.WalletAccount) (bool, error) {
	created := false
	err := r.h.with(func(d *memoryData) error {
		if _, ok := d.wallets[account.UserID]; ok {
			return nil
		}
		account.ID = d.id()
		stamp(&account.CreatedAt)
		account.UpdatedAt = account.CreatedAt
		d.wallets[account.UserID] = *account
		created = true
		return nil
	})
	return created, err
}

func (r *memoryWalletRepository) Get(_ context.Context, userID uint) (*models.WalletAccount, error) {
	var out *models.WalletAccount
	err := r.h.with(func(d *memoryData) error {
		w, ok := d.wallets[userID]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

func (r *memoryWalletRepository) GetForUpdate(ctx context.Context, userID uint) (*models.WalletAccount, error) {
	return r.Get(ctx, userID)
}

func (r *memoryWalletRepository) UpdateBalances(_ context.Context, account *models.WalletAccount) error {
	return r.h.with(func(d *memoryData) error {
		w, ok := d.wallets[account.UserID]
		if !ok || w.ID != account.ID {
			return ErrConflict
		}
		w.PrimaryBalance = account.PrimaryBalance
		w.BonusBalance = account.BonusBalance
		w.UpdatedAt = time.Now()
		d.wallets[account.UserID] = w
		return nil
	})
}

func (r *memoryWalletRepository) AppendTransaction(_ context.Context, walletTx *models.WalletTransaction) error {
	return r.h.with(func(d *memoryData) error {
		walletTx.ID = d.id()
		stamp(&walletTx.CreatedAt)
		d.walletTxs = append(d.walletTxs, *walletTx)
		return nil
	})
}

func (r *memoryWalletRepository) ListTransactions(_ context.Context, userID uint, limit int) ([]models.WalletTransaction, error) {
	var out []models.WalletTransaction
	err := r.h.with(func(d *memoryData) error {
		for i := len(d.walletTxs) - 1; i >= 0; i-- {
			if d.walletTxs[i].UserID != userID {
				continue
			}
			out = append(out, d.walletTxs[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *memoryWalletRepository) SumDeltas(_ context.Context, userID uint) (int64, error) {
	var sum int64
	err := r.h.with(func(d *memoryData) error {
		for _, tx := range d.walletTxs {
			if tx.UserID == userID {
				sum += tx.Delta
			}
		}
		return nil
	})
	return sum, err
}

type memoryPurchaseRepository struct{ h memoryHandle }

func (r *memoryPurchaseRepository) Create(_ context.Context, record *models.PurchaseRecord) error {
	return r.h.with(func(d *memoryData) error {
		for _, p := range d.purchases {
			if p.UserID == record.UserID && p.TargetKind == record.TargetKind &&
				p.ContentID == record.ContentID && p.UnitID == record.UnitID {
				return gorm.ErrDuplicatedKey
			}
			if record.ExternalRef != nil && p.ExternalRef != nil && *p.ExternalRef == *record.ExternalRef {
				return gorm.ErrDuplicatedKey
			}
		}
		record.ID = d.id()
		stamp(&record.CreatedAt)
		stored := *record
		stored.SnapshotIDs = append([]string(nil), record.SnapshotIDs...)
		d.purchases = append(d.purchases, stored)
		return nil
	})
}

func (r *memoryPurchaseRepository) ListByUserAndContent(_ context.Context, userID uint, contentID string) ([]models.PurchaseRecord, error) {
	var out []models.PurchaseRecord
	err := r.h.with(func(d *memoryData) error {
		for _, p := range d.purchases {
			if p.UserID == userID && p.ContentID == contentID && p.IsCompleted() {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (r *memoryPurchaseRepository) ListByUser(_ context.Context, userID uint) ([]models.PurchaseRecord, error) {
	var out []models.PurchaseRecord
	err := r.h.with(func(d *memoryData) error {
		for _, p := range d.purchases {
			if p.UserID == userID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].PurchaseDate.After(out[j].PurchaseDate) })
	return out, err
}

func (r *memoryPurchaseRepository) GetByExternalRef(_ context.Context, externalRef string) (*models.PurchaseRecord, error) {
	var out *models.PurchaseRecord
	err := r.h.with(func(d *memoryData) error {
		for _, p := range d.purchases {
			if p.ExternalRef != nil && *p.ExternalRef == externalRef {
				p := p
				out = &p
				return nil
			}
		}
		return gorm.ErrRecordNotFound
	})
	return out, err
}

type memoryPaymentRepository struct{ h memoryHandle }

func (r *memoryPaymentRepository) Create(_ context.Context, payment *models.PendingPayment) error {
	return r.h.with(func(d *memoryData) error {
		if _, ok := d.payments[payment.ExternalRef]; ok {
			return gorm.ErrDuplicatedKey
		}
		payment.ID = d.id()
		stamp(&payment.CreatedAt)
		payment.UpdatedAt = payment.CreatedAt
		d.payments[payment.ExternalRef] = *payment
		return nil
	})
}

func (r *memoryPaymentRepository) GetByExternalRef(_ context.Context, externalRef string) (*models.PendingPayment, error) {
	var out *models.PendingPayment
	err := r.h.with(func(d *memoryData) error {
		p, ok := d.payments[externalRef]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *memoryPaymentRepository) GetByExternalRefForUpdate(ctx context.Context, externalRef string) (*models.PendingPayment, error) {
	return r.GetByExternalRef(ctx, externalRef)
}

func (r *memoryPaymentRepository) Resolve(_ context.Context, payment *models.PendingPayment) error {
	return r.h.with(func(d *memoryData) error {
		p, ok := d.payments[payment.ExternalRef]
		if !ok || p.Status != models.PaymentPending {
			return ErrConflict
		}
		p.Status = payment.Status
		p.ProviderTxID = payment.ProviderTxID
		p.FailureReason = payment.FailureReason
		p.ResolvedAt = payment.ResolvedAt
		p.UpdatedAt = time.Now()
		d.payments[p.ExternalRef] = p
		return nil
	})
}

func (r *memoryPaymentRepository) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]models.PendingPayment, error) {
	var out []models.PendingPayment
	err := r.h.with(func(d *memoryData) error {
		for _, p := range d.payments {
			if p.Status == models.PaymentPending && p.CreatedAt.Before(createdBefore) {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

type memoryWebhookEventRepository struct{ h memoryHandle }

func (r *memoryWebhookEventRepository) CreateIfNotExists(_ context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	created := false
	var stored models.PaymentWebhookEvent
	err := r.h.with(func(d *memoryData) error {
		for _, e := range d.webhookEvents {
			if e.Provider == event.Provider && e.ProviderEventID == event.ProviderEventID {
				stored = e
				return nil
			}
		}
		event.ID = d.id()
		stamp(&event.CreatedAt)
		d.webhookEvents = append(d.webhookEvents, *event)
		stored = *event
		created = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *memoryWebhookEventRepository) ReplaceDelivery(_ context.Context, id uint, externalRef, payload string, signatureValid bool) error {
	return r.h.with(func(d *memoryData) error {
		for i := range d.webhookEvents {
			if d.webhookEvents[i].ID == id {
				e := &d.webhookEvents[i]
				e.ExternalRef = externalRef
				e.PayloadJSON = payload
				e.SignatureValid = signatureValid
				e.ProcessedAt = nil
				e.ProcessingError = ""
				return nil
			}
		}
		return gorm.ErrRecordNotFound
	})
}

func (r *memoryWebhookEventRepository) MarkProcessed(_ context.Context, id uint, processingError string) error {
	return r.h.with(func(d *memoryData) error {
		for i := range d.webhookEvents {
			if d.webhookEvents[i].ID == id {
				now := time.Now()
				d.webhookEvents[i].ProcessedAt = &now
				d.webhookEvents[i].ProcessingError = processingError
				return nil
			}
		}
		return gorm.ErrRecordNotFound
	})
}
