// Package wallet implements the per-user two-pool balance and its append-only
// transaction log.
//
// Every mutation reads the account row under a write lock, computes the new
// balances and appends exactly one transaction in the same unit of work, so
// concurrent credits and debits on one account never lose updates. Debits
// always consume the bonus pool before the primary pool.
package wallet

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/app/repository"
)

// Entry describes one credit or debit.
type Entry struct {
	Amount      int64
	Kind        string
	Description string
	Reference   string
	// ToBonus credits the bonus pool instead of the primary pool. Ignored on debit.
	ToBonus bool
}

// Balance is the read model returned to clients.
type Balance struct {
	Primary  int64  `json:"primary"`
	Bonus    int64  `json:"bonus"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type Service struct {
	repos        *repository.Repositories
	currency     string
	welcomeBonus int64
}

func NewService(repos *repository.Repositories, currency string, welcomeBonus int64) *Service {
	return &Service{repos: repos, currency: currency, welcomeBonus: welcomeBonus}
}

// Currency returns the ledger currency.
func (s *Service) Currency() string {
	return s.currency
}

// Open creates the wallet for a user with zero balances and credits the
// welcome bonus into the bonus pool. Calling it again is a no-op.
func (s *Service) Open(ctx context.Context, userID uint) (*models.WalletAccount, error) {
	var account *models.WalletAccount
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		account, err = s.lock(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Credit adds funds in its own transaction.
func (s *Service) Credit(ctx context.Context, userID uint, e Entry) (*models.WalletAccount, error) {
	var account *models.WalletAccount
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		account, err = s.CreditTx(ctx, tx, userID, e)
		return err
	})
	return account, err
}

// Debit removes funds in its own transaction.
func (s *Service) Debit(ctx context.Context, userID uint, e Entry) (*models.WalletAccount, error) {
	var account *models.WalletAccount
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		account, err = s.DebitTx(ctx, tx, userID, e)
		return err
	})
	return account, err
}

// CreditTx adds funds using repositories bound to the caller's transaction.
func (s *Service) CreditTx(ctx context.Context, tx *repository.Repositories, userID uint, e Entry) (*models.WalletAccount, error) {
	if e.Amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, e.Amount)
	}
	account, err := s.lock(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	line := &models.WalletTransaction{
		UserID:      userID,
		Delta:       e.Amount,
		Kind:        e.Kind,
		Description: e.Description,
		Reference:   e.Reference,
	}
	if e.ToBonus {
		account.BonusBalance += e.Amount
		line.BonusDelta = e.Amount
	} else {
		account.PrimaryBalance += e.Amount
		line.PrimaryDelta = e.Amount
	}
	if err := s.apply(ctx, tx, account, line); err != nil {
		return nil, err
	}
	return account, nil
}

// DebitTx removes funds bonus-first using repositories bound to the caller's
// transaction. On error nothing has been written.
func (s *Service) DebitTx(ctx context.Context, tx *repository.Repositories, userID uint, e Entry) (*models.WalletAccount, error) {
	if e.Amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, e.Amount)
	}
	account, err := s.lock(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	fromBonus, fromPrimary, err := splitDebit(account.BonusBalance, account.PrimaryBalance, e.Amount)
	if err != nil {
		return nil, err
	}
	account.BonusBalance -= fromBonus
	account.PrimaryBalance -= fromPrimary

	line := &models.WalletTransaction{
		UserID:       userID,
		Delta:        -e.Amount,
		PrimaryDelta: -fromPrimary,
		BonusDelta:   -fromBonus,
		Kind:         e.Kind,
		Description:  e.Description,
		Reference:    e.Reference,
	}
	if err := s.apply(ctx, tx, account, line); err != nil {
		return nil, err
	}
	return account, nil
}

// LockTx locks the user's account for the rest of tx, opening it if needed.
// Purchases call it before their ownership check so that two purchases by
// the same user never interleave.
func (s *Service) LockTx(ctx context.Context, tx *repository.Repositories, userID uint) (*models.WalletAccount, error) {
	return s.lock(ctx, tx, userID)
}

// splitDebit decides how much of amount comes from each pool.
func splitDebit(bonus, primary, amount int64) (fromBonus, fromPrimary int64, err error) {
	if available := bonus + primary; available < amount {
		return 0, 0, &InsufficientFundsError{Need: amount, Have: available}
	}
	fromBonus = min(bonus, amount)
	return fromBonus, amount - fromBonus, nil
}

func (s *Service) apply(ctx context.Context, tx *repository.Repositories, account *models.WalletAccount, line *models.WalletTransaction) error {
	if account.PrimaryBalance < 0 || account.BonusBalance < 0 {
		return fmt.Errorf("wallet %d would go negative", account.UserID)
	}
	if err := tx.Wallet.UpdateBalances(ctx, account); err != nil {
		return fmt.Errorf("update wallet %d: %w", account.UserID, err)
	}
	if err := tx.Wallet.AppendTransaction(ctx, line); err != nil {
		return fmt.Errorf("append wallet transaction: %w", err)
	}
	log.Infow("[Wallet] balance changed",
		"user_id", account.UserID, "kind", line.Kind, "delta", line.Delta,
		"primary", account.PrimaryBalance, "bonus", account.BonusBalance)
	return nil
}

// lock returns the account row locked for the rest of the transaction,
// opening the wallet first if the user has none yet. The row is inserted
// before any locking read so that a first-ever FOR UPDATE never runs
// against a missing key (a gap lock on MySQL).
func (s *Service) lock(ctx context.Context, tx *repository.Repositories, userID uint) (*models.WalletAccount, error) {
	created := false
	if _, err := tx.Wallet.Get(ctx, userID); err != nil {
		if !repository.IsNotFound(err) {
			return nil, err
		}
		created, err = tx.Wallet.Create(ctx, &models.WalletAccount{UserID: userID, Currency: s.currency})
		if err != nil {
			return nil, fmt.Errorf("open wallet for user %d: %w", userID, err)
		}
	}
	account, err := tx.Wallet.GetForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !created || s.welcomeBonus <= 0 {
		return account, nil
	}

	log.Infof("[Wallet] Opened wallet for user %d with welcome bonus %d", userID, s.welcomeBonus)
	account.BonusBalance += s.welcomeBonus
	err = s.apply(ctx, tx, account, &models.WalletTransaction{
		UserID:      userID,
		Delta:       s.welcomeBonus,
		BonusDelta:  s.welcomeBonus,
		Kind:        models.WalletTxWelcomeBonus,
		Description: "Welcome bonus",
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Balance returns the current pools. A user seen for the first time gets
// the wallet opened, welcome bonus included.
func (s *Service) Balance(ctx context.Context, userID uint) (Balance, error) {
	account, err := s.account(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		Primary:  account.PrimaryBalance,
		Bonus:    account.BonusBalance,
		Total:    account.Total(),
		Currency: account.Currency,
	}, nil
}

// Transactions lists the newest transactions first.
func (s *Service) Transactions(ctx context.Context, userID uint, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if _, err := s.account(ctx, userID); err != nil {
		return nil, err
	}
	return s.repos.Wallet.ListTransactions(ctx, userID, limit)
}

func (s *Service) account(ctx context.Context, userID uint) (*models.WalletAccount, error) {
	account, err := s.repos.Wallet.Get(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}
	return s.Open(ctx, userID)
}

// Reconcile checks that the transaction deltas sum to the stored balance.
func (s *Service) Reconcile(ctx context.Context, userID uint) error {
	return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		account, err := tx.Wallet.GetForUpdate(ctx, userID)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil
			}
			return err
		}
		sum, err := tx.Wallet.SumDeltas(ctx, userID)
		if err != nil {
			return err
		}
		if sum != account.Total() {
			log.Errorw("[Wallet] ledger mismatch", "user_id", userID, "sum", sum, "total", account.Total())
			return fmt.Errorf("%w: user %d deltas %d, balance %d", ErrLedgerMismatch, userID, sum, account.Total())
		}
		return nil
	})
}
