package wallet

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLedgerMismatch    = errors.New("wallet ledger does not reconcile")
)

// InsufficientFundsError reports how much was needed and how much was
// available. errors.Is(err, ErrInsufficientFunds) matches it.
type InsufficientFundsError struct {
	Need int64
	Have int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: need %d, have %d", e.Need, e.Have)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
