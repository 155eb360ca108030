package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/internal/pkg/usercontext"
	"github.com/ManuelReschke/ReelPass/internal/pkg/wallet"
)

// HandleGetWallet returns the caller's balance.
func (ctl *Controller) HandleGetWallet(c *fiber.Ctx) error {
	balance, err := ctl.Wallet.Balance(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(balance)
}

// HandleGetWalletTransactions returns the newest ledger lines first.
func (ctl *Controller) HandleGetWalletTransactions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	txs, err := ctl.Wallet.Transactions(c.UserContext(), usercontext.GetUserID(c), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"transactions": txs})
}

// HandleCreateTopUp starts a gateway payment that credits the primary pool.
func (ctl *Controller) HandleCreateTopUp(c *fiber.Ctx) error {
	var req TopUpRequest
	if err := ctl.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	checkout, err := ctl.Billing.InitiateTopUp(c.UserContext(), usercontext.GetUserID(c), req.Amount)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(checkout)
}

// HandleAdminWalletAdjustment applies a manual credit (positive amount) or
// debit (negative amount) to a user's wallet.
func (ctl *Controller) HandleAdminWalletAdjustment(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return badRequest(c, "Invalid user id")
	}
	var req AdjustmentRequest
	if err := ctl.bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if _, err := ctl.Users.GetByID(c.UserContext(), userID); err != nil {
		return respondError(c, err)
	}

	entry := wallet.Entry{
		Kind:        models.WalletTxAdjustment,
		Description: req.Description,
		Reference:   "admin:" + strconv.FormatUint(uint64(usercontext.GetUserID(c)), 10),
		ToBonus:     req.ToBonus,
	}
	var account *models.WalletAccount
	if req.Amount > 0 {
		entry.Amount = req.Amount
		account, err = ctl.Wallet.Credit(c.UserContext(), userID, entry)
	} else {
		entry.Amount = -req.Amount
		account, err = ctl.Wallet.Debit(c.UserContext(), userID, entry)
	}
	if err != nil {
		return respondError(c, err)
	}

	log.Infow("[Admin] wallet adjusted", "admin_id", usercontext.GetUserID(c), "user_id", userID, "amount", req.Amount)
	return c.JSON(wallet.Balance{
		Primary:  account.PrimaryBalance,
		Bonus:    account.BonusBalance,
		Total:    account.Total(),
		Currency: account.Currency,
	})
}

// HandleAdminWalletReconcile verifies that the ledger sums to the balance.
func (ctl *Controller) HandleAdminWalletReconcile(c *fiber.Ctx) error {
	userID, err := userIDParam(c)
	if err != nil {
		return badRequest(c, "Invalid user id")
	}
	if err := ctl.Wallet.Reconcile(c.UserContext(), userID); err != nil {
		if errors.Is(err, wallet.ErrLedgerMismatch) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"ok": false, "error": "ledger_mismatch", "message": err.Error()})
		}
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func userIDParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.ErrBadRequest
	}
	return uint(id), nil
}
