package billing

import (
	"github.com/ManuelReschke/ReelPass/app/models"
)

// InitiateRequest is sent to the gateway to open a checkout.
type InitiateRequest struct {
	ExternalRef string            `json:"reference"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// InitiateResult is the gateway's answer to a checkout request.
type InitiateResult struct {
	ExternalRef  string `json:"reference"`
	ProviderTxID string `json:"transaction_id"`
	RedirectLink string `json:"redirect_url"`
}

type VerifyStatus string

const (
	VerifySuccess VerifyStatus = "success"
	VerifyFailed  VerifyStatus = "failed"
	VerifyPending VerifyStatus = "pending"
)

// Verification is the gateway's view of a transaction.
type Verification struct {
	ExternalRef  string       `json:"reference"`
	ProviderTxID string       `json:"transaction_id"`
	Status       VerifyStatus `json:"status"`
}

// WebhookPayload is the body of an asynchronous confirmation. Signature is
// the hex HMAC-SHA256 of the canonical string, see SignConfirmation.
type WebhookPayload struct {
	EventID      string `json:"event_id"`
	ExternalRef  string `json:"external_ref" validate:"required,max=191"`
	ProviderTxID string `json:"transaction_id" validate:"max=191"`
	Success      bool   `json:"success"`
	Signature    string `json:"signature" validate:"required"`
}

// Confirmation is what both the webhook and the callback reduce to.
type Confirmation struct {
	ExternalRef  string
	ProviderTxID string
	Success      bool
}

// Checkout is returned to the client after initiation.
type Checkout struct {
	ExternalRef  string                `json:"external_ref"`
	RedirectLink string                `json:"redirect_link"`
	Amount       int64                 `json:"amount"`
	Currency     string                `json:"currency"`
	Purpose      models.PaymentPurpose `json:"purpose"`
}

// SettleResult describes the outcome of one settlement attempt.
type SettleResult struct {
	ExternalRef string               `json:"external_ref"`
	Status      models.PaymentStatus `json:"status"`
	// Duplicate is set when nothing changed because the payment was unknown
	// or already terminal.
	Duplicate bool                   `json:"duplicate"`
	Refunded  bool                   `json:"refunded,omitempty"`
	Purchase  *models.PurchaseRecord `json:"purchase,omitempty"`
}
