// Package events publishes domain events for the notification collaborator.
package events

import (
	"context"
	"time"
)

const (
	RoutingPurchaseCompleted = "purchase.completed"
	RoutingPaymentSettled    = "payment.settled"
)

// PurchaseCompleted is emitted after a purchase record has been committed.
type PurchaseCompleted struct {
	UserID        uint      `json:"user_id"`
	PurchaseID    uint      `json:"purchase_id"`
	TargetKind    string    `json:"target_kind"`
	ContentID     string    `json:"content_id"`
	UnitID        string    `json:"unit_id,omitempty"`
	PricePaid     int64     `json:"price_paid"`
	Currency      string    `json:"currency"`
	PaymentMethod string    `json:"payment_method"`
	Timestamp     time.Time `json:"timestamp"`
}

// PaymentSettled is emitted once per pending payment when it reaches a
// terminal status.
type PaymentSettled struct {
	UserID      uint      `json:"user_id"`
	ExternalRef string    `json:"external_ref"`
	Purpose     string    `json:"purpose"`
	Status      string    `json:"status"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher is implemented by the AMQP producer and the no-op fallback.
// Publishing is best effort: callers log failures and carry on because the
// ledger state is already committed.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	Close()
}
