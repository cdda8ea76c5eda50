package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusFailed  Status = "FAILED"
)

// Terminal statuses never change again.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}

type LedgerEntry struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	BookingID     snowflake.ID `json:"bookingId" gorm:"not null;index"`
	Provider      string       `json:"provider" gorm:"type:varchar(64);not null"`
	ProviderRef   string       `json:"providerRef" gorm:"type:varchar(128);not null;uniqueIndex"`
	Amount        int64        `json:"amount" gorm:"not null"`
	Currency      string       `json:"currency" gorm:"type:varchar(3);not null"`
	PaymentMethod string       `json:"paymentMethod,omitempty" gorm:"type:varchar(64)"`
	Status        Status       `json:"status" gorm:"type:varchar(16);not null"`
	PaidAt        *time.Time   `json:"paidAt,omitempty"`
	CreatedAt     time.Time    `json:"createdAt" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updatedAt" gorm:"not null"`
}

func (LedgerEntry) TableName() string { return "payment_ledger" }

// WebhookDelivery is an audit row for every authenticated webhook call,
// including retries and ignored statuses.
type WebhookDelivery struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider       string         `json:"provider" gorm:"type:varchar(64);not null"`
	ProviderRef    string         `json:"providerRef" gorm:"type:varchar(128);not null;index"`
	EventID        string         `json:"eventId,omitempty" gorm:"type:varchar(128)"`
	ReportedStatus string         `json:"reportedStatus" gorm:"type:varchar(64);not null"`
	MatchedSecret  string         `json:"matchedSecret" gorm:"type:varchar(16);not null"`
	Outcome        string         `json:"outcome" gorm:"type:varchar(32);not null"`
	Payload        datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt     time.Time      `json:"receivedAt" gorm:"not null"`
}

func (WebhookDelivery) TableName() string { return "payment_webhook_deliveries" }

const (
	DeliveryApplied        = "applied"
	DeliveryAlreadyFinal   = "already_final"
	DeliveryIgnored        = "ignored"
	DeliveryUnknownRef     = "unknown_ref"
	DeliveryAmountMismatch = "amount_mismatch"
)

// Notification is a provider callback normalized by a parser.
type Notification struct {
	Provider       string
	ProviderRef    string
	EventID        string
	ReportedStatus string
	Amount         *int64
	Currency       string
	PaymentMethod  string
}

// Outcome is a terminal result to apply to a PENDING ledger entry.
type Outcome struct {
	ProviderRef   string
	Status        Status
	Amount        *int64
	Currency      string
	PaymentMethod string
}

type Transition struct {
	Entry *LedgerEntry
	// Applied is true only for the call that moved the entry out of PENDING.
	Applied bool
	// AlreadyFinal marks a repeat delivery against a terminal entry.
	AlreadyFinal bool
}

type InitiateRequest struct {
	BookingID     string `json:"-"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
}
