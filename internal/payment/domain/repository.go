package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	FindByProviderRef(ctx context.Context, db *gorm.DB, providerRef string) (*LedgerEntry, error)
	FindPaidByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*LedgerEntry, error)
	// TransitionFromPending moves a PENDING entry to a terminal status and
	// reports whether this call did it.
	TransitionFromPending(ctx context.Context, db *gorm.DB, providerRef string, to Status, paymentMethod string, paidAt *time.Time, now time.Time) (bool, error)
	InsertDelivery(ctx context.Context, db *gorm.DB, delivery *WebhookDelivery) error
	ListDeliveries(ctx context.Context, db *gorm.DB, providerRef string) ([]WebhookDelivery, error)
}

// NotificationParser turns one provider's callback body into a Notification.
type NotificationParser interface {
	Provider() string
	Parse(payload []byte) (*Notification, error)
}

type Service interface {
	Initiate(ctx context.Context, req InitiateRequest) (*LedgerEntry, error)
	ApplyOutcome(ctx context.Context, outcome Outcome) (Transition, error)
	GetByProviderRef(ctx context.Context, providerRef string) (*LedgerEntry, error)
	ListDeliveries(ctx context.Context, providerRef string) ([]WebhookDelivery, error)
}

type DeliveryResult struct {
	Provider      string
	ProviderRef   string
	Outcome       string
	Status        Status
	MatchedSecret string
}

type WebhookService interface {
	Ingest(ctx context.Context, provider string, headers http.Header, payload []byte) (DeliveryResult, error)
}
