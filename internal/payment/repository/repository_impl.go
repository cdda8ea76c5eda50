package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/staybook/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const ledgerColumns = `id, booking_id, provider, provider_ref, amount, currency,
	payment_method, status, paid_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_ledger (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.BookingID,
		entry.Provider,
		entry.ProviderRef,
		entry.Amount,
		entry.Currency,
		entry.PaymentMethod,
		string(entry.Status),
		entry.PaidAt,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Error
}

func (r *repo) FindByProviderRef(ctx context.Context, db *gorm.DB, providerRef string) (*domain.LedgerEntry, error) {
	var item domain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+ledgerColumns+`
		 FROM payment_ledger
		 WHERE provider_ref = ?
		 LIMIT 1`,
		providerRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindPaidByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*domain.LedgerEntry, error) {
	var item domain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+ledgerColumns+`
		 FROM payment_ledger
		 WHERE booking_id = ? AND status = ?
		 LIMIT 1`,
		bookingID,
		string(domain.StatusPaid),
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// TransitionFromPending is the only statement that writes ledger status. The
// status guard in the WHERE clause makes concurrent deliveries race safely:
// exactly one of them sees a row affected.
func (r *repo) TransitionFromPending(ctx context.Context, db *gorm.DB, providerRef string, to domain.Status, paymentMethod string, paidAt *time.Time, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_ledger
		 SET status = ?,
			paid_at = ?,
			payment_method = CASE WHEN ? = '' THEN payment_method ELSE ? END,
			updated_at = ?
		 WHERE provider_ref = ? AND status = ?`,
		string(to),
		paidAt,
		paymentMethod,
		paymentMethod,
		now,
		providerRef,
		string(domain.StatusPending),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertDelivery(ctx context.Context, db *gorm.DB, d *domain.WebhookDelivery) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_webhook_deliveries (
			id, provider, provider_ref, event_id, reported_status,
			matched_secret, outcome, payload, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.Provider,
		d.ProviderRef,
		d.EventID,
		d.ReportedStatus,
		d.MatchedSecret,
		d.Outcome,
		d.Payload,
		d.ReceivedAt,
	).Error
}

func (r *repo) ListDeliveries(ctx context.Context, db *gorm.DB, providerRef string) ([]domain.WebhookDelivery, error) {
	var items []domain.WebhookDelivery
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_ref, event_id, reported_status,
			matched_secret, outcome, payload, received_at
		 FROM payment_webhook_deliveries
		 WHERE provider_ref = ?
		 ORDER BY received_at ASC, id ASC`,
		providerRef,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
