package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/events"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       paymentdomain.Repository
	BookingSvc bookingdomain.Service
	Publisher  events.Publisher
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	provider   string
	repo       paymentdomain.Repository
	bookingSvc bookingdomain.Service
	publisher  events.Publisher
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		provider:   strings.ToLower(strings.TrimSpace(p.Cfg.PaymentProvider)),
		repo:       p.Repo,
		bookingSvc: p.BookingSvc,
		publisher:  p.Publisher,
		obsMetrics: p.ObsMetrics,
	}
}

// Initiate opens a PENDING ledger entry for a booking. It never sets a
// terminal status.
func (s *Service) Initiate(ctx context.Context, req paymentdomain.InitiateRequest) (*paymentdomain.LedgerEntry, error) {
	booking, err := s.bookingSvc.GetByID(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", paymentdomain.ErrInvalidRequest)
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be a 3-letter code", paymentdomain.ErrInvalidRequest)
	}

	paid, err := s.repo.FindPaidByBooking(ctx, s.db, booking.ID)
	if err != nil {
		return nil, err
	}
	if paid != nil {
		return nil, paymentdomain.ErrAlreadyPaid
	}

	now := s.clock.Now()
	entry := &paymentdomain.LedgerEntry{
		ID:            s.genID.Generate(),
		BookingID:     booking.ID,
		Provider:      s.provider,
		ProviderRef:   "PAY-" + ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Amount:        req.Amount,
		Currency:      currency,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Status:        paymentdomain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		return nil, err
	}

	s.log.Info("payment initiated",
		zap.String("booking_id", booking.ID.String()),
		zap.String("provider", entry.Provider),
		zap.String("provider_ref", entry.ProviderRef),
	)
	return entry, nil
}

// ApplyOutcome moves a PENDING entry to PAID or FAILED. A repeat delivery for
// a terminal entry is a no-op reported through Transition.AlreadyFinal.
func (s *Service) ApplyOutcome(ctx context.Context, outcome paymentdomain.Outcome) (paymentdomain.Transition, error) {
	if !outcome.Status.Terminal() {
		return paymentdomain.Transition{}, fmt.Errorf("%w: status %q is not terminal", paymentdomain.ErrInvalidRequest, outcome.Status)
	}

	entry, err := s.repo.FindByProviderRef(ctx, s.db, outcome.ProviderRef)
	if err != nil {
		return paymentdomain.Transition{}, err
	}
	if entry == nil {
		return paymentdomain.Transition{}, paymentdomain.ErrLedgerEntryNotFound
	}

	if entry.Status.Terminal() {
		return paymentdomain.Transition{Entry: entry, AlreadyFinal: true}, nil
	}

	if outcome.Amount != nil && *outcome.Amount != entry.Amount {
		return paymentdomain.Transition{Entry: entry}, fmt.Errorf("%w: reported %d, ledger %d", paymentdomain.ErrAmountMismatch, *outcome.Amount, entry.Amount)
	}
	if outcome.Currency != "" && !strings.EqualFold(outcome.Currency, entry.Currency) {
		return paymentdomain.Transition{Entry: entry}, fmt.Errorf("%w: reported currency %s, ledger %s", paymentdomain.ErrAmountMismatch, outcome.Currency, entry.Currency)
	}

	now := s.clock.Now()
	var paidAt *time.Time
	if outcome.Status == paymentdomain.StatusPaid {
		paidAt = &now
	}

	applied, err := s.repo.TransitionFromPending(ctx, s.db, entry.ProviderRef, outcome.Status, strings.TrimSpace(outcome.PaymentMethod), paidAt, now)
	if err != nil {
		return paymentdomain.Transition{}, err
	}

	updated, err := s.repo.FindByProviderRef(ctx, s.db, entry.ProviderRef)
	if err != nil {
		return paymentdomain.Transition{}, err
	}
	if updated == nil {
		return paymentdomain.Transition{}, paymentdomain.ErrLedgerEntryNotFound
	}
	if !applied {
		// A concurrent delivery won the update.
		return paymentdomain.Transition{Entry: updated, AlreadyFinal: true}, nil
	}

	s.log.Info("payment finalized",
		zap.String("provider", updated.Provider),
		zap.String("provider_ref", updated.ProviderRef),
		zap.String("booking_id", updated.BookingID.String()),
		zap.String("status", string(updated.Status)),
	)
	s.obsMetrics.RecordPaymentTransition(ctx, updated.Provider, string(updated.Status))
	s.publishTransition(ctx, updated, now)

	return paymentdomain.Transition{Entry: updated, Applied: true}, nil
}

func (s *Service) GetByProviderRef(ctx context.Context, providerRef string) (*paymentdomain.LedgerEntry, error) {
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return nil, paymentdomain.ErrLedgerEntryNotFound
	}
	entry, err := s.repo.FindByProviderRef(ctx, s.db, providerRef)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, paymentdomain.ErrLedgerEntryNotFound
	}
	return entry, nil
}

func (s *Service) ListDeliveries(ctx context.Context, providerRef string) ([]paymentdomain.WebhookDelivery, error) {
	if _, err := s.GetByProviderRef(ctx, providerRef); err != nil {
		return nil, err
	}
	return s.repo.ListDeliveries(ctx, s.db, strings.TrimSpace(providerRef))
}

type paymentEventPayload struct {
	BookingID     string     `json:"bookingId"`
	Provider      string     `json:"provider"`
	ProviderRef   string     `json:"providerRef"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	PaymentMethod string     `json:"paymentMethod,omitempty"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

func (s *Service) publishTransition(ctx context.Context, entry *paymentdomain.LedgerEntry, at time.Time) {
	if s.publisher == nil {
		return
	}
	eventType := events.TypePaymentFailed
	if entry.Status == paymentdomain.StatusPaid {
		eventType = events.TypePaymentPaid
	}
	event := events.New(eventType, at, paymentEventPayload{
		BookingID:     entry.BookingID.String(),
		Provider:      entry.Provider,
		ProviderRef:   entry.ProviderRef,
		Amount:        entry.Amount,
		Currency:      entry.Currency,
		PaymentMethod: entry.PaymentMethod,
		Status:        string(entry.Status),
		PaidAt:        entry.PaidAt,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("publish event failed",
			zap.String("event_type", event.Type),
			zap.String("provider_ref", entry.ProviderRef),
			zap.Error(err),
		)
	}
}
