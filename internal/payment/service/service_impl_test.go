package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/events"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/staybook/internal/payment/repository"
	paymentservice "github.com/smallbiznis/staybook/internal/payment/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubBookings struct {
	known map[string]*bookingdomain.Booking
}

func (s stubBookings) Create(ctx context.Context, req bookingdomain.CreateRequest) (*bookingdomain.Booking, error) {
	return nil, errors.New("not used")
}

func (s stubBookings) GetByID(ctx context.Context, id string) (*bookingdomain.Booking, error) {
	if b, ok := s.known[id]; ok {
		return b, nil
	}
	return nil, bookingdomain.ErrNotFound
}

type fixture struct {
	svc       paymentdomain.Service
	db        *gorm.DB
	clk       *clock.FakeClock
	published *events.Recorder
	bookingID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	booking := &bookingdomain.Booking{ID: node.Generate(), Brand: "COBNB"}

	f := &fixture{
		db:        setupTestDB(t),
		clk:       clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		published: events.NewRecorder(),
		bookingID: booking.ID,
	}
	f.svc = paymentservice.NewService(paymentservice.Params{
		DB:         f.db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      f.clk,
		Cfg:        config.Config{PaymentProvider: "generic"},
		Repo:       paymentrepo.Provide(),
		BookingSvc: stubBookings{known: map[string]*bookingdomain.Booking{booking.ID.String(): booking}},
		Publisher:  f.published,
	})
	return f
}

func (f *fixture) initiate(t *testing.T) *paymentdomain.LedgerEntry {
	t.Helper()
	entry, err := f.svc.Initiate(context.Background(), paymentdomain.InitiateRequest{
		BookingID: f.bookingID.String(),
		Amount:    450000,
		Currency:  "idr",
	})
	require.NoError(t, err)
	return entry
}

func TestInitiateCreatesPendingEntry(t *testing.T) {
	f := newFixture(t)
	entry := f.initiate(t)

	assert.Equal(t, paymentdomain.StatusPending, entry.Status)
	assert.Equal(t, "IDR", entry.Currency)
	assert.Equal(t, "generic", entry.Provider)
	assert.Contains(t, entry.ProviderRef, "PAY-")
	assert.Nil(t, entry.PaidAt)

	stored, err := f.svc.GetByProviderRef(context.Background(), entry.ProviderRef)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, stored.ID)
	assert.Equal(t, paymentdomain.StatusPending, stored.Status)
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, paymentdomain.InitiateRequest{BookingID: "999", Amount: 1, Currency: "IDR"})
	assert.ErrorIs(t, err, bookingdomain.ErrNotFound)

	_, err = f.svc.Initiate(ctx, paymentdomain.InitiateRequest{BookingID: f.bookingID.String(), Amount: 0, Currency: "IDR"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidRequest)

	_, err = f.svc.Initiate(ctx, paymentdomain.InitiateRequest{BookingID: f.bookingID.String(), Amount: 10, Currency: "RUPIAH"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidRequest)
}

func TestApplyOutcomePaidIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.initiate(t)

	first, err := f.svc.ApplyOutcome(ctx, paymentdomain.Outcome{ProviderRef: entry.ProviderRef, Status: paymentdomain.StatusPaid, PaymentMethod: "bank_transfer"})
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, paymentdomain.StatusPaid, first.Entry.Status)
	require.NotNil(t, first.Entry.PaidAt)
	assert.Equal(t, "bank_transfer", first.Entry.PaymentMethod)

	f.clk.Advance(time.Minute)
	for _, to := range []paymentdomain.Status{paymentdomain.StatusPaid, paymentdomain.StatusFailed} {
		again, err := f.svc.ApplyOutcome(ctx, paymentdomain.Outcome{ProviderRef: entry.ProviderRef, Status: to})
		require.NoError(t, err)
		assert.False(t, again.Applied)
		assert.True(t, again.AlreadyFinal)
		assert.Equal(t, paymentdomain.StatusPaid, again.Entry.Status)
		assert.True(t, again.Entry.PaidAt.Equal(*first.Entry.PaidAt))
	}

	assert.Len(t, f.published.OfType(events.TypePaymentPaid), 1)
	assert.Empty(t, f.published.OfType(events.TypePaymentFailed))
}

func TestApplyOutcomeFailedIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.initiate(t)

	res, err := f.svc.ApplyOutcome(ctx, paymentdomain.Outcome{ProviderRef: entry.ProviderRef, Status: paymentdomain.StatusFailed})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Nil(t, res.Entry.PaidAt)

	res, err = f.svc.ApplyOutcome(ctx, paymentdomain.Outcome{ProviderRef: entry.ProviderRef, Status: paymentdomain.StatusPaid})
	require.NoError(t, err)
	assert.True(t, res.AlreadyFinal)
	assert.Equal(t, paymentdomain.StatusFailed, res.Entry.Status)
	assert.Len(t, f.published.OfType(events.TypePaymentFailed), 1)
}

func TestApplyOutcomeConcurrentDeliveriesApplyOnce(t *testing.T) {
	f := newFixture(t)
	entry := f.initiate(t)

	const deliveries = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.ApplyOutcome(context.Background(), paymentdomain.Outcome{ProviderRef: entry.ProviderRef, Status: paymentdomain.StatusPaid})
			if err != nil {
				t.Errorf("apply: %v", err)
				return
			}
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Len(t, f.published.OfType(events.TypePaymentPaid), 1)
}

func TestApplyOutcomeRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.initiate(t)

	_, err := f.svc.ApplyOutcome(ctx, paymentdomain.Outcome{ProviderRef: "PAY-UNKNOWN", Status: paymentdomain.StatusPaid})
	assert.ErrorIs(t, err, paymentdomain.ErrLedgerEntryNotFound)

	_, err = f.svc.ApplyOutcome(ctx, paymentdomain.Outcome{ProviderRef: entry.ProviderRef, Status: paymentdomain.StatusPending})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidRequest)

	wrong := int64(1)
	_, err = f.svc.ApplyOutcome(ctx, paymentdomain.Outcome{ProviderRef: entry.ProviderRef, Status: paymentdomain.StatusPaid, Amount: &wrong})
	assert.ErrorIs(t, err, paymentdomain.ErrAmountMismatch)

	_, err = f.svc.ApplyOutcome(ctx, paymentdomain.Outcome{ProviderRef: entry.ProviderRef, Status: paymentdomain.StatusPaid, Currency: "USD"})
	assert.ErrorIs(t, err, paymentdomain.ErrAmountMismatch)

	stored, err := f.svc.GetByProviderRef(ctx, entry.ProviderRef)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusPending, stored.Status)
}

func TestApplyOutcomeTerminalIgnoresLateAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.initiate(t)

	_, err := f.svc.ApplyOutcome(ctx, paymentdomain.Outcome{ProviderRef: entry.ProviderRef, Status: paymentdomain.StatusPaid})
	require.NoError(t, err)

	netAmount := entry.Amount - 4500
	res, err := f.svc.ApplyOutcome(ctx, paymentdomain.Outcome{
		ProviderRef: entry.ProviderRef,
		Status:      paymentdomain.StatusPaid,
		Amount:      &netAmount,
		Currency:    "USD",
	})
	require.NoError(t, err)
	assert.True(t, res.AlreadyFinal)
	assert.False(t, res.Applied)
	assert.Equal(t, paymentdomain.StatusPaid, res.Entry.Status)
	assert.Equal(t, entry.Amount, res.Entry.Amount)
}

func TestInitiateRefusesPaidBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.initiate(t)

	_, err := f.svc.ApplyOutcome(ctx, paymentdomain.Outcome{ProviderRef: entry.ProviderRef, Status: paymentdomain.StatusPaid})
	require.NoError(t, err)

	_, err = f.svc.Initiate(ctx, paymentdomain.InitiateRequest{BookingID: f.bookingID.String(), Amount: 450000, Currency: "IDR"})
	assert.ErrorIs(t, err, paymentdomain.ErrAlreadyPaid)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// One connection keeps concurrent tests from tripping sqlite's shared
	// cache table locks.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE payment_ledger (
			id INTEGER PRIMARY KEY,
			booking_id INTEGER NOT NULL,
			provider TEXT NOT NULL,
			provider_ref TEXT NOT NULL UNIQUE,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			payment_method TEXT,
			status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'PAID', 'FAILED')),
			paid_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE payment_webhook_deliveries (
			id INTEGER PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_ref TEXT NOT NULL,
			event_id TEXT,
			reported_status TEXT NOT NULL,
			matched_secret TEXT NOT NULL,
			outcome TEXT NOT NULL,
			payload TEXT NOT NULL,
			received_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
