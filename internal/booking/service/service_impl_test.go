package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/booking/repository"
	"github.com/smallbiznis/staybook/internal/booking/service"
	"github.com/smallbiznis/staybook/internal/brand"
	"github.com/smallbiznis/staybook/internal/channelmanager"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/events"
	"github.com/smallbiznis/staybook/internal/writerlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc       domain.Service
	db        *gorm.DB
	cm        *channelmanager.Sandbox
	published *events.Recorder
	holder    *config.BookingConfigHolder
}

func newFixture(t *testing.T, role writerlock.Role) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	holder, err := config.NewStaticBookingConfigHolder(config.DefaultBookingConfig())
	require.NoError(t, err)

	f := &fixture{
		db:        db,
		cm:        channelmanager.NewSandbox(),
		published: events.NewRecorder(),
		holder:    holder,
	}
	f.svc = service.NewService(service.Params{
		DB:             db,
		Log:            zap.NewNop(),
		GenID:          node,
		Clock:          clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)),
		Repo:           repository.Provide(),
		Guard:          writerlock.NewGuard(role, holder),
		Rules:          holder,
		ChannelManager: f.cm,
		Publisher:      f.published,
	})
	return f
}

func validRequest(key string) domain.CreateRequest {
	return domain.CreateRequest{
		Brand:          "COBNB",
		RoomID:         "room-101",
		CheckIn:        "2025-03-10",
		CheckOut:       "2025-03-13",
		GuestName:      "Ayu Lestari",
		GuestEmail:     "ayu@example.com",
		IdempotencyKey: key,
	}
}

func TestCreateCommitsAndPersists(t *testing.T) {
	f := newFixture(t, writerlock.RoleAdapter)

	b, err := f.svc.Create(context.Background(), validRequest("key-create-0001"))
	require.NoError(t, err)

	assert.Equal(t, "COBNB", b.Brand)
	assert.Equal(t, 3, b.Nights)
	assert.Equal(t, "adapter", b.Writer)
	assert.Equal(t, domain.StatusConfirmed, b.Status)
	assert.Equal(t, "key-create-0001", b.IdempotencyKey)
	assert.Equal(t, 1, b.GuestCount)
	assert.NotEmpty(t, b.ChannelManagerRef)
	assert.Equal(t, 1, f.cm.CheckCalls())
	assert.Equal(t, 1, f.cm.CreateCalls())

	stored, err := f.svc.GetByID(context.Background(), b.ID.String())
	require.NoError(t, err)
	assert.Equal(t, b.ID, stored.ID)
	assert.Equal(t, b.ChannelManagerRef, stored.ChannelManagerRef)

	created := f.published.OfType(events.TypeBookingCreated)
	require.Len(t, created, 1)
}

func TestCreateRejectsWrongWriterBeforeSideEffects(t *testing.T) {
	f := newFixture(t, writerlock.RoleHub)

	_, err := f.svc.Create(context.Background(), validRequest("key-wrong-writer"))
	require.Error(t, err)

	var violation *writerlock.ViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, writerlock.RoleAdapter, violation.DesignatedWriter)
	assert.Equal(t, writerlock.RoleHub, violation.RejectedBy)
	assert.Zero(t, f.cm.CheckCalls())
	assert.Zero(t, f.cm.CreateCalls())
	assert.Empty(t, f.published.Events())
}

func TestCreateFollowsModeFlip(t *testing.T) {
	f := newFixture(t, writerlock.RoleHub)

	cfg := config.DefaultBookingConfig()
	policy := cfg.Brands[brand.COBNB]
	policy.Mode = writerlock.ModeIntegrated
	cfg.Brands[brand.COBNB] = policy
	require.NoError(t, f.holder.Swap(cfg))

	b, err := f.svc.Create(context.Background(), validRequest("key-mode-flip1"))
	require.NoError(t, err)
	assert.Equal(t, "hub", b.Writer)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, writerlock.RoleAdapter)

	_, err := f.svc.Create(context.Background(), domain.CreateRequest{Brand: "COBNB", IdempotencyKey: "key-validation"})
	require.ErrorIs(t, err, domain.ErrValidation)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]string{}
	for _, fe := range verr.Fields {
		fields[fe.Field] = fe.Code
	}
	assert.Equal(t, "required", fields["roomId"])
	assert.Equal(t, "required", fields["checkIn"])
	assert.Equal(t, "required", fields["checkOut"])
	assert.Equal(t, "required", fields["guestName"])
	assert.Equal(t, "required", fields["guestEmail"])
	assert.Zero(t, f.cm.CheckCalls())
}

func TestCreateValidationDates(t *testing.T) {
	f := newFixture(t, writerlock.RoleAdapter)
	ctx := context.Background()

	req := validRequest("key-dates-0001")
	req.CheckOut = req.CheckIn
	_, err := f.svc.Create(ctx, req)
	require.ErrorIs(t, err, domain.ErrValidation)

	req = validRequest("key-dates-0002")
	req.CheckIn, req.CheckOut = "2025-02-01", "2025-02-03"
	_, err = f.svc.Create(ctx, req)
	require.ErrorIs(t, err, domain.ErrValidation)

	req = validRequest("key-dates-0003")
	req.CheckIn = "10/03/2025"
	_, err = f.svc.Create(ctx, req)
	require.ErrorIs(t, err, domain.ErrValidation)

	req = validRequest("key-dates-0004")
	req.CheckIn, req.CheckOut = "2025-03-10T14:00:00+07:00", "2025-03-12T12:00:00+07:00"
	b, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Nights)
}

func TestCreateInvalidBrand(t *testing.T) {
	f := newFixture(t, writerlock.RoleAdapter)

	req := validRequest("key-bad-brand1")
	req.Brand = "HOSTEL"
	_, err := f.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidBrand)
	assert.Zero(t, f.cm.CheckCalls())
}

func TestCreateBrandStayRule(t *testing.T) {
	f := newFixture(t, writerlock.RoleAdapter)
	ctx := context.Background()

	req := validRequest("key-rule-00001")
	req.CheckOut = "2025-04-09" // 30 nights
	_, err := f.svc.Create(ctx, req)
	require.ErrorIs(t, err, domain.ErrBrandRule)

	var rv *domain.RuleViolationError
	require.ErrorAs(t, err, &rv)
	assert.Equal(t, 30, rv.Nights)
	assert.Equal(t, 1, rv.MinNights)
	assert.Equal(t, 27, rv.MaxNights)
	assert.Zero(t, f.cm.CheckCalls())

	req = validRequest("key-rule-00002")
	req.Brand = "COLIVE"
	req.CheckOut = "2025-03-16" // 6 nights
	_, err = f.svc.Create(ctx, req)
	require.ErrorIs(t, err, domain.ErrBrandRule)

	req = validRequest("key-rule-00003")
	req.Brand = "COLIVE"
	req.CheckOut = "2025-04-07" // 28 nights
	b, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 28, b.Nights)
}

func TestCreateAvailabilityChanged(t *testing.T) {
	f := newFixture(t, writerlock.RoleAdapter)
	f.cm.Block("room-101", channelmanager.DateRange{
		CheckIn:  time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		CheckOut: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
	})

	_, err := f.svc.Create(context.Background(), validRequest("key-taken-0001"))
	require.ErrorIs(t, err, domain.ErrAvailabilityChanged)
	assert.Equal(t, 1, f.cm.CheckCalls())
	assert.Zero(t, f.cm.CreateCalls())
}

func TestCreateUpstreamFailuresAreNotPersisted(t *testing.T) {
	f := newFixture(t, writerlock.RoleAdapter)
	ctx := context.Background()

	f.cm.FailNext(channelmanager.ErrTimeout)
	_, err := f.svc.Create(ctx, validRequest("key-upstream-01"))
	require.ErrorIs(t, err, channelmanager.ErrTimeout)
	assert.Equal(t, "upstream_timeout", service.RejectionCode(err))

	f.cm.FailNext(channelmanager.ErrUnavailable)
	_, err = f.svc.Create(ctx, validRequest("key-upstream-01"))
	require.ErrorIs(t, err, channelmanager.ErrUnavailable)

	var count int64
	require.NoError(t, f.db.Raw("SELECT COUNT(*) FROM bookings").Scan(&count).Error)
	assert.Zero(t, count)

	// The same key goes through once upstream recovers.
	b, err := f.svc.Create(ctx, validRequest("key-upstream-01"))
	require.NoError(t, err)
	assert.Equal(t, "key-upstream-01", b.IdempotencyKey)
}

func TestCreateRetryReturnsStoredBooking(t *testing.T) {
	f := newFixture(t, writerlock.RoleAdapter)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, validRequest("key-retry-00001"))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, validRequest("key-retry-00001"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.cm.CreateCalls())
	assert.Len(t, f.published.OfType(events.TypeBookingCreated), 1)
}

func TestCreateRejectsKeyReuseWithDifferentRequest(t *testing.T) {
	f := newFixture(t, writerlock.RoleAdapter)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, validRequest("key-reuse-00001"))
	require.NoError(t, err)

	other := validRequest("key-reuse-00001")
	other.RoomID = "room-999"
	other.CheckIn = "2025-04-01"
	other.CheckOut = "2025-04-04"
	_, err = f.svc.Create(ctx, other)
	require.ErrorIs(t, err, domain.ErrKeyReused)
	assert.Equal(t, 1, f.cm.CheckCalls())
	assert.Equal(t, 1, f.cm.CreateCalls())

	// The caller-supplied fingerprint is what gets compared.
	hashed := validRequest("key-reuse-00002")
	hashed.RoomID = "room-202"
	hashed.RequestHash = "fingerprint-a"
	_, err = f.svc.Create(ctx, hashed)
	require.NoError(t, err)
	hashed.RequestHash = "fingerprint-b"
	_, err = f.svc.Create(ctx, hashed)
	require.ErrorIs(t, err, domain.ErrKeyReused)

	stored, err := f.svc.GetByID(ctx, first.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "room-101", stored.RoomID)
	assert.Len(t, f.published.OfType(events.TypeBookingCreated), 2)
	assert.Equal(t, "idempotency_key_reused", service.RejectionCode(err))
}

func TestGetByIDNotFound(t *testing.T) {
	f := newFixture(t, writerlock.RoleAdapter)

	_, err := f.svc.GetByID(context.Background(), "12345")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = f.svc.GetByID(context.Background(), "not-a-number")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRejectionCode(t *testing.T) {
	assert.Equal(t, "availability_changed", service.RejectionCode(domain.ErrAvailabilityChanged))
	assert.Equal(t, "validation_error", service.RejectionCode(&domain.ValidationError{}))
	assert.Equal(t, "brand_rule_violation", service.RejectionCode(&domain.RuleViolationError{}))
	assert.Equal(t, "writer_lock_violation", service.RejectionCode(&writerlock.ViolationError{}))
	assert.Equal(t, "upstream_unavailable", service.RejectionCode(fmt.Errorf("x: %w", channelmanager.ErrUnavailable)))
	assert.Equal(t, "internal", service.RejectionCode(errors.New("boom")))
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE bookings (
			id INTEGER PRIMARY KEY,
			brand TEXT NOT NULL,
			room_id TEXT NOT NULL,
			check_in DATETIME NOT NULL,
			check_out DATETIME NOT NULL,
			nights INTEGER NOT NULL,
			guest_name TEXT NOT NULL,
			guest_email TEXT NOT NULL,
			guest_phone TEXT,
			guest_count INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL,
			writer TEXT NOT NULL,
			idempotency_key TEXT NOT NULL UNIQUE,
			channel_manager_ref TEXT NOT NULL,
			request_hash TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
