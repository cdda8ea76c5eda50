package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/brand"
	"github.com/smallbiznis/staybook/internal/channelmanager"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/events"
	"github.com/smallbiznis/staybook/internal/idempotency"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	"github.com/smallbiznis/staybook/internal/writerlock"
	"github.com/smallbiznis/staybook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxRoomIDLength = 128
	maxGuestCount   = 20
	dateLayout      = "2006-01-02"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           domain.Repository
	Guard          *writerlock.Guard
	Rules          *config.BookingConfigHolder
	ChannelManager channelmanager.Client
	Publisher      events.Publisher
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	guard      *writerlock.Guard
	rules      *config.BookingConfigHolder
	cm         channelmanager.Client
	publisher  events.Publisher
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("booking.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		guard:      p.Guard,
		rules:      p.Rules,
		cm:         p.ChannelManager,
		publisher:  p.Publisher,
		obsMetrics: p.ObsMetrics,
	}
}

type validatedRequest struct {
	brand brand.Brand
	dates channelmanager.DateRange
	guest channelmanager.Guest
	room  string
	key   string
}

// Create runs validate, brand rule, availability re-check, channel-manager
// commit and persistence in that order. Any stage can short-circuit.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Booking, error) {
	started := s.clock.Now()

	b, err := brand.Parse(req.Brand)
	if err != nil {
		s.rejected(ctx, "unknown", err)
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidBrand, req.Brand)
	}

	// Authority comes before every other stage so a misrouted request costs
	// nothing upstream.
	if err := s.guard.Check(b); err != nil {
		s.rejected(ctx, b.String(), err)
		return nil, err
	}

	in, err := s.validate(b, req)
	if err != nil {
		s.rejected(ctx, b.String(), err)
		return nil, err
	}

	nights := brand.Nights(in.dates.CheckIn, in.dates.CheckOut)
	if err := s.checkStayRule(b, nights); err != nil {
		s.rejected(ctx, b.String(), err)
		return nil, err
	}

	hash, err := requestHash(req)
	if err != nil {
		return nil, err
	}

	// A commit that already landed for this key is the answer to the retry,
	// but only for the same request.
	existing, err := s.storedFor(ctx, in.key, hash)
	if err != nil {
		s.rejected(ctx, b.String(), err)
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	available, err := s.cm.CheckAvailability(ctx, in.room, in.dates)
	if err != nil {
		s.rejected(ctx, b.String(), err)
		return nil, fmt.Errorf("check availability: %w", err)
	}
	if !available {
		s.rejected(ctx, b.String(), domain.ErrAvailabilityChanged)
		return nil, domain.ErrAvailabilityChanged
	}

	record, err := s.cm.CreateBooking(ctx, channelmanager.BookingDetails{
		ExternalRef: in.key,
		Brand:       b.String(),
		RoomID:      in.room,
		Range:       in.dates,
		Guest:       in.guest,
	})
	if err != nil {
		if errors.Is(err, channelmanager.ErrRoomTaken) {
			err = domain.ErrAvailabilityChanged
		} else {
			err = fmt.Errorf("commit booking: %w", err)
		}
		s.rejected(ctx, b.String(), err)
		return nil, err
	}

	booking := &domain.Booking{
		ID:                s.genID.Generate(),
		Brand:             b.String(),
		RoomID:            in.room,
		CheckIn:           in.dates.CheckIn,
		CheckOut:          in.dates.CheckOut,
		Nights:            nights,
		GuestName:         in.guest.Name,
		GuestEmail:        in.guest.Email,
		GuestPhone:        in.guest.Phone,
		GuestCount:        in.guest.Count,
		Status:            domain.StatusConfirmed,
		Writer:            string(s.guard.Role()),
		IdempotencyKey:    in.key,
		ChannelManagerRef: record.Reference,
		RequestHash:       hash,
		CreatedAt:         s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, s.db, booking); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// Lost a race with a concurrent retry; the channel manager deduped
		// the commit on the external ref.
		stored, findErr := s.storedFor(ctx, in.key, hash)
		if findErr != nil {
			s.rejected(ctx, b.String(), findErr)
			return nil, findErr
		}
		if stored == nil {
			return nil, err
		}
		return stored, nil
	}

	s.log.Info("booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("brand", booking.Brand),
		zap.String("writer", booking.Writer),
		zap.Int("nights", nights),
		zap.String("channel_manager_ref", booking.ChannelManagerRef),
	)

	s.publish(ctx, events.New(events.TypeBookingCreated, booking.CreatedAt, bookingCreatedPayload{
		BookingID:         booking.ID.String(),
		Brand:             booking.Brand,
		RoomID:            booking.RoomID,
		CheckIn:           booking.CheckIn.Format(dateLayout),
		CheckOut:          booking.CheckOut.Format(dateLayout),
		Nights:            booking.Nights,
		Writer:            booking.Writer,
		ChannelManagerRef: booking.ChannelManagerRef,
	}))

	s.obsMetrics.RecordBookingCreated(ctx, booking.Brand, booking.Writer, s.clock.Now().Sub(started))
	return booking, nil
}

// storedFor returns the booking already committed under key, or
// ErrKeyReused when it was made from a different request.
func (s *Service) storedFor(ctx context.Context, key, hash string) (*domain.Booking, error) {
	stored, err := s.repo.FindByIdempotencyKey(ctx, s.db, key)
	if err != nil || stored == nil {
		return nil, err
	}
	if stored.RequestHash != "" && stored.RequestHash != hash {
		s.log.Warn("idempotency key reused with a different request",
			zap.String("booking_id", stored.ID.String()),
		)
		return nil, domain.ErrKeyReused
	}
	return stored, nil
}

func requestHash(req domain.CreateRequest) (string, error) {
	if req.RequestHash != "" {
		return req.RequestHash, nil
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return idempotency.Fingerprint(body)
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrNotFound
	}
	item, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) validate(b brand.Brand, req domain.CreateRequest) (validatedRequest, error) {
	verr := &domain.ValidationError{}
	out := validatedRequest{brand: b}

	out.key = strings.TrimSpace(req.IdempotencyKey)
	if out.key == "" {
		verr.Add("idempotencyKey", "required", "Idempotency-Key header is required")
	}

	out.room = strings.TrimSpace(req.RoomID)
	switch {
	case out.room == "":
		verr.Add("roomId", "required", "roomId is required")
	case len(out.room) > maxRoomIDLength:
		verr.Add("roomId", "too_long", fmt.Sprintf("roomId must be at most %d characters", maxRoomIDLength))
	}

	checkIn, inOK := parseDate(verr, "checkIn", req.CheckIn)
	checkOut, outOK := parseDate(verr, "checkOut", req.CheckOut)
	if inOK && outOK {
		if !checkOut.After(checkIn) {
			verr.Add("checkOut", "before_check_in", "checkOut must be after checkIn")
		}
		today := s.clock.Now().UTC().Truncate(24 * time.Hour)
		if checkIn.Before(today) {
			verr.Add("checkIn", "in_past", "checkIn cannot be in the past")
		}
	}
	out.dates = channelmanager.DateRange{CheckIn: checkIn, CheckOut: checkOut}

	out.guest = channelmanager.Guest{
		Name:  strings.TrimSpace(req.GuestName),
		Email: strings.TrimSpace(req.GuestEmail),
		Phone: strings.TrimSpace(req.GuestPhone),
		Count: req.GuestCount,
	}
	if out.guest.Name == "" {
		verr.Add("guestName", "required", "guestName is required")
	}
	if out.guest.Email == "" {
		verr.Add("guestEmail", "required", "guestEmail is required")
	} else if addr, err := mail.ParseAddress(out.guest.Email); err != nil || addr.Address != out.guest.Email {
		verr.Add("guestEmail", "invalid", "guestEmail must be a valid email address")
	}
	switch {
	case out.guest.Count == 0:
		out.guest.Count = 1
	case out.guest.Count < 0 || out.guest.Count > maxGuestCount:
		verr.Add("guestCount", "out_of_range", fmt.Sprintf("guestCount must be between 1 and %d", maxGuestCount))
	}

	if !verr.Empty() {
		return validatedRequest{}, verr
	}
	return out, nil
}

func parseDate(verr *domain.ValidationError, field, raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		verr.Add(field, "required", field+" is required")
		return time.Time{}, false
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	verr.Add(field, "invalid_date", field+" must be YYYY-MM-DD or RFC 3339")
	return time.Time{}, false
}

func (s *Service) checkStayRule(b brand.Brand, nights int) error {
	rule, ok := s.rules.StayRule(b)
	if !ok {
		return fmt.Errorf("%w: no stay rule for %s", domain.ErrInvalidBrand, b)
	}
	if !rule.Allows(nights) {
		return &domain.RuleViolationError{
			Brand:     b,
			Nights:    nights,
			MinNights: rule.MinNights,
			MaxNights: rule.MaxNights,
		}
	}
	return nil
}

type bookingCreatedPayload struct {
	BookingID         string `json:"bookingId"`
	Brand             string `json:"brand"`
	RoomID            string `json:"roomId"`
	CheckIn           string `json:"checkIn"`
	CheckOut          string `json:"checkOut"`
	Nights            int    `json:"nights"`
	Writer            string `json:"writer"`
	ChannelManagerRef string `json:"channelManagerRef"`
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("publish event failed",
			zap.String("event_type", event.Type),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) rejected(ctx context.Context, brandName string, err error) {
	s.obsMetrics.RecordBookingRejected(ctx, brandName, RejectionCode(err))
}

// RejectionCode is the low-cardinality label used for pipeline rejections.
func RejectionCode(err error) string {
	switch {
	case errors.Is(err, writerlock.ErrWriterLockViolation):
		return "writer_lock_violation"
	case errors.Is(err, domain.ErrInvalidBrand):
		return "invalid_brand"
	case errors.Is(err, domain.ErrValidation):
		return "validation_error"
	case errors.Is(err, domain.ErrBrandRule):
		return "brand_rule_violation"
	case errors.Is(err, domain.ErrAvailabilityChanged), errors.Is(err, channelmanager.ErrRoomTaken):
		return "availability_changed"
	case errors.Is(err, domain.ErrKeyReused):
		return "idempotency_key_reused"
	case errors.Is(err, channelmanager.ErrTimeout):
		return "upstream_timeout"
	case errors.Is(err, channelmanager.ErrUnavailable):
		return "upstream_unavailable"
	default:
		return "internal"
	}
}
