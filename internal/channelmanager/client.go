// Package channelmanager talks to the external reservation system that owns
// room inventory. It is the final arbiter of conflicting commits.
package channelmanager

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout means the call ran out of time; the outcome upstream is unknown.
	ErrTimeout = errors.New("channel_manager_timeout")
	// ErrUnavailable covers transport failures and upstream 5xx responses.
	ErrUnavailable = errors.New("channel_manager_unavailable")
	// ErrRoomTaken is a definitive refusal because the dates are booked.
	ErrRoomTaken = errors.New("channel_manager_room_taken")
)

type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

func (r DateRange) Overlaps(other DateRange) bool {
	return r.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(r.CheckOut)
}

type Guest struct {
	Name  string
	Email string
	Phone string
	Count int
}

type BookingDetails struct {
	// ExternalRef lets the channel manager dedupe a retried commit.
	ExternalRef string
	Brand       string
	RoomID      string
	Range       DateRange
	Guest       Guest
}

type BookingRecord struct {
	Reference string
	Status    string
}

type Client interface {
	CheckAvailability(ctx context.Context, roomID string, r DateRange) (bool, error)
	CreateBooking(ctx context.Context, details BookingDetails) (BookingRecord, error)
}
