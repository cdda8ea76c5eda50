package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const StatusConfirmed = "confirmed"

// Booking is written once by the creation pipeline and never mutated here.
type Booking struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	Brand             string       `json:"brand" gorm:"type:varchar(16);not null"`
	RoomID            string       `json:"roomId" gorm:"type:varchar(128);not null"`
	CheckIn           time.Time    `json:"checkIn" gorm:"not null"`
	CheckOut          time.Time    `json:"checkOut" gorm:"not null"`
	Nights            int          `json:"nights" gorm:"not null"`
	GuestName         string       `json:"guestName" gorm:"type:varchar(255);not null"`
	GuestEmail        string       `json:"guestEmail" gorm:"type:varchar(255);not null"`
	GuestPhone        string       `json:"guestPhone,omitempty" gorm:"type:varchar(64)"`
	GuestCount        int          `json:"guestCount" gorm:"not null"`
	Status            string       `json:"status" gorm:"type:varchar(32);not null"`
	Writer            string       `json:"writer" gorm:"type:varchar(16);not null"`
	IdempotencyKey    string       `json:"idempotencyKey" gorm:"type:varchar(255);not null;uniqueIndex"`
	ChannelManagerRef string       `json:"channelManagerRef" gorm:"type:varchar(128);not null"`
	RequestHash       string       `json:"-" gorm:"type:varchar(64);not null;default:''"`
	CreatedAt         time.Time    `json:"createdAt" gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }

// CreateRequest is the body of POST /bookings. Dates accept YYYY-MM-DD or
// RFC 3339.
type CreateRequest struct {
	Brand      string `json:"brand"`
	RoomID     string `json:"roomId"`
	CheckIn    string `json:"checkIn"`
	CheckOut   string `json:"checkOut"`
	GuestName  string `json:"guestName"`
	GuestEmail string `json:"guestEmail"`
	GuestPhone string `json:"guestPhone,omitempty"`
	GuestCount int    `json:"guestCount,omitempty"`

	// IdempotencyKey comes from the Idempotency-Key header.
	IdempotencyKey string `json:"-"`
	// RequestHash is the canonical body fingerprint stored with the key.
	// Derived from the request itself when empty.
	RequestHash string `json:"-"`
}
