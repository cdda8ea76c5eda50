package channelmanager

import (
	"context"
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type sandboxBooking struct {
	roomID string
	dates  DateRange
	record BookingRecord
}

// Sandbox is an in-process channel manager for local runs and tests. It keeps
// bookings in memory and dedupes commits by external reference.
type Sandbox struct {
	mu          sync.Mutex
	bookings    map[string]sandboxBooking
	blocked     map[string][]DateRange
	nextErr     error
	createCalls int
	checkCalls  int
}

func NewSandbox() *Sandbox {
	return &Sandbox{
		bookings: make(map[string]sandboxBooking),
		blocked:  make(map[string][]DateRange),
	}
}

// Block marks a room as sold for r, as if another channel had booked it.
func (s *Sandbox) Block(roomID string, r DateRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[roomID] = append(s.blocked[roomID], r)
}

// FailNext makes the next call return err.
func (s *Sandbox) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextErr = err
}

func (s *Sandbox) CreateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCalls
}

func (s *Sandbox) CheckCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkCalls
}

func (s *Sandbox) CheckAvailability(ctx context.Context, roomID string, r DateRange) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, ErrTimeout
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkCalls++
	if err := s.takeErr(); err != nil {
		return false, err
	}
	return s.freeLocked(roomID, r, ""), nil
}

func (s *Sandbox) CreateBooking(ctx context.Context, details BookingDetails) (BookingRecord, error) {
	if err := ctx.Err(); err != nil {
		return BookingRecord{}, ErrTimeout
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.createCalls++
	if err := s.takeErr(); err != nil {
		return BookingRecord{}, err
	}
	if existing, ok := s.bookings[details.ExternalRef]; ok && details.ExternalRef != "" {
		return existing.record, nil
	}
	if !s.freeLocked(details.RoomID, details.Range, details.ExternalRef) {
		return BookingRecord{}, ErrRoomTaken
	}

	record := BookingRecord{
		Reference: "CM-" + strings.ToUpper(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()),
		Status:    "confirmed",
	}
	s.bookings[details.ExternalRef] = sandboxBooking{roomID: details.RoomID, dates: details.Range, record: record}
	return record, nil
}

func (s *Sandbox) takeErr() error {
	err := s.nextErr
	s.nextErr = nil
	return err
}

func (s *Sandbox) freeLocked(roomID string, r DateRange, ignoreRef string) bool {
	for _, blocked := range s.blocked[roomID] {
		if blocked.Overlaps(r) {
			return false
		}
	}
	for ref, b := range s.bookings {
		if ref != ignoreRef && b.roomID == roomID && b.dates.Overlaps(r) {
			return false
		}
	}
	return true
}

var _ Client = (*Sandbox)(nil)
