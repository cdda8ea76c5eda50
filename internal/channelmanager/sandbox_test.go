package channelmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxDedupesByExternalRef(t *testing.T) {
	ctx := context.Background()
	sb := NewSandbox()
	details := BookingDetails{ExternalRef: "idem-key-0001", RoomID: "room-1", Range: testRange()}

	first, err := sb.CreateBooking(ctx, details)
	require.NoError(t, err)
	second, err := sb.CreateBooking(ctx, details)
	require.NoError(t, err)

	assert.Equal(t, first.Reference, second.Reference)
	assert.Equal(t, 2, sb.CreateCalls())
}

func TestSandboxRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	sb := NewSandbox()
	r := testRange()

	_, err := sb.CreateBooking(ctx, BookingDetails{ExternalRef: "idem-key-0001", RoomID: "room-1", Range: r})
	require.NoError(t, err)

	ok, err := sb.CheckAvailability(ctx, "room-1", r)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = sb.CheckAvailability(ctx, "room-2", r)
	require.NoError(t, err)
	assert.True(t, ok)

	// back-to-back stays do not overlap
	next := DateRange{CheckIn: r.CheckOut, CheckOut: r.CheckOut.AddDate(0, 0, 2)}
	ok, err = sb.CheckAvailability(ctx, "room-1", next)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = sb.CreateBooking(ctx, BookingDetails{ExternalRef: "idem-key-0002", RoomID: "room-1", Range: r})
	assert.ErrorIs(t, err, ErrRoomTaken)
}

func TestSandboxBlockAndFailNext(t *testing.T) {
	ctx := context.Background()
	sb := NewSandbox()
	sb.Block("room-9", testRange())

	ok, err := sb.CheckAvailability(ctx, "room-9", testRange())
	require.NoError(t, err)
	assert.False(t, ok)

	sb.FailNext(ErrTimeout)
	_, err = sb.CheckAvailability(ctx, "room-1", testRange())
	assert.ErrorIs(t, err, ErrTimeout)

	_, err = sb.CheckAvailability(ctx, "room-1", testRange())
	assert.NoError(t, err)
}
