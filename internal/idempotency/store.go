// Package idempotency reserves caller-supplied keys so a retried booking
// request replays the first response instead of writing twice.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// State of a stored entry.
type State string

const (
	// StatePending marks a reservation whose request is still running. It
	// carries a short lease so a crashed request cannot wedge the key.
	StatePending State = "pending"
	// StateCompleted holds a cached response and never changes again.
	StateCompleted State = "completed"
	// StateOpen keeps the fingerprint of a request whose outcome was not
	// cacheable: a conflicting reuse is still caught, an identical retry runs.
	StateOpen State = "open"
)

// Outcome of Begin.
type Outcome string

const (
	OutcomeNew        Outcome = "new"
	OutcomeReplay     Outcome = "replay"
	OutcomeConflict   Outcome = "conflict"
	OutcomeInProgress Outcome = "in_progress"
)

var (
	ErrKeyRequired      = errors.New("idempotency_key_required")
	ErrKeyInvalid       = errors.New("idempotency_key_invalid")
	ErrStoreUnavailable = errors.New("idempotency_store_unavailable")
	ErrNotReserved      = errors.New("idempotency_key_not_reserved")
	ErrInvalidBody      = errors.New("idempotency_invalid_body")
)

type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type Entry struct {
	Key         string
	Fingerprint string
	State       State
	Response    *Response
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type BeginResult struct {
	Outcome Outcome
	Cached  *Response
}

// Store is safe for concurrent use. Keys are namespaced by scope so one key
// can never collide across endpoints.
type Store interface {
	// Begin atomically checks the key and, when free, reserves it as pending.
	Begin(ctx context.Context, scope, key, fingerprint string) (BeginResult, error)
	// Complete caches resp for a key reserved with the same fingerprint.
	Complete(ctx context.Context, scope, key, fingerprint string, resp Response) error
	// Release reopens a pending key without caching anything.
	Release(ctx context.Context, scope, key, fingerprint string) error
	// Get returns nil when the key is unknown or expired.
	Get(ctx context.Context, scope, key string) (*Entry, error)
}

// Options controls entry lifetimes.
type Options struct {
	TTL     time.Duration
	LockTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 24 * time.Hour
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 30 * time.Second
	}
	return o
}
