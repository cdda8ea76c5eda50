// Package webhookauth decides whether an inbound payment callback carries a
// valid shared secret, honoring the outgoing secret during a bounded rotation
// window.
package webhookauth

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
)

const HeaderName = "X-Webhook-Secret"

type Matched string

const (
	MatchedCurrent       Matched = "current"
	MatchedPrevious      Matched = "previous"
	MatchedNone          Matched = "none"
	MatchedNotConfigured Matched = "not-configured"
)

// Rejection reasons are for logs and metrics only, never for the caller.
const (
	ReasonMissingHeader       = "missing_header"
	ReasonMismatch            = "secret_mismatch"
	ReasonRotationStartAbsent = "rotation_start_absent"
	ReasonRotationStartBad    = "rotation_start_unparseable"
	ReasonRotationExpired     = "rotation_window_expired"
)

type SecretConfig struct {
	CurrentSecret  string
	PreviousSecret string
	// RotationStart stays raw so an unparseable value is caught per call.
	RotationStart      string
	RotationWindowDays int
}

type Result struct {
	Accepted bool
	Matched  Matched
	Reason   string
}

// Verify is pure: same inputs, same result.
func Verify(provided string, cfg SecretConfig, now time.Time) Result {
	current := strings.TrimSpace(cfg.CurrentSecret)
	previous := strings.TrimSpace(cfg.PreviousSecret)

	if current == "" && previous == "" {
		return Result{Accepted: true, Matched: MatchedNotConfigured}
	}
	if provided == "" {
		return Result{Matched: MatchedNone, Reason: ReasonMissingHeader}
	}

	if current != "" && secretsEqual(provided, current) {
		return Result{Accepted: true, Matched: MatchedCurrent}
	}

	if previous == "" {
		return Result{Matched: MatchedNone, Reason: ReasonMismatch}
	}
	deadline, reason := rotationDeadline(cfg)
	if reason != "" {
		return Result{Matched: MatchedNone, Reason: reason}
	}
	if now.After(deadline) {
		return Result{Matched: MatchedNone, Reason: ReasonRotationExpired}
	}
	if secretsEqual(provided, previous) {
		return Result{Accepted: true, Matched: MatchedPrevious}
	}
	return Result{Matched: MatchedNone, Reason: ReasonMismatch}
}

// RotationDeadline is the last instant the previous secret is honored.
func RotationDeadline(cfg SecretConfig) (time.Time, bool) {
	deadline, reason := rotationDeadline(cfg)
	return deadline, reason == ""
}

func rotationDeadline(cfg SecretConfig) (time.Time, string) {
	raw := strings.TrimSpace(cfg.RotationStart)
	if raw == "" {
		return time.Time{}, ReasonRotationStartAbsent
	}
	start, ok := parseRotationStart(raw)
	if !ok {
		return time.Time{}, ReasonRotationStartBad
	}
	return start.Add(time.Duration(cfg.RotationWindowDays) * 24 * time.Hour), ""
}

func parseRotationStart(raw string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// secretsEqual runs in time independent of where the inputs differ.
func secretsEqual(provided, expected string) bool {
	if len(provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// SecretSource returns the configuration in force for the next call.
type SecretSource func() SecretConfig

// Authenticator binds Verify to a secret source and a clock.
type Authenticator struct {
	secrets SecretSource
	clock   clock.Clock
}

func NewAuthenticator(secrets SecretSource, clk clock.Clock) *Authenticator {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Authenticator{secrets: secrets, clock: clk}
}

func (a *Authenticator) Authenticate(provided string) Result {
	return Verify(provided, a.secrets(), a.clock.Now())
}

// Secrets exposes the configured values for redaction.
func (a *Authenticator) Secrets() []string {
	cfg := a.secrets()
	return []string{cfg.CurrentSecret, cfg.PreviousSecret}
}

// FromConfig reads the webhook section of the process configuration.
func FromConfig(cfg config.Config) SecretSource {
	return func() SecretConfig {
		return SecretConfig{
			CurrentSecret:      cfg.Webhook.CurrentSecret,
			PreviousSecret:     cfg.Webhook.PreviousSecret,
			RotationStart:      cfg.Webhook.RotationStart,
			RotationWindowDays: cfg.Webhook.RotationWindowDays,
		}
	}
}
