package writerlock

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/staybook/internal/brand"
)

var (
	ErrWriterLockViolation = errors.New("writer_lock_violation")
	ErrModeNotConfigured   = errors.New("operation_mode_not_configured")
)

// ModeSource resolves the operation mode currently configured for a brand.
type ModeSource interface {
	ModeFor(b brand.Brand) (OperationMode, bool)
}

// ViolationError carries what a rejected caller needs to find the real writer.
type ViolationError struct {
	Brand            brand.Brand
	Mode             OperationMode
	DesignatedWriter Role
	RejectedBy       Role
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("brand %s is in %s mode: bookings are written by %s, not %s",
		e.Brand, e.Mode, e.DesignatedWriter, e.RejectedBy)
}

func (e *ViolationError) Unwrap() error { return ErrWriterLockViolation }

// Guard is evaluated before any booking side effect.
type Guard struct {
	self  Role
	modes ModeSource
}

func NewGuard(self Role, modes ModeSource) *Guard {
	return &Guard{self: self, modes: modes}
}

func (g *Guard) Role() Role { return g.self }

// Check reads the mode on every call so hot-reloaded configuration applies to
// the next request.
func (g *Guard) Check(b brand.Brand) error {
	mode, ok := g.modes.ModeFor(b)
	if !ok {
		return fmt.Errorf("%w: brand %s", ErrModeNotConfigured, b)
	}
	writer, ok := DesignatedWriter(mode)
	if !ok {
		return fmt.Errorf("%w: brand %s mode %q", ErrModeNotConfigured, b, mode)
	}
	if writer != g.self {
		return &ViolationError{
			Brand:            b,
			Mode:             mode,
			DesignatedWriter: writer,
			RejectedBy:       g.self,
		}
	}
	return nil
}
