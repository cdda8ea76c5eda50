// Package writerlock decides which deployment role may create bookings for a
// brand. The mapping from operation mode to designated writer is a fixed
// table shared by every instance; a mode missing from it is a configuration
// error caught at startup.
package writerlock

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Role string

const (
	RoleAdapter Role = "adapter"
	RoleHub     Role = "hub"
)

type OperationMode string

const (
	ModeStandalone OperationMode = "standalone"
	ModeIntegrated OperationMode = "integrated"
)

// TableVersion changes whenever the writer table changes so deployments can
// confirm they agree.
const TableVersion = "2024.1"

var (
	ErrUnknownRole = errors.New("unknown_role")
	ErrUnknownMode = errors.New("unknown_operation_mode")
)

var writers = map[OperationMode]Role{
	ModeStandalone: RoleAdapter,
	ModeIntegrated: RoleHub,
}

func Roles() []Role {
	return []Role{RoleAdapter, RoleHub}
}

func Modes() []OperationMode {
	modes := make([]OperationMode, 0, len(writers))
	for m := range writers {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}

func ParseRole(raw string) (Role, error) {
	value := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, r := range Roles() {
		if r == value {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
}

func ParseMode(raw string) (OperationMode, error) {
	value := OperationMode(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := writers[value]; ok {
		return value, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, raw)
}

// DesignatedWriter returns the only role allowed to create bookings under mode.
func DesignatedWriter(mode OperationMode) (Role, bool) {
	role, ok := writers[mode]
	return role, ok
}

func IsWriterAllowed(mode OperationMode, role Role) bool {
	writer, ok := writers[mode]
	return ok && writer == role
}

// Assignment is one row of the writer table.
type Assignment struct {
	Mode   OperationMode `json:"mode"`
	Writer Role          `json:"writer"`
}

func Table() []Assignment {
	rows := make([]Assignment, 0, len(writers))
	for _, m := range Modes() {
		rows = append(rows, Assignment{Mode: m, Writer: writers[m]})
	}
	return rows
}
