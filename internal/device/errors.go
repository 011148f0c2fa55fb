package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrModuleNotFound) {
//	    // handle not found case
//	}
var (
	// ErrModuleNotFound is returned when a module ID or address does not exist.
	ErrModuleNotFound = errors.New("device: module not found")

	// ErrModuleExists is returned when creating a module that already exists.
	ErrModuleExists = errors.New("device: module already exists")

	// ErrInvalidModule is returned when module validation fails.
	ErrInvalidModule = errors.New("device: invalid module")

	// ErrInvalidKind is returned when a module kind is not recognised.
	ErrInvalidKind = errors.New("device: invalid kind")

	// ErrInvalidAddr is returned when a bus address is out of range.
	ErrInvalidAddr = errors.New("device: invalid address")

	// ErrInvalidState is returned when state validation fails.
	ErrInvalidState = errors.New("device: invalid state")

	// ErrInvalidName is returned when a module name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidSlug is returned when a slug format is invalid.
	ErrInvalidSlug = errors.New("device: invalid slug")
)
