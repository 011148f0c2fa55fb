package habitron

import (
	"errors"
	"fmt"
)

// Domain errors for the Habitron bridge package.
var (
	// ErrConnection is returned when the router host cannot be reached
	// (name resolution failure, refused connection).
	ErrConnection = errors.New("habitron: connection to router failed")

	// ErrTimeout is returned when the router does not answer within the
	// configured deadline.
	ErrTimeout = errors.New("habitron: operation timed out")

	// ErrFraming is returned when a binary frame is malformed or truncated,
	// or when a status block length is not a multiple of the record size.
	ErrFraming = errors.New("habitron: malformed frame")

	// ErrShortResponse is returned when the stream closes before the
	// declared response length has been received. Matches ErrFraming
	// under errors.Is.
	ErrShortResponse = fmt.Errorf("%w: short response", ErrFraming)

	// ErrEncoding is returned when a command template cannot be encoded,
	// e.g. a substitution value does not fit in one byte.
	ErrEncoding = errors.New("habitron: command encoding failed")

	// ErrInvalidArgument is returned by command builders when a semantic
	// argument is out of range. Raised before any I/O is attempted.
	ErrInvalidArgument = errors.New("habitron: invalid argument")

	// ErrUnknownCommand is returned when a command name is not present in
	// the catalog.
	ErrUnknownCommand = errors.New("habitron: unknown command")

	// ErrUnknownModuleType is returned by mirror reads for a module whose
	// type code is not in the catalog: without a type there is no way to
	// pick a mirror layout. Compact decoding instead degrades to a minimal
	// field set, see ModuleRecord.Unknown.
	ErrUnknownModuleType = errors.New("habitron: unknown module type")
)
