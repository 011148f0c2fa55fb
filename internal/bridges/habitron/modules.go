package habitron

import (
	"fmt"
	"strings"
)

// ModuleDescriptor is one entry of the router's module enumeration.
type ModuleDescriptor struct {
	// Addr is the module's bus address, local to its router.
	Addr byte

	// Type is the 2-byte hardware type code.
	Type ModuleTypeCode

	// Name is the installer-assigned module name.
	Name string
}

// moduleListEntryHeader is the fixed part of one enumeration entry:
// address, two type bytes, name length.
const moduleListEntryHeader = 4

// ParseModuleList decodes a module enumeration response into descriptors.
//
// Each entry is address, type code (2 bytes), name length and the name
// itself. Entries repeat until the payload is exhausted; a truncated entry
// is a framing error.
//
// Parameters:
//   - payload: Response payload of the module enumeration read
//
// Returns:
//   - []ModuleDescriptor: Modules in enumeration order
//   - error: ErrFraming on a truncated entry
func ParseModuleList(payload []byte) ([]ModuleDescriptor, error) {
	var mods []ModuleDescriptor
	rest := payload
	for len(rest) > 0 {
		if len(rest) < moduleListEntryHeader {
			return nil, fmt.Errorf("%w: module list entry of %d bytes", ErrFraming, len(rest))
		}
		nameLen := int(rest[3])
		if len(rest) < moduleListEntryHeader+nameLen {
			return nil, fmt.Errorf("%w: module list name needs %d bytes, %d left", ErrFraming, nameLen, len(rest)-moduleListEntryHeader)
		}
		mods = append(mods, ModuleDescriptor{
			Addr: rest[0],
			Type: ModuleTypeCode{rest[1], rest[2]},
			Name: strings.TrimSpace(decodeLatin1(rest[moduleListEntryHeader : moduleListEntryHeader+nameLen])),
		})
		rest = rest[moduleListEntryHeader+nameLen:]
	}
	return mods, nil
}

// decodeLatin1 converts ISO 8859-1 bytes to a string. Module names on the
// bus use that charset, not UTF-8.
func decodeLatin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
