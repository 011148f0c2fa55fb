package device

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxSlugLength = 50
	slugPattern   = `^[a-z0-9]+(?:-[a-z0-9]+)*$`

	// Bus address bounds. Address 0 is the router itself.
	minBusAddr = 1
	maxBusAddr = 250

	// Size limits for the state map to prevent memory exhaustion from a
	// misbehaving decoder or hand-edited database.
	maxStateKeys      = 100
	maxStringValueLen = 1024
	maxArrayLen       = 64
)

var slugRegex = regexp.MustCompile(slugPattern)

// Pre-computed validation sets for O(1) lookups instead of O(n) linear search.
var (
	validKinds        map[ModuleKind]struct{}
	validHealthStatus map[HealthStatus]struct{}
)

func init() {
	// Build validation sets once at startup
	validKinds = make(map[ModuleKind]struct{}, len(AllModuleKinds()))
	for _, k := range AllModuleKinds() {
		validKinds[k] = struct{}{}
	}

	validHealthStatus = make(map[HealthStatus]struct{}, len(AllHealthStatuses()))
	for _, s := range AllHealthStatuses() {
		validHealthStatus[s] = struct{}{}
	}
}

// ValidateModule performs comprehensive validation on a module.
// Returns an error describing the first validation failure found.
func ValidateModule(m *Module) error {
	if m == nil {
		return ErrInvalidModule
	}

	// Validate name
	if err := ValidateName(m.Name); err != nil {
		return err
	}

	// Validate slug if provided (empty slug will be generated)
	if m.Slug != "" {
		if err := ValidateSlug(m.Slug); err != nil {
			return err
		}
	}

	// Validate bus location
	if m.RouterID < 1 {
		return fmt.Errorf("%w: router id must be positive", ErrInvalidAddr)
	}
	if m.Addr < minBusAddr || m.Addr > maxBusAddr {
		return fmt.Errorf("%w: bus address %d outside %d..%d", ErrInvalidAddr, m.Addr, minBusAddr, maxBusAddr)
	}

	// Validate kind
	if err := ValidateKind(m.Kind); err != nil {
		return err
	}

	// Validate state size if provided
	if len(m.State) > maxStateKeys {
		return fmt.Errorf("%w: state exceeds max keys (%d)", ErrInvalidState, maxStateKeys)
	}
	if err := validateMapSize(m.State, "state"); err != nil {
		return err
	}

	// Validate health status if set
	if m.HealthStatus != "" {
		if err := ValidateHealthStatus(m.HealthStatus); err != nil {
			return err
		}
	}

	return nil
}

// validateMapSize checks that all values in a map don't exceed size limits.
// This recursively validates nested maps and slices.
func validateMapSize(m map[string]any, fieldName string) error {
	return validateMapSizeRecursive(m, fieldName, 0)
}

// maxNestingDepth prevents stack overflow from deeply nested structures.
const maxNestingDepth = 10

// validateMapSizeRecursive recursively validates map values with depth tracking.
func validateMapSizeRecursive(m map[string]any, fieldName string, depth int) error {
	if depth > maxNestingDepth {
		return fmt.Errorf("%w: %s exceeds maximum nesting depth", ErrInvalidModule, fieldName)
	}

	for k, v := range m {
		// Check key length
		if len(k) > maxStringValueLen {
			return fmt.Errorf("%w: %s key too long", ErrInvalidModule, fieldName)
		}
		// Recursively validate values
		if err := validateValueSize(v, fieldName, depth); err != nil {
			return err
		}
	}
	return nil
}

// validateValueSize recursively validates a value's size.
func validateValueSize(v any, fieldName string, depth int) error {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case string:
		if len(val) > maxStringValueLen {
			return fmt.Errorf("%w: %s string value too long", ErrInvalidModule, fieldName)
		}
	case map[string]any:
		if len(val) > maxStateKeys {
			return fmt.Errorf("%w: %s nested map too large", ErrInvalidModule, fieldName)
		}
		return validateMapSizeRecursive(val, fieldName, depth+1)
	case []any:
		if len(val) > maxArrayLen {
			return fmt.Errorf("%w: %s array too large", ErrInvalidModule, fieldName)
		}
		for _, elem := range val {
			if err := validateValueSize(elem, fieldName, depth+1); err != nil {
				return err
			}
		}
	}
	// Primitives (bool, int, float64, etc.) are safe
	return nil
}

// ValidateName checks if a module name is valid.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSlug checks if a slug format is valid.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug cannot be empty", ErrInvalidSlug)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("%w: slug must be lowercase alphanumeric with hyphens", ErrInvalidSlug)
	}
	return nil
}

// ValidateKind checks if a module kind is valid.
// Uses O(1) map lookup for efficiency.
func ValidateKind(kind ModuleKind) error {
	if _, ok := validKinds[kind]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
}

// ValidateHealthStatus checks if a health status is valid.
// Uses O(1) map lookup for efficiency.
func ValidateHealthStatus(status HealthStatus) error {
	if _, ok := validHealthStatus[status]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidState, status)
}

// GenerateSlug creates a URL-safe slug from a name.
func GenerateSlug(name string) string {
	// Convert to lowercase
	slug := strings.ToLower(name)

	// Replace spaces and underscores with hyphens
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	// Remove any characters that aren't alphanumeric or hyphens
	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	// Remove leading/trailing hyphens and collapse multiple hyphens
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	// Truncate if too long
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		// Don't end with a hyphen
		slug = strings.TrimRight(slug, "-")
	}

	return slug
}

// GenerateID creates a new UUID for a module.
func GenerateID() string {
	return uuid.New().String()
}
