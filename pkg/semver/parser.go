// Package semver parses module references and resolves them against the
// versions a catalog offers.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:parser"

// ModuleRef holds the parsed components of a module reference string.
type ModuleRef struct {
	// Kind is the catalog name (e.g. "counter").
	Kind string
	// Range is the version range, empty when none was given (e.g. "^1.2.0", "1").
	Range string
	// Raw input string
	Raw string
}

var (
	kindRegex         = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	majorOnlyRegex    = regexp.MustCompile(`^\d+$`)
	exactVersionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+(-[\w.]+)?(\+[\w.]+)?$`)
)

// ParseModuleRef parses a module reference.
//
// Supported formats:
//   - counter           (latest)
//   - counter@1         (major only)
//   - counter@1.2.0     (exact version)
//   - counter@^1.2.0    (caret range)
//   - counter@~1.2.0    (tilde range)
//   - counter@>=1.0.0   (comparison range)
func ParseModuleRef(input string) (*ModuleRef, error) {
	raw := strings.TrimSpace(input)

	kind, rangeStr, _ := strings.Cut(raw, "@")
	kind = strings.TrimSpace(kind)
	rangeStr = strings.TrimSpace(rangeStr)

	if !ValidateKind(kind) {
		return nil, fmt.Errorf("%s - invalid module kind in reference %q", logPrefix, raw)
	}
	if strings.Contains(raw, "@") && rangeStr == "" {
		return nil, fmt.Errorf("%s - empty version range in reference %q", logPrefix, raw)
	}

	return &ModuleRef{Kind: kind, Range: rangeStr, Raw: raw}, nil
}

// String renders the reference back to kind[@range].
func (r *ModuleRef) String() string {
	if r.Range == "" {
		return r.Kind
	}
	return r.Kind + "@" + r.Range
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// IsExactVersion checks if a range is an exact version (e.g., "3.2.1").
func IsExactVersion(rangeStr string) bool {
	return exactVersionRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	var major int
	fmt.Sscanf(rangeStr, "%d", &major)
	return major
}

// ValidateKind validates a module kind (lowercase, digits, hyphens, underscores).
func ValidateKind(kind string) bool {
	return kindRegex.MatchString(kind)
}
