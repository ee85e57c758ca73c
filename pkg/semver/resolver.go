package semver

import (
	"fmt"
	"sort"

	masterminds "github.com/Masterminds/semver/v3"
)

const resolverLogPrefix = "semver:resolver"

// Candidate is one version of a module kind that a catalog can build.
type Candidate struct {
	Kind       string
	Version    string
	Deprecated bool
}

// Resolve picks the best candidate for rangeStr. An empty range picks the
// latest stable version of the highest major; a major-only range the
// latest stable version in that major; anything else is a SemVer
// constraint. Non-deprecated versions are preferred unless
// includeDeprecated is set. Returns nil when nothing matches.
func Resolve(candidates []Candidate, rangeStr string, includeDeprecated bool) (*Candidate, error) {
	type parsed struct {
		c Candidate
		v *masterminds.Version
	}
	all := make([]parsed, 0, len(candidates))
	for _, c := range candidates {
		v, err := masterminds.NewVersion(c.Version)
		if err != nil {
			return nil, fmt.Errorf("%s - %s has invalid version %q: %w", resolverLogPrefix, c.Kind, c.Version, err)
		}
		all = append(all, parsed{c: c, v: v})
	}

	var match func(v *masterminds.Version) bool
	switch {
	case rangeStr == "":
		match = func(*masterminds.Version) bool { return true }
	case IsMajorOnly(rangeStr):
		major := uint64(ExtractMajorFromRange(rangeStr))
		match = func(v *masterminds.Version) bool { return v.Major() == major }
	default:
		constraint, err := masterminds.NewConstraint(rangeStr)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid version range %q: %w", resolverLogPrefix, rangeStr, err)
		}
		match = constraint.Check
	}

	var matching []parsed
	for _, p := range all {
		if match(p.v) {
			matching = append(matching, p)
		}
	}
	if len(matching) == 0 {
		return nil, nil
	}

	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].v.GreaterThan(matching[j].v)
	})

	// An unconstrained or major-only request keeps to the highest major and
	// avoids prereleases when a stable version exists.
	if rangeStr == "" || IsMajorOnly(rangeStr) {
		top := matching[0].v.Major()
		var stable, inMajor []parsed
		for _, p := range matching {
			if p.v.Major() != top {
				continue
			}
			inMajor = append(inMajor, p)
			if p.v.Prerelease() == "" {
				stable = append(stable, p)
			}
		}
		matching = inMajor
		if len(stable) > 0 {
			matching = stable
		}
	}

	if !includeDeprecated {
		for i := range matching {
			if !matching[i].c.Deprecated {
				c := matching[i].c
				return &c, nil
			}
		}
	}
	c := matching[0].c
	return &c, nil
}

// SatisfiesRange checks if a version string satisfies a range.
func SatisfiesRange(version, rangeStr string) bool {
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}
	if rangeStr == "" {
		return true
	}
	if IsMajorOnly(rangeStr) {
		return int(sv.Major()) == ExtractMajorFromRange(rangeStr)
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}
