package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subject prefixes.
const (
	DefaultSubjectPrefix = "modules"
	DefaultEventPrefix   = "modules.events"
	DefaultOutboxPrefix  = "modules.outbound"
)

// Subjects holds the request/reply subjects the manager serves.
type Subjects struct {
	Execute     string
	Query       string
	Instantiate string
}

// BuildSubjects derives the operation subjects from prefix. An empty prefix
// uses DefaultSubjectPrefix.
func BuildSubjects(prefix string) Subjects {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	prefix = strings.TrimSuffix(prefix, ".")
	return Subjects{
		Execute:     prefix + ".execute",
		Query:       prefix + ".query",
		Instantiate: prefix + ".instantiate",
	}
}

// BuildEventSubject builds the subject a module event of eventType is
// published on.
func BuildEventSubject(prefix, eventType string) string {
	if prefix == "" {
		prefix = DefaultEventPrefix
	}
	return fmt.Sprintf("%s.%s", strings.TrimSuffix(prefix, "."), sanitizeToken(eventType))
}

// BuildOutboundSubject builds the subject an outbound module message for
// target is forwarded to. Dots in target are kept as subject hierarchy.
func BuildOutboundSubject(prefix, target string) string {
	if prefix == "" {
		prefix = DefaultOutboxPrefix
	}
	return fmt.Sprintf("%s.%s", strings.TrimSuffix(prefix, "."), sanitizeToken(target))
}

// sanitizeToken replaces characters NATS does not allow inside a subject
// token. Empty input becomes "_".
func sanitizeToken(s string) string {
	s = strings.Trim(s, ".")
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '*', '>':
			return '_'
		}
		return r
	}, s)
}
