package identity

import (
	"fmt"
	"regexp"
	"strings"
)

// Glob selects a set of identities of a single kind using a '*' wildcard
// pattern over the name, e.g. "user:*@example.com".
type Glob struct {
	kind    Kind
	pattern string
	re      *regexp.Regexp
}

// ParseGlob converts a "<kind>:<pattern>" string into a Glob. The pattern
// must contain at least one '*'; a pattern without wildcards is an exact
// identity, not a glob.
func ParseGlob(s string) (Glob, error) {
	kind, pattern, ok := strings.Cut(s, ":")
	if !ok {
		return Glob{}, fmt.Errorf("identity: malformed identity glob %q", s)
	}
	if _, known := knownKinds[Kind(kind)]; !known {
		return Glob{}, fmt.Errorf("identity: unknown identity kind in glob %q", s)
	}
	if !strings.Contains(pattern, "*") {
		return Glob{}, fmt.Errorf("identity: glob %q contains no wildcard", s)
	}
	re, err := compileGlob(pattern)
	if err != nil {
		return Glob{}, fmt.Errorf("identity: bad glob %q: %w", s, err)
	}
	return Glob{kind: Kind(kind), pattern: pattern, re: re}, nil
}

// compileGlob translates a '*' wildcard pattern into an anchored regexp.
// Everything except '*' is matched literally.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`^`)
	for i, chunk := range strings.Split(pattern, "*") {
		if i > 0 {
			b.WriteString(`.*`)
		}
		b.WriteString(regexp.QuoteMeta(chunk))
	}
	b.WriteString(`$`)
	return regexp.Compile(b.String())
}

// Match reports whether the identity is in the set described by the glob.
// The kind must match exactly; the wildcard applies only to the name.
func (g Glob) Match(id Identity) bool {
	if g.re == nil || id.Kind != g.kind {
		return false
	}
	return g.re.MatchString(id.Name)
}

// String serializes the glob as "<kind>:<pattern>".
func (g Glob) String() string {
	return string(g.kind) + ":" + g.pattern
}
