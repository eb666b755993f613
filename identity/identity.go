package identity

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind tags an identity with the class of principal it names.
type Kind string

const (
	KindAnonymous Kind = "anonymous"
	KindUser      Kind = "user"
	KindService   Kind = "service"
	KindBot       Kind = "bot"
)

// knownKinds maps each kind to the validation pattern for its name part.
var knownKinds = map[Kind]*regexp.Regexp{
	KindAnonymous: regexp.MustCompile(`^anonymous$`),
	KindUser:      regexp.MustCompile(`^[0-9a-zA-Z_\-\.\+\%]+@[0-9a-zA-Z_\-\.]+$`),
	KindService:   regexp.MustCompile(`^[0-9a-zA-Z_\-\:\.]+$`),
	KindBot:       regexp.MustCompile(`^[0-9a-zA-Z_\-\.@]+$`),
}

// Identity is an immutable principal value. The zero value is not valid;
// use Anonymous for the anonymous principal.
type Identity struct {
	// Kind is the principal class.
	Kind Kind

	// Name is the principal name, validated per kind.
	Name string
}

// Anonymous is the identity assigned to requests with no credentials.
var Anonymous = Identity{Kind: KindAnonymous, Name: "anonymous"}

// Parse converts a "<kind>:<name>" string into an Identity.
func Parse(s string) (Identity, error) {
	kind, name, ok := strings.Cut(s, ":")
	if !ok {
		return Identity{}, fmt.Errorf("identity: malformed identity string %q", s)
	}
	return New(Kind(kind), name)
}

// New builds an Identity, validating the name against the kind's format.
func New(kind Kind, name string) (Identity, error) {
	re, ok := knownKinds[kind]
	if !ok {
		return Identity{}, fmt.Errorf("identity: unknown identity kind %q", kind)
	}
	if !re.MatchString(name) {
		return Identity{}, fmt.Errorf("identity: bad %q identity name %q", kind, name)
	}
	return Identity{Kind: kind, Name: name}, nil
}

// MustParse is Parse for static identity strings. It panics on error and is
// intended for package-level declarations and tests.
func MustParse(s string) Identity {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String serializes the identity as "<kind>:<name>".
func (id Identity) String() string {
	return string(id.Kind) + ":" + id.Name
}

// IsAnonymous returns true for the anonymous principal.
func (id Identity) IsAnonymous() bool {
	return id.Kind == KindAnonymous
}

// IsValid reports whether the identity holds a well-formed kind and name.
func (id Identity) IsValid() bool {
	re, ok := knownKinds[id.Kind]
	return ok && re.MatchString(id.Name)
}

// MarshalText serializes the identity for JSON and YAML encoding.
func (id Identity) MarshalText() ([]byte, error) {
	if !id.IsValid() {
		return nil, fmt.Errorf("identity: cannot serialize invalid identity %q:%q", id.Kind, id.Name)
	}
	return []byte(id.String()), nil
}

// UnmarshalText parses a "<kind>:<name>" string.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Email returns the name for user identities, empty string otherwise.
func (id Identity) Email() string {
	if id.Kind == KindUser {
		return id.Name
	}
	return ""
}
