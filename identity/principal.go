package identity

import (
	"context"
	"regexp"
	"strings"

	"github.com/jonwraymond/authcore/observe"
)

// GroupPrefix marks a principal descriptor that references a group.
const GroupPrefix = "group:"

// groupNameRe validates group names referenced from descriptors.
var groupNameRe = regexp.MustCompile(`^([a-z\-]+/)?[0-9a-z_\-\.@]{1,100}$`)

// IsValidGroupName reports whether name is an acceptable group name.
func IsValidGroupName(name string) bool {
	return groupNameRe.MatchString(name)
}

// GroupLookup answers group membership questions. The backing data source is
// externally owned and may be eventually consistent; implementations must be
// safe for concurrent use.
type GroupLookup interface {
	// IsMember reports whether id belongs to the named group.
	IsMember(ctx context.Context, group string, id Identity) (bool, error)
}

// GroupLookupFunc adapts a function to the GroupLookup interface.
type GroupLookupFunc func(ctx context.Context, group string, id Identity) (bool, error)

// IsMember calls the function.
func (f GroupLookupFunc) IsMember(ctx context.Context, group string, id Identity) (bool, error) {
	return f(ctx, group, id)
}

// Matcher resolves principal descriptors against identities.
//
// A descriptor is one of "*" (everyone, including anonymous), a
// "group:<name>" reference, an identity glob containing '*', or an exact
// identity string. Descriptors come from trusted rule configuration, so an
// unrecognized format matches false with a logged warning instead of
// failing the request.
type Matcher struct {
	Groups GroupLookup
	Logger observe.Logger
}

// Matches reports whether id is in the set selected by descriptor.
// The only error returned is a group lookup failure; every parse problem
// degrades to a non-match.
func (m *Matcher) Matches(ctx context.Context, descriptor string, id Identity) (bool, error) {
	// Everyone?
	if descriptor == "*" {
		return true, nil
	}

	// Group?
	if name, ok := strings.CutPrefix(descriptor, GroupPrefix); ok {
		if !IsValidGroupName(name) {
			m.warn(ctx, descriptor, "bad group name")
			return false, nil
		}
		if m.Groups == nil {
			return false, nil
		}
		return m.Groups.IsMember(ctx, name, id)
	}

	// Glob?
	if strings.Contains(descriptor, "*") {
		glob, err := ParseGlob(descriptor)
		if err != nil {
			m.warn(ctx, descriptor, err.Error())
			return false, nil
		}
		return glob.Match(id), nil
	}

	// Exact identity?
	exact, err := Parse(descriptor)
	if err != nil {
		m.warn(ctx, descriptor, err.Error())
		return false, nil
	}
	return exact == id, nil
}

// MatchesAny reports whether id is in the union of the descriptor sets.
func (m *Matcher) MatchesAny(ctx context.Context, descriptors []string, id Identity) (bool, error) {
	for _, d := range descriptors {
		ok, err := m.Matches(ctx, d, id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *Matcher) warn(ctx context.Context, descriptor, reason string) {
	if m.Logger == nil {
		return
	}
	m.Logger.Warn(ctx, "unrecognized principal descriptor",
		observe.Field{Key: "descriptor", Value: descriptor},
		observe.Field{Key: "reason", Value: reason},
	)
}
