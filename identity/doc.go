// Package identity defines the principal model for the trust core.
//
// An Identity is a kind-tagged principal name (user, service, bot, or
// anonymous). Principal descriptors select sets of identities: an exact
// identity string, a "group:<name>" reference, an identity glob containing
// '*', or the special "*" which means everyone including anonymous callers.
// The package is pure value types plus matching predicates; group membership
// data is an external collaborator behind the GroupLookup interface.
package identity
