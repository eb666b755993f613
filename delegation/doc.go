// Package delegation mints and validates bounded-authority delegation
// tokens.
//
// A delegation token (subtoken) lets a bearer assert a delegated identity
// toward a limited audience and set of services for a limited time. Minting
// is gated by an ordered list of configured rules with first-match
// semantics; the synthetic default rule applies when nothing matches.
// Sealing, persistence of the audit record, and group membership are
// external collaborators behind interfaces.
package delegation
