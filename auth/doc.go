// Package auth decides who is calling.
//
// It provides the ordered authentication method chain, IP whitelist policy,
// XSRF enforcement policy, and the request dispatch sequence that ties them
// together around a wrapped business handler. The package is the trust core
// of the platform: every inbound request passes through Dispatcher before any
// business logic runs.
//
// Identity resolution distinguishes the peer identity (who physically made
// the call, established by transport-level authentication) from the current
// identity (who the call is made as, after applying a valid delegation
// token). Both are carried in an immutable per-request State value.
package auth
