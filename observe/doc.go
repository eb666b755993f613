// Package observe provides observability primitives for the trust core.
//
// It is a pure instrumentation library: structured logging, request metrics,
// and tracing for the auth dispatch path and the delegation minting service.
// No transport or business logic lives here; consumers wire the Observer into
// the auth dispatcher and the minter.
package observe
