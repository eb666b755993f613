// Package registry stores audit records for issued delegation tokens.
//
// A record is written exactly once, when a subtoken is approved and before
// it is sealed. Records are never mutated or deleted here; retention is an
// external policy. The store is an append-only audit sink, not a source of
// authority: authority exists only in a successfully sealed token.
package registry

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the backing store could not be reached.
var ErrUnavailable = errors.New("registry: store unavailable")

// Record is one issued-token audit entity. The Subtoken and Rule fields hold
// the serialized forms of what was approved; the remaining fields are
// denormalized copies for query and audit.
type Record struct {
	// Subtoken is the serialized subtoken descriptor.
	Subtoken []byte

	// Rule is the serialized delegation rule that authorized the token.
	Rule []byte

	// Intent is the free-text reason supplied by the caller.
	Intent string

	// CallerIP is the source address of the minting request.
	CallerIP string

	// ServiceVersion identifies the trust core build that minted the token.
	ServiceVersion string

	// DelegatedIdentity is whose authority the token conveys.
	DelegatedIdentity string

	// RequestorIdentity is who initiated the minting request.
	RequestorIdentity string

	// Services lists services that accept the token, or ["*"].
	Services []string

	// CreationTime is when the subtoken was created.
	CreationTime time.Time
}

// Registry assigns ids to issued-token records and persists them.
//
// Contract:
// - Register must be effectively atomic: either a full record becomes
//   visible under the returned id, or nothing is written.
// - Returned ids are globally unique and monotonically increasing.
// - Implementations must be safe for concurrent use.
type Registry interface {
	Register(ctx context.Context, rec *Record) (int64, error)
}
