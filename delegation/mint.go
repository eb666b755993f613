package delegation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/authcore/auth"
	"github.com/jonwraymond/authcore/identity"
	"github.com/jonwraymond/authcore/observe"
	"github.com/jonwraymond/authcore/registry"
)

// Minter mints delegation tokens: it authorizes the request against the
// rule engine, persists the audit record, and seals the subtoken.
type Minter struct {
	// Engine evaluates the configured delegation rules.
	Engine *Engine

	// Registry persists the audit record and assigns the subtoken id.
	Registry registry.Registry

	// Sealer signs the approved subtoken.
	Sealer Sealer

	// ServiceVersion identifies this build in audit records.
	ServiceVersion string

	// Logger receives the per-mint audit line. Optional.
	Logger observe.Logger

	// Metrics receives mint outcome counters. Optional.
	Metrics observe.Metrics

	// now is overridable in tests.
	now func() time.Time
}

// MintResult is a successfully minted token.
type MintResult struct {
	// Token is the sealed delegation token.
	Token string

	// SubtokenID is the audit record id assigned by the registry.
	SubtokenID int64

	// ValidityDuration is the granted validity in seconds.
	ValidityDuration int
}

// Mint authorizes req on behalf of caller and returns a sealed token.
//
// A requested services list of ["*"] is first expanded to the caller's
// default allowed services, so the rule that authorizes the mint is
// selected against the concrete list the token will actually carry.
//
// The audit record is written before sealing. If sealing then fails the
// record stays: an id was consumed but no authority was issued.
func (m *Minter) Mint(ctx context.Context, req *MintRequest, caller identity.Identity, callerIP string) (*MintResult, error) {
	start := m.timeNow()
	res, err := m.mint(ctx, req, caller, callerIP, start)
	m.recordOutcome(ctx, err, m.timeNow().Sub(start))
	return res, err
}

func (m *Minter) mint(ctx context.Context, req *MintRequest, caller identity.Identity, callerIP string, now time.Time) (*MintResult, error) {
	services := req.Services
	if containsWildcard(services) {
		expanded, err := m.Engine.DefaultAllowedServices(ctx, caller)
		if err != nil {
			return nil, &auth.TransientError{Op: "delegation rule lookup", Cause: err}
		}
		services = expanded
	}

	rule, err := m.Engine.SelectRule(ctx, caller, services)
	if err != nil {
		return nil, &auth.TransientError{Op: "delegation rule lookup", Cause: err}
	}

	scoped := *req
	scoped.Services = services
	delegated, err := m.Engine.AuthorizeMint(ctx, rule, &scoped, caller)
	if err != nil {
		return nil, err
	}

	sub := &Subtoken{
		RequestorIdentity: caller,
		DelegatedIdentity: delegated,
		Audience:          req.Audience,
		Services:          services,
		CreationTime:      now.UTC(),
		ValidityDuration:  req.ValidityDuration,
	}

	subBlob, err := sub.Serialize()
	if err != nil {
		return nil, fmt.Errorf("delegation: serializing subtoken: %w", err)
	}
	ruleBlob, err := json.Marshal(rule)
	if err != nil {
		return nil, fmt.Errorf("delegation: serializing rule: %w", err)
	}

	id, err := m.Registry.Register(ctx, &registry.Record{
		Subtoken:          subBlob,
		Rule:              ruleBlob,
		Intent:            req.Intent,
		CallerIP:          callerIP,
		ServiceVersion:    m.ServiceVersion,
		DelegatedIdentity: delegated.String(),
		RequestorIdentity: caller.String(),
		Services:          services,
		CreationTime:      sub.CreationTime,
	})
	if err != nil {
		return nil, &auth.TransientError{Op: "delegation registry write", Cause: err}
	}

	sub.SubtokenID = id
	token, err := m.Sealer.Seal(sub)
	if err != nil {
		m.warn(ctx, "sealing failed after audit record was registered",
			observe.Field{Key: "subtoken_id", Value: id},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return nil, err
	}

	m.audit(ctx, sub, rule, callerIP)
	return &MintResult{
		Token:            token,
		SubtokenID:       id,
		ValidityDuration: sub.ValidityDuration,
	}, nil
}

// audit writes the one-line issuance record to the log.
func (m *Minter) audit(ctx context.Context, sub *Subtoken, rule Rule, callerIP string) {
	if m.Logger == nil {
		return
	}
	m.Logger.Info(ctx, "minted delegation token",
		observe.Field{Key: "subtoken_id", Value: sub.SubtokenID},
		observe.Field{Key: "requestor", Value: sub.RequestorIdentity.String()},
		observe.Field{Key: "delegated", Value: sub.DelegatedIdentity.String()},
		observe.Field{Key: "audience", Value: sub.Audience},
		observe.Field{Key: "services", Value: sub.Services},
		observe.Field{Key: "validity_duration", Value: sub.ValidityDuration},
		observe.Field{Key: "rule", Value: rule.Name},
		observe.Field{Key: "caller_ip", Value: callerIP},
	)
}

func (m *Minter) recordOutcome(ctx context.Context, err error, d time.Duration) {
	if m.Metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrValidation):
			outcome = "bad_request"
		case errors.Is(err, auth.ErrForbidden):
			outcome = "forbidden"
		default:
			outcome = "error"
		}
	}
	m.Metrics.RecordMint(ctx, outcome, d)
}

func (m *Minter) warn(ctx context.Context, msg string, fields ...observe.Field) {
	if m.Logger == nil {
		return
	}
	m.Logger.Warn(ctx, msg, fields...)
}

func (m *Minter) timeNow() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}
