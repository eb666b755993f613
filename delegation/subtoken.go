package delegation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonwraymond/authcore/identity"
)

// Validity duration bounds for minted tokens, in seconds. Configured rules
// may impose tighter ceilings through max_validity_duration but can never
// widen these.
const (
	MinValiditySeconds = 30
	MaxValiditySeconds = 24 * 3600
	DefValiditySeconds = 3600
)

// Subtoken is the delegation descriptor that gets sealed into a token.
// RequestorIdentity is always the caller that made the mint request;
// DelegatedIdentity is the identity whose authority the token conveys
// (equal to the requestor unless impersonation was authorized).
type Subtoken struct {
	RequestorIdentity identity.Identity `json:"requestor_identity"`
	DelegatedIdentity identity.Identity `json:"delegated_identity"`
	Audience          []string          `json:"audience"`
	Services          []string          `json:"services"`
	CreationTime      time.Time         `json:"creation_time"`
	ValidityDuration  int               `json:"validity_duration"`
	SubtokenID        int64             `json:"subtoken_id,omitempty"`
}

// Expiry returns the instant the subtoken stops being valid.
func (s *Subtoken) Expiry() time.Time {
	return s.CreationTime.Add(time.Duration(s.ValidityDuration) * time.Second)
}

// Serialize encodes the subtoken for the audit record.
func (s *Subtoken) Serialize() ([]byte, error) {
	return json.Marshal(s)
}

// MintRequest is a validated, normalized token request body.
type MintRequest struct {
	// Audience lists who may use the token: identities, "group:<name>"
	// entries, or ["*"]. Never empty.
	Audience []string

	// Services lists where the token is valid: service identities or
	// ["*"]. Never empty.
	Services []string

	// ValidityDuration is in seconds, within the accepted bounds.
	ValidityDuration int

	// Impersonate is the identity to delegate as, or the zero value for
	// self-delegation.
	Impersonate identity.Identity

	// Intent is a free-text audit-only reason.
	Intent string
}

// ParseMintRequest validates and normalizes a JSON mint request body.
// Every failure is a *ValidationError naming the offending field.
func ParseMintRequest(body io.Reader) (*MintRequest, error) {
	var d map[string]any
	if err := json.NewDecoder(body).Decode(&d); err != nil {
		return nil, &ValidationError{Reason: "not a valid json dict body"}
	}

	req := &MintRequest{ValidityDuration: DefValiditySeconds}

	audience, err := parsePrincipalList(d, "audience", true)
	if err != nil {
		return nil, err
	}
	req.Audience = audience

	services, err := parsePrincipalList(d, "services", false)
	if err != nil {
		return nil, err
	}
	req.Services = services

	if raw, ok := d["validity_duration"]; ok {
		dur, ok := raw.(float64)
		if !ok {
			return nil, &ValidationError{Reason: `"validity_duration" must be a positive number`}
		}
		if dur < MinValiditySeconds || dur > MaxValiditySeconds {
			return nil, &ValidationError{Reason: fmt.Sprintf(
				`"validity_duration" must be between %d and %d sec`,
				MinValiditySeconds, MaxValiditySeconds)}
		}
		req.ValidityDuration = int(dur)
	}

	if raw, ok := d["impersonate"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, &ValidationError{Reason: `"impersonate" must be an identity string`}
		}
		imp, err := identity.Parse(s)
		if err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf(
				`invalid identity name %q in "impersonate": %s`, s, err)}
		}
		req.Impersonate = imp
	}

	if raw, ok := d["intent"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, &ValidationError{Reason: `"intent" must be string`}
		}
		req.Intent = s
	}

	return req, nil
}

// parsePrincipalList validates a required list field. Group entries are
// accepted only when allowGroups is set; "*" is always accepted and
// collapses the list.
func parsePrincipalList(d map[string]any, field string, allowGroups bool) ([]string, error) {
	badList := &ValidationError{Reason: fmt.Sprintf(
		"%q must be a non-empty list of strings", field)}

	raw, ok := d[field]
	if !ok {
		return nil, badList
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return nil, badList
	}

	out := make([]string, 0, len(list))
	for _, e := range list {
		s, ok := e.(string)
		if !ok {
			return nil, badList
		}
		switch {
		case s == "*":
			// valid, collapses below
		case allowGroups && strings.HasPrefix(s, identity.GroupPrefix):
			if !identity.IsValidGroupName(strings.TrimPrefix(s, identity.GroupPrefix)) {
				return nil, &ValidationError{Reason: fmt.Sprintf(
					"invalid group name in %q: %s", field, s)}
			}
		default:
			if _, err := identity.Parse(s); err != nil {
				return nil, &ValidationError{Reason: fmt.Sprintf(
					"invalid identity name %q in %q: %s", s, field, err)}
			}
		}
		out = append(out, s)
	}

	return collapseWildcard(out), nil
}

// collapseWildcard reduces any list containing "*" to exactly ["*"].
func collapseWildcard(list []string) []string {
	for _, e := range list {
		if e == "*" {
			return []string{"*"}
		}
	}
	return list
}

// containsWildcard reports whether the list names everyone/everything.
func containsWildcard(list []string) bool {
	for _, e := range list {
		if e == "*" {
			return true
		}
	}
	return false
}
