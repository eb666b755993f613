package delegation

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/jonwraymond/authcore/auth"
)

// MintRoute returns the token minting endpoint. Anonymous callers are
// rejected, and callers already operating under a delegation token may not
// mint another one.
func MintRoute(m *Minter) *auth.Route {
	return auth.MustRoute("delegation.mint", auth.RequireNonAnonymous(), m.mintHandler)
}

type mintResponse struct {
	DelegationToken  string `json:"delegation_token"`
	SubtokenID       string `json:"subtoken_id"`
	ValidityDuration int    `json:"validity_duration"`
}

func (m *Minter) mintHandler(w http.ResponseWriter, r *http.Request, st *auth.State) error {
	if st.CurrentIdentity != st.PeerIdentity {
		return &auth.AuthorizationError{
			Subject: st.CurrentIdentity.String(),
			Reason:  "This API call must not be used with active delegation token",
		}
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return &ValidationError{Reason: "expecting application/json body"}
		}
	}

	req, err := ParseMintRequest(r.Body)
	if err != nil {
		return err
	}

	res, err := m.Mint(r.Context(), req, st.CurrentIdentity, st.PeerIP.String())
	if err != nil {
		return err
	}

	auth.WriteJSON(w, http.StatusCreated, mintResponse{
		DelegationToken:  res.Token,
		SubtokenID:       strconv.FormatInt(res.SubtokenID, 10),
		ValidityDuration: res.ValidityDuration,
	})
	return nil
}
