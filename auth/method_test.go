package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonwraymond/authcore/identity"
)

// fakeMethod is a scriptable chain entry.
type fakeMethod struct {
	name        string
	headerBased bool
	id          identity.Identity
	applies     bool
	err         error
	calls       int
}

func (m *fakeMethod) Name() string      { return m.name }
func (m *fakeMethod) HeaderBased() bool { return m.headerBased }

func (m *fakeMethod) Authenticate(context.Context, *http.Request) (identity.Identity, bool, error) {
	m.calls++
	return m.id, m.applies, m.err
}

func TestChainFirstClaimWins(t *testing.T) {
	first := &fakeMethod{name: "first", applies: true, id: identity.MustParse("user:first@example.com")}
	second := &fakeMethod{name: "second", applies: true, id: identity.MustParse("user:second@example.com")}
	chain := &Chain{Methods: []Method{first, second}}

	id, method, err := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("Authenticate error = %v", err)
	}
	if id != first.id {
		t.Errorf("identity = %v, want %v", id, first.id)
	}
	if method != Method(first) {
		t.Errorf("method = %v, want first", method)
	}
	if second.calls != 0 {
		t.Error("second method was consulted after the first claimed the request")
	}
}

func TestChainSkipsNonApplicable(t *testing.T) {
	first := &fakeMethod{name: "first"}
	second := &fakeMethod{name: "second", applies: true, id: identity.MustParse("service:builder")}
	chain := &Chain{Methods: []Method{first, second}}

	id, method, err := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("Authenticate error = %v", err)
	}
	if id != second.id || method != Method(second) {
		t.Errorf("got (%v, %v), want second method's identity", id, method)
	}
}

func TestChainHardFailureAborts(t *testing.T) {
	authErr := &AuthenticationError{Method: "first", Reason: "bad credential"}
	first := &fakeMethod{name: "first", err: authErr}
	second := &fakeMethod{name: "second", applies: true, id: identity.MustParse("service:builder")}
	chain := &Chain{Methods: []Method{first, second}}

	_, _, err := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("Authenticate error = %v, want unauthenticated class", err)
	}
	if second.calls != 0 {
		t.Error("chain fell through to the next method after a hard failure")
	}
}

func TestChainAllPassIsAnonymous(t *testing.T) {
	chain := &Chain{Methods: []Method{&fakeMethod{name: "first"}, &fakeMethod{name: "second"}}}

	id, method, err := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("Authenticate error = %v", err)
	}
	if id != identity.Anonymous {
		t.Errorf("identity = %v, want anonymous", id)
	}
	if method != nil {
		t.Errorf("method = %v, want nil", method)
	}
}

func TestChainEmpty(t *testing.T) {
	chain := &Chain{}
	id, _, err := chain.Authenticate(context.Background(), httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("Authenticate error = %v", err)
	}
	if id != identity.Anonymous {
		t.Errorf("identity = %v, want anonymous", id)
	}
}
