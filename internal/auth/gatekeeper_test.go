package auth

import (
	"errors"
	"testing"

	"github.com/johndonneUZH/tracko-server-sub001/internal/model"
)

type mockVerifier struct {
	verifyFn func(raw string) (string, error)
}

func (m *mockVerifier) Verify(raw string) (string, error) {
	return m.verifyFn(raw)
}

func newTestGatekeeper() *Gatekeeper {
	return NewGatekeeper(&mockVerifier{verifyFn: func(raw string) (string, error) {
		switch raw {
		case "good":
			return "user-1", nil
		case "expired":
			return "", &model.AuthError{Kind: model.AuthExpired}
		default:
			return "", &model.AuthError{Kind: model.AuthInvalidSignature}
		}
	}}, DefaultProtectedPrefixes)
}

func TestGatekeeper_IsProtected(t *testing.T) {
	g := newTestGatekeeper()

	tests := []struct {
		path string
		want bool
	}{
		{"/users", true},
		{"/users/me", true},
		{"/projects/p-1/ideas", true},
		{"/usersettings", false},
		{"/auth/login", false},
		{"/health", false},
		{"/ws", false},
	}
	for _, tt := range tests {
		if got := g.IsProtected(tt.path); got != tt.want {
			t.Errorf("IsProtected(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestGatekeeper_Admit(t *testing.T) {
	g := newTestGatekeeper()

	tests := []struct {
		name         string
		header       string
		path         string
		wantState    State
		wantIdentity string
		wantKind     model.AuthErrorKind
	}{
		{name: "missing on protected path", path: "/projects/p-1", wantState: StateRejected, wantKind: model.AuthMissing},
		{name: "missing on public path stays anonymous", path: "/auth/login", wantState: StatePending},
		{name: "valid token", header: "Bearer good", path: "/users/me", wantState: StateAuthenticated, wantIdentity: "user-1"},
		{name: "scheme is case insensitive", header: "bearer good", path: "/users/me", wantState: StateAuthenticated, wantIdentity: "user-1"},
		{name: "expired token", header: "Bearer expired", path: "/users/me", wantState: StateRejected, wantKind: model.AuthExpired},
		{name: "tampered token", header: "Bearer forged", path: "/users/me", wantState: StateRejected, wantKind: model.AuthInvalidSignature},
		{name: "invalid token on public path is never anonymous", header: "Bearer forged", path: "/auth/login", wantState: StateRejected, wantKind: model.AuthInvalidSignature},
		{name: "non bearer scheme", header: "Basic dXNlcjpwYXNz", path: "/users/me", wantState: StateRejected, wantKind: model.AuthMalformed},
		{name: "empty bearer", header: "Bearer   ", path: "/users/me", wantState: StateRejected, wantKind: model.AuthMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Admit(tt.header, tt.path)
			if got.State != tt.wantState {
				t.Fatalf("State = %s, want %s", got.State, tt.wantState)
			}
			if got.Identity != tt.wantIdentity {
				t.Errorf("Identity = %q, want %q", got.Identity, tt.wantIdentity)
			}
			if tt.wantState == StateRejected {
				if got.Err == nil || got.Err.Kind != tt.wantKind {
					t.Errorf("Err = %v, want kind %s", got.Err, tt.wantKind)
				}
			} else if got.Err != nil {
				t.Errorf("Err = %v, want nil", got.Err)
			}
		})
	}
}

func TestGatekeeper_AdmitWrapsForeignVerifierErrors(t *testing.T) {
	g := NewGatekeeper(&mockVerifier{verifyFn: func(string) (string, error) {
		return "", errors.New("boom")
	}}, DefaultProtectedPrefixes)

	got := g.Admit("Bearer x", "/users/me")
	if got.State != StateRejected || got.Err == nil || got.Err.Kind != model.AuthMalformed {
		t.Errorf("Admit() = %+v, want rejected as malformed", got)
	}
}

func TestGatekeeper_Authenticate(t *testing.T) {
	g := newTestGatekeeper()

	if id, err := g.Authenticate("Bearer good"); err != nil || id != "user-1" {
		t.Errorf("Authenticate() = %q, %v", id, err)
	}
	_, err := g.Authenticate("")
	if kind, ok := model.AuthErrorKindOf(err); !ok || kind != model.AuthMissing {
		t.Errorf("Authenticate(\"\") error = %v, want missing", err)
	}
}

func TestState_String(t *testing.T) {
	for state, want := range map[State]string{
		StatePending:       "pending",
		StateAuthenticated: "authenticated",
		StateRejected:      "rejected",
	} {
		if got := state.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
