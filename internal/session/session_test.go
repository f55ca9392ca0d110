package session

import "testing"

func TestSessionRefreshChangesCredentialAndRunsHook(t *testing.T) {
	sess := New(Identity{Email: "p@x.com", DisplayName: "P"}, " token-1 ")
	if got := sess.Credential(); got != "token-1" {
		t.Fatalf("expected trimmed credential, got %q", got)
	}

	var hooked Identity
	sess.OnRefresh(func(id Identity) { hooked = id })
	sess.Refresh("token-2")

	if got := sess.Credential(); got != "token-2" {
		t.Fatalf("expected refreshed credential, got %q", got)
	}
	if hooked.Email != "p@x.com" {
		t.Fatalf("expected refresh hook to receive identity, got %+v", hooked)
	}
}

func TestAnonymousAndSignedOutSessionsAreUnauthenticated(t *testing.T) {
	if Anonymous().Authenticated() {
		t.Fatal("expected anonymous session to be unauthenticated")
	}

	sess := New(Identity{Email: "p@x.com"}, "token")
	sess.SignOut()
	if sess.Authenticated() {
		t.Fatal("expected signed out session to be unauthenticated")
	}
	if sess.Identity().Email != "" {
		t.Fatalf("expected identity to be cleared, got %+v", sess.Identity())
	}

	var nilSession *Session
	if nilSession.Credential() != "" {
		t.Fatal("expected nil session to have no credential")
	}
}
