/**
 * @description
 * Package session holds the caller's identity and bearer credential. A Session is passed
 * explicitly into every camp backend call; the credential is read at dispatch time so a
 * refresh between calls changes the identity of subsequent requests.
 */
package session

import (
	"strings"
	"sync"
)

// Identity is the signed-in user as asserted by the identity provider.
type Identity struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Session carries an Identity and the credential attached to backend requests.
// Refresh is the only writer; Credential may be called from any goroutine.
type Session struct {
	mu         sync.RWMutex
	identity   Identity
	credential string
	onRefresh  func(Identity)
}

// New creates a session. An empty credential makes the session unauthenticated.
func New(identity Identity, credential string) *Session {
	return &Session{
		identity:   identity,
		credential: strings.TrimSpace(credential),
	}
}

// Anonymous returns a session that sends no credential.
func Anonymous() *Session {
	return &Session{}
}

// Identity returns the current identity.
func (s *Session) Identity() Identity {
	if s == nil {
		return Identity{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Credential returns the bearer credential, or "" when unauthenticated.
func (s *Session) Credential() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// Authenticated reports whether a credential is present.
func (s *Session) Authenticated() bool {
	return s.Credential() != ""
}

// OnRefresh registers a hook called after every Refresh.
func (s *Session) OnRefresh(hook func(Identity)) {
	s.mu.Lock()
	s.onRefresh = hook
	s.mu.Unlock()
}

// Refresh swaps the credential. Requests dispatched after it returns use the new value.
func (s *Session) Refresh(credential string) {
	s.mu.Lock()
	s.credential = strings.TrimSpace(credential)
	hook := s.onRefresh
	identity := s.identity
	s.mu.Unlock()

	if hook != nil {
		hook(identity)
	}
}

// SignOut drops the credential and the identity.
func (s *Session) SignOut() {
	s.mu.Lock()
	s.credential = ""
	s.identity = Identity{}
	s.mu.Unlock()
}
