// Package session holds the bearer credential used against the backend and
// performs the teardown the coordinator requests on authentication failures.
package session

import (
	"log/slog"
	"sync"
)

// Session is an in-memory credential holder.
type Session struct {
	mu       sync.RWMutex
	token    string
	atLogin  bool
	onLogout func()
	log      *slog.Logger
}

// New creates a session with an initial token. onLogout, if set, runs every
// time the session is redirected to the login boundary.
func New(token string, onLogout func()) *Session {
	return &Session{
		token:    token,
		atLogin:  token == "",
		onLogout: onLogout,
		log:      slog.Default(),
	}
}

// Token implements api.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SignIn stores a fresh credential and leaves the login boundary.
func (s *Session) SignIn(token string) {
	s.mu.Lock()
	s.token = token
	s.atLogin = token == ""
	s.mu.Unlock()
}

// Authenticated reports whether a credential is present.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// ClearCredentials drops the stored credential.
func (s *Session) ClearCredentials() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// RedirectToLogin moves the session to the login boundary.
func (s *Session) RedirectToLogin() {
	s.mu.Lock()
	s.atLogin = true
	onLogout := s.onLogout
	s.mu.Unlock()

	s.log.Warn("Session expired, sign-in required")
	if onLogout != nil {
		onLogout()
	}
}

// AtLoginBoundary reports whether the user is already on the login step.
func (s *Session) AtLoginBoundary() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.atLogin
}
