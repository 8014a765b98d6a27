// Package session keeps per-user conversation state in memory for the process lifetime.
package session

import (
	"errors"

	"github.com/m3rciful/xlbot/internal/models"
)

// State is the phase of the unauthenticated login flow.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingPhone State = "awaiting_phone"
	StateAwaitingOtp   State = "awaiting_otp"
)

// WaitingFor says how the next free-text message is interpreted.
type WaitingFor string

const (
	WaitingNone  WaitingFor = ""
	WaitingPhone WaitingFor = "phone_number"
	WaitingOtp   WaitingFor = "otp"
)

// Session is a value record. Fields are unexported so every change goes
// through a transition method that keeps the invariants.
type Session struct {
	state      State
	waitingFor WaitingFor
	phone      string
	tokens     *models.TokenSet
}

// New returns a fresh idle, unauthenticated session.
func New() Session {
	return Session{state: StateIdle}
}

func (s Session) State() State           { return s.state }
func (s Session) WaitingFor() WaitingFor { return s.waitingFor }
func (s Session) Phone() string          { return s.phone }

// Authenticated is derived from the presence of tokens.
func (s Session) Authenticated() bool { return s.tokens != nil }

// Tokens returns a copy of the token set.
func (s Session) Tokens() (models.TokenSet, bool) {
	if s.tokens == nil {
		return models.TokenSet{}, false
	}
	return *s.tokens, true
}

// BeginLogin starts the flow: the next text is a phone number.
// Any previous authentication is dropped.
func (s *Session) BeginLogin() {
	*s = Session{state: StateAwaitingPhone, waitingFor: WaitingPhone}
}

// AwaitOtp records the phone the OTP was sent to. An empty phone is rejected.
func (s *Session) AwaitOtp(phone string) error {
	if phone == "" {
		return errors.New("session: empty phone")
	}
	s.state = StateAwaitingOtp
	s.waitingFor = WaitingOtp
	s.phone = phone
	return nil
}

// Authenticate stores verified tokens and ends the login flow.
func (s *Session) Authenticate(tokens models.TokenSet) error {
	if s.phone == "" {
		return errors.New("session: authenticate without phone")
	}
	t := tokens
	s.tokens = &t
	s.state = StateIdle
	s.waitingFor = WaitingNone
	return nil
}

// ReplaceTokens swaps in a refreshed set. Only valid on an authenticated session.
func (s *Session) ReplaceTokens(tokens models.TokenSet) error {
	if s.tokens == nil {
		return errors.New("session: not authenticated")
	}
	t := tokens
	s.tokens = &t
	return nil
}

// Cancel abandons an in-progress login; an existing authentication is kept.
func (s *Session) Cancel() {
	s.state = StateIdle
	s.waitingFor = WaitingNone
	if s.tokens == nil {
		s.phone = ""
	}
}

// Invariant reports the first broken invariant, if any.
func (s Session) Invariant() error {
	if s.waitingFor == WaitingOtp && s.phone == "" {
		return errors.New("session: waiting for otp without phone")
	}
	if s.tokens != nil && !s.tokens.Valid() {
		return errors.New("session: authenticated with incomplete tokens")
	}
	if s.tokens != nil && s.phone == "" {
		return errors.New("session: authenticated without phone")
	}
	return nil
}
