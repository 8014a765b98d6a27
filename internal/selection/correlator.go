// Package selection maps short UI codes to opaque package option codes.
//
// Display codes ("pkg1".."pkgN") live until the user's next listing.
// Confirmation tokens ("confirm_<user>_<prefix>") bind a confirm button to
// one option code and are consumed by the purchase.
package selection

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/m3rciful/xlbot/core/logger"
)

const (
	DisplayPrefix = "pkg"
	ConfirmPrefix = "confirm_"

	// optionPrefixLen keeps confirmation tokens inside Telegram's 64-byte callback limit.
	optionPrefixLen = 8
)

// Entry pairs a display code with the option code it stands for.
type Entry struct {
	DisplayCode string
	OptionCode  string
}

type scope struct {
	display map[string]string
	confirm map[string]string
}

// Correlator holds one scope per user. Safe for concurrent use.
type Correlator struct {
	mu     sync.Mutex
	scopes map[int64]*scope
}

func New() *Correlator {
	return &Correlator{scopes: make(map[int64]*scope)}
}

func (c *Correlator) scopeFor(userID int64) *scope {
	s, ok := c.scopes[userID]
	if !ok {
		s = &scope{display: map[string]string{}, confirm: map[string]string{}}
		c.scopes[userID] = s
	}
	return s
}

// PublishListing replaces the user's display codes with pkg1..pkgN for
// optionCodes, in order. Pending confirmations from the previous listing
// are dropped as well, so nothing rendered before this call stays actionable.
func (c *Correlator) PublishListing(userID int64, optionCodes []string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &scope{
		display: make(map[string]string, len(optionCodes)),
		confirm: map[string]string{},
	}
	c.scopes[userID] = s

	entries := make([]Entry, len(optionCodes))
	for i, code := range optionCodes {
		dc := DisplayPrefix + strconv.Itoa(i+1)
		s.display[dc] = code
		entries[i] = Entry{DisplayCode: dc, OptionCode: code}
	}
	return entries
}

// ResolveDisplay returns the option code behind a display code of the current listing.
func (c *Correlator) ResolveDisplay(userID int64, displayCode string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.scopes[userID]
	if !ok {
		return "", false
	}
	code, ok := s.display[displayCode]
	return code, ok
}

// ConfirmationToken derives the token for userID and optionCode.
func ConfirmationToken(userID int64, optionCode string) string {
	prefix := optionCode
	if len(prefix) > optionPrefixLen {
		prefix = prefix[:optionPrefixLen]
	}
	return ConfirmPrefix + strconv.FormatInt(userID, 10) + "_" + prefix
}

// PublishConfirmation stores a pending confirmation and returns its token.
// Other pending confirmations of the user are kept. Option codes sharing a
// prefix derive the same token; the latest option replaces the stale one.
func (c *Correlator) PublishConfirmation(userID int64, optionCode string) string {
	token := ConfirmationToken(userID, optionCode)
	c.mu.Lock()
	confirm := c.scopeFor(userID).confirm
	stale, rebound := confirm[token]
	rebound = rebound && stale != optionCode
	confirm[token] = optionCode
	c.mu.Unlock()

	if rebound {
		logger.Warn(logger.Background(), "selection", "confirmation.rebound",
			slog.Int64("user_id", userID),
			slog.String("code", token),
			slog.String("option_code", optionCode),
			slog.String("stale_option_code", stale),
		)
	}
	return token
}

// ResolveConfirmation looks a token up without consuming it.
func (c *Correlator) ResolveConfirmation(userID int64, token string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.scopes[userID]
	if !ok {
		return "", false
	}
	code, ok := s.confirm[token]
	return code, ok
}

// ConsumeConfirmation resolves a token and removes it, so a second press of the same button finds nothing.
func (c *Correlator) ConsumeConfirmation(userID int64, token string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.scopes[userID]
	if !ok {
		return "", false
	}
	code, ok := s.confirm[token]
	if ok {
		delete(s.confirm, token)
	}
	return code, ok
}

// Forget drops everything published for the user.
func (c *Correlator) Forget(userID int64) {
	c.mu.Lock()
	delete(c.scopes, userID)
	c.mu.Unlock()
}
