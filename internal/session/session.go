// Package session holds the state tied to one connection to a trading client.
//
// The only state extraction keeps between calls is whether the client is
// currently known to put a captcha dialog in front of grid data. That flag
// belongs to the connection: two clients driven from one process each get
// their own Session, and strategies receive it on every call instead of
// sharing a package-level variable.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/nao1215/gridextract/internal/driver"
)

// ErrNoSession is returned by operations that need a session but got nil.
var ErrNoSession = errors.New("no session given")

// Session is the context of one foreign-application connection.
// It is safe for concurrent use, although extraction against a single
// client is expected to be sequential.
type Session struct {
	id     string
	driver driver.Driver

	mu              sync.Mutex
	captchaRequired bool
}

// Option configures a Session.
type Option func(*Session)

// WithID sets the session id used in logs and history rows.
// By default a random UUID is used.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// WithCaptchaRequired sets the initial captcha flag.
func WithCaptchaRequired(required bool) Option {
	return func(s *Session) {
		s.captchaRequired = required
	}
}

// New creates a session for the client reached through d.
//
// The captcha flag starts true: until one extraction has shown that no
// challenge dialog is up, the first copy must look for one.
func New(d driver.Driver, opts ...Option) *Session {
	s := &Session{
		driver:          d,
		captchaRequired: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Driver returns the driver bound to the session's client.
func (s *Session) Driver() driver.Driver {
	return s.driver
}

// CaptchaRequired reports whether the next clipboard extraction must check
// for a captcha dialog.
func (s *Session) CaptchaRequired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captchaRequired
}

// MarkCaptchaRequired records that the last extraction looked like it
// returned a challenge dialog instead of data.
func (s *Session) MarkCaptchaRequired() {
	s.mu.Lock()
	s.captchaRequired = true
	s.mu.Unlock()
}

// ClearCaptchaRequired records that no challenge dialog was present.
func (s *Session) ClearCaptchaRequired() {
	s.mu.Lock()
	s.captchaRequired = false
	s.mu.Unlock()
}
