package session

import (
	"sync"
	"testing"
)

// TestNew tests Session construction.
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		s := New(nil)
		if s.ID() == "" {
			t.Error("expected generated id")
		}
		if !s.CaptchaRequired() {
			t.Error("new session should check for captcha first")
		}
	})

	t.Run("options", func(t *testing.T) {
		t.Parallel()

		s := New(nil, WithID("client-a"), WithCaptchaRequired(false))
		if s.ID() != "client-a" {
			t.Errorf("expected id client-a, got %q", s.ID())
		}
		if s.CaptchaRequired() {
			t.Error("expected captcha flag false")
		}
	})
}

// TestSessionsAreIndependent tests that flags are per session.
func TestSessionsAreIndependent(t *testing.T) {
	t.Parallel()

	a := New(nil, WithCaptchaRequired(false))
	b := New(nil, WithCaptchaRequired(false))

	a.MarkCaptchaRequired()

	if !a.CaptchaRequired() {
		t.Error("expected a to require captcha")
	}
	if b.CaptchaRequired() {
		t.Error("marking a must not affect b")
	}

	a.ClearCaptchaRequired()
	if a.CaptchaRequired() {
		t.Error("expected a to be cleared")
	}
}

// TestSessionConcurrentAccess exercises the flag from several goroutines.
func TestSessionConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.MarkCaptchaRequired()
			} else {
				s.ClearCaptchaRequired()
			}
			_ = s.CaptchaRequired()
		}(i)
	}
	wg.Wait()
}
