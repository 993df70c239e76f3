package paste

import (
	"context"
	"sync"
)

type State int32

const (
	StateIdle State = iota
	StateValidating
	StateTranscoding
	StateAwaitingUserInput
	StateUploading
	StateResolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateTranscoding:
		return "transcoding"
	case StateAwaitingUserInput:
		return "awaiting_user_input"
	case StateUploading:
		return "uploading"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session follows one pasted image from the moment its placeholder is in the
// document until the upload settles.
type Session struct {
	Token    string
	Document string
	Key      string
	Caption  string
	Filename string

	mu        sync.Mutex
	state     State
	reference string
	err       error
	replaced  bool
	done      chan struct{}
}

func newSession(token, document, key, caption, filename string) *Session {
	return &Session{
		Token:    token,
		Document: document,
		Key:      key,
		Caption:  caption,
		Filename: filename,
		state:    StateUploading,
		done:     make(chan struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session is resolved or failed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session settles or ctx ends. It returns the upload
// error of a failed session.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reference is the uploaded image's reference, set on success.
func (s *Session) Reference() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reference
}

// Replaced reports whether the placeholder was still in the document when the
// upload succeeded.
func (s *Session) Replaced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaced
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) resolve(reference string, replaced bool) {
	s.mu.Lock()
	s.state = StateResolved
	s.reference = reference
	s.replaced = replaced
	s.mu.Unlock()
	close(s.done)
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.err = err
	s.mu.Unlock()
	close(s.done)
}
