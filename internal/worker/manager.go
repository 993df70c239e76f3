package worker

import (
	"errors"
	"sync"

	"imagetolink/internal/editor"
	"imagetolink/internal/logging"
)

const queueLen = 16

var ErrDocumentClosed = errors.New("document closed")

// Manager plays the part of the host editor's event loop: every open document
// gets one goroutine and all mutations of that document run on it. Work that
// may block (prompts, transcoding, network) never runs on a loop.
type Manager struct {
	mu    sync.Mutex
	loops map[editor.Editor]*Loop
	// closed documents stay closed; nothing is applied to them again
	closed  map[editor.Editor]struct{}
	stopped bool
	log     *logging.Logger
}

func NewManager(logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		loops:  make(map[editor.Editor]*Loop),
		closed: make(map[editor.Editor]struct{}),
		log:    logger,
	}
}

// Do runs fn on the document's loop and waits for it to finish. It returns
// ErrDocumentClosed once the document was closed.
func (m *Manager) Do(ed editor.Editor, fn func(editor.Editor)) error {
	loop, err := m.ensureLoop(ed)
	if err != nil {
		return err
	}
	t := task{fn: fn, done: make(chan struct{})}
	if err := m.submit(loop, t); err != nil {
		return err
	}
	select {
	case <-t.done:
		return nil
	case <-loop.exited:
		select {
		case <-t.done:
			return nil
		default:
			return ErrDocumentClosed
		}
	}
}

func (m *Manager) submit(loop *Loop, t task) error {
	select {
	case <-loop.quit:
		return ErrDocumentClosed
	default:
	}
	select {
	case loop.taskCh <- t:
		return nil
	case <-loop.quit:
		return ErrDocumentClosed
	}
}

// Close stops the document's loop after it applied everything already queued.
func (m *Manager) Close(ed editor.Editor) {
	m.mu.Lock()
	loop, ok := m.loops[ed]
	delete(m.loops, ed)
	m.closed[ed] = struct{}{}
	m.mu.Unlock()
	if ok {
		loop.Stop()
		m.log.Debug("document loop stopped", "document", ed.Path())
	}
}

// Shutdown stops every loop and refuses further work.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	loops := m.loops
	m.loops = make(map[editor.Editor]*Loop)
	m.stopped = true
	m.mu.Unlock()
	for _, loop := range loops {
		loop.Stop()
	}
}

func (m *Manager) ensureLoop(ed editor.Editor) (*Loop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if loop, ok := m.loops[ed]; ok {
		return loop, nil
	}
	if _, ok := m.closed[ed]; ok || m.stopped {
		return nil, ErrDocumentClosed
	}
	loop := newLoop(ed)
	m.loops[ed] = loop
	loop.Start()
	m.log.Debug("document loop started", "document", ed.Path())
	return loop, nil
}
