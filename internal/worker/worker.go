package worker

import (
	"imagetolink/internal/editor"
)

type task struct {
	fn   func(editor.Editor)
	done chan struct{}
}

// Loop owns one document and applies mutations to it one at a time, in the
// order they were submitted.
type Loop struct {
	ed     editor.Editor
	taskCh chan task
	quit   chan struct{}
	exited chan struct{}
}

func newLoop(ed editor.Editor) *Loop {
	return &Loop{
		ed:     ed,
		taskCh: make(chan task, queueLen),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

func (l *Loop) Start() {
	go func() {
		defer close(l.exited)
		for {
			select {
			case t := <-l.taskCh:
				l.run(t)
			case <-l.quit:
				// apply what was already queued so no accepted edit is lost
				for {
					select {
					case t := <-l.taskCh:
						l.run(t)
					default:
						return
					}
				}
			}
		}
	}()
}

func (l *Loop) run(t task) {
	if t.done != nil {
		defer close(t.done)
	}
	t.fn(l.ed)
}

func (l *Loop) Stop() {
	close(l.quit)
	<-l.exited
}
