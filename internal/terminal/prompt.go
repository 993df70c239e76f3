// Package terminal provides the caption/slug dialog and user notices for
// the command line host.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"

	"imagetolink/internal/paste"
)

// Prompter asks for the caption and slug on the terminal.
type Prompter struct {
	stdin  io.ReadCloser
	stdout io.WriteCloser
}

// NewPrompter uses the given streams; nil means the process's own.
func NewPrompter(stdin io.ReadCloser, stdout io.WriteCloser) *Prompter {
	return &Prompter{stdin: stdin, stdout: stdout}
}

func (p *Prompter) Prompt(ctx context.Context) (paste.Submission, error) {
	if err := ctx.Err(); err != nil {
		return paste.Submission{}, fmt.Errorf("%w: %v", paste.ErrCancelled, err)
	}
	type result struct {
		sub paste.Submission
		err error
	}
	done := make(chan result, 1)
	go func() {
		caption, err := p.ask("Caption", nil)
		if err != nil {
			done <- result{err: err}
			return
		}
		slug, err := p.ask("Slug", validateSlug)
		done <- result{sub: paste.Submission{Caption: caption, Slug: slug}, err: err}
	}()

	select {
	case <-ctx.Done():
		// closing a stream we were given unblocks the dialog; on the process's
		// own stdin it stays parked until the command exits
		if p.stdin != nil {
			_ = p.stdin.Close()
		}
		return paste.Submission{}, fmt.Errorf("%w: %v", paste.ErrCancelled, ctx.Err())
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, promptui.ErrInterrupt) || errors.Is(r.err, promptui.ErrEOF) || errors.Is(r.err, promptui.ErrAbort) {
				return paste.Submission{}, paste.ErrCancelled
			}
			return paste.Submission{}, r.err
		}
		return r.sub, nil
	}
}

func (p *Prompter) ask(label string, validate promptui.ValidateFunc) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Validate: validate,
		Stdin:    p.stdin,
		Stdout:   p.stdout,
	}
	return prompt.Run()
}

// validateSlug accepts free text, including nested slugs such as 2024/cat,
// but never a ".." segment.
func validateSlug(s string) error {
	for _, seg := range strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return errors.New(`slug must not contain a ".." segment`)
		}
	}
	return nil
}

// Fixed answers the dialog without asking, for non-interactive use.
type Fixed paste.Submission

func (f Fixed) Prompt(context.Context) (paste.Submission, error) {
	if err := validateSlug(f.Slug); err != nil {
		return paste.Submission{}, err
	}
	return paste.Submission(f), nil
}
