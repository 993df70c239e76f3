// Package editor defines the slice of a host editor the paste pipeline needs
// and provides a line-based in-memory document that implements it.
package editor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Position addresses a byte column within a line.
type Position struct {
	Line int
	Ch   int
}

// Editor is the text-editing surface of the host.
type Editor interface {
	// Path is the document path relative to the vault root.
	Path() string
	Lines() []string
	Cursor() Position
	SetCursor(pos Position)
	// ReplaceSelection replaces the selection, or inserts at the cursor when
	// nothing is selected, and leaves the cursor after the new text.
	ReplaceSelection(text string)
	ReplaceRange(text string, from, to Position)
}

// Document is an Editor over a single string buffer.
type Document struct {
	mu     sync.Mutex
	path   string
	text   string
	anchor int
	head   int
}

var _ Editor = (*Document)(nil)

// NewDocument creates a document with the cursor at the start.
func NewDocument(path, text string) *Document {
	return &Document{path: path, text: text}
}

// Open reads path below root. The document keeps path relative to root.
func Open(root, path string) (*Document, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", path, err)
	}
	return NewDocument(filepath.ToSlash(path), string(data)), nil
}

// Save writes the buffer back below root through a temp file and rename.
func (d *Document) Save(root string) error {
	dest := filepath.Join(root, filepath.FromSlash(d.Path()))
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".imagetolink-*")
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	if _, err := tmp.WriteString(d.Text()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save document: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (d *Document) Path() string {
	return d.path
}

// Text returns the whole buffer.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

func (d *Document) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Split(d.text, "\n")
}

func (d *Document) Cursor() Position {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position(d.head)
}

// SetCursor moves the cursor and clears the selection. Out of range positions
// are clamped.
func (d *Document) SetCursor(pos Position) {
	d.mu.Lock()
	defer d.mu.Unlock()
	off := d.offset(pos)
	d.anchor, d.head = off, off
}

// SetSelection selects the text between from and to.
func (d *Document) SetSelection(from, to Position) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.anchor, d.head = d.offset(from), d.offset(to)
}

// CursorToEnd places the cursor after the last character.
func (d *Document) CursorToEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.anchor, d.head = len(d.text), len(d.text)
}

func (d *Document) ReplaceSelection(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	from, to := d.anchor, d.head
	if from > to {
		from, to = to, from
	}
	d.splice(from, to, text)
	end := from + len(text)
	d.anchor, d.head = end, end
}

func (d *Document) ReplaceRange(text string, from, to Position) {
	d.mu.Lock()
	defer d.mu.Unlock()
	start, end := d.offset(from), d.offset(to)
	if start > end {
		start, end = end, start
	}
	d.splice(start, end, text)
	d.anchor = shift(d.anchor, start, end, len(text))
	d.head = shift(d.head, start, end, len(text))
}

func (d *Document) splice(start, end int, text string) {
	d.text = d.text[:start] + text + d.text[end:]
}

// shift keeps an offset on the same character after [start,end) was replaced
// by n bytes; offsets inside the replaced span move to its start.
func shift(off, start, end, n int) int {
	switch {
	case off <= start:
		return off
	case off >= end:
		return off - (end - start) + n
	default:
		return start
	}
}

func (d *Document) offset(pos Position) int {
	if pos.Line < 0 {
		return 0
	}
	off := 0
	for line := 0; line < pos.Line; line++ {
		i := strings.IndexByte(d.text[off:], '\n')
		if i < 0 {
			return len(d.text)
		}
		off += i + 1
	}
	lineEnd := len(d.text)
	if i := strings.IndexByte(d.text[off:], '\n'); i >= 0 {
		lineEnd = off + i
	}
	ch := pos.Ch
	if ch < 0 {
		ch = 0
	}
	if off+ch > lineEnd {
		return lineEnd
	}
	return off + ch
}

func (d *Document) position(off int) Position {
	before := d.text[:off]
	line := strings.Count(before, "\n")
	return Position{Line: line, Ch: off - (strings.LastIndexByte(before, '\n') + 1)}
}
