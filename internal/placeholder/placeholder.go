// Package placeholder marks where a pending upload belongs in a document and
// later swaps the mark for the final markup.
//
// Resolution is textual: the first line that contains the token wins, and
// within that line the leftmost occurrence. Edits made while the upload is in
// flight are preserved as long as the token itself survives.
package placeholder

import (
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"imagetolink/internal/editor"
)

// UploadingAlt is the alt text of a pending upload.
const UploadingAlt = "uploading..."

const tokenLength = 12

// NewToken returns a short random token.
func NewToken() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:tokenLength]
}

// Markup is the text inserted while the upload is pending.
func Markup(token string) string {
	return "![" + UploadingAlt + "](" + token + ")\n"
}

// FinalMarkup is the image reference written once the upload succeeds.
func FinalMarkup(caption, reference string) string {
	return "![" + caption + "](" + reference + ")\n"
}

// Insert writes the placeholder at the cursor, replacing any selection.
func Insert(ed editor.Editor, token string) {
	ed.ReplaceSelection(Markup(token))
}

// Resolve replaces the first occurrence of token, scanning lines top to bottom,
// with replacement. Only the token's own span changes and the user's cursor
// stays on the text it was on. It reports whether the token was found; a
// missing token leaves the document untouched.
func Resolve(ed editor.Editor, token, replacement string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	for i, line := range ed.Lines() {
		ch := strings.Index(line, token)
		if ch < 0 {
			continue
		}
		from := editor.Position{Line: i, Ch: ch}
		to := editor.Position{Line: i, Ch: ch + len(token)}
		ed.ReplaceRange(replacement, from, to)
		return true
	}
	return false
}

// Orphans lists the destinations of pending-upload images in a markdown
// source, in document order. Placeholders whose upload failed stay in the
// document and show up here.
func Orphans(source []byte) []string {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var found []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}
		if altText(img, source) == UploadingAlt {
			found = append(found, string(img.Destination))
		}
		return ast.WalkSkipChildren, nil
	})
	return found
}

func altText(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
			continue
		}
		b.WriteString(altText(c, source))
	}
	return b.String()
}
