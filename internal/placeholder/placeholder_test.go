package placeholder

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagetolink/internal/editor"
)

func TestNewTokenIsShortAndUnique(t *testing.T) {
	re := regexp.MustCompile(`^[0-9a-f]{12}$`)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		tok := NewToken()
		require.Regexp(t, re, tok)
		_, dup := seen[tok]
		require.False(t, dup, "duplicate token %s", tok)
		seen[tok] = struct{}{}
	}
}

func TestInsertThenResolve(t *testing.T) {
	doc := editor.NewDocument("n.md", "before\nafter\n")
	doc.SetCursor(editor.Position{Line: 1, Ch: 0})

	Insert(doc, "T0K3N")
	assert.Equal(t, "before\n![uploading...](T0K3N)\nafter\n", doc.Text())

	ok := Resolve(doc, "T0K3N", "FINAL")
	assert.True(t, ok)
	assert.Equal(t, "before\n![uploading...](FINAL)\nafter\n", doc.Text())
}

func TestResolveReplacesWholePlaceholderMarkup(t *testing.T) {
	doc := editor.NewDocument("n.md", "intro\n")
	doc.CursorToEnd()
	Insert(doc, "abc")

	ok := Resolve(doc, Markup("abc"), FinalMarkup("Cat", "https://cdn/x.webp"))
	assert.True(t, ok)
	// the placeholder's own newline stays, so the final markup is followed by a blank line
	assert.Equal(t, "intro\n![Cat](https://cdn/x.webp)\n\n", doc.Text())
}

func TestResolveFirstMatchOnly(t *testing.T) {
	doc := editor.NewDocument("n.md", "x\nfoo TOK bar TOK\nTOK\n")
	doc.SetCursor(editor.Position{Line: 1, Ch: 12})
	ok := Resolve(doc, "TOK", "NEW")
	assert.True(t, ok)
	assert.Equal(t, "x\nfoo NEW bar TOK\nTOK\n", doc.Text())
	assert.Equal(t, editor.Position{Line: 1, Ch: 12}, doc.Cursor())
}

func TestResolveMissingTokenIsNoop(t *testing.T) {
	doc := editor.NewDocument("n.md", "nothing to see\n")
	doc.SetCursor(editor.Position{Line: 0, Ch: 3})
	assert.False(t, Resolve(doc, "gone", "FINAL"))
	assert.False(t, Resolve(doc, "  ", "FINAL"))
	assert.Equal(t, "nothing to see\n", doc.Text())
	assert.Equal(t, editor.Position{Line: 0, Ch: 3}, doc.Cursor())
}

func TestResolveSurvivesSurroundingEdits(t *testing.T) {
	doc := editor.NewDocument("n.md", "")
	Insert(doc, "tok1")
	doc.SetCursor(editor.Position{})
	doc.ReplaceSelection("# Title\n\ntyped while uploading\n")
	doc.CursorToEnd()
	doc.ReplaceSelection("more text\n")

	require.True(t, Resolve(doc, Markup("tok1"), FinalMarkup("c", "u")))
	assert.Equal(t, "# Title\n\ntyped while uploading\n![c](u)\n\nmore text\n", doc.Text())
}

func TestOrphans(t *testing.T) {
	src := []byte("# Note\n\n![uploading...](aaa111)\n\ntext ![Cat](https://cdn/x.webp)\n\n" +
		"- ![uploading...](bbb222)\n\n```\n![uploading...](in-code)\n```\n")
	assert.Equal(t, []string{"aaa111", "bbb222"}, Orphans(src))
	assert.Empty(t, Orphans([]byte("plain")))
}
