package template

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// ExtractField follows a dotted path through a JSON response and returns the
// scalar found there. Numeric segments index into arrays. When any step fails
// the top-level "url" property of the response is used instead; if that is
// missing too the error wraps ErrFieldNotFound.
func ExtractField(response []byte, path string) (string, error) {
	if !gjson.ValidBytes(response) {
		return "", ErrInvalidJSON
	}
	root := gjson.ParseBytes(response)

	if v, ok := walk(root, path); ok {
		return v, nil
	}
	if v, ok := scalar(root.Get(FallbackField)); ok && root.IsObject() {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q (no %q fallback)", ErrFieldNotFound, path, FallbackField)
}

func walk(root gjson.Result, path string) (string, bool) {
	cur := root
	for _, seg := range strings.Split(path, ".") {
		if !cur.IsObject() && !cur.IsArray() {
			return "", false
		}
		next := cur.Get(escapeSegment(seg))
		if !next.Exists() {
			return "", false
		}
		cur = next
	}
	return scalar(cur)
}

// scalar renders strings, numbers and booleans; objects, arrays and null are
// not usable as a reference.
func scalar(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.String:
		return v.Str, true
	case gjson.Number, gjson.True, gjson.False:
		return v.Raw, true
	default:
		return "", false
	}
}

// escapeSegment makes a single property name safe to use as a gjson path
// component, so names containing wildcards or modifiers match literally.
func escapeSegment(seg string) string {
	var b strings.Builder
	b.Grow(len(seg))
	for _, r := range seg {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
