// Package template resolves the request templates of an upload configuration
// and extracts the reference from the upload response.
//
// Templates are JSON objects. In the body template the literal values $IMAGE
// and $KEY mark the multipart fields that carry the image bytes and the
// content key. The response path is a dotted property chain such as
// "data.image.url".
package template

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	// ImageToken marks the field that carries the image bytes.
	ImageToken = "$IMAGE"
	// KeyToken marks the field that carries the content key.
	KeyToken = "$KEY"

	DefaultImageField = "image"
	DefaultKeyField   = "key"

	// FallbackField is read from the top level of a response when the
	// configured path cannot be followed.
	FallbackField = "url"
)

var (
	ErrInvalidTemplate = errors.New("invalid template")
	ErrInvalidJSON     = errors.New("response is not valid json")
	ErrFieldNotFound   = errors.New("response field not found")
)

// FieldPlan says which multipart fields receive the runtime values. Other
// values of the body template are not sent.
type FieldPlan struct {
	ImageField string
	KeyField   string
}

// RenderBody scans the top level of a body template. The first value equal to
// $IMAGE names the image field and the first equal to $KEY names the key
// field; missing tokens fall back to "image" and "key". Nested objects are not
// searched.
func RenderBody(body string) (FieldPlan, error) {
	root, err := parseObject(body)
	if err != nil {
		return FieldPlan{}, fmt.Errorf("body: %w", err)
	}

	var plan FieldPlan
	root.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if value.Type != gjson.String {
			return true
		}
		switch value.Str {
		case ImageToken:
			if plan.ImageField == "" {
				plan.ImageField = name
			}
		case KeyToken:
			if plan.KeyField == "" {
				plan.KeyField = name
			}
		}
		return true
	})

	if plan.ImageField == "" {
		plan.ImageField = DefaultImageField
	}
	if plan.KeyField == "" {
		plan.KeyField = DefaultKeyField
	}
	return plan, nil
}

// Header is a single request header taken from the headers template.
type Header struct {
	Name  string
	Value string
}

// ParseHeaders reads the headers template. Strings are used verbatim, numbers
// and booleans by their literal text; any other value rejects the template.
func ParseHeaders(headers string) ([]Header, error) {
	root, err := parseObject(headers)
	if err != nil {
		return nil, fmt.Errorf("headers: %w", err)
	}

	var (
		out     []Header
		badName string
	)
	root.ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.String:
			out = append(out, Header{Name: key.String(), Value: value.Str})
		case gjson.Number, gjson.True, gjson.False:
			out = append(out, Header{Name: key.String(), Value: value.Raw})
		default:
			badName = key.String()
			return false
		}
		return true
	})
	if badName != "" {
		return nil, fmt.Errorf("headers: %w: value of %q must be a string", ErrInvalidTemplate, badName)
	}
	return out, nil
}

func parseObject(raw string) (gjson.Result, error) {
	if strings.TrimSpace(raw) == "" {
		return gjson.Result{}, fmt.Errorf("%w: empty", ErrInvalidTemplate)
	}
	if !gjson.Valid(raw) {
		return gjson.Result{}, fmt.Errorf("%w: not valid json", ErrInvalidTemplate)
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: must be a json object", ErrInvalidTemplate)
	}
	return root, nil
}
