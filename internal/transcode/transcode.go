package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// MaxQuality is the only quality the paste pipeline asks for.
const MaxQuality = 1.0

var ErrTranscode = errors.New("transcode failed")

// Transcoder re-encodes image bytes into a single fixed target format.
type Transcoder interface {
	Transcode(ctx context.Context, data []byte, quality float64) ([]byte, error)
	// Extension is the target file extension without the dot.
	Extension() string
	MIMEType() string
}

// WebP decodes any format imaging understands (plus WebP) and encodes WebP.
type WebP struct{}

// NewWebP returns the WebP transcoder.
func NewWebP() *WebP {
	return &WebP{}
}

func (*WebP) Extension() string { return "webp" }
func (*WebP) MIMEType() string  { return "image/webp" }

// Transcode decodes data, applies EXIF orientation and encodes it as lossy
// WebP. quality is clamped to [0,1] and mapped onto the encoder's 0..100.
func (*WebP) Transcode(ctx context.Context, data []byte, quality float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscode, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrTranscode)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrTranscode, err)
	}

	if quality < 0 {
		quality = 0
	}
	if quality > 1 {
		quality = 1
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality * 100)}); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrTranscode, err)
	}
	return buf.Bytes(), nil
}

// RenameForFormat swaps the last extension of name for ext. A name without an
// extension gets one appended; an empty name becomes "image.<ext>".
func RenameForFormat(name, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "image"
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// Extension returns the suffix after the last dot of a file name, or "" when
// there is none.
func Extension(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return base[i+1:]
}
