package paste

import (
	"context"

	"imagetolink/internal/models"
)

// ClipboardFile is one file carried by a paste.
type ClipboardFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Event is a paste delivered by the host editor.
type Event interface {
	DefaultPrevented() bool
	PreventDefault()
	Files() []ClipboardFile
}

// Submission is what the user typed into the caption/slug dialog.
type Submission struct {
	Caption string
	Slug    string
}

// Prompter asks the user for a caption and a slug. Returning ErrCancelled
// (or any error) abandons the paste before anything touches the document.
type Prompter interface {
	Prompt(ctx context.Context) (Submission, error)
}

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(msg string)
}

type Uploader interface {
	Upload(ctx context.Context, cfg models.UploadSettings, image []byte, filename, key string) (string, error)
}

// SettingsSource hands out the upload configuration in effect for a new paste.
type SettingsSource interface {
	Load(ctx context.Context) (models.UploadSettings, error)
}

// StaticSettings serves a fixed configuration.
type StaticSettings models.UploadSettings

func (s StaticSettings) Load(context.Context) (models.UploadSettings, error) {
	return models.UploadSettings(s), nil
}

// SimpleEvent is an Event backed by a slice of files.
type SimpleEvent struct {
	Clipboard []ClipboardFile
	prevented bool
}

func (e *SimpleEvent) DefaultPrevented() bool { return e.prevented }
func (e *SimpleEvent) PreventDefault()        { e.prevented = true }
func (e *SimpleEvent) Files() []ClipboardFile { return e.Clipboard }
