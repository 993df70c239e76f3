// Package paste turns an image paste into a placeholder in the document,
// uploads the image in the background and swaps the placeholder for the final
// image reference once the upload settles.
package paste

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"imagetolink/internal/editor"
	"imagetolink/internal/logging"
	"imagetolink/internal/metrics"
	"imagetolink/internal/models"
	"imagetolink/internal/placeholder"
	"imagetolink/internal/transcode"
	"imagetolink/internal/worker"
)

const (
	noticeTranscodeFailed  = "Image transcode failed, "
	noticeMissingExtension = "Image extension not found"
	noticeUploadFailed     = "Upload failed, "
)

type Deps struct {
	Transcoder transcode.Transcoder
	Uploader   Uploader
	Settings   SettingsSource
	Prompter   Prompter
	Notifier   Notifier
	Documents  *worker.Manager
	Logger     *logging.Logger
}

// Orchestrator handles paste events. Sessions run independently of each
// other; nothing caps how many uploads are in flight.
type Orchestrator struct {
	transcoder transcode.Transcoder
	uploader   Uploader
	settings   SettingsSource
	prompter   Prompter
	notifier   Notifier
	docs       *worker.Manager
	log        *logging.Logger

	wg sync.WaitGroup
}

func NewOrchestrator(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	docs := deps.Documents
	if docs == nil {
		docs = worker.NewManager(logger)
	}
	return &Orchestrator{
		transcoder: deps.Transcoder,
		uploader:   deps.Uploader,
		settings:   deps.Settings,
		prompter:   deps.Prompter,
		notifier:   deps.Notifier,
		docs:       docs,
		log:        logger,
	}
}

// HandlePaste runs a paste up to the point where the placeholder is in the
// document and the upload has started, then returns the session tracking it.
// Errors returned here mean no placeholder was inserted.
func (o *Orchestrator) HandlePaste(ctx context.Context, ev Event, ed editor.Editor) (*Session, error) {
	log := o.log.With("document", ed.Path())

	log.Debug("paste state", "state", StateValidating)
	file, ok := firstImage(ev)
	if !ok {
		return nil, ErrNoImage
	}
	ev.PreventDefault()

	log.Debug("paste state", "state", StateTranscoding, "file", file.Name, "mime", file.MIMEType)
	data, err := o.transcoder.Transcode(ctx, file.Data, transcode.MaxQuality)
	if err != nil {
		o.notify(noticeTranscodeFailed + err.Error())
		metrics.PasteSessions.WithLabelValues("transcode_failed").Inc()
		return nil, err
	}
	filename := transcode.RenameForFormat(file.Name, o.transcoder.Extension())
	ext := transcode.Extension(filename)
	if ext == "" {
		o.notify(noticeMissingExtension)
		metrics.PasteSessions.WithLabelValues("missing_extension").Inc()
		return nil, ErrMissingExtension
	}

	log.Debug("paste state", "state", StateAwaitingUserInput)
	input, err := o.prompter.Prompt(ctx)
	if err != nil {
		metrics.PasteSessions.WithLabelValues("cancelled").Inc()
		if errors.Is(err, ErrCancelled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	cfg, err := o.settings.Load(ctx)
	if err != nil {
		o.notify(noticeUploadFailed + err.Error())
		metrics.PasteSessions.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("load upload settings: %w", err)
	}

	sess := newSession(placeholder.NewToken(), ed.Path(), DocumentKey(ed.Path(), input.Slug, ext), input.Caption, filename)
	if err := o.docs.Do(ed, func(ed editor.Editor) {
		placeholder.Insert(ed, sess.Token)
	}); err != nil {
		return nil, fmt.Errorf("insert placeholder: %w", err)
	}

	log.Debug("paste state", "state", StateUploading, "token", sess.Token, "key", sess.Key)
	o.wg.Add(1)
	metrics.UploadsInFlight.Inc()
	go o.upload(sess, ed, cfg, data)
	return sess, nil
}

// Wait blocks until every session started so far has settled.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) upload(sess *Session, ed editor.Editor, cfg models.UploadSettings, data []byte) {
	defer o.wg.Done()
	defer metrics.UploadsInFlight.Dec()
	log := o.log.With("document", sess.Document, "token", sess.Token, "key", sess.Key)

	// once started an upload runs to completion; no deadline, no cancel
	ref, err := o.uploader.Upload(context.Background(), cfg, data, sess.Filename, sess.Key)
	if err != nil {
		o.settleFailed(sess, log, err)
		return
	}

	var replaced bool
	err = o.docs.Do(ed, func(ed editor.Editor) {
		replaced = placeholder.Resolve(ed, placeholder.Markup(sess.Token), placeholder.FinalMarkup(sess.Caption, ref))
	})
	if err != nil {
		o.settleFailed(sess, log, fmt.Errorf("resolve placeholder: %w", err))
		return
	}
	if !replaced {
		log.Warn("placeholder gone before upload finished", "reference", ref)
	}
	log.Debug("paste state", "state", StateResolved, "reference", ref)
	metrics.PasteSessions.WithLabelValues("resolved").Inc()
	sess.resolve(ref, replaced)
}

func (o *Orchestrator) settleFailed(sess *Session, log *logging.Logger, err error) {
	log.Warn("paste state", "state", StateFailed, "error", err)
	metrics.PasteSessions.WithLabelValues("failed").Inc()
	o.notify(noticeUploadFailed + err.Error())
	sess.fail(err)
}

func (o *Orchestrator) notify(msg string) {
	if o.notifier != nil {
		o.notifier.Notify(msg)
	}
}

func firstImage(ev Event) (ClipboardFile, bool) {
	if ev == nil || ev.DefaultPrevented() {
		return ClipboardFile{}, false
	}
	for _, f := range ev.Files() {
		if strings.HasPrefix(strings.ToLower(f.MIMEType), "image/") {
			return f, true
		}
	}
	return ClipboardFile{}, false
}

// DocumentKey names the uploaded image after the document it was pasted into:
// notes/today.md with slug cat1 becomes notes/today/cat1.webp.
func DocumentKey(docPath, slug, ext string) string {
	base := docPath
	if strings.HasSuffix(base, ".mdx") {
		base = strings.TrimSuffix(base, ".mdx")
	} else {
		base = strings.TrimSuffix(base, ".md")
	}
	name := slug + "." + ext
	if base == "" {
		return name
	}
	return base + "/" + name
}
