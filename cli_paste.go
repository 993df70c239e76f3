package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"imagetolink/internal/editor"
	"imagetolink/internal/paste"
	"imagetolink/internal/terminal"
	"imagetolink/internal/transcode"
	"imagetolink/internal/upload"
	"imagetolink/internal/worker"
)

type pasteOptions struct {
	root    string
	doc     string
	images  []string
	caption string
	slug    string
	line    int
}

func newPasteCommand(a *app) *cobra.Command {
	opts := pasteOptions{}
	cmd := &cobra.Command{
		Use:   "paste --doc notes/today.md --image cat.png",
		Short: "Paste images into a markdown document and upload them",
		Long: "Each --image is pasted like a clipboard image: a placeholder goes in at the cursor,\n" +
			"the image is uploaded and the placeholder replaced by a link once the upload settles.\n" +
			"The document is written back after every upload finished.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.paste(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.root, "root", ".", "vault directory document paths are relative to")
	cmd.Flags().StringVar(&opts.doc, "doc", "", "document to paste into, relative to --root")
	cmd.Flags().StringSliceVar(&opts.images, "image", nil, "image file to paste (repeatable)")
	cmd.Flags().StringVar(&opts.caption, "caption", "", "caption, skips the prompt together with --slug")
	cmd.Flags().StringVar(&opts.slug, "slug", "", "slug, skips the prompt together with --caption")
	cmd.Flags().IntVar(&opts.line, "line", -1, "line to paste at (0-based), default end of document")
	_ = cmd.MarkFlagRequired("doc")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func (a *app) paste(cmd *cobra.Command, opts pasteOptions) error {
	ctx := cmd.Context()
	settingsMgr, _, err := a.settingsManager()
	if err != nil {
		return err
	}
	doc, err := editor.Open(opts.root, opts.doc)
	if err != nil {
		return err
	}
	if opts.line >= 0 {
		doc.SetCursor(editor.Position{Line: opts.line})
	} else {
		doc.CursorToEnd()
	}

	var prompter paste.Prompter = terminal.NewPrompter(nil, nil)
	if opts.slug != "" {
		prompter = terminal.Fixed{Caption: opts.caption, Slug: opts.slug}
	}
	notifier := terminal.NewNotifier(cmd.ErrOrStderr())
	docs := worker.NewManager(a.log)
	defer docs.Shutdown()
	orch := paste.NewOrchestrator(paste.Deps{
		Transcoder: transcode.NewWebP(),
		Uploader:   upload.NewClient(nil, a.log),
		Settings:   settingsMgr,
		Prompter:   prompter,
		Notifier:   notifier,
		Documents:  docs,
		Logger:     a.log,
	})

	var sessions []*paste.Session
	for _, path := range opts.images {
		ev, err := fileEvent(path)
		if err != nil {
			return err
		}
		sess, err := orch.HandlePaste(ctx, ev, doc)
		if err != nil {
			// notices were already shown; keep going with the other images
			a.log.Debug("paste abandoned", "image", path, "error", err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", cyan("uploading"), path, sess.Key)
		sessions = append(sessions, sess)
	}

	orch.Wait()
	docs.Close(doc)
	for _, sess := range sessions {
		if sess.State() == paste.StateResolved {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("linked"), sess.Reference())
		}
	}
	if err := doc.Save(opts.root); err != nil {
		return err
	}
	return nil
}

// fileEvent builds the paste a clipboard holding the file would produce.
func fileEvent(path string) (*paste.SimpleEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return &paste.SimpleEvent{Clipboard: []paste.ClipboardFile{{
		Name:     filepath.Base(path),
		MIMEType: mimetype.Detect(data).String(),
		Data:     data,
	}}}, nil
}
