package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"imagetolink/internal/logging"
	"imagetolink/internal/metrics"
	"imagetolink/internal/models"
	"imagetolink/internal/template"
)

var (
	ErrRequestBuild       = errors.New("build upload request")
	ErrTransport          = errors.New("upload request failed")
	ErrResponseParse      = errors.New("parse upload response")
	ErrResponseExtraction = errors.New("extract upload reference")
)

const maxResponseBytes = 4 << 20

// Client sends images to the configured endpoint.
type Client struct {
	http *http.Client
	log  *logging.Logger
}

// NewClient builds an upload client. The http client carries no timeout of
// its own; the caller's context bounds each upload.
func NewClient(httpClient *http.Client, logger *logging.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{http: httpClient, log: logger}
}

// Upload posts the image and its content key as multipart form data and
// returns the reference found at cfg.Target in the JSON response.
func (c *Client) Upload(ctx context.Context, cfg models.UploadSettings, image []byte, filename, key string) (string, error) {
	start := time.Now()
	ref, outcome, err := c.upload(ctx, cfg, image, filename, key)
	metrics.Uploads.WithLabelValues(outcome).Inc()
	metrics.UploadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.log.Warn("upload failed", "endpoint", cfg.APIURL, "key", key, "outcome", outcome, "error", err)
		return "", err
	}
	c.log.Debug("upload finished", "endpoint", cfg.APIURL, "key", key, "reference", ref, "elapsed", time.Since(start))
	return ref, nil
}

func (c *Client) upload(ctx context.Context, cfg models.UploadSettings, image []byte, filename, key string) (string, string, error) {
	req, err := NewRequest(ctx, cfg, image, filename, key)
	if err != nil {
		return "", "request_build", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "transport", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", "transport", fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	// the status is not checked: any response whose JSON carries the
	// reference counts as an upload
	ref, err := template.ExtractField(data, cfg.Target)
	switch {
	case errors.Is(err, template.ErrInvalidJSON):
		return "", "response_parse", fmt.Errorf("%w: %v%s: %s", ErrResponseParse, err, statusNote(resp), snippet(data))
	case err != nil:
		return "", "extraction", fmt.Errorf("%w: %w%s", ErrResponseExtraction, err, statusNote(resp))
	}
	return ref, "ok", nil
}

func statusNote(resp *http.Response) string {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return ""
	}
	return fmt.Sprintf(" (status %d)", resp.StatusCode)
}

// NewRequest builds the POST request for one upload without sending it.
func NewRequest(ctx context.Context, cfg models.UploadSettings, image []byte, filename, key string) (*http.Request, error) {
	plan, err := template.RenderBody(cfg.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestBuild, err)
	}
	headers, err := template.ParseHeaders(cfg.Headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRequestBuild, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := writeImagePart(mw, plan.ImageField, filename, image); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestBuild, err)
	}
	if err := mw.WriteField(plan.KeyField, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestBuild, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestBuild, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIURL, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestBuild, err)
	}
	for _, h := range headers {
		req.Header.Set(h.Name, h.Value)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeImagePart(mw *multipart.Writer, field, filename string, image []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", mimetype.Detect(image).String())
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(image)
	return err
}

func snippet(data []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
