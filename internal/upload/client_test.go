package upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagetolink/internal/logging"
	"imagetolink/internal/models"
	"imagetolink/internal/template"
)

var webpBytes = []byte("RIFF\x1a\x00\x00\x00WEBPVP8 \x0e\x00\x00\x00fake-image-body")

type received struct {
	authorization string
	fields        map[string]string
	fileField     string
	fileName      string
	fileType      string
	fileData      []byte
}

func newTestEndpoint(t *testing.T, status int, response string) (*httptest.Server, *received) {
	t.Helper()
	got := &received{fields: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		got.authorization = r.Header.Get("Authorization")
		mr, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			return
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				return
			}
			data, _ := io.ReadAll(part)
			if part.FileName() != "" {
				got.fileField = part.FormName()
				got.fileName = part.FileName()
				got.fileType = part.Header.Get("Content-Type")
				got.fileData = data
				continue
			}
			got.fields[part.FormName()] = string(data)
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newTestClient() *Client {
	return NewClient(nil, logging.Nop())
}

func TestUploadDefaultSettings(t *testing.T) {
	srv, got := newTestEndpoint(t, http.StatusOK, `{"url":"https://cdn/x.webp"}`)
	cfg := models.DefaultUploadSettings()
	cfg.APIURL = srv.URL

	ref, err := newTestClient().Upload(context.Background(), cfg, webpBytes, "image.webp", "notes/today/cat1.webp")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.webp", ref)

	assert.Equal(t, "Bearer obsidian-image-to-link", got.authorization)
	assert.Equal(t, "image", got.fileField)
	assert.Equal(t, "image.webp", got.fileName)
	assert.Equal(t, "image/webp", got.fileType)
	assert.Equal(t, webpBytes, got.fileData)
	assert.Equal(t, map[string]string{"key": "notes/today/cat1.webp"}, got.fields)
}

func TestUploadCustomTemplate(t *testing.T) {
	srv, got := newTestEndpoint(t, http.StatusCreated, `{"data":{"link":"https://img/1"}}`)
	cfg := models.UploadSettings{
		APIURL:  srv.URL,
		Headers: `{"Authorization": "Client-ID 123", "Content-Type": "application/json"}`,
		Body:    `{"path": "$KEY", "album": "notes", "file": "$IMAGE"}`,
		Target:  "data.link",
	}

	ref, err := newTestClient().Upload(context.Background(), cfg, webpBytes, "a.webp", "k.webp")
	require.NoError(t, err)
	assert.Equal(t, "https://img/1", ref)
	assert.Equal(t, "Client-ID 123", got.authorization)
	assert.Equal(t, "file", got.fileField)
	// only the image and key parts are sent
	assert.Equal(t, map[string]string{"path": "k.webp"}, got.fields)
}

func TestUploadSendsOnlyImageAndKey(t *testing.T) {
	srv, got := newTestEndpoint(t, http.StatusOK, `{"url":"https://cdn/x.webp"}`)
	cfg := models.DefaultUploadSettings()
	cfg.APIURL = srv.URL
	cfg.Body = `{"image": "$IMAGE", "key": "$KEY", "bucket": "b", "extra": "$OTHER"}`

	_, err := newTestClient().Upload(context.Background(), cfg, webpBytes, "a.webp", "k.webp")
	require.NoError(t, err)
	assert.Equal(t, "image", got.fileField)
	assert.Equal(t, map[string]string{"key": "k.webp"}, got.fields)
}

func TestUploadIgnoresStatusWhenReferencePresent(t *testing.T) {
	srv, _ := newTestEndpoint(t, http.StatusBadRequest, `{"url":"https://cdn/x.webp"}`)
	cfg := models.DefaultUploadSettings()
	cfg.APIURL = srv.URL

	ref, err := newTestClient().Upload(context.Background(), cfg, webpBytes, "x.webp", "x.webp")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.webp", ref)
}

func TestUploadFallsBackToURL(t *testing.T) {
	srv, _ := newTestEndpoint(t, http.StatusOK, `{"url":"https://cdn/y.webp","data":null}`)
	cfg := models.DefaultUploadSettings()
	cfg.APIURL = srv.URL
	cfg.Target = "data.image.url"

	ref, err := newTestClient().Upload(context.Background(), cfg, webpBytes, "y.webp", "y.webp")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/y.webp", ref)
}

func TestUploadErrors(t *testing.T) {
	t.Run("bad body template", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
		defer srv.Close()
		cfg := models.DefaultUploadSettings()
		cfg.APIURL = srv.URL
		cfg.Body = `{"image": "$IMAGE"`
		_, err := newTestClient().Upload(context.Background(), cfg, webpBytes, "a.webp", "k")
		assert.ErrorIs(t, err, ErrRequestBuild)
		assert.ErrorIs(t, err, template.ErrInvalidTemplate)
		assert.Zero(t, hits.Load(), "no request may be sent for a malformed template")
	})

	t.Run("bad headers template", func(t *testing.T) {
		cfg := models.DefaultUploadSettings()
		cfg.Headers = `[]`
		_, err := newTestClient().Upload(context.Background(), cfg, webpBytes, "a.webp", "k")
		assert.ErrorIs(t, err, ErrRequestBuild)
	})

	t.Run("transport", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		cfg := models.DefaultUploadSettings()
		cfg.APIURL = url
		_, err := newTestClient().Upload(context.Background(), cfg, webpBytes, "a.webp", "k")
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("error status without reference", func(t *testing.T) {
		srv, _ := newTestEndpoint(t, http.StatusInternalServerError, `{"error":"boom"}`)
		cfg := models.DefaultUploadSettings()
		cfg.APIURL = srv.URL
		_, err := newTestClient().Upload(context.Background(), cfg, webpBytes, "a.webp", "k")
		assert.ErrorIs(t, err, ErrResponseExtraction)
		assert.Contains(t, err.Error(), "status 500")
	})

	t.Run("empty headers template", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
		defer srv.Close()
		cfg := models.DefaultUploadSettings()
		cfg.APIURL = srv.URL
		cfg.Headers = ""
		_, err := newTestClient().Upload(context.Background(), cfg, webpBytes, "a.webp", "k")
		assert.ErrorIs(t, err, ErrRequestBuild)
		assert.ErrorIs(t, err, template.ErrInvalidTemplate)
		assert.Zero(t, hits.Load())
	})

	t.Run("not json", func(t *testing.T) {
		srv, _ := newTestEndpoint(t, http.StatusOK, `<html>ok</html>`)
		cfg := models.DefaultUploadSettings()
		cfg.APIURL = srv.URL
		_, err := newTestClient().Upload(context.Background(), cfg, webpBytes, "a.webp", "k")
		assert.ErrorIs(t, err, ErrResponseParse)
	})

	t.Run("missing reference", func(t *testing.T) {
		srv, _ := newTestEndpoint(t, http.StatusOK, `{"ok":true}`)
		cfg := models.DefaultUploadSettings()
		cfg.APIURL = srv.URL
		cfg.Target = "data.url"
		_, err := newTestClient().Upload(context.Background(), cfg, webpBytes, "a.webp", "k")
		assert.ErrorIs(t, err, ErrResponseExtraction)
		assert.ErrorIs(t, err, template.ErrFieldNotFound)
	})
}
