package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"imagetolink/internal/auth"
	"imagetolink/internal/imagehost"
	"imagetolink/internal/logging"
	"imagetolink/internal/models"
	"imagetolink/internal/settings"
	"imagetolink/internal/storage"
)

const testToken = "obsidian-image-to-link"

var authHeader = map[string]string{"Authorization": "Bearer " + testToken}

func TestUploadAndServeImage(t *testing.T) {
	router := newTestServer(t, 1<<20)
	data := pngBytes(t)

	rec := doMultipart(t, router, map[string]string{"key": "notes/today/cat1.png"}, "image", "cat1.png", data, authHeader)
	assertStatus(t, rec, http.StatusCreated)
	var body struct {
		URL  string `json:"url"`
		Key  string `json:"key"`
		Hash string `json:"hash"`
		Size int64  `json:"size"`
		Mime string `json:"mime"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.URL != "https://img.example.com/images/notes/today/cat1.png" {
		t.Fatalf("unexpected url %q", body.URL)
	}
	if body.Mime != "image/png" || body.Size != int64(len(data)) {
		t.Fatalf("unexpected body %+v", body)
	}

	get := httptest.NewRequest(http.MethodGet, "/images/notes/today/cat1.png", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, get)
	assertStatus(t, getRec, http.StatusOK)
	if !bytes.Equal(getRec.Body.Bytes(), data) {
		t.Fatalf("served bytes differ")
	}
	if ct := getRec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content type %q", ct)
	}

	cached := httptest.NewRequest(http.MethodGet, "/images/notes/today/cat1.png", nil)
	cached.Header.Set("If-None-Match", getRec.Header().Get("ETag"))
	cachedRec := httptest.NewRecorder()
	router.ServeHTTP(cachedRec, cached)
	assertStatus(t, cachedRec, http.StatusNotModified)

	missing := httptest.NewRecorder()
	router.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/images/nope.png", nil))
	assertStatus(t, missing, http.StatusNotFound)
}

func TestUploadValidation(t *testing.T) {
	router := newTestServer(t, 4<<10)
	data := pngBytes(t)

	cases := []struct {
		name    string
		fields  map[string]string
		file    []byte
		headers map[string]string
		want    int
	}{
		{"no token", map[string]string{"key": "a.png"}, data, nil, http.StatusUnauthorized},
		{"wrong token", map[string]string{"key": "a.png"}, data, map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"missing key", nil, data, authHeader, http.StatusBadRequest},
		{"escaping key", map[string]string{"key": "../etc/a.png"}, data, authHeader, http.StatusBadRequest},
		{"not an image", map[string]string{"key": "a.png"}, []byte("plain text"), authHeader, http.StatusUnsupportedMediaType},
		{"too large", map[string]string{"key": "a.png"}, bytes.Repeat([]byte{0x89}, 16<<10), authHeader, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doMultipart(t, router, tc.fields, "image", "a.png", tc.file, tc.headers)
			assertStatus(t, rec, tc.want)
		})
	}

	rec := doMultipart(t, router, map[string]string{"key": "a.png"}, "file", "a.png", data, authHeader)
	assertStatus(t, rec, http.StatusBadRequest)
}

func TestSettingsPanel(t *testing.T) {
	router := newTestServer(t, 1<<20)

	rec := doJSONRequest(t, router, http.MethodGet, "/api/settings", nil, authHeader)
	assertStatus(t, rec, http.StatusOK)
	var body struct {
		Settings models.UploadSettings `json:"settings"`
		Fields   []settingsField       `json:"fields"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Settings != models.DefaultUploadSettings() {
		t.Fatalf("expected defaults, got %+v", body.Settings)
	}
	if len(body.Fields) != 4 || body.Fields[3].Label != "Response URL Target" {
		t.Fatalf("unexpected fields %+v", body.Fields)
	}

	rec = doJSONRequest(t, router, http.MethodPut, "/api/settings", map[string]string{"target": "data.url"}, authHeader)
	assertStatus(t, rec, http.StatusOK)
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Settings.Target != "data.url" {
		t.Fatalf("target not updated: %+v", body.Settings)
	}

	rec = doJSONRequest(t, router, http.MethodPut, "/api/settings", map[string]string{"body": "[1]"}, authHeader)
	assertStatus(t, rec, http.StatusBadRequest)
	rec = doJSONRequest(t, router, http.MethodPut, "/api/settings", map[string]string{"colour": "red"}, authHeader)
	assertStatus(t, rec, http.StatusBadRequest)
	rec = doJSONRequest(t, router, http.MethodGet, "/api/settings", nil, nil)
	assertStatus(t, rec, http.StatusUnauthorized)
}

func newTestServer(t *testing.T, maxUpload int64) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	images, err := imagehost.NewService(db, nil, filepath.Join(t.TempDir(), "blobs"), logging.Nop())
	if err != nil {
		t.Fatalf("image service: %v", err)
	}
	authSvc := auth.NewService(db, nil, []string{testToken})
	settingsMgr := settings.NewManager(settings.NewSQLStore(db), nil, logging.Nop())
	handler := NewHandler(images, authSvc, settingsMgr, Options{
		PublicBaseURL:  "https://img.example.com/",
		MaxUploadBytes: maxUpload,
		Logger:         logging.Nop(),
	})

	router := gin.New()
	handler.RegisterRoutes(router)
	return router
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func doMultipart(t *testing.T, router *gin.Engine, fields map[string]string, fileField, filename string, data []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(fileField, filename)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}
