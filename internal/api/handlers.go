package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"imagetolink/internal/auth"
	"imagetolink/internal/imagehost"
	"imagetolink/internal/logging"
	"imagetolink/internal/metrics"
	"imagetolink/internal/models"
	"imagetolink/internal/settings"
)

// SettingsManager loads and saves the upload settings shown in the panel.
type SettingsManager interface {
	Load(ctx context.Context) (models.UploadSettings, error)
	Save(ctx context.Context, s models.UploadSettings) error
}

// Handler wires HTTP routes to the image host and the settings panel.
type Handler struct {
	images         *imagehost.Service
	auth           *auth.Service
	settings       SettingsManager
	publicBaseURL  string
	maxUploadBytes int64
	log            *logging.Logger
}

type Options struct {
	PublicBaseURL  string
	MaxUploadBytes int64
	Logger         *logging.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(images *imagehost.Service, authService *auth.Service, settingsManager SettingsManager, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		images:         images,
		auth:           authService,
		settings:       settingsManager,
		publicBaseURL:  strings.TrimRight(opts.PublicBaseURL, "/"),
		maxUploadBytes: opts.MaxUploadBytes,
		log:            logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	authMW := h.auth.Middleware()
	router.POST("/upload/image", authMW, h.uploadImage)
	router.GET("/images/*key", h.serveImage)

	api := router.Group("/api")
	api.Use(authMW)
	api.GET("/settings", h.getSettings)
	api.PUT("/settings", h.updateSettings)
}

func (h *Handler) uploadImage(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
		if isTooLarge(err) {
			metrics.HostUploads.WithLabelValues("too_large").Inc()
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		metrics.HostUploads.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	key := strings.TrimSpace(c.PostForm("key"))
	if key == "" {
		metrics.HostUploads.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	file, err := c.FormFile("image")
	if err != nil {
		metrics.HostUploads.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is required"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
		return
	}

	img, err := h.images.Store(c.Request.Context(), key, data)
	switch {
	case errors.Is(err, imagehost.ErrInvalidKey):
		metrics.HostUploads.WithLabelValues("bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, imagehost.ErrNotImage):
		metrics.HostUploads.WithLabelValues("unsupported").Inc()
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported file type"})
		return
	case err != nil:
		metrics.HostUploads.WithLabelValues("error").Inc()
		h.log.Error("store image failed", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store image failed"})
		return
	}

	metrics.HostUploads.WithLabelValues("stored").Inc()
	label, _ := auth.TokenLabelFromContext(c)
	h.log.Info("image uploaded", "key", img.Key, "size", img.Size, "token", label)
	c.JSON(http.StatusCreated, gin.H{
		"url":  h.publicBaseURL + "/images/" + img.Key,
		"key":  img.Key,
		"hash": img.Hash,
		"size": img.Size,
		"mime": img.MimeType,
	})
}

func (h *Handler) serveImage(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	img, err := h.images.Lookup(c.Request.Context(), key)
	switch {
	case errors.Is(err, imagehost.ErrInvalidKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	case errors.Is(err, imagehost.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup image failed"})
		return
	}

	etag := `"` + img.Hash + `"`
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	f, err := os.Open(h.images.BlobPath(img.Hash))
	if err != nil {
		h.log.Error("open blob failed", "key", key, "hash", img.Hash, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "image unavailable"})
		return
	}
	defer f.Close()
	c.DataFromReader(http.StatusOK, img.Size, img.MimeType, f, map[string]string{
		"ETag":          etag,
		"Cache-Control": "public, max-age=86400",
	})
}

type settingsField struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Placeholder string `json:"placeholder"`
	Value       string `json:"value"`
}

func (h *Handler) getSettings(c *gin.Context) {
	s, err := h.settings.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": s, "fields": panelFields(s)})
}

// updateSettings applies a partial object of field name to value.
func (h *Handler) updateSettings(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	s, err := h.settings.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	for name, value := range req {
		field, ok := models.LookupSettingField(name)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown field " + name})
			return
		}
		field.Set(&s, value)
	}
	if err := h.settings.Save(c.Request.Context(), s); err != nil {
		if errors.Is(err, settings.ErrInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": s, "fields": panelFields(s)})
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	// older multipart readers flatten the error to text
	return strings.Contains(err.Error(), "request body too large")
}

func panelFields(s models.UploadSettings) []settingsField {
	var out []settingsField
	for _, f := range models.SettingFields() {
		out = append(out, settingsField{
			Name:        f.Name,
			Label:       f.Label,
			Description: f.Description,
			Placeholder: f.Placeholder,
			Value:       f.Get(&s),
		})
	}
	return out
}
