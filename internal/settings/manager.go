package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"imagetolink/internal/logging"
	"imagetolink/internal/models"
	"imagetolink/internal/template"
)

var (
	ErrUnknownField = errors.New("unknown settings field")
	ErrInvalid      = errors.New("invalid settings")
)

// Manager merges stored settings over the defaults and validates changes
// before they reach the store. The merged value is cached until the store
// reports a change.
type Manager struct {
	store  Store
	cipher *Cipher
	log    *logging.Logger

	mu     sync.Mutex
	cached *models.UploadSettings
}

func NewManager(store Store, c *Cipher, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{store: store, cipher: c, log: logger}
}

// Load returns the settings in effect. A stored blob that is not valid JSON
// is reported and the defaults are used.
func (m *Manager) Load(ctx context.Context) (models.UploadSettings, error) {
	m.mu.Lock()
	if m.cached != nil {
		s := *m.cached
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	raw, err := m.store.Load(ctx)
	if err != nil {
		return models.UploadSettings{}, err
	}
	s, err := models.MergeUploadSettings(raw)
	if err != nil {
		m.log.Warn("stored settings unreadable, using defaults", "error", err)
	}
	headers, err := m.cipher.Open(s.Headers)
	if err != nil {
		return models.UploadSettings{}, fmt.Errorf("decrypt headers: %w", err)
	}
	s.Headers = headers

	m.mu.Lock()
	m.cached = &s
	m.mu.Unlock()
	return s, nil
}

// Save validates s and persists it.
func (m *Manager) Save(ctx context.Context, s models.UploadSettings) error {
	if err := Validate(s); err != nil {
		return err
	}
	stored := s
	if m.cipher != nil {
		sealed, err := m.cipher.Seal(s.Headers)
		if err != nil {
			return fmt.Errorf("encrypt headers: %w", err)
		}
		stored.Headers = sealed
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := m.store.Save(ctx, data); err != nil {
		return err
	}

	m.mu.Lock()
	m.cached = &s
	m.mu.Unlock()
	m.log.Info("settings saved", "api_url", s.APIURL, "target", s.Target)
	return nil
}

// Set changes one panel field by name and saves the result.
func (m *Manager) Set(ctx context.Context, name, value string) (models.UploadSettings, error) {
	field, ok := models.LookupSettingField(name)
	if !ok {
		return models.UploadSettings{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	s, err := m.Load(ctx)
	if err != nil {
		return models.UploadSettings{}, err
	}
	field.Set(&s, value)
	if err := m.Save(ctx, s); err != nil {
		return models.UploadSettings{}, err
	}
	return s, nil
}

// Invalidate drops the cached value so the next Load reads the store.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

// Validate checks that both templates parse and the endpoint is an absolute
// http(s) URL.
func Validate(s models.UploadSettings) error {
	u, err := url.Parse(s.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: api_url must be an absolute http(s) URL", ErrInvalid)
	}
	if _, err := template.ParseHeaders(s.Headers); err != nil {
		return fmt.Errorf("%w: headers: %w", ErrInvalid, err)
	}
	if _, err := template.RenderBody(s.Body); err != nil {
		return fmt.Errorf("%w: body: %w", ErrInvalid, err)
	}
	if s.Target == "" {
		return fmt.Errorf("%w: target must not be empty", ErrInvalid)
	}
	return nil
}
