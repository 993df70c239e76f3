// Package imagehost stores uploaded images on disk, addressed by content
// hash, and maps user-chosen keys onto them.
package imagehost

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"imagetolink/internal/logging"
	"imagetolink/internal/metrics"
	"imagetolink/internal/models"
	"imagetolink/internal/redis"
)

const (
	maxKeyLength     = 512
	redisImagePrefix = "image:"
	redisImageTTL    = time.Hour
)

var (
	ErrInvalidKey = errors.New("invalid image key")
	ErrNotImage   = errors.New("content is not an image")
	ErrNotFound   = errors.New("image not found")
)

// Service owns the blob directory and the images table.
type Service struct {
	db      *sql.DB
	cache   *redis.Client
	blobDir string
	log     *logging.Logger
}

// NewService creates the blob directory if needed. cache may be nil.
func NewService(db *sql.DB, cache *redis.Client, blobDir string, logger *logging.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Service{db: db, cache: cache, blobDir: blobDir, log: logger}, nil
}

// ValidateKey rejects keys that could escape the key namespace.
func ValidateKey(key string) error {
	if key == "" || len(key) > maxKeyLength {
		return fmt.Errorf("%w: length", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// Store saves data under key, replacing whatever the key pointed at.
// Identical bytes are written to disk once.
func (s *Service) Store(ctx context.Context, key string, data []byte) (models.StoredImage, error) {
	if err := ValidateKey(key); err != nil {
		return models.StoredImage{}, err
	}
	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return models.StoredImage{}, fmt.Errorf("%w: detected %s", ErrNotImage, mime.String())
	}

	img := models.StoredImage{
		Key:       key,
		Hash:      HashBlob(data),
		MimeType:  mime.String(),
		Size:      int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}
	written, err := s.writeBlob(img.Hash, data)
	if err != nil {
		return models.StoredImage{}, err
	}
	if written {
		metrics.HostStoredBytes.Add(float64(len(data)))
	}
	if err := s.upsertRecord(ctx, img); err != nil {
		return models.StoredImage{}, err
	}
	s.cacheRecord(ctx, img)
	s.log.Debug("image stored", "key", key, "hash", img.Hash, "size", img.Size, "new_blob", written)
	return img, nil
}

// Lookup finds the record for key.
func (s *Service) Lookup(ctx context.Context, key string) (models.StoredImage, error) {
	if err := ValidateKey(key); err != nil {
		return models.StoredImage{}, err
	}
	if img, ok := s.cachedRecord(ctx, key); ok {
		return img, nil
	}
	var img models.StoredImage
	err := s.db.QueryRowContext(ctx,
		`SELECT image_key, hash, mime_type, size, created_at FROM images WHERE image_key = ?`, key,
	).Scan(&img.Key, &img.Hash, &img.MimeType, &img.Size, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StoredImage{}, ErrNotFound
	}
	if err != nil {
		return models.StoredImage{}, fmt.Errorf("lookup image: %w", err)
	}
	s.cacheRecord(ctx, img)
	return img, nil
}

// Delete forgets key. The blob stays until the sweeper finds it unreferenced.
func (s *Service) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE image_key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, redisImagePrefix+key)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// BlobPath is where the blob with the given hash lives.
func (s *Service) BlobPath(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(s.blobDir, hash)
	}
	return filepath.Join(s.blobDir, hash[:2], hash)
}

func (s *Service) writeBlob(hash string, data []byte) (bool, error) {
	dest := s.BlobPath(hash)
	if _, err := os.Stat(dest); err == nil {
		// refresh mtime so a concurrent sweep treats the blob as fresh
		now := time.Now()
		_ = os.Chtimes(dest, now, now)
		return false, nil
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return false, fmt.Errorf("create blob: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("write blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return false, fmt.Errorf("commit blob: %w", err)
	}
	return true, nil
}

func (s *Service) upsertRecord(ctx context.Context, img models.StoredImage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record image: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM images WHERE image_key = ?`, img.Key); err != nil {
		return fmt.Errorf("record image: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO images (image_key, hash, mime_type, size, created_at) VALUES (?, ?, ?, ?, ?)`,
		img.Key, img.Hash, img.MimeType, img.Size, img.CreatedAt); err != nil {
		return fmt.Errorf("record image: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record image: %w", err)
	}
	return nil
}

func (s *Service) cacheRecord(ctx context.Context, img models.StoredImage) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(img)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, redisImagePrefix+img.Key, data, redisImageTTL); err != nil {
		s.log.Warn("image cache write failed", "key", img.Key, "error", err)
	}
}

func (s *Service) cachedRecord(ctx context.Context, key string) (models.StoredImage, bool) {
	if s.cache == nil {
		return models.StoredImage{}, false
	}
	raw, err := s.cache.Get(ctx, redisImagePrefix+key)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.log.Warn("image cache read failed", "key", key, "error", err)
		}
		return models.StoredImage{}, false
	}
	var img models.StoredImage
	if err := json.Unmarshal([]byte(raw), &img); err != nil {
		return models.StoredImage{}, false
	}
	return img, true
}
