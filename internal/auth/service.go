package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"imagetolink/internal/models"
	"imagetolink/internal/redis"
)

const (
	redisTokenPrefix = "auth:token:"
	redisTokenTTL    = 10 * time.Minute
	staticLabel      = "static"
)

var (
	ErrTokenRequired = errors.New("token required")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
)

// Service issues, validates, and revokes upload tokens accepted by the image
// host. Tokens listed in the config are always valid.
type Service struct {
	db         *sql.DB
	cache      *redis.Client
	static     []string
	headerName string
}

// NewService constructs an auth service. cache may be nil.
func NewService(db *sql.DB, cache *redis.Client, staticTokens []string) *Service {
	var static []string
	for _, t := range staticTokens {
		if t = strings.TrimSpace(t); t != "" {
			static = append(static, t)
		}
	}
	return &Service{
		db:         db,
		cache:      cache,
		static:     static,
		headerName: "Authorization",
	}
}

// IssueToken mints a new random token and persists it. A zero ttl never
// expires.
func (s *Service) IssueToken(ctx context.Context, label string, ttl time.Duration) (models.UploadToken, error) {
	if label == "" {
		label = "cli"
	}
	now := time.Now().UTC()
	var expiresAt sql.NullTime
	if ttl > 0 {
		expiresAt = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return models.UploadToken{}, err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO upload_tokens (token, label, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, label, now, expiresAt,
		)
		if err == nil {
			t := models.UploadToken{Token: token, Label: label, CreatedAt: now}
			if expiresAt.Valid {
				exp := expiresAt.Time
				t.ExpiresAt = &exp
			}
			return t, nil
		}
	}
	return models.UploadToken{}, errors.New("could not issue token")
}

// ValidateToken verifies the token is known and not expired, returning its
// label.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (string, error) {
	if authToken == "" {
		return "", ErrTokenRequired
	}
	for _, t := range s.static {
		if subtle.ConstantTimeCompare([]byte(t), []byte(authToken)) == 1 {
			return staticLabel, nil
		}
	}
	if label, ok := s.cachedLabel(ctx, authToken); ok {
		return label, nil
	}

	var label string
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT label, expires_at FROM upload_tokens WHERE token = ?`, authToken,
	).Scan(&label, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("lookup token: %w", err)
	}
	if expires.Valid && time.Now().UTC().After(expires.Time) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM upload_tokens WHERE token = ?`, authToken)
		return "", ErrTokenExpired
	}
	s.cacheLabel(ctx, authToken, label, expires)
	return label, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	if authToken == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM upload_tokens WHERE token = ?`, authToken); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, redisTokenPrefix+authToken)
	}
	return nil
}

// ListTokens returns every stored token, newest first.
func (s *Service) ListTokens(ctx context.Context) ([]models.UploadToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, label, created_at, expires_at FROM upload_tokens ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.UploadToken
	for rows.Next() {
		var t models.UploadToken
		var expires sql.NullTime
		if err := rows.Scan(&t.Token, &t.Label, &t.CreatedAt, &expires); err != nil {
			return nil, fmt.Errorf("list tokens: %w", err)
		}
		if expires.Valid {
			exp := expires.Time
			t.ExpiresAt = &exp
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *Service) cachedLabel(ctx context.Context, token string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	label, err := s.cache.Get(ctx, redisTokenPrefix+token)
	if err != nil {
		return "", false
	}
	return label, true
}

func (s *Service) cacheLabel(ctx context.Context, token, label string, expires sql.NullTime) {
	if s.cache == nil {
		return
	}
	ttl := redisTokenTTL
	if expires.Valid {
		if left := time.Until(expires.Time); left < ttl {
			ttl = left
		}
	}
	if ttl <= 0 {
		return
	}
	_ = s.cache.Set(ctx, redisTokenPrefix+token, label, ttl)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
