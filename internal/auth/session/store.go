package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/usagetrack/internal/clock"
	"gorm.io/gorm"
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrSessionExpired = errors.New("session expired")
	ErrSessionRevoked = errors.New("session revoked")
)

// Session is a persisted login session keyed by the hash of its cookie value.
type Session struct {
	ID               string     `gorm:"column:id;primaryKey"`
	UserID           string     `gorm:"column:user_id;not null;index"`
	SessionTokenHash string     `gorm:"column:session_token_hash;not null;uniqueIndex"`
	ExpiresAt        time.Time  `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time `gorm:"column:revoked_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;not null"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

type Store struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, clock: clock.System()}
}

// UserIDForToken returns the user owning an active session.
func (s *Store) UserIDForToken(ctx context.Context, rawToken string) (string, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return "", ErrInvalidSession
	}

	var sess Session
	err := s.db.WithContext(ctx).Where("session_token_hash = ?", HashToken(token)).Take(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrInvalidSession
	}
	if err != nil {
		return "", err
	}

	if sess.RevokedAt != nil {
		return "", ErrSessionRevoked
	}
	if s.clock.Now().After(sess.ExpiresAt) {
		return "", ErrSessionExpired
	}
	return sess.UserID, nil
}

func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
