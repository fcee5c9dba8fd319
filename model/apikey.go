package model

import (
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/twinmcp/gateway/auth"
)

// APIKey is the durable credential record. The opaque key itself is the
// primary key; a masked form is what ever reaches logs.
type APIKey struct {
	Key         string          `json:"key" gorm:"primaryKey;type:varchar(128)"`
	UserId      string          `json:"user_id" gorm:"index;type:varchar(64);not null"`
	Name        string          `json:"name" gorm:"type:varchar(128)"`
	Permissions JSONPermissions `json:"permissions" gorm:"type:text"`

	RateLimitRequests int    `json:"rate_limit_requests" gorm:"default:0"`
	RateLimitPeriod   int64  `json:"rate_limit_period_seconds" gorm:"default:0"`
	RateLimitStrategy string `json:"rate_limit_strategy" gorm:"type:varchar(16)"`

	IsActive   bool      `json:"is_active" gorm:"default:true"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateAPIKey persists a key record.
func (s *Store) CreateAPIKey(key *APIKey) error {
	if key == nil {
		return errors.New("api key is nil")
	}
	if key.Key == "" {
		return errors.New("api key value is required")
	}
	if key.UserId == "" {
		return errors.New("api key user id is required")
	}
	if err := s.db.Create(key).Error; err != nil {
		return errors.Wrap(err, "create api key")
	}
	return nil
}

// ListAPIKeysByUser returns every key owned by the user.
func (s *Store) ListAPIKeysByUser(userId string) ([]*APIKey, error) {
	var keys []*APIKey
	if err := s.db.Where("user_id = ?", userId).Find(&keys).Error; err != nil {
		return nil, errors.Wrapf(err, "list api keys for user %q", userId)
	}
	return keys, nil
}

// RevokeAPIKey flips a key inactive. Idempotent.
func (s *Store) RevokeAPIKey(key string) error {
	err := s.db.Model(&APIKey{}).Where("key = ?", key).
		Update("is_active", false).Error
	return errors.Wrap(err, "revoke api key")
}

// TouchAPIKey bumps the key's last-used timestamp.
func (s *Store) TouchAPIKey(key string) error {
	err := s.db.Model(&APIKey{}).Where("key = ?", key).
		Update("last_used_at", s.now()).Error
	return errors.Wrap(err, "touch api key")
}

// toAuthKey converts the durable record into the in-memory auth form.
func (k *APIKey) toAuthKey() *auth.APIKey {
	record := &auth.APIKey{
		Key:         k.Key,
		UserId:      k.UserId,
		Name:        k.Name,
		Permissions: []auth.Permission(k.Permissions),
		IsActive:    k.IsActive,
		ExpiresAt:   k.ExpiresAt,
		LastUsedAt:  k.LastUsedAt,
	}
	if policy := rateLimitPolicy(k.RateLimitRequests, k.RateLimitPeriod, k.RateLimitStrategy); !policy.IsZero() {
		record.RateLimit = &policy
	}
	return record
}

// HydrateAuth loads every stored user and key into the in-memory auth
// service. Called once at startup when a database is configured.
func (s *Store) HydrateAuth(svc *auth.Service) error {
	users, err := s.ListUsers()
	if err != nil {
		return err
	}
	for _, user := range users {
		if err := svc.AddUser(user.toAuthUser()); err != nil {
			return errors.Wrapf(err, "hydrate user %q", user.Id)
		}
	}

	var keys []*APIKey
	if err := s.db.Find(&keys).Error; err != nil {
		return errors.Wrap(err, "list api keys")
	}
	for _, key := range keys {
		if err := svc.ImportAPIKey(key.toAuthKey()); err != nil {
			return errors.Wrapf(err, "hydrate api key for user %q", key.UserId)
		}
	}
	return nil
}
