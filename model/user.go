package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/twinmcp/gateway/auth"
	"github.com/twinmcp/gateway/ratelimit"
)

// User is the durable caller identity record.
type User struct {
	Id           string          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Name         string          `json:"name" gorm:"type:varchar(128);not null"`
	PasswordHash string          `json:"-" gorm:"type:varchar(128)"`
	Permissions  JSONPermissions `json:"permissions" gorm:"type:text"`

	// Rate limit defaults applied to keys minted for this user. Zero
	// requests means no per-user limit.
	RateLimitRequests int    `json:"rate_limit_requests" gorm:"default:0"`
	RateLimitPeriod   int64  `json:"rate_limit_period_seconds" gorm:"default:0"`
	RateLimitStrategy string `json:"rate_limit_strategy" gorm:"type:varchar(16)"`

	IsActive   bool      `json:"is_active" gorm:"default:true"`
	LastUsedAt time.Time `json:"last_used_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateUser persists a user, hashing the plaintext password when given.
func (s *Store) CreateUser(user *User, password string) error {
	if user == nil {
		return errors.New("user is nil")
	}
	if user.Id == "" {
		return errors.New("user id is required")
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return errors.Wrap(err, "hash password")
		}
		user.PasswordHash = string(hash)
	}
	if err := s.db.Create(user).Error; err != nil {
		return errors.Wrapf(err, "create user %q", user.Id)
	}
	return nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(id string) (*User, error) {
	if id == "" {
		return nil, errors.New("user id is required")
	}
	var user User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "get user %q", id)
	}
	return &user, nil
}

// ListUsers returns every user record.
func (s *Store) ListUsers() ([]*User, error) {
	var users []*User
	if err := s.db.Order("id asc").Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return users, nil
}

// ValidatePassword checks a plaintext password against the stored hash.
func (s *Store) ValidatePassword(id, password string) error {
	user, err := s.GetUser(id)
	if err != nil {
		return err
	}
	if !user.IsActive {
		return errors.Errorf("user %q is inactive", id)
	}
	if user.PasswordHash == "" {
		return errors.Errorf("user %q has no password set", id)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return errors.Wrap(err, "password mismatch")
	}
	return nil
}

// TouchUser bumps the user's last-used timestamp.
func (s *Store) TouchUser(id string) error {
	err := s.db.Model(&User{}).Where("id = ?", id).
		Update("last_used_at", s.now()).Error
	return errors.Wrapf(err, "touch user %q", id)
}

// DeactivateUser flips the user inactive. Idempotent.
func (s *Store) DeactivateUser(id string) error {
	err := s.db.Model(&User{}).Where("id = ?", id).
		Update("is_active", false).Error
	return errors.Wrapf(err, "deactivate user %q", id)
}

// rateLimitPolicy rebuilds the in-memory policy from the stored columns.
func rateLimitPolicy(requests int, periodSeconds int64, strategy string) ratelimit.Policy {
	if requests <= 0 || periodSeconds <= 0 {
		return ratelimit.Policy{}
	}
	s := ratelimit.Strategy(strategy)
	if s != ratelimit.StrategySliding && s != ratelimit.StrategyFixed {
		s = ratelimit.StrategySliding
	}
	return ratelimit.Policy{
		Requests: requests,
		Period:   time.Duration(periodSeconds) * time.Second,
		Strategy: s,
	}
}

// toAuthUser converts the durable record into the in-memory auth form.
func (u *User) toAuthUser() *auth.User {
	return &auth.User{
		Id:          u.Id,
		Name:        u.Name,
		Permissions: []auth.Permission(u.Permissions),
		RateLimit:   rateLimitPolicy(u.RateLimitRequests, u.RateLimitPeriod, u.RateLimitStrategy),
		IsActive:    u.IsActive,
		LastUsedAt:  u.LastUsedAt,
	}
}
