package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/twinmcp/gateway/common/helper"
	"github.com/twinmcp/gateway/ratelimit"
)

// User is a known caller identity.
type User struct {
	Id          string           `json:"id"`
	Name        string           `json:"name"`
	Permissions []Permission     `json:"permissions"`
	RateLimit   ratelimit.Policy `json:"rate_limit"`
	IsActive    bool             `json:"is_active"`
	LastUsedAt  time.Time        `json:"last_used_at"`
}

// APIKey is an opaque credential bound to exactly one user, optionally
// carrying its own permission and rate-limit overrides.
type APIKey struct {
	Key         string            `json:"key"`
	UserId      string            `json:"user_id"`
	Name        string            `json:"name"`
	Permissions []Permission      `json:"permissions,omitempty"`
	RateLimit   *ratelimit.Policy `json:"rate_limit,omitempty"`
	IsActive    bool              `json:"is_active"`
	ExpiresAt   time.Time         `json:"expires_at,omitempty"`
	LastUsedAt  time.Time         `json:"last_used_at"`
}

// Service authenticates requests and authorizes actions. State lives in
// memory behind a RWMutex; durable deployments hydrate it from the model
// stores at startup.
type Service struct {
	mu    sync.RWMutex
	users map[string]*User
	keys  map[string]*APIKey

	secret    string
	keyPrefix string
	now       func() time.Time
}

// NewService creates an auth service. secret signs bearer tokens; keyPrefix
// marks opaque API keys in the Authorization header.
func NewService(secret, keyPrefix string) *Service {
	return &Service{
		users:     make(map[string]*User),
		keys:      make(map[string]*APIKey),
		secret:    secret,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

// AddUser registers or replaces a user record.
func (s *Service) AddUser(user *User) error {
	if user == nil || user.Id == "" {
		return errors.New("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Id] = user
	return nil
}

// GetUser returns a copy of the user record.
func (s *Service) GetUser(id string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, false
	}
	clone := *user
	return &clone, true
}

// Authenticate resolves an inbound request to a Context. It tries, in
// order: an API key (dedicated header, query parameter, or prefixed bearer
// token), then a signed bearer/cookie token, then falls back to the
// anonymous context with its fixed small quota.
func (s *Service) Authenticate(req Request) (*Context, error) {
	if key := s.extractAPIKey(req); key != "" {
		return s.authenticateAPIKey(key)
	}
	if token := extractBearerToken(req); token != "" {
		return s.authenticateToken(token)
	}
	return AnonymousContext(), nil
}

// extractAPIKey pulls an opaque API key from the dedicated header, the
// query parameter, or a key-prefixed bearer token.
func (s *Service) extractAPIKey(req Request) string {
	if key := strings.TrimSpace(req.Header(HeaderAPIKey)); key != "" {
		return key
	}
	if key := strings.TrimSpace(req.Query(QueryAPIKey)); key != "" {
		return key
	}
	if bearer := extractBearerToken(req); strings.HasPrefix(bearer, s.keyPrefix) {
		return bearer
	}
	return ""
}

// extractBearerToken pulls the bearer token from the Authorization header
// or the token cookie.
func extractBearerToken(req Request) string {
	raw := strings.TrimSpace(req.Header(HeaderAuth))
	raw = strings.TrimPrefix(raw, bearerPrefix)
	raw = strings.TrimPrefix(raw, bearerPrefix2)
	if raw != "" {
		return raw
	}
	return strings.TrimSpace(req.Cookie(CookieToken))
}

// authenticateAPIKey resolves a key to a Context, updating last-used
// timestamps on both the key and its user.
func (s *Service) authenticateAPIKey(key string) (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.keys[key]
	if !ok || !record.IsActive {
		return nil, errors.Wrapf(ErrInvalidAPIKey, "key %s", helper.MaskAPIKey(key))
	}
	if !record.ExpiresAt.IsZero() && s.now().After(record.ExpiresAt) {
		return nil, errors.Wrapf(ErrExpiredToken, "key %s", helper.MaskAPIKey(key))
	}

	user, ok := s.users[record.UserId]
	if !ok || !user.IsActive {
		return nil, errors.Wrapf(ErrUnauthorized, "key %s references unknown or inactive user", helper.MaskAPIKey(key))
	}

	now := s.now()
	record.LastUsedAt = now
	user.LastUsedAt = now

	permissions := record.Permissions
	if len(permissions) == 0 {
		permissions = user.Permissions
	}
	policy := user.RateLimit
	if record.RateLimit != nil {
		policy = *record.RateLimit
	}

	return &Context{
		UserId:          user.Id,
		Permissions:     permissions,
		RateLimit:       policy,
		IsAuthenticated: true,
		Method:          MethodAPIKey,
	}, nil
}

// authenticateToken resolves a signed bearer token to a Context.
func (s *Service) authenticateToken(token string) (*Context, error) {
	userId, err := s.verifyToken(token)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userId]
	if !ok || !user.IsActive {
		return nil, errors.Wrapf(ErrUnauthorized, "token subject %q unknown or inactive", userId)
	}
	user.LastUsedAt = s.now()

	return &Context{
		UserId:          user.Id,
		Permissions:     user.Permissions,
		RateLimit:       user.RateLimit,
		IsAuthenticated: true,
		Method:          MethodJWT,
	}, nil
}

// anonymousMaxCost caps what an unauthenticated caller may spend per call.
const anonymousMaxCost = 0.001

// Authorize checks whether the context may perform action on the tool with
// the given estimated cost. Unauthenticated contexts are authorized only
// for reads within the anonymous cost cap. The rejection never echoes which
// permission was missing, to avoid leaking authorization internals.
func (s *Service) Authorize(authCtx *Context, toolId string, action Action, cost float64) error {
	if authCtx == nil {
		return errors.Wrap(ErrUnauthorized, "no auth context")
	}

	if !authCtx.IsAuthenticated {
		if action == ActionRead && cost <= anonymousMaxCost {
			return nil
		}
		return errors.Wrapf(ErrForbidden, "anonymous callers may not %s %q", action, toolId)
	}

	for _, permission := range authCtx.Permissions {
		if !permission.allows(toolId, action) {
			continue
		}
		if permission.Conditions != nil && cost > permission.Conditions.MaxCost {
			return errors.Wrapf(ErrForbidden, "action %s on %q denied", action, toolId)
		}
		return nil
	}
	return errors.Wrapf(ErrForbidden, "action %s on %q denied", action, toolId)
}

// GenerateAPIKey mints a key for a user, bound to the user's current
// default rate limit, and returns the opaque key string.
func (s *Service) GenerateAPIKey(userId, name string, permissions []Permission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userId]
	if !ok {
		return "", errors.Wrapf(ErrUnknownUser, "user %q", userId)
	}

	key := helper.GenerateKey(s.keyPrefix)
	policy := user.RateLimit
	s.keys[key] = &APIKey{
		Key:         key,
		UserId:      userId,
		Name:        name,
		Permissions: permissions,
		RateLimit:   &policy,
		IsActive:    true,
	}
	return key, nil
}

// ImportAPIKey installs an externally stored key record, used when
// hydrating from the durable store.
func (s *Service) ImportAPIKey(record *APIKey) error {
	if record == nil || record.Key == "" || record.UserId == "" {
		return errors.New("api key and user id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[record.Key] = record
	return nil
}

// RevokeAPIKey deactivates a key. Records are kept for audit; revoking an
// unknown or already revoked key is a no-op.
func (s *Service) RevokeAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.keys[key]; ok {
		record.IsActive = false
	}
}

// DeactivateUser flips the user inactive. Idempotent; the record survives
// for audit.
func (s *Service) DeactivateUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		user.IsActive = false
	}
}
