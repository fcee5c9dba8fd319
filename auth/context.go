// Package auth authenticates inbound calls and authorizes actions against
// tools. Identification and permission checks are separate steps so a caller
// can be known (for quota and audit) even when the action is denied, and so
// anonymous traffic flows through the same pipeline instead of a special case.
package auth

import (
	"time"

	"github.com/twinmcp/gateway/ratelimit"
)

// Method identifies how a call was authenticated.
type Method string

const (
	MethodAPIKey Method = "api_key"
	MethodJWT    Method = "jwt"
	MethodNone   Method = "none"
)

// Action is an operation a permission can grant.
type Action string

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionExecute Action = "execute"
	ActionAdmin   Action = "admin"
)

// ResourceGlobal grants a permission across every tool.
const ResourceGlobal = "global"

// AnonymousUserId names the unauthenticated caller identity.
const AnonymousUserId = "anonymous"

// Conditions constrain a permission beyond resource and action.
type Conditions struct {
	// MaxCost caps the estimated cost a single call may carry.
	MaxCost float64 `json:"max_cost"`
}

// Permission grants a set of actions on a resource. Resource is either
// ResourceGlobal or a tool id.
type Permission struct {
	Resource   string      `json:"resource"`
	Actions    []Action    `json:"actions"`
	Conditions *Conditions `json:"conditions,omitempty"`
}

// allows reports whether the permission covers the action on the tool.
func (p Permission) allows(toolId string, action Action) bool {
	if p.Resource != ResourceGlobal && p.Resource != toolId {
		return false
	}
	for _, candidate := range p.Actions {
		if candidate == action {
			return true
		}
	}
	return false
}

// Context is the result of authenticating one inbound call. It is
// constructed fresh per call, never persisted, and owned exclusively by the
// call that created it.
type Context struct {
	UserId          string           `json:"user_id"`
	Permissions     []Permission     `json:"permissions"`
	RateLimit       ratelimit.Policy `json:"rate_limit"`
	IsAuthenticated bool             `json:"is_authenticated"`
	Method          Method           `json:"auth_method"`
}

// anonymousQuota is the deliberately small default budget for
// unauthenticated callers.
var anonymousQuota = ratelimit.Policy{
	Requests: 10,
	Period:   time.Hour,
	Strategy: ratelimit.StrategySliding,
}

// AnonymousContext builds the context used for unauthenticated traffic.
func AnonymousContext() *Context {
	return &Context{
		UserId:          AnonymousUserId,
		IsAuthenticated: false,
		Method:          MethodNone,
		RateLimit:       anonymousQuota,
	}
}
