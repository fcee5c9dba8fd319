// Package ratelimit implements admission control for the gateway. A limiter
// answers a single question per call: may this identity proceed under this
// policy right now. Rejection is a verdict, not an error, so the hot path
// never pays for exceptional control flow.
package ratelimit

import (
	"context"
	"time"
)

// Strategy selects the counting window semantics for a policy.
type Strategy string

const (
	// StrategySliding counts requests in the trailing period ending at now,
	// which avoids the burst-at-boundary abuse of fixed buckets.
	StrategySliding Strategy = "sliding"
	// StrategyFixed counts requests in fixed, aligned windows.
	StrategyFixed Strategy = "fixed"
)

// Policy describes a request budget over a period.
type Policy struct {
	Requests int           `json:"requests"`
	Period   time.Duration `json:"period"`
	Strategy Strategy      `json:"strategy"`
}

// IsZero reports whether the policy is unset.
func (p Policy) IsZero() bool {
	return p.Requests == 0 && p.Period == 0
}

// Limiter decides whether an identity may proceed under a policy. The
// decision and the count advance atomically: two concurrent in-budget calls
// are both admitted and both counted, and a call that would exceed the
// budget is never admitted.
type Limiter interface {
	// Allow returns true when the call is admitted. An error indicates the
	// limiter backend failed, not that the call was rejected.
	Allow(ctx context.Context, identity string, policy Policy) (bool, error)
}

// Identity builds the composite rate-limit key for a caller and tool.
func Identity(userId, toolId string) string {
	return userId + "|" + toolId
}
