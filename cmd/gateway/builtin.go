package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Laisky/errors/v2"

	"github.com/twinmcp/gateway/ratelimit"
	"github.com/twinmcp/gateway/registry"
)

// loadBuiltinPlugin installs the tools the gateway ships with. They serve as
// smoke-test targets and as working examples of tool registration.
func loadBuiltinPlugin(reg *registry.Registry) error {
	return reg.LoadPlugin(&registry.Plugin{
		Id:      "builtin",
		Name:    "Built-in Tools",
		Version: "1.0.0",
		Tools: []*registry.Tool{
			{
				Id:          "echo",
				Name:        "Echo",
				Version:     "1.0.0",
				Category:    registry.CategoryDevelopment,
				Description: "Returns its message argument unchanged.",
				Tags:        []string{"debug", "smoke-test"},
				Caps:        registry.Capabilities{Async: true},
				InputSchema: json.RawMessage(`{
					"type": "object",
					"properties": {
						"message": {"type": "string"}
					},
					"required": ["message"],
					"additionalProperties": false
				}`),
				Cache: &registry.CachePolicy{Enabled: true, TTL: 60},
				Executor: registry.ExecutorFunc(func(_ context.Context, args map[string]any) (any, error) {
					return map[string]any{"message": args["message"]}, nil
				}),
			},
			{
				Id:          "time.now",
				Name:        "Current Time",
				Version:     "1.0.0",
				Category:    registry.CategoryProductivity,
				Description: "Returns the current server time in RFC3339.",
				InputSchema: json.RawMessage(`{"type": "object"}`),
				Executor: registry.ExecutorFunc(func(_ context.Context, _ map[string]any) (any, error) {
					return map[string]any{"now": time.Now().UTC().Format(time.RFC3339)}, nil
				}),
			},
			{
				Id:          "hash.sha256",
				Name:        "SHA-256 Digest",
				Version:     "1.0.0",
				Category:    registry.CategoryData,
				Description: "Computes the hex SHA-256 digest of the input string.",
				InputSchema: json.RawMessage(`{
					"type": "object",
					"properties": {
						"input": {"type": "string"}
					},
					"required": ["input"]
				}`),
				RateLimit: &ratelimit.Policy{
					Requests: 120,
					Period:   time.Minute,
					Strategy: ratelimit.StrategySliding,
				},
				Cache: &registry.CachePolicy{
					Enabled: true,
					TTL:     3600,
					Key: func(args map[string]any) string {
						return fmt.Sprintf("hash.sha256:%v", args["input"])
					},
				},
				Executor: registry.ExecutorFunc(func(_ context.Context, args map[string]any) (any, error) {
					input, ok := args["input"].(string)
					if !ok {
						return nil, errors.New("input must be a string")
					}
					sum := sha256.Sum256([]byte(input))
					return map[string]any{"digest": hex.EncodeToString(sum[:])}, nil
				}),
			},
		},
	})
}
