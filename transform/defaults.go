package transform

import (
	"time"
)

// RedactionMarker replaces denied values in exported bodies.
const RedactionMarker = "[REDACTED]"

// redactionPriority places redaction after any other response shaping so
// secrets are scrubbed from whatever the earlier rules produced.
const redactionPriority = 1 << 20

// NewCorrelationIDRule stamps the call's request id into a request header.
// It runs first on the request side.
func NewCorrelationIDRule(headerName string, requestId func() string) Rule {
	return Rule{
		Id:          "correlation-id",
		Name:        "Correlation ID Injection",
		PathPattern: "**",
		Priority:    0,
		Enabled:     true,
		Request: func(body any, headers map[string]string) (any, map[string]string, error) {
			if headers[headerName] == "" {
				headers[headerName] = requestId()
			}
			return body, headers, nil
		},
	}
}

// EnvelopeMeta describes the standard response envelope metadata.
type EnvelopeMeta struct {
	RequestId  string `json:"requestId"`
	Timestamp  string `json:"timestamp"`
	ApiVersion string `json:"apiVersion"`
}

// Envelope is the standard wrapped response shape.
type Envelope struct {
	Success bool         `json:"success"`
	Data    any          `json:"data"`
	Meta    EnvelopeMeta `json:"meta"`
}

// NewEnvelopeRule wraps response bodies in the standard envelope. Success
// derives from the 200-299 status range.
func NewEnvelopeRule(apiVersion string, requestId func() string) Rule {
	return Rule{
		Id:          "envelope",
		Name:        "Standard Envelope",
		PathPattern: "**",
		Priority:    100,
		Enabled:     true,
		Response: func(body any, statusCode int) (any, int, error) {
			wrapped := Envelope{
				Success: statusCode >= 200 && statusCode <= 299,
				Data:    body,
				Meta: EnvelopeMeta{
					RequestId:  requestId(),
					Timestamp:  time.Now().UTC().Format(time.RFC3339),
					ApiVersion: apiVersion,
				},
			}
			return wrapped, statusCode, nil
		},
	}
}

// NewRedactionRule recursively replaces values of denied keys anywhere in
// the response body. It runs at the lowest precedence (highest priority
// value) so it always folds last on the response side.
func NewRedactionRule(deniedKeys []string) Rule {
	denied := make(map[string]struct{}, len(deniedKeys))
	for _, key := range deniedKeys {
		denied[key] = struct{}{}
	}

	return Rule{
		Id:          "redaction",
		Name:        "Field Redaction",
		PathPattern: "**",
		Priority:    redactionPriority,
		Enabled:     true,
		Response: func(body any, statusCode int) (any, int, error) {
			return redactValue(body, denied), statusCode, nil
		},
	}
}

// redactValue walks maps and slices, replacing any denied object key's
// value with the marker regardless of nesting depth. Structs are handled at
// the serialization boundary: by the time responses reach the pipeline they
// are generic JSON values.
func redactValue(value any, denied map[string]struct{}) any {
	switch typed := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(typed))
		for key, val := range typed {
			if _, hit := denied[key]; hit {
				result[key] = RedactionMarker
				continue
			}
			result[key] = redactValue(val, denied)
		}
		return result
	case []any:
		result := make([]any, len(typed))
		for i, item := range typed {
			result[i] = redactValue(item, denied)
		}
		return result
	case Envelope:
		typed.Data = redactValue(typed.Data, denied)
		return typed
	default:
		return value
	}
}

// DefaultDeniedKeys are the response fields scrubbed by the stock pipeline.
var DefaultDeniedKeys = []string{"password", "apiKey", "api_key", "secret", "token", "authorization"}

// NewDefaultPipeline assembles the stock rule set: correlation-id injection
// first on the request side, envelope wrapping, and defensive redaction
// folding last.
func NewDefaultPipeline(apiVersion string, requestId func() string) *Pipeline {
	p := NewPipeline()
	// Install order is also the tie-break order, keep it explicit.
	_ = p.AddRule(NewCorrelationIDRule("X-Correlation-Id", requestId))
	_ = p.AddRule(NewEnvelopeRule(apiVersion, requestId))
	_ = p.AddRule(NewRedactionRule(DefaultDeniedKeys))
	return p
}
