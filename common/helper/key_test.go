package helper

import "testing"

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "normal key (long)",
			key:      "sk-1234567890abcdefghij",
			expected: "sk-123...ghij",
		},
		{
			name:     "exactly 12 chars",
			key:      "123456789012",
			expected: "123456...9012",
		},
		{
			name:     "short key (less than 12)",
			key:      "short",
			expected: "***",
		},
		{
			name:     "empty key",
			key:      "",
			expected: "***",
		},
		{
			name:     "11 chars (just under threshold)",
			key:      "12345678901",
			expected: "***",
		},
		{
			name:     "real world API key format",
			key:      "sk-proj-abc123def456ghi789jkl012mno345",
			expected: "sk-pro...o345",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MaskAPIKey(tt.key)
			if result != tt.expected {
				t.Errorf("MaskAPIKey(%q) = %q, expected %q", tt.key, result, tt.expected)
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	first := GenerateKey("tmk_")
	second := GenerateKey("tmk_")
	if first == second {
		t.Fatal("generated keys must be unique")
	}
	if len(first) != len("tmk_")+48 {
		t.Errorf("unexpected key length %d", len(first))
	}
	if first[:4] != "tmk_" {
		t.Errorf("key %q missing prefix", first)
	}
}

func TestMessageWithRequestId(t *testing.T) {
	if got := MessageWithRequestId("boom", ""); got != "boom" {
		t.Errorf("unexpected message %q", got)
	}
	if got := MessageWithRequestId("boom", "req-1"); got != "boom (request id: req-1)" {
		t.Errorf("unexpected message %q", got)
	}
}
