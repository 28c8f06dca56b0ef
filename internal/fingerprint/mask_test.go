package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMask_Patterns(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		pii   bool
	}{
		{
			name:  "uuid",
			input: "id 550e8400-e29b-41d4-a716-446655440000 done",
			want:  "id {UUID} done",
		},
		{
			name:  "url",
			input: "Summarize https://example.com/article-123 please",
			want:  "Summarize {URL} please",
		},
		{
			name:  "email",
			input: "contact alice@example.com now",
			want:  "contact {EMAIL} now",
			pii:   true,
		},
		{
			name:  "iso date",
			input: "due 2024-03-15 sharp",
			want:  "due {DATE} sharp",
		},
		{
			name:  "slash date",
			input: "due 03/15/2024 sharp",
			want:  "due {DATE} sharp",
		},
		{
			name:  "ipv4",
			input: "host 192.168.0.1 up",
			want:  "host {IP} up",
		},
		{
			name:  "decimal",
			input: "pi is 3.14159 roughly",
			want:  "pi is {NUM} roughly",
		},
		{
			name:  "long integer",
			input: "order 123456 shipped",
			want:  "order {NUM} shipped",
		},
		{
			name:  "short integer untouched",
			input: "room 42 is free",
			want:  "room 42 is free",
		},
		{
			name:  "phone",
			input: "call 555-123-4567 today",
			want:  "call {PHONE} today",
			pii:   true,
		},
		{
			name:  "card",
			input: "card 4111-1111-1111-1111 charged",
			want:  "card {CARD} charged",
			pii:   true,
		},
		{
			name:  "hash",
			input: "digest d41d8cd98f00b204e9800998ecf8427e matches",
			want:  "digest {HASH} matches",
		},
		{
			name:  "path",
			input: "open /var/log/syslog now",
			want:  "open {PATH} now",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			masked, pii := Mask(tt.input)
			assert.Equal(t, tt.want, masked)
			assert.Equal(t, tt.pii, pii)
		})
	}
}

func TestMask_Idempotent(t *testing.T) {
	inputs := []string{
		"Summarize https://example.com/a and email bob@x.test by 2024-01-02",
		"run `myFunc(someArg)` with 1234",
		"```go\nfunc handler(req *Request) error { return nil }\n```",
	}

	for _, input := range inputs {
		once, _ := Mask(input)
		twice, _ := Mask(once)
		require.Equal(t, once, twice, "mask must be idempotent for %q", input)
	}
}

func TestMask_Deterministic(t *testing.T) {
	input := "Summarize https://example.com/article-123 by 2024-03-15 for alice@example.com"

	a, _ := Mask(input)
	b, _ := Mask(input)
	require.Equal(t, a, b)
}

func TestMask_CodeSpanIdentifiers(t *testing.T) {
	masked, _ := Mask("run `parseConfig(opts)` now")
	assert.Equal(t, "run `{VAR}({VAR})` now", masked)

	masked, _ = Mask("```\nif userCount > 100.5 { return true }\n```")
	assert.Contains(t, masked, "if")
	assert.Contains(t, masked, "return true")
	assert.Contains(t, masked, "{NUM}")
	assert.Contains(t, masked, "{VAR}")
	assert.NotContains(t, masked, "userCount")
}

func TestMask_URLDistinctValuesCollapse(t *testing.T) {
	a, _ := Mask("Summarize https://x.test/a")
	b, _ := Mask("Summarize https://x.test/b")
	require.Equal(t, a, b)
}

func TestMask_PlainTextUntouched(t *testing.T) {
	masked, pii := Mask("What is the capital of France?")
	require.Equal(t, "What is the capital of France?", masked)
	require.False(t, pii)
}
