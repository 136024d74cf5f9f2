package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIILeavesPlainTextAlone(t *testing.T) {
	out, changed := RedactPII("Who played at Barton Hall in 1977?")
	if changed {
		t.Fatalf("changed = true for text without PII: %q", out)
	}
}

func TestLogPreview(t *testing.T) {
	got := LogPreview("  tell me\n\nabout   jerry@example.com  ", 0)
	if got != "tell me about [REDACTED_EMAIL]" {
		t.Fatalf("LogPreview() = %q", got)
	}

	long := strings.Repeat("ripple ", 40)
	got = LogPreview(long, 12)
	if got != "ripple rippl…" {
		t.Fatalf("LogPreview(truncated) = %q", got)
	}
}
