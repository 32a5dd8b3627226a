package logger

import (
	"strings"
	"testing"
)

func TestSanitizeRedactsSecrets(t *testing.T) {
	t.Setenv("LOG_REDACTION_ENABLED", "1")
	t.Setenv("LOG_HASH_SALT", "pepper")

	out := sanitizeKVs([]interface{}{
		"api_key", "sk-123456",
		"password", "hunter2",
		"file_name", "lecture.pdf",
	})
	if out[1] != "[REDACTED]" || out[3] != "[REDACTED]" {
		t.Fatalf("secrets not redacted: %v", out)
	}
	if out[5] != "lecture.pdf" {
		t.Fatalf("ordinary value mangled: %v", out[5])
	}
}

func TestSanitizeHashesUserIDs(t *testing.T) {
	t.Setenv("LOG_REDACTION_ENABLED", "1")

	out := sanitizeKVs([]interface{}{"user_id", "u-42"})
	got, ok := out[1].(string)
	if !ok || !strings.HasPrefix(got, "hash:") {
		t.Fatalf("user id not hashed: %v", out[1])
	}
	again := sanitizeKVs([]interface{}{"user_id", "u-42"})
	if again[1] != out[1] {
		t.Fatalf("hash not stable: %v vs %v", again[1], out[1])
	}
}

func TestSanitizeTruncatesContent(t *testing.T) {
	t.Setenv("LOG_REDACTION_ENABLED", "1")

	long := strings.Repeat("知", maxLoggedContentRunes+50)
	out := sanitizeKVs([]interface{}{"content", long})
	got, ok := out[1].(string)
	if !ok {
		t.Fatalf("content type: %T", out[1])
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("long content not truncated: %d bytes", len(got))
	}
	if len([]rune(got)) > maxLoggedContentRunes+3 {
		t.Fatalf("truncated content still too long")
	}
}

func TestOddKVsPassThrough(t *testing.T) {
	t.Setenv("LOG_REDACTION_ENABLED", "1")

	out := sanitizeKVs([]interface{}{"key", "value", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("dangling key lost: %v", out)
	}
}
