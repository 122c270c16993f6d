package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"password", "hunter2",
		"access_token", "abc",
		"username", "chemist@example.com",
		"compound_id", "c-1",
	})
	want := map[string]interface{}{
		"password":     "[REDACTED]",
		"access_token": "[REDACTED]",
		"username":     "[REDACTED]",
		"compound_id":  "c-1",
	}
	for i := 0; i < len(out); i += 2 {
		k := out[i].(string)
		if out[i+1] != want[k] {
			t.Fatalf("%s: want=%v got=%v", k, want[k], out[i+1])
		}
	}
}

func TestSanitizeKVsHashesUserID(t *testing.T) {
	out := sanitizeKVs([]interface{}{"user_id", "7f1c"})
	got, _ := out[1].(string)
	if !strings.HasPrefix(got, "hash:") || len(got) != len("hash:")+12 {
		t.Fatalf("unexpected hashed value: %q", got)
	}
	if again := sanitizeKVs([]interface{}{"user_id", "7f1c"})[1]; again != got {
		t.Fatalf("hash not stable: %v vs %v", again, got)
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"model_type", "toxicity", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestLooksLikeJWT(t *testing.T) {
	if !looksLikeJWT("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0NSJ9.sig") {
		t.Fatalf("expected jwt shape to match")
	}
	if looksLikeJWT("CCO") {
		t.Fatalf("smiles should not look like a jwt")
	}
}
