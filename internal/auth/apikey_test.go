package auth

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	key, hash, prefix, err := GenerateAPIKey("sk")
	if err != nil {
		t.Fatalf("GenerateAPIKey() error: %v", err)
	}

	if !strings.HasPrefix(key, "sk_") {
		t.Errorf("key = %q, want sk_ prefix", key)
	}
	if !strings.HasPrefix(key, prefix) || len(prefix) != DisplayPrefixLength {
		t.Errorf("display prefix %q does not lead key %q", prefix, key)
	}
	if hash == "" || hash == key {
		t.Error("hash must be set and differ from the key")
	}
	if !ValidateAPIKey(key, hash) {
		t.Error("ValidateAPIKey() rejected the generated key")
	}
	if ValidateAPIKey(key+"x", hash) {
		t.Error("ValidateAPIKey() accepted a tampered key")
	}
}

func TestGenerateAPIKey_Entropy(t *testing.T) {
	key, _, _, err := GenerateAPIKey("sk")
	if err != nil {
		t.Fatalf("GenerateAPIKey() error: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(key, "sk_"))
	if err != nil {
		t.Fatalf("random part is not base64url: %v", err)
	}
	if len(raw)*8 < 128 {
		t.Errorf("random part carries %d bits, want at least 128", len(raw)*8)
	}
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	a, _, _, _ := GenerateAPIKey("sk")
	b, _, _, _ := GenerateAPIKey("sk")
	if a == b {
		t.Error("two generated keys are identical")
	}
}

func TestExtractAPIKey(t *testing.T) {
	if _, err := ExtractAPIKey("   "); err == nil {
		t.Error("expected error for blank header")
	}
	if _, err := ExtractAPIKey("sk_short"); err == nil {
		t.Error("expected error for a key no longer than the display prefix")
	}
	got, err := ExtractAPIKey("  sk_abcdefghijklmnopqrstuvwxyz ")
	if err != nil || got != "sk_abcdefghijklmnopqrstuvwxyz" {
		t.Errorf("ExtractAPIKey() = %q, %v", got, err)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
		{"Bearer  tok123 ", "tok123", false},
	}
	for _, tt := range tests {
		got, err := ExtractBearerToken(tt.header)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ExtractBearerToken(%q) = %q, %v", tt.header, got, err)
		}
	}
}
