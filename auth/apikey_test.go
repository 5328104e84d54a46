package auth

import (
	"strings"
	"testing"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"Valid key", "0123456789abcdef", false},
		{"Generated-length key", strings.Repeat("ab", 32), false},
		{"Too short", "short", true},
		{"Leading whitespace", " 0123456789abcdef", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HashKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if hash == tt.key || !strings.HasPrefix(hash, "$2") {
				t.Errorf("HashKey() = %q, want a bcrypt hash", hash)
			}
			if !CheckKeyHash(tt.key, hash) {
				t.Error("CheckKeyHash() rejected the hashed key")
			}
			if CheckKeyHash(tt.key+"x", hash) {
				t.Error("CheckKeyHash() accepted a different key")
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() failed: %v", err)
	}
	b, _ := GenerateKey()
	if len(a) != 64 || a == b {
		t.Errorf("GenerateKey() = %q, %q", a, b)
	}
	if err := ValidateKey(a); err != nil {
		t.Errorf("generated key failed validation: %v", err)
	}
}

func TestKeyID(t *testing.T) {
	id := KeyID("0123456789abcdef")
	if len(id) != 8 {
		t.Errorf("KeyID() length = %d, want 8", len(id))
	}
	if id != KeyID("0123456789abcdef") {
		t.Error("KeyID() is not stable")
	}
	if id == KeyID("fedcba9876543210") {
		t.Error("KeyID() collided for different keys")
	}
}

func TestVerifier(t *testing.T) {
	const key = "0123456789abcdef"
	hash, err := HashKey(key)
	if err != nil {
		t.Fatalf("HashKey() failed: %v", err)
	}

	tests := []struct {
		name        string
		verifier    *Verifier
		presented   string
		wantEnabled bool
		want        bool
	}{
		{"Disabled accepts anything", NewVerifier("", ""), "", false, true},
		{"Plain key match", NewVerifier(key, ""), key, true, true},
		{"Plain key mismatch", NewVerifier(key, ""), "wrong", true, false},
		{"Plain key empty", NewVerifier(key, ""), "", true, false},
		{"Hash match", NewVerifier("", hash), key, true, true},
		{"Hash mismatch", NewVerifier("", hash), "wrong-key-000000", true, false},
		{"Hash empty", NewVerifier("", hash), "", true, false},
		{"Hash wins over key", NewVerifier("other-key-000000", hash), "other-key-000000", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.verifier.Enabled(); got != tt.wantEnabled {
				t.Errorf("Enabled() = %v, want %v", got, tt.wantEnabled)
			}
			if got := tt.verifier.Verify(tt.presented); got != tt.want {
				t.Errorf("Verify(%q) = %v, want %v", tt.presented, got, tt.want)
			}
		})
	}
}
