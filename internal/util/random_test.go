package util

import "testing"

func TestGenerateOtpCode(t *testing.T) {
	code := GenerateOtpCode(6)
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %d", len(code))
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Errorf("unexpected character %q in otp code", c)
		}
	}
	if GenerateOtpCode(0) != "" {
		t.Error("zero length should return empty string")
	}
}

func TestGenerateOtpCodeVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		seen[GenerateOtpCode(6)] = true
	}
	if len(seen) < 2 {
		t.Error("codes should not repeat across generations")
	}
}

func TestHashOtpCode(t *testing.T) {
	h1 := HashOtpCode("tok-a", "123456")
	h2 := HashOtpCode("tok-a", "123456")
	h3 := HashOtpCode("tok-b", "123456")
	if h1 != h2 {
		t.Error("hash must be deterministic for the same token/code")
	}
	if h1 == h3 {
		t.Error("hash must differ across tokens")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}
