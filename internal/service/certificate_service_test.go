package service

import (
	"strings"
	"testing"
)

func TestNewVerificationCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := newVerificationCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		parts := strings.Split(code, "-")
		if len(parts) != 4 || parts[0] != "DC" {
			t.Fatalf("expected DC-XXXX-XXXX-XXXX shape, got %q", code)
		}
		for _, part := range parts[1:] {
			if len(part) != 4 {
				t.Fatalf("expected 4-char groups, got %q", code)
			}
			for _, r := range part {
				if !strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZ234567", r) {
					t.Fatalf("unexpected character %q in %q", r, code)
				}
			}
		}
		if seen[code] {
			t.Fatalf("duplicate code %q in 200 draws", code)
		}
		seen[code] = true
	}
}
