package crypto_test

import (
	"encoding/hex"
	"testing"

	"github.com/jcber/spothoot/pkg/crypto"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	first, err := crypto.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if len(first) != 64 {
		t.Fatalf("token length = %d, want 64 hex chars", len(first))
	}
	if _, err := hex.DecodeString(first); err != nil {
		t.Fatalf("token is not hex: %v", err)
	}

	second, err := crypto.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if first == second {
		t.Fatalf("two tokens are identical: %s", first)
	}
}
