package utils

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected encoding %q", hash)
	}

	ok, err := VerifyPassword("correct horse", hash)
	if err != nil || !ok {
		t.Fatalf("expected password to verify, ok=%v err=%v", ok, err)
	}
	ok, err = VerifyPassword("wrong horse", hash)
	if err != nil || ok {
		t.Fatalf("expected wrong password to fail, ok=%v err=%v", ok, err)
	}

	other, _ := HashPassword("correct horse")
	if other == hash {
		t.Fatal("expected distinct salts")
	}
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	for _, h := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$a$b", "$argon2id$v=19$m=x$a$b", "$argon2id$v=19$m=65536,t=3,p=2$!!$!!"} {
		if _, err := VerifyPassword("pw", h); !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("%q: expected ErrInvalidHash, got %v", h, err)
		}
	}
}
