package auth

import (
	"strings"
	"testing"
)

func TestPasswordHashVerify(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("unexpected hash format: %s", hash)
	}

	match, err := VerifyPassword("correct horse", hash)
	if err != nil || !match {
		t.Errorf("correct password should verify: %v %v", match, err)
	}
	match, err = VerifyPassword("wrong", hash)
	if err != nil || match {
		t.Errorf("wrong password should not verify: %v %v", match, err)
	}
	if _, err := VerifyPassword("x", "not-a-hash"); err == nil {
		t.Error("malformed hash should error")
	}
}

func TestJWTRoundTrip(t *testing.T) {
	Init("unit-test-secret")

	token, err := GenerateToken(42)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != 42 {
		t.Errorf("user id lost: %d", claims.UserID)
	}

	if _, err := ValidateToken("garbage"); err == nil {
		t.Error("garbage token should not validate")
	}

	Init("different-secret")
	if _, err := ValidateToken(token); err == nil {
		t.Error("token signed with old secret should not validate")
	}
}

func TestAPIKeyFormat(t *testing.T) {
	key, hash, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if !LooksLikeAPIKey(key) {
		t.Errorf("generated key missing prefix: %s", key)
	}
	if len(key) != len("mk_")+64 {
		t.Errorf("unexpected key length: %d", len(key))
	}
	if HashAPIKey(key) != hash {
		t.Error("returned hash does not match the key")
	}

	other, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if other == key {
		t.Error("keys should be unique")
	}
}
