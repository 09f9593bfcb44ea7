package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword = %v", err)
	}
	if !strings.Contains(hash, ":") {
		t.Fatalf("hash %q missing salt prefix", hash)
	}
	if !VerifyPassword("s3cret", hash) {
		t.Fatal("VerifyPassword rejected correct password")
	}
	if VerifyPassword("wrong", hash) {
		t.Fatal("VerifyPassword accepted wrong password")
	}
}

func TestVerifyLegacyHash(t *testing.T) {
	sum := sha256.Sum256([]byte("oldpass"))
	legacy := hex.EncodeToString(sum[:])

	if !VerifyPassword("oldpass", legacy) {
		t.Fatal("legacy hash rejected")
	}
	if VerifyPassword("notit", legacy) {
		t.Fatal("legacy hash accepted wrong password")
	}
}

func TestHashIsSalted(t *testing.T) {
	h1, _ := HashPassword("same")
	h2, _ := HashPassword("same")
	if h1 == h2 {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Minute)

	token, err := issuer.Issue("alice")
	if err != nil {
		t.Fatalf("Issue = %v", err)
	}

	subject, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify = %v", err)
	}
	if subject != "alice" {
		t.Fatalf("subject = %q, want alice", subject)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", -time.Minute)

	token, err := issuer.Issue("alice")
	if err != nil {
		t.Fatalf("Issue = %v", err)
	}
	if _, err := issuer.Verify(token); err == nil {
		t.Fatal("Verify accepted expired token")
	}
}

func TestWrongSecretRejected(t *testing.T) {
	token, err := NewTokenIssuer("secret-a", time.Minute).Issue("bob")
	if err != nil {
		t.Fatalf("Issue = %v", err)
	}
	if _, err := NewTokenIssuer("secret-b", time.Minute).Verify(token); err == nil {
		t.Fatal("Verify accepted token signed with another secret")
	}
}
