package crypto

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	kr, err := NewKeyRing([]byte("a-sufficiently-long-master-secret"))
	if err != nil {
		t.Fatalf("new key ring: %v", err)
	}
	ciphertext, err := kr.Encrypt([]byte("provider-access-token"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if ciphertext[0] != 1 {
		t.Fatalf("expected version prefix 1, got %d", ciphertext[0])
	}
	plaintext, err := kr.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plaintext) != "provider-access-token" {
		t.Fatalf("unexpected plaintext: %q", plaintext)
	}
}

func TestKeyRotationKeepsOldCiphertextsReadable(t *testing.T) {
	kr, err := NewKeyRing([]byte("master-v1-secret-value"))
	if err != nil {
		t.Fatalf("new key ring: %v", err)
	}
	oldCiphertext, err := kr.Encrypt([]byte("old-secret"))
	if err != nil {
		t.Fatalf("encrypt v1: %v", err)
	}

	if err := kr.AddVersion(2, []byte("master-v2-secret-value")); err != nil {
		t.Fatalf("add version 2: %v", err)
	}
	newCiphertext, err := kr.Encrypt([]byte("new-secret"))
	if err != nil {
		t.Fatalf("encrypt v2: %v", err)
	}
	if newCiphertext[0] != 2 {
		t.Fatalf("expected new writes under version 2, got %d", newCiphertext[0])
	}

	plaintext, err := kr.Decrypt(oldCiphertext)
	if err != nil {
		t.Fatalf("decrypt old ciphertext after rotation: %v", err)
	}
	if string(plaintext) != "old-secret" {
		t.Fatalf("unexpected plaintext: %q", plaintext)
	}
}
