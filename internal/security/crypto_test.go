package security

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	a := DeriveKey("secret", []byte("SALT"))
	b := DeriveKey("secret", []byte("SALT"))
	c := DeriveKey("other", []byte("SALT"))
	if len(a) != 32 {
		t.Fatalf("key length = %d, want 32", len(a))
	}
	if !bytes.Equal(a, b) {
		t.Error("same password and salt gave different keys")
	}
	if bytes.Equal(a, c) {
		t.Error("different passwords gave the same key")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	key := DeriveKey("secret", []byte("SALT"))
	plain := []byte("stem bytes")

	sealed, err := Encrypt(plain, key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Error("ciphertext contains the plaintext")
	}
	got, err := Decrypt(sealed, key)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("Decrypt = %q, want %q", got, plain)
	}

	again, _ := Encrypt(plain, key)
	if bytes.Equal(again, sealed) {
		t.Error("two seals of the same data should use different nonces")
	}
}

func TestDecryptFailures(t *testing.T) {
	key := DeriveKey("secret", []byte("SALT"))
	sealed, _ := Encrypt([]byte("payload"), key)

	if _, err := Decrypt(sealed, DeriveKey("wrong", []byte("SALT"))); err == nil {
		t.Error("Decrypt with the wrong key succeeded")
	}
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xFF
	if _, err := Decrypt(tampered, key); err == nil {
		t.Error("Decrypt of tampered data succeeded")
	}
	if _, err := Decrypt([]byte{1, 2}, key); !errors.Is(err, ErrCiphertextShort) {
		t.Errorf("short input err = %v, want ErrCiphertextShort", err)
	}
	if _, err := Encrypt([]byte("x"), []byte("short")); err == nil {
		t.Error("Encrypt with a bad key size succeeded")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("song", "1", "http://x/a.wav")
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64 hex chars", len(a))
	}
	if a != Fingerprint("song", "1", "http://x/a.wav") {
		t.Error("Fingerprint is not stable")
	}
	if Fingerprint("ab", "c") == Fingerprint("a", "bc") {
		t.Error("part boundaries should change the fingerprint")
	}
}
