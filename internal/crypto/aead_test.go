package crypto

import (
	"bytes"
	"testing"
)

func TestAeadSealOpenRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, AeadKeySize)
	pt := []byte("hello")

	blob, err := AeadSeal(key, pt)
	if err != nil {
		t.Fatalf("AeadSeal: %v", err)
	}

	got, err := AeadOpen(key, blob)
	if err != nil {
		t.Fatalf("AeadOpen: %v", err)
	}
	if !bytes.Equal(got, pt) {
		t.Fatalf("AeadOpen = %q, want %q", got, pt)
	}
}

func TestAeadOpenFailsOnTamper(t *testing.T) {
	key := bytes.Repeat([]byte{0x7}, AeadKeySize)
	blob, err := AeadSeal(key, []byte("hi B"))
	if err != nil {
		t.Fatalf("AeadSeal: %v", err)
	}
	blob[len(blob)-1] ^= 0xFF

	if _, err := AeadOpen(key, blob); err == nil {
		t.Fatal("expected auth failure on tampered ciphertext")
	}
}

func TestAeadOpenFailsOnWrongKey(t *testing.T) {
	key1 := bytes.Repeat([]byte{0x1}, AeadKeySize)
	key2 := bytes.Repeat([]byte{0x2}, AeadKeySize)

	blob, err := AeadSeal(key1, []byte("hi A"))
	if err != nil {
		t.Fatalf("AeadSeal: %v", err)
	}

	if _, err := AeadOpen(key2, blob); err == nil {
		t.Fatal("expected auth failure when opening with the wrong key")
	}
}

func TestAeadSealRejectsWrongKeySize(t *testing.T) {
	if _, err := AeadSeal(make([]byte, 10), []byte("x")); err == nil {
		t.Fatal("expected error for undersized key")
	}
}
