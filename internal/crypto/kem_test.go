package crypto

import "testing"

func TestKemRoundTrip(t *testing.T) {
	kp, err := KemGenerateKeyPair()
	if err != nil {
		t.Fatalf("KemGenerateKeyPair: %v", err)
	}
	if len(kp.PublicKey) != KemPublicKeySize {
		t.Fatalf("public key size = %d, want %d", len(kp.PublicKey), KemPublicKeySize)
	}
	if len(kp.PrivateKey) != KemPrivateKeySize {
		t.Fatalf("private key size = %d, want %d", len(kp.PrivateKey), KemPrivateKeySize)
	}

	ct, ss1, err := KemEncapsulate(kp.PublicKey)
	if err != nil {
		t.Fatalf("KemEncapsulate: %v", err)
	}
	if len(ct) != KemCiphertextSize {
		t.Fatalf("ciphertext size = %d, want %d", len(ct), KemCiphertextSize)
	}

	ss2, err := KemDecapsulate(kp.PrivateKey, ct)
	if err != nil {
		t.Fatalf("KemDecapsulate: %v", err)
	}

	if string(ss1) != string(ss2) {
		t.Fatal("shared secrets from encapsulate/decapsulate do not match")
	}
}

func TestKemEncapsulateRejectsWrongKeySize(t *testing.T) {
	if _, _, err := KemEncapsulate(make([]byte, 10)); err == nil {
		t.Fatal("expected error for undersized public key")
	}
}

func TestKemDecapsulateRejectsWrongSizes(t *testing.T) {
	kp, err := KemGenerateKeyPair()
	if err != nil {
		t.Fatalf("KemGenerateKeyPair: %v", err)
	}
	if _, err := KemDecapsulate(kp.PrivateKey, make([]byte, 5)); err == nil {
		t.Fatal("expected error for undersized ciphertext")
	}
	if _, err := KemDecapsulate(make([]byte, 5), make([]byte, KemCiphertextSize)); err == nil {
		t.Fatal("expected error for undersized private key")
	}
}
