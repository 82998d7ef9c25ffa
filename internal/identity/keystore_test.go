package identity

import (
	"bytes"
	"path/filepath"
	"testing"

	pcrypto "github.com/kindlyrobotics/parrhesia-core/internal/crypto"
)

func genSigningKeyPair(t *testing.T) *pcrypto.SigningKeyPair {
	t.Helper()
	kp, err := pcrypto.SigningGenerateKeyPair()
	if err != nil {
		t.Fatalf("SigningGenerateKeyPair: %v", err)
	}
	return kp
}

func TestSaveLoadRaw(t *testing.T) {
	kp := genSigningKeyPair(t)
	path := filepath.Join(t.TempDir(), "keys.json")

	if err := SaveRaw(path, kp); err != nil {
		t.Fatalf("SaveRaw: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(loaded.PrivateKey, kp.PrivateKey) || !bytes.Equal(loaded.PublicKey, kp.PublicKey) {
		t.Fatal("loaded keypair does not match saved keypair")
	}
}

func TestSaveLoadWrapped(t *testing.T) {
	kp := genSigningKeyPair(t)
	path := filepath.Join(t.TempDir(), "keys.json")

	if err := SaveWrapped(path, kp, "correct horse battery staple"); err != nil {
		t.Fatalf("SaveWrapped: %v", err)
	}

	loaded, err := Load(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(loaded.PrivateKey, kp.PrivateKey) {
		t.Fatal("loaded private key does not match saved keypair")
	}
}

func TestLoadWrappedWithoutPasswordFails(t *testing.T) {
	kp := genSigningKeyPair(t)
	path := filepath.Join(t.TempDir(), "keys.json")
	if err := SaveWrapped(path, kp, "hunter2"); err != nil {
		t.Fatalf("SaveWrapped: %v", err)
	}

	if _, err := Load(path, ""); err != ErrPasswordRequired {
		t.Fatalf("Load without password: err = %v, want ErrPasswordRequired", err)
	}
}

func TestLoadWrappedWithWrongPasswordFails(t *testing.T) {
	kp := genSigningKeyPair(t)
	path := filepath.Join(t.TempDir(), "keys.json")
	if err := SaveWrapped(path, kp, "hunter2"); err != nil {
		t.Fatalf("SaveWrapped: %v", err)
	}

	if _, err := Load(path, "wrong password"); err != ErrInvalidPassword {
		t.Fatalf("Load with wrong password: err = %v, want ErrInvalidPassword", err)
	}
}
