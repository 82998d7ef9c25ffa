package identity

import (
	"path/filepath"
	"testing"
)

func TestHistoryRoundTripPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	records := []MessageRecord{NewMessageRecord("peer-1", "hi", 1, 0)}

	if err := SaveHistory(path, records, ""); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	loaded, err := LoadHistory(path, "")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Plaintext != "hi" {
		t.Fatalf("loaded = %+v, want one record with plaintext %q", loaded, "hi")
	}
}

func TestHistoryRoundTripSealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	records := []MessageRecord{NewMessageRecord("peer-1", "secret", 1, 0)}

	if err := SaveHistory(path, records, "hunter2"); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}

	if _, err := LoadHistory(path, ""); err != ErrPasswordRequired {
		t.Fatalf("LoadHistory without password: err = %v, want ErrPasswordRequired", err)
	}

	loaded, err := LoadHistory(path, "hunter2")
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Plaintext != "secret" {
		t.Fatalf("loaded = %+v, want one record with plaintext %q", loaded, "secret")
	}
}
