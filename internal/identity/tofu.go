package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Status is the trust state of a TOFU-bound fingerprint.
type Status string

const (
	StatusUnverified Status = "unverified"
	StatusVerified   Status = "verified"
	StatusKeyChanged Status = "key_changed"
)

// VerifiedRecordTTL is how long a verified record stays verified before it
// is demoted back to unverified (§6.2).
const VerifiedRecordTTL = 30 * 24 * time.Hour

// Record is one TOFU binding, keyed by (room_id, fingerprint).
type Record struct {
	PeerID     string     `json:"peerId"`
	Status     Status     `json:"status"`
	FirstSeen  time.Time  `json:"firstSeen"`
	LastSeen   time.Time  `json:"lastSeen"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"`
}

type tofuKey struct {
	RoomID      string
	Fingerprint string
}

// Store is a file-backed TOFU record store. The zero value is unusable;
// use NewStore or LoadStore.
type Store struct {
	path    string
	records map[tofuKey]*Record
	now     func() time.Time
}

// NewStore creates an empty store that persists to path on every mutation.
func NewStore(path string) *Store {
	return &Store{path: path, records: map[tofuKey]*Record{}, now: time.Now}
}

// LoadStore reads a previously-saved store from path, or returns an empty
// store if the file does not exist yet.
func LoadStore(path string) (*Store, error) {
	s := NewStore(path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("identity: failed to read tofu store: %w", err)
	}

	var entries []struct {
		RoomID      string `json:"roomId"`
		Fingerprint string `json:"fingerprint"`
		Record
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("identity: failed to parse tofu store: %w", err)
	}
	for _, e := range entries {
		rec := e.Record
		s.records[tofuKey{e.RoomID, e.Fingerprint}] = &rec
	}
	return s, nil
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	type entry struct {
		RoomID      string `json:"roomId"`
		Fingerprint string `json:"fingerprint"`
		Record
	}
	entries := make([]entry, 0, len(s.records))
	for k, r := range s.records {
		entries = append(entries, entry{RoomID: k.RoomID, Fingerprint: k.Fingerprint, Record: *r})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: failed to encode tofu store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("identity: failed to write tofu store: %w", err)
	}
	return nil
}

// expireIfStale demotes a verified record to unverified once its TTL has
// elapsed, matching §6.2's "verified_at + 30d < now ⇒ demote" rule.
func (s *Store) expireIfStale(r *Record) {
	if r.Status == StatusVerified && r.VerifiedAt != nil && s.now().After(r.VerifiedAt.Add(VerifiedRecordTTL)) {
		r.Status = StatusUnverified
		r.VerifiedAt = nil
	}
}

// CheckAndBind implements the add_peer TOFU step: if a record already
// exists for fingerprint under roomID bound to a different peerID, or
// marked KeyChanged, it fails ErrTofuConflict. Otherwise it inserts or
// refreshes the record as Unverified.
func (s *Store) CheckAndBind(roomID, fingerprint, peerID string) error {
	key := tofuKey{roomID, fingerprint}
	rec, exists := s.records[key]

	if exists {
		s.expireIfStale(rec)
		if rec.Status == StatusKeyChanged || (rec.PeerID != "" && rec.PeerID != peerID) {
			return ErrTofuConflict
		}
		rec.PeerID = peerID
		rec.LastSeen = s.now()
		return s.save()
	}

	now := s.now()
	s.records[key] = &Record{
		PeerID:    peerID,
		Status:    StatusUnverified,
		FirstSeen: now,
		LastSeen:  now,
	}
	return s.save()
}

// MarkVerified promotes a record to Verified, e.g. after a human confirms a
// safety number out of band.
func (s *Store) MarkVerified(roomID, fingerprint string) error {
	key := tofuKey{roomID, fingerprint}
	rec, exists := s.records[key]
	if !exists {
		return fmt.Errorf("identity: no tofu record for fingerprint in room %s", roomID)
	}
	now := s.now()
	rec.Status = StatusVerified
	rec.VerifiedAt = &now
	rec.LastSeen = now
	return s.save()
}

// MarkKeyChanged flags a fingerprint as having rotated under a peer
// identity that previously bound to a different key.
func (s *Store) MarkKeyChanged(roomID, fingerprint string) error {
	key := tofuKey{roomID, fingerprint}
	rec, exists := s.records[key]
	if !exists {
		return fmt.Errorf("identity: no tofu record for fingerprint in room %s", roomID)
	}
	rec.Status = StatusKeyChanged
	rec.VerifiedAt = nil
	rec.LastSeen = s.now()
	return s.save()
}

// Lookup returns the current record for (roomID, fingerprint), applying
// expiry first.
func (s *Store) Lookup(roomID, fingerprint string) (*Record, bool) {
	rec, ok := s.records[tofuKey{roomID, fingerprint}]
	if !ok {
		return nil, false
	}
	s.expireIfStale(rec)
	return rec, true
}
