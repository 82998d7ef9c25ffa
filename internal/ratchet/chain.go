// Package ratchet implements the per-sender symmetric hash chain: one chain
// per participant, driven by message counters, with a bounded skipped-key
// cache. A Chain covers a single epoch; keeping the previous epoch's chains
// through the grace window after a rekey is done by internal/groupkey.
package ratchet

import (
	"errors"
	"fmt"

	pcrypto "github.com/kindlyrobotics/parrhesia-core/internal/crypto"
)

// MaxSkippedKeys bounds the skipped-key cache per chain (I6 / B2).
const MaxSkippedKeys = 100

// ErrOutOfOrder is returned when counter n is below the chain's current
// counter and not present in the skipped-key cache.
var ErrOutOfOrder = errors.New("ratchet: counter below current and not in skipped cache")

// Chain is one participant's hash-chain state within a single epoch.
type Chain struct {
	chainKey     []byte
	counter      uint64
	skipped      map[uint64][]byte
	skippedOrder []uint64 // insertion order, for FIFO eviction
}

// NewChain seeds chain_key_0 = HKDF(groupKey, info="parrhesia-chain-"+peerID).
func NewChain(groupKey []byte, peerID string) (*Chain, error) {
	key, err := pcrypto.DeriveChainKey(groupKey, peerID)
	if err != nil {
		return nil, fmt.Errorf("ratchet: failed to seed chain for %s: %w", peerID, err)
	}
	return &Chain{chainKey: key, skipped: map[uint64][]byte{}}, nil
}

// Counter reports the chain's current send/receive counter.
func (c *Chain) Counter() uint64 { return c.counter }

// cacheSkipped stores a skipped message key, evicting the oldest entry
// (FIFO) once the cache would exceed MaxSkippedKeys.
func (c *Chain) cacheSkipped(n uint64, key []byte) {
	if _, exists := c.skipped[n]; exists {
		return
	}
	if len(c.skippedOrder) >= MaxSkippedKeys {
		oldest := c.skippedOrder[0]
		c.skippedOrder = c.skippedOrder[1:]
		delete(c.skipped, oldest)
	}
	c.skipped[n] = key
	c.skippedOrder = append(c.skippedOrder, n)
}

func (c *Chain) popSkipped(n uint64) ([]byte, bool) {
	key, ok := c.skipped[n]
	if !ok {
		return nil, false
	}
	delete(c.skipped, n)
	for i, v := range c.skippedOrder {
		if v == n {
			c.skippedOrder = append(c.skippedOrder[:i], c.skippedOrder[i+1:]...)
			break
		}
	}
	return key, true
}

// SkippedCount reports the number of entries currently cached (used by
// tests to check I6).
func (c *Chain) SkippedCount() int { return len(c.skipped) }

func (c *Chain) advance() ([]byte, error) {
	msgKey, nextKey, err := pcrypto.RatchetStep(c.chainKey)
	if err != nil {
		return nil, fmt.Errorf("ratchet: ratchet step failed: %w", err)
	}
	c.chainKey = nextKey
	c.counter++
	return msgKey, nil
}

// NextSendKey ratchets the chain forward by one and returns the message key
// and counter to use for the next outgoing message.
func (c *Chain) NextSendKey() (msgKey []byte, counter uint64, err error) {
	n := c.counter
	key, err := c.advance()
	if err != nil {
		return nil, 0, err
	}
	return key, n, nil
}

// skippedInsert is one skipped-key cache entry produced while staging a
// forward ratchet; it is only applied to the chain once the caller commits.
type skippedInsert struct {
	counter uint64
	key     []byte
}

// pendingKey is a staged-but-not-yet-applied chain mutation for receiving
// counter n. Nothing on the Chain is touched until Commit is called, so a
// caller can derive the candidate message key, attempt AEAD open, and only
// advance chain state once decryption actually succeeds — per §4.3's "no
// chain state is mutated on failure" and §7's identical AeadAuthFailure
// policy.
type pendingKey struct {
	chain    *Chain
	key      []byte
	chainKey []byte          // new chain.chainKey on commit, nil if chain.counter unchanged (skipped-cache hit)
	counter  uint64          // new chain.counter on commit
	inserts  []skippedInsert // skipped-cache entries to add on commit
	evict    uint64          // skipped-cache entry to remove on commit (skipped-cache hit path)
	evicting bool
}

// Key returns the staged message key, usable to attempt decryption before
// deciding whether to Commit.
func (p *pendingKey) Key() []byte { return p.key }

// Commit applies the staged chain/cache mutation. Call only after the
// message key has been used to successfully open the ciphertext.
func (p *pendingKey) Commit() {
	c := p.chain
	if p.evicting {
		c.popSkipped(p.evict)
		return
	}
	for _, ins := range p.inserts {
		c.cacheSkipped(ins.counter, ins.key)
	}
	c.chainKey = p.chainKey
	c.counter = p.counter
}

// stageKeyForCounter computes the message key for receiving counter n
// without mutating chain state, per §4.3:
//   - n == counter: ratchet once and use it.
//   - n > counter: ratchet forward repeatedly, caching every intermediate
//     key, until reaching n.
//   - n < counter: look up the skipped cache; miss is ErrOutOfOrder.
//
// The returned pendingKey's Commit method must be called to actually apply
// the mutation; until then c is untouched.
func (c *Chain) stageKeyForCounter(n uint64) (*pendingKey, error) {
	switch {
	case n == c.counter:
		msgKey, nextKey, err := pcrypto.RatchetStep(c.chainKey)
		if err != nil {
			return nil, fmt.Errorf("ratchet: ratchet step failed: %w", err)
		}
		return &pendingKey{chain: c, key: msgKey, chainKey: nextKey, counter: c.counter + 1}, nil

	case n > c.counter:
		chainKey := c.chainKey
		counter := c.counter
		var inserts []skippedInsert
		for counter < n {
			msgKey, nextKey, err := pcrypto.RatchetStep(chainKey)
			if err != nil {
				return nil, fmt.Errorf("ratchet: ratchet step failed: %w", err)
			}
			inserts = append(inserts, skippedInsert{counter: counter, key: msgKey})
			chainKey = nextKey
			counter++
		}
		msgKey, nextKey, err := pcrypto.RatchetStep(chainKey)
		if err != nil {
			return nil, fmt.Errorf("ratchet: ratchet step failed: %w", err)
		}
		return &pendingKey{chain: c, key: msgKey, chainKey: nextKey, counter: counter + 1, inserts: inserts}, nil

	default:
		key, ok := c.skipped[n]
		if !ok {
			return nil, ErrOutOfOrder
		}
		return &pendingKey{chain: c, key: key, evict: n, evicting: true}, nil
	}
}
