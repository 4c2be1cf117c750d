// Package synctest provides an in-memory Store and a simulated mesh of
// engines, for exercising convergence behaviour without a real radio link.
// It is a test helper, not part of the protocol implementation proper.
package synctest

import (
	"crypto/sha1"
	"fmt"
	"sync"

	reconsync "github.com/servalproject/reconsync"
)

// MemStore is an in-memory reconsync.Store: every bundle lives as plain
// byte slices in a map, guarded by a mutex so it is safe to share between
// an Engine and a test goroutine feeding it frames concurrently.
type MemStore struct {
	mu      sync.Mutex
	bundles map[[8]byte]storedBundle
}

type storedBundle struct {
	meta     reconsync.BundleMeta
	manifest []byte
	body     []byte
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{bundles: make(map[[8]byte]storedBundle)}
}

// Put seeds the store with a bundle as if it had always been held locally.
func (s *MemStore) Put(bid [8]byte, version uint64, manifest, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[bid] = storedBundle{
		meta: reconsync.BundleMeta{
			Bid:      bid,
			Version:  version,
			FileHash: fileHash(body),
			Length:   uint64(len(body)),
		},
		manifest: manifest,
		body:     body,
	}
}

func fileHash(body []byte) []byte {
	sum := sha1.Sum(body)
	return sum[:]
}

// AllBundles implements reconsync.Store.
func (s *MemStore) AllBundles() []reconsync.BundleMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]reconsync.BundleMeta, 0, len(s.bundles))
	for _, b := range s.bundles {
		out = append(out, b.meta)
	}
	return out
}

// Lookup implements reconsync.Store.
func (s *MemStore) Lookup(bid [8]byte) (reconsync.BundleMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[bid]
	return b.meta, ok
}

// FetchManifest implements reconsync.Store.
func (s *MemStore) FetchManifest(bid [8]byte, version uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[bid]
	if !ok || b.meta.Version != version {
		return nil, fmt.Errorf("synctest: no manifest for %x at version %d", bid, version)
	}
	return b.manifest, nil
}

// FetchBodyRange implements reconsync.Store.
func (s *MemStore) FetchBodyRange(bid [8]byte, version uint64, offset uint64, length int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[bid]
	if !ok || b.meta.Version != version {
		return nil, fmt.Errorf("synctest: no body for %x at version %d", bid, version)
	}
	if offset >= uint64(len(b.body)) {
		return nil, nil
	}
	end := offset + uint64(length)
	if end > uint64(len(b.body)) {
		end = uint64(len(b.body))
	}
	return b.body[offset:end], nil
}

// ExistingBody implements reconsync.Store.
func (s *MemStore) ExistingBody(bid [8]byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[bid]
	if !ok {
		return nil, false
	}
	return b.body, true
}

// SaveBundle implements reconsync.Store.
func (s *MemStore) SaveBundle(meta reconsync.BundleMeta, manifest, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[meta.Bid] = storedBundle{meta: meta, manifest: manifest, body: body}
	return nil
}

// Has reports whether bid is held at exactly version, with the given body
// bytes — a convenience for test assertions.
func (s *MemStore) Has(bid [8]byte, version uint64, body []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[bid]
	if !ok || b.meta.Version != version {
		return false
	}
	return string(b.body) == string(body)
}
