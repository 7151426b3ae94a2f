// Package secrets defines the typed secret-store interface the control
// plane uses in place of an OS keychain, with an in-process
// implementation suitable for a sandboxed build that has no keychain to
// link against.
//
// Secret values are kept sealed in memguard enclaves, which keep
// sensitive bytes out of the normal Go heap, and are only opened for the
// instant a caller needs the plaintext; the LockedBuffer is wiped
// immediately after.
package secrets

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// Key is one of the closed set of secret keys the control plane accepts.
type Key string

const (
	KeySCMToken         Key = "scm-token"
	KeyTrackerUsername  Key = "tracker-username"
	KeyTrackerPAT       Key = "tracker-pat"
	KeyQAInternalAPIKey Key = "qa-internal-key"
	KeyTelemetryKey     Key = "telemetry-key"
)

// ValidKeys is the closed set accepted by the control-plane API.
var ValidKeys = map[Key]bool{
	KeySCMToken:         true,
	KeyTrackerUsername:  true,
	KeyTrackerPAT:       true,
	KeyQAInternalAPIKey: true,
	KeyTelemetryKey:     true,
}

// Store is the typed interface the control-plane API and the client
// wiring in cmd use to read and write secret material, standing in for
// an OS keychain.
type Store interface {
	Has(key Key) bool
	Get(key Key) (string, bool)
	Set(key Key, value string) error
	Delete(key Key) error
}

// MemguardStore is the default Store: each value lives sealed in a
// memguard.Enclave for as long as it is held.
type MemguardStore struct {
	mu       sync.RWMutex
	enclaves map[Key]*memguard.Enclave
}

// NewMemguardStore returns an empty store.
func NewMemguardStore() *MemguardStore {
	return &MemguardStore{enclaves: make(map[Key]*memguard.Enclave)}
}

// Has reports whether a value is currently stored for key.
func (s *MemguardStore) Has(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.enclaves[key]
	return ok
}

// Get opens the enclave for key and returns its plaintext. The returned
// string is a copy; callers should not retain it longer than necessary.
func (s *MemguardStore) Get(key Key) (string, bool) {
	s.mu.RLock()
	enc, ok := s.enclaves[key]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}

	buf, err := enc.Open()
	if err != nil {
		return "", false
	}
	defer buf.Destroy()

	return string(buf.Bytes()), true
}

// Set seals value into a fresh enclave, replacing any prior value for key.
func (s *MemguardStore) Set(key Key, value string) error {
	if !ValidKeys[key] {
		return fmt.Errorf("secrets: unsupported key %q", key)
	}

	buf := memguard.NewBufferFromBytes([]byte(value))
	if buf == nil {
		return fmt.Errorf("secrets: failed to allocate secure buffer for %q", key)
	}
	enc := buf.Seal()

	s.mu.Lock()
	s.enclaves[key] = enc
	s.mu.Unlock()
	return nil
}

// Delete removes any stored value for key. Deleting an absent key is not
// an error (idempotent, matching DELETE /api/secrets/:key's {success:true}
// response regardless of prior state).
func (s *MemguardStore) Delete(key Key) error {
	s.mu.Lock()
	delete(s.enclaves, key)
	s.mu.Unlock()
	return nil
}

// Check evaluates Has for each requested key, matching the
// POST /api/secrets/check response shape.
func Check(store Store, keys []Key) map[Key]bool {
	out := make(map[Key]bool, len(keys))
	for _, k := range keys {
		out[k] = store.Has(k)
	}
	return out
}
