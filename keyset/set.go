package keyset

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	jose "github.com/go-jose/go-jose/v4"
)

// Set is an immutable, indexed view of a JSON Web Key Set restricted to
// public signing keys that carry a key ID.
type Set struct {
	keys map[string]jose.JSONWebKey
}

// ParseSet decodes a JWKS document. Keys without a "kid", private keys and
// keys whose "use" is not "sig" are skipped. The first key wins when a key ID
// repeats.
func ParseSet(raw []byte) (*Set, error) {
	var doc jose.JSONWebKeySet
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	return NewSet(doc.Keys...), nil
}

// NewSet indexes keys with the same filtering rules as ParseSet.
func NewSet(keys ...jose.JSONWebKey) *Set {
	s := &Set{keys: make(map[string]jose.JSONWebKey, len(keys))}
	for _, k := range keys {
		if k.KeyID == "" || !k.IsPublic() {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if _, dup := s.keys[k.KeyID]; dup {
			continue
		}
		s.keys[k.KeyID] = k
	}
	return s
}

// Key returns the public key for kid.
func (s *Set) Key(kid string) (any, bool) {
	if s == nil {
		return nil, false
	}
	k, ok := s.keys[kid]
	if !ok {
		return nil, false
	}
	return k.Key, true
}

// Len reports the number of usable keys.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// KeyIDs returns the sorted key IDs in the set.
func (s *Set) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.keys))
	for id := range s.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var errEmptySet = errors.New("jwks contains no usable signing keys")
