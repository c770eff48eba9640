package keyset

import (
	"context"
	"errors"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
)

func TestNewSet_Filtering(t *testing.T) {
	priv, sig := genKey(t, "sig")
	_, enc := genKey(t, "enc")
	enc.Use = "enc"
	_, noKID := genKey(t, "")
	privateJWK := jose.JSONWebKey{Key: priv, KeyID: "private", Algorithm: "RS256", Use: "sig"}
	_, dup := genKey(t, "sig")

	s := NewSet(sig, enc, noKID, privateJWK, dup)
	if got := s.KeyIDs(); len(got) != 1 || got[0] != "sig" {
		t.Fatalf("want only [sig], got %v", got)
	}
	if _, ok := s.Key("enc"); ok {
		t.Fatal("encryption key must not be usable for signatures")
	}
	k, ok := s.Key("sig")
	if !ok || k != sig.Key {
		t.Fatal("first key with a repeated kid must win")
	}
}

func TestParseSet_Invalid(t *testing.T) {
	if _, err := ParseSet([]byte(`{"keys": 5}`)); err == nil {
		t.Fatal("expected error for malformed jwks")
	}
}

func TestStatic(t *testing.T) {
	_, k1 := genKey(t, "K1")
	s, err := NewStaticJSON(jwksJSON(t, k1))
	if err != nil {
		t.Fatalf("static: %v", err)
	}
	if _, err := s.Resolve(context.Background(), "K1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := s.Resolve(context.Background(), "K2"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("want ErrKeyNotFound, got %v", err)
	}
	if _, err := NewStaticJSON([]byte(`{"keys":[]}`)); err == nil {
		t.Fatal("expected error for empty static set")
	}
}
