package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisTokenStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisTokenStore(mr.Addr(), "", time.Hour)

	token, err := s.Issue("sess-42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, ok, err := s.SessionID(token)
	if err != nil || !ok {
		t.Fatalf("resolve: ok=%v err=%v", ok, err)
	}
	if id != "sess-42" {
		t.Fatalf("session id = %q", id)
	}

	if err := s.Revoke(token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, ok, _ := s.SessionID(token); ok {
		t.Fatal("revoked token must not resolve")
	}
}

func TestRedisTokenStoreExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisTokenStore(mr.Addr(), "", time.Minute)

	token, err := s.Issue("sess-ttl")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := s.SessionID(token); ok {
		t.Fatal("expired token must not resolve")
	}
}

func TestRedisTokenStoreUnknownToken(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisTokenStore(mr.Addr(), "", time.Minute)
	if _, ok, err := s.SessionID("nope"); ok || err != nil {
		t.Fatalf("unknown token: ok=%v err=%v", ok, err)
	}
}
