package auth

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/r3e-network/ai4all-coordinator/internal/apierr"
)

func TestDeriveAddressIsDeterministic(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	a1 := DeriveAddress(pub)
	a2 := DeriveAddress(pub)
	if a1 != a2 {
		t.Fatalf("expected stable address, got %s vs %s", a1, a2)
	}
	if len(a1) != len(AddressPrefix)+40 {
		t.Fatalf("expected prefix + 40 hex chars, got %q", a1)
	}
}

func TestVerifyEnvelopeAcceptsFreshValidSignature(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	accountID := DeriveAddress(pub)
	now := time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC)
	ts := now.Format(time.RFC3339)
	sig := ed25519.Sign(priv, Message(accountID, ts))

	err := VerifyEnvelope(Ed25519Verifier{}, Envelope{AccountID: accountID, Timestamp: ts, Signature: sig}, pub, now)
	if err != nil {
		t.Fatalf("expected valid envelope, got %v", err)
	}
}

func TestVerifyEnvelopeRejectsStaleTimestamp(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	accountID := DeriveAddress(pub)
	ts := time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC).Format(time.RFC3339)
	sig := ed25519.Sign(priv, Message(accountID, ts))

	now := time.Date(2026, 1, 28, 12, 5, 0, 0, time.UTC)
	err := VerifyEnvelope(Ed25519Verifier{}, Envelope{AccountID: accountID, Timestamp: ts, Signature: sig}, pub, now)
	if err == nil {
		t.Fatalf("expected stale timestamp rejection")
	}
	if authErr, ok := err.(*apierr.Error); !ok || authErr.Kind != apierr.KindAuthentication {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestVerifyEnvelopeRejectsBadSignature(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	accountID := DeriveAddress(pub)
	now := time.Date(2026, 1, 28, 12, 0, 0, 0, time.UTC)
	ts := now.Format(time.RFC3339)

	err := VerifyEnvelope(Ed25519Verifier{}, Envelope{AccountID: accountID, Timestamp: ts, Signature: []byte("bogus")}, pub, now)
	if err == nil {
		t.Fatalf("expected signature rejection")
	}
}
