// Package auth derives AI4ALL account addresses and verifies the authenticated
// request envelope described by the boundary contract: accountId, an ISO-8601
// timestamp within a clock-skew window, and a signature over a fixed message
// template. The actual signing primitive is an external collaborator (the
// post-quantum signature scheme is out of scope for the core); this package
// depends on it only through the Verifier interface.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/r3e-network/ai4all-coordinator/internal/apierr"
)

// AddressPrefix is prepended to the derived account address.
const AddressPrefix = "ai4a"

// MessagePrefix is the fixed template signed by worker-originated requests:
// AI4ALL:v1:{accountId}:{timestamp}.
const MessagePrefix = "AI4ALL:v1"

// ClockSkew is the maximum allowed drift between a request's timestamp and
// server time.
const ClockSkew = 30 * time.Second

// Verifier wraps the external post-quantum signature primitive: Sign(msg, sk) and
// Verify(msg, sig, pk) as contracted by the specification. The core never
// constructs key material itself.
type Verifier interface {
	Verify(message, signature, publicKey []byte) bool
}

// DeriveAddress computes ai4a || hex(SHA-256(publicKey)[0:20]) for a raw public key.
func DeriveAddress(publicKey []byte) string {
	sum := sha256.Sum256(publicKey)
	return AddressPrefix + hex.EncodeToString(sum[:20])
}

// Message builds the exact byte string a worker must sign for one request.
func Message(accountID, timestamp string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", MessagePrefix, accountID, timestamp))
}

// Envelope is the authenticated request envelope every worker-originated call
// carries.
type Envelope struct {
	AccountID string
	Timestamp string
	Signature []byte
}

// VerifyEnvelope checks that env.Timestamp is within ClockSkew of now and that
// env.Signature verifies against publicKey for Message(env.AccountID, env.Timestamp).
// It returns a descriptive error classifying the failure (validation vs auth), never
// a bare bool, so the boundary layer can map it to the right status code.
func VerifyEnvelope(v Verifier, env Envelope, publicKey []byte, now time.Time) error {
	ts, err := time.Parse(time.RFC3339, env.Timestamp)
	if err != nil {
		return apierr.Newf(apierr.KindValidation, "BAD_TIMESTAMP", "timestamp is not ISO-8601")
	}
	if d := now.Sub(ts); d > ClockSkew || d < -ClockSkew {
		return apierr.Newf(apierr.KindAuthentication, "TIMESTAMP_SKEW", "timestamp outside allowed clock skew")
	}
	if v == nil {
		return apierr.Newf(apierr.KindInternal, "NO_VERIFIER", "no signature verifier configured")
	}
	if !v.Verify(Message(env.AccountID, env.Timestamp), env.Signature, publicKey) {
		return apierr.Newf(apierr.KindAuthentication, "BAD_SIGNATURE", "invalid signature")
	}
	return nil
}
