package auth

import "crypto/ed25519"

// Ed25519Verifier is the default Verifier used when no external post-quantum
// signer is wired in (local development, tests). Swapping it for the production
// PQ primitive requires no change to this package: callers depend only on the
// Verifier interface.
type Ed25519Verifier struct{}

// Verify reports whether signature is a valid ed25519 signature of message under
// publicKey.
func (Ed25519Verifier) Verify(message, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}
