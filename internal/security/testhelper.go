package security

// testMasterSecret is a fixed master secret for unit tests only. Do not use in production.
const testMasterSecret = "test-master-secret-0123456789abcdef"

// NewTestSigner returns a Signer keyed from the embedded test secret for the given purpose.
// The purpose doubles as the audience. For unit tests only.
func NewTestSigner(purpose string) *Signer {
	return NewSigner(DeriveKey([]byte(testMasterSecret), purpose), "test-issuer", purpose)
}

// NewTestFingerprinter returns a Fingerprinter with a fixed salt. For unit tests only.
func NewTestFingerprinter() *Fingerprinter {
	return NewFingerprinter([]byte("test-fingerprint-salt"))
}

// NewTestKeys returns Keys derived from the embedded test secret. For unit tests only.
func NewTestKeys() Keys {
	return NewKeys([]byte(testMasterSecret), "test-issuer", []byte("test-fingerprint-salt"))
}
