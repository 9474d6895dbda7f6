package license

import "os"

// embeddedSigningKey is the HMAC signing secret compiled into the binary.
// The engine is fully offline, so key verification shares this secret
// with the issuing tool rather than contacting a server.
const embeddedSigningKey = "clinicore-license-signing-key-2025-do-not-share"

// SigningKey returns the license signing secret. CLINICORE_SIGNING_KEY
// overrides the embedded default so issuing environments can use their
// own secret.
func SigningKey() []byte {
	if key := os.Getenv("CLINICORE_SIGNING_KEY"); key != "" {
		return []byte(key)
	}
	return []byte(embeddedSigningKey)
}
