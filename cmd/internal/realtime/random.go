package realtime

import (
	"crypto/rand"
	"encoding/hex"
)

const defaultIDBytes = 16

// NewRandomHex returns a random hex string of 2*nBytes characters. It backs
// connection ids and envelope ids, so values only need to be unique, not
// meaningful. Non-positive sizes fall back to defaultIDBytes.
func NewRandomHex(nBytes int) string {
	if nBytes <= 0 {
		nBytes = defaultIDBytes
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		// No entropy source. Callers tolerate an empty id; it surfaces
		// immediately in logs.
		return ""
	}
	return hex.EncodeToString(b)
}
