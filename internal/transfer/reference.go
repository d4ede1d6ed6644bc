package transfer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewReference generates a transaction reference with collision-resistant
// entropy: a millisecond timestamp plus a random suffix from crypto/rand.
// References are generated per request, before the gateway call, and serve as
// the idempotency key for webhook reconciliation.
func NewReference(prefix string) string {
	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		// crypto/rand only fails when the OS entropy source is broken; fall
		// back to the timestamp alone rather than aborting the transfer.
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), hex.EncodeToString(suffix))
}
