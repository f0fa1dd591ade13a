package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

var (
	trackingNumberPattern = regexp.MustCompile(`^ST-\d{7}$`)
	trackingNumberSpace   = big.NewInt(10_000_000)
)

// GenerateTrackingNumber returns a tracking number in the format ST-NNNNNNN.
// Uniqueness is checked by the caller.
func GenerateTrackingNumber() string {
	n, err := rand.Int(rand.Reader, trackingNumberSpace)
	if err != nil {
		// fallback: use current nanoseconds
		return fmt.Sprintf("ST-%07d", time.Now().UnixNano()%trackingNumberSpace.Int64())
	}
	return fmt.Sprintf("ST-%07d", n.Int64())
}

// IsTrackingNumber reports whether s is well formed.
func IsTrackingNumber(s string) bool {
	return trackingNumberPattern.MatchString(s)
}
