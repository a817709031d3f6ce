package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// MaxSessionIDLength bounds client-supplied session identifiers.
const MaxSessionIDLength = 128

// NewSessionID returns an opaque base-36 session identifier derived from a
// random v4 UUID. Clients persist it and send it with every event.
func NewSessionID() string {
	id := uuid.New()
	n := new(big.Int).SetBytes(id[:])
	return n.Text(36)
}

// IsValidSessionID reports whether id is acceptable as a session key:
// 1 to MaxSessionIDLength characters of [0-9a-zA-Z_-].
func IsValidSessionID(id string) bool {
	if len(id) == 0 || len(id) > MaxSessionIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// BuildVisitorSignature creates a privacy-first visitor identifier.
// The signature rotates daily at midnight UTC, ensuring visitors cannot be
// tracked across days. IP addresses are never stored - only used in hashing.
func BuildVisitorSignature(host, ipAddress, userAgent, salt string) string {
	today := time.Now().UTC().Format("2006-01-02")
	dailySalt := fmt.Sprintf("%s-%s", today, salt)
	data := fmt.Sprintf("%s.%s.%s.%s", dailySalt, host, ipAddress, userAgent)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
