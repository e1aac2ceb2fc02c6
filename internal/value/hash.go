package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash domains. The version suffix allows migrating the algorithm later.
const (
	DomainBatch = "ledger/batch/v1"
	DomainWorld = "ledger/world/v1"
	DomainBlock = "ledger/block/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as hex.
// The null separator keeps the domain and data boundary unambiguous.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash canonically encodes v and hashes it under domain.
func Hash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return HashWithDomain(domain, canonical), nil
}
