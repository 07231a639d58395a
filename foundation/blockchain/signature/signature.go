// Package signature provides the canonical content hashing used to identify
// transactions and seal blocks.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros. It is the previous hash
// recorded by the genesis block.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// =============================================================================

// Hash returns a unique string for the value. The value is marshaled to JSON,
// so struct field order defines the canonical ordering of the hashed fields
// and map keys are sorted by the encoder.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Digest returns the hex digits of the hash without the 0x prefix.
func Digest(hash string) string {
	return strings.TrimPrefix(strings.TrimPrefix(hash, "0x"), "0X")
}

// LeadingZeros counts the number of leading hexadecimal zero digits
// in the hash.
func LeadingZeros(hash string) int {
	digest := Digest(hash)

	var zeros int
	for _, c := range digest {
		if c != '0' {
			break
		}
		zeros++
	}

	return zeros
}

// PublicKeyToID converts the public key to the address form used as an
// authority identity.
func PublicKeyToID(pk ecdsa.PublicKey) string {
	return crypto.PubkeyToAddress(pk).String()
}
