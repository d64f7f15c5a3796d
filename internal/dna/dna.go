// Package dna derives kitty DNA from host entropy and combines parent DNA at
// breeding time. Every function is pure: equal inputs give equal outputs.
package dna

import (
	"kittycore/pkg/domain"

	"golang.org/x/crypto/blake2b"
)

// Mix hashes entropy into a 16-byte digest using BLAKE2b-128.
func Mix(entropy []byte) [domain.DNASize]byte {
	var out [domain.DNASize]byte
	h, err := blake2b.New(domain.DNASize, nil)
	if err != nil {
		// unreachable: the digest size is within range and no key is used
		panic(err)
	}
	_, _ = h.Write(entropy)
	copy(out[:], h.Sum(nil))
	return out
}

// Synthesize derives DNA for a freshly minted kitty.
func Synthesize(entropy []byte) domain.DNA {
	return domain.DNA(Mix(entropy))
}

// Combine derives a child's DNA from two parents. One selector byte per
// position is mixed from entropy; selector bit 1 takes the bit from a, bit 0
// takes it from b. The scheme is part of the stored data format and must not
// change.
func Combine(a, b domain.DNA, entropy []byte) domain.DNA {
	selector := Mix(entropy)
	var child domain.DNA
	for i := range child {
		child[i] = (selector[i] & a[i]) | (^selector[i] & b[i])
	}
	return child
}

// Inherits reports whether every bit of child equals the bit at the same
// position in a or in b.
func Inherits(child, a, b domain.DNA) bool {
	for i := range child {
		// a bit set in child but clear in both parents, or clear in child but
		// set in both parents, cannot have been inherited
		if child[i]&^(a[i]|b[i]) != 0 {
			return false
		}
		if ^child[i]&(a[i]&b[i]) != 0 {
			return false
		}
	}
	return true
}
