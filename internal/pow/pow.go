package pow

import (
	"encoding/binary"
	"errors"
	"math"
	"math/bits"

	"golang.org/x/crypto/blake2b"
)

// maxSolveAttempts bounds the nonce search so Solve cannot spin forever on
// an unreachable target.
const maxSolveAttempts = 1 << 24

var ErrTargetUnreachable = errors.New("proof of work target not reached")

// Score returns the proof-of-work score of a raw message encoding: two to
// the power of the trailing zero bits of its digest, normalized by size.
func Score(raw []byte) float64 {
	if len(raw) == 0 {
		return 0
	}
	digest := blake2b.Sum256(raw)
	return math.Pow(2, float64(trailingZeroBits(digest[:]))) / float64(len(raw))
}

// Solve searches for a nonce that brings the score of raw to at least
// target. The nonce occupies the last 8 bytes of the encoding. The input
// slice is not modified; the solved copy is returned.
func Solve(raw []byte, target float64) ([]byte, error) {
	if len(raw) < 8 {
		return nil, errors.New("message too short to carry a nonce")
	}

	solved := append([]byte(nil), raw...)
	nonceOffset := len(solved) - 8

	for nonce := uint64(0); nonce < maxSolveAttempts; nonce++ {
		binary.LittleEndian.PutUint64(solved[nonceOffset:], nonce)
		if Score(solved) >= target {
			return solved, nil
		}
	}
	return nil, ErrTargetUnreachable
}

// trailingZeroBits counts the trailing zero bits of a digest, starting at
// its last byte.
func trailingZeroBits(digest []byte) int {
	zeros := 0
	for i := len(digest) - 1; i >= 0; i-- {
		if digest[i] == 0 {
			zeros += 8
			continue
		}
		zeros += bits.TrailingZeros8(digest[i])
		break
	}
	return zeros
}
