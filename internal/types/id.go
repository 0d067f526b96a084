package types

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// MessageIDLength is the byte length of a message identifier.
const MessageIDLength = 32

// MessageID represents the digest identifying a message.
type MessageID [MessageIDLength]byte

// EmptyMessageID is the all-zero message identifier.
var EmptyMessageID = MessageID{}

// ComputeMessageID returns the identifier of a raw message encoding.
func ComputeMessageID(raw []byte) MessageID {
	return blake2b.Sum256(raw)
}

// Hex returns the hex encoding of the message identifier.
func (id MessageID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String returns the hex encoding of the message identifier.
func (id MessageID) String() string {
	return id.Hex()
}

// MessageIDFromHex parses a hex-encoded message identifier.
func MessageIDFromHex(s string) (MessageID, error) {
	var id MessageID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("failed to decode message id: %v", err)
	}
	if len(raw) != MessageIDLength {
		return id, fmt.Errorf("invalid message id length: %d", len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
