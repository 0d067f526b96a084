package types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// MaxMessageSize is the maximum allowed size of an encoded message.
const MaxMessageSize = 32768

// minMessageSize is networkID + two parents + payload length + nonce.
const minMessageSize = 8 + MessageIDLength + MessageIDLength + 4 + 8

// Payload kinds carried inside a message.
const (
	PayloadKindMilestone  uint32 = 1
	PayloadKindIndexation uint32 = 2
)

// Message represents a parsed ledger message referencing two parents.
type Message struct {
	NetworkID uint64
	Parent1   MessageID
	Parent2   MessageID
	Payload   Payload
	Nonce     uint64
}

// Payload represents an optional typed message payload.
type Payload interface {
	Kind() uint32
}

// MilestonePayload represents a milestone checkpoint marker.
type MilestonePayload struct {
	Index     uint32
	Timestamp uint64
}

// Kind returns the payload kind of a milestone payload.
func (p *MilestonePayload) Kind() uint32 { return PayloadKindMilestone }

// IndexationPayload represents an indexation marker with arbitrary data.
type IndexationPayload struct {
	Index []byte
	Data  []byte
}

// Kind returns the payload kind of an indexation payload.
func (p *IndexationPayload) Kind() uint32 { return PayloadKindIndexation }

// NetworkIDFromName derives the numeric network identifier from a network name.
func NetworkIDFromName(name string) uint64 {
	digest := blake2b.Sum256([]byte(name))
	return binary.LittleEndian.Uint64(digest[:8])
}

// EncodeMessage serializes a message into its canonical binary encoding.
func EncodeMessage(msg *Message) ([]byte, error) {
	payload, err := encodePayload(msg.Payload)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, msg.NetworkID)
	buf.Write(msg.Parent1[:])
	buf.Write(msg.Parent2[:])
	binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
	binary.Write(buf, binary.LittleEndian, msg.Nonce)

	raw := buf.Bytes()
	if len(raw) > MaxMessageSize {
		return nil, fmt.Errorf("%w: encoded size %d exceeds maximum %d", ErrMalformedMessage, len(raw), MaxMessageSize)
	}
	return raw, nil
}

// DecodeMessage parses the canonical binary encoding of a message.
func DecodeMessage(raw []byte) (*Message, error) {
	if len(raw) > MaxMessageSize {
		return nil, fmt.Errorf("%w: size %d exceeds maximum %d", ErrMalformedMessage, len(raw), MaxMessageSize)
	}
	if len(raw) < minMessageSize {
		return nil, fmt.Errorf("%w: size %d below minimum %d", ErrMalformedMessage, len(raw), minMessageSize)
	}

	msg := &Message{}
	offset := 0

	msg.NetworkID = binary.LittleEndian.Uint64(raw[offset:])
	offset += 8
	copy(msg.Parent1[:], raw[offset:])
	offset += MessageIDLength
	copy(msg.Parent2[:], raw[offset:])
	offset += MessageIDLength

	payloadLen := int(binary.LittleEndian.Uint32(raw[offset:]))
	offset += 4
	if len(raw)-offset != payloadLen+8 {
		return nil, fmt.Errorf("%w: payload length %d does not match remaining bytes", ErrMalformedMessage, payloadLen)
	}

	if payloadLen > 0 {
		payload, err := decodePayload(raw[offset : offset+payloadLen])
		if err != nil {
			return nil, err
		}
		msg.Payload = payload
		offset += payloadLen
	}

	msg.Nonce = binary.LittleEndian.Uint64(raw[offset:])
	return msg, nil
}

// encodePayload serializes a payload with its kind prefix.
func encodePayload(payload Payload) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, payload.Kind())

	switch p := payload.(type) {
	case *MilestonePayload:
		binary.Write(buf, binary.LittleEndian, p.Index)
		binary.Write(buf, binary.LittleEndian, p.Timestamp)
	case *IndexationPayload:
		if len(p.Index) > 0xffff {
			return nil, fmt.Errorf("%w: indexation index too long", ErrMalformedMessage)
		}
		binary.Write(buf, binary.LittleEndian, uint16(len(p.Index)))
		buf.Write(p.Index)
		buf.Write(p.Data)
	default:
		return nil, fmt.Errorf("%w: unknown payload kind %d", ErrMalformedMessage, payload.Kind())
	}

	return buf.Bytes(), nil
}

// decodePayload parses a kind-prefixed payload body.
func decodePayload(raw []byte) (Payload, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: payload too short", ErrMalformedMessage)
	}
	kind := binary.LittleEndian.Uint32(raw)
	body := raw[4:]

	switch kind {
	case PayloadKindMilestone:
		if len(body) != 12 {
			return nil, fmt.Errorf("%w: milestone payload has %d bytes, want 12", ErrMalformedMessage, len(body))
		}
		return &MilestonePayload{
			Index:     binary.LittleEndian.Uint32(body),
			Timestamp: binary.LittleEndian.Uint64(body[4:]),
		}, nil
	case PayloadKindIndexation:
		if len(body) < 2 {
			return nil, fmt.Errorf("%w: indexation payload too short", ErrMalformedMessage)
		}
		indexLen := int(binary.LittleEndian.Uint16(body))
		body = body[2:]
		if len(body) < indexLen {
			return nil, fmt.Errorf("%w: indexation index truncated", ErrMalformedMessage)
		}
		return &IndexationPayload{
			Index: append([]byte(nil), body[:indexLen]...),
			Data:  append([]byte(nil), body[indexLen:]...),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown payload kind %d", ErrMalformedMessage, kind)
	}
}
