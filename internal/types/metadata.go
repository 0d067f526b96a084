package types

import "time"

// MessageMetadata represents per-message bookkeeping created at arrival.
type MessageMetadata struct {
	ArrivedAt time.Time
	Requested bool
}
