package metrics

import "sync/atomic"

// Metrics represents the node's atomic event counters.
type Metrics struct {
	newMessages         atomic.Uint64
	knownMessages       atomic.Uint64
	invalidMessages     atomic.Uint64
	messagesRequested   atomic.Uint64
	verificationsFailed atomic.Uint64
	queriesFailed       atomic.Uint64
	peersRemoved        atomic.Uint64
}

// Snapshot represents a point-in-time copy of all counters.
type Snapshot struct {
	NewMessages         uint64 `json:"newMessages"`
	KnownMessages       uint64 `json:"knownMessages"`
	InvalidMessages     uint64 `json:"invalidMessages"`
	MessagesRequested   uint64 `json:"messagesRequested"`
	VerificationsFailed uint64 `json:"verificationsFailed"`
	QueriesFailed       uint64 `json:"queriesFailed"`
	PeersRemoved        uint64 `json:"peersRemoved"`
}

// New creates a new metrics instance.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncNewMessages()         { m.newMessages.Add(1) }
func (m *Metrics) IncKnownMessages()       { m.knownMessages.Add(1) }
func (m *Metrics) IncInvalidMessages()     { m.invalidMessages.Add(1) }
func (m *Metrics) IncMessagesRequested()   { m.messagesRequested.Add(1) }
func (m *Metrics) IncVerificationsFailed() { m.verificationsFailed.Add(1) }
func (m *Metrics) IncQueriesFailed()       { m.queriesFailed.Add(1) }
func (m *Metrics) IncPeersRemoved()        { m.peersRemoved.Add(1) }

// NewMessages returns the count of newly accepted messages.
func (m *Metrics) NewMessages() uint64 { return m.newMessages.Load() }

// KnownMessages returns the count of duplicate message arrivals.
func (m *Metrics) KnownMessages() uint64 { return m.knownMessages.Load() }

// InvalidMessages returns the count of rejected messages.
func (m *Metrics) InvalidMessages() uint64 { return m.invalidMessages.Load() }

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		NewMessages:         m.newMessages.Load(),
		KnownMessages:       m.knownMessages.Load(),
		InvalidMessages:     m.invalidMessages.Load(),
		MessagesRequested:   m.messagesRequested.Load(),
		VerificationsFailed: m.verificationsFailed.Load(),
		QueriesFailed:       m.queriesFailed.Load(),
		PeersRemoved:        m.peersRemoved.Load(),
	}
}
