package network

// Packet kinds exchanged between peers. Every connection carries exactly
// one request and, for the kinds that have one, its response.
const (
	packetPing            = "ping"
	packetPong            = "pong"
	packetPeersRequest    = "peers_request"
	packetPeersResponse   = "peers_response"
	packetMessage         = "message"
	packetMessageRequest  = "message_request"
	packetMessageResponse = "message_response"
)

// peerEntry represents one peer in a peers response.
type peerEntry struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

// packet represents one wire packet. Unused fields are omitted per kind.
type packet struct {
	Kind      string      `json:"kind"`
	ID        string      `json:"id,omitempty"`
	Addr      string      `json:"addr,omitempty"`
	Services  []string    `json:"services,omitempty"`
	Peers     []peerEntry `json:"peers,omitempty"`
	MessageID string      `json:"messageId,omitempty"`
	Raw       []byte      `json:"raw,omitempty"`
}
