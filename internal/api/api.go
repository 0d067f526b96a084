package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/CrossDAG/EmberDAG/internal/gossip"
	"github.com/CrossDAG/EmberDAG/internal/metrics"
	"github.com/CrossDAG/EmberDAG/internal/peering"
	"github.com/CrossDAG/EmberDAG/internal/pow"
	"github.com/CrossDAG/EmberDAG/internal/tangle"
	"github.com/CrossDAG/EmberDAG/internal/types"
)

// Config represents the API server configuration.
type Config struct {
	BindAddr    string
	NetworkID   uint64
	MinPoWScore float64
}

// Server represents the HTTP API server.
type Server struct {
	config    Config
	processor *gossip.Processor
	tangle    *tangle.Tangle
	registry  *peering.Registry
	metrics   *metrics.Metrics

	router  *http.ServeMux
	server  *http.Server
	logger  *log.Logger
	mu      sync.RWMutex
	running bool
}

// NewServer creates a new API server.
func NewServer(config Config, processor *gossip.Processor, tg *tangle.Tangle, registry *peering.Registry, m *metrics.Metrics) *Server {
	return &Server{
		config:    config,
		processor: processor,
		tangle:    tg,
		registry:  registry,
		metrics:   m,
		router:    http.NewServeMux(),
		logger:    log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
}

// Start starts the API server.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.registerRoutes()
	s.server = &http.Server{
		Addr:    s.config.BindAddr,
		Handler: s.router,
	}

	go func() {
		s.logger.Printf("API server started on %s", s.config.BindAddr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("API server error: %v", err)
		}
	}()

	s.running = true
	return nil
}

// Stop stops the API server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.server != nil {
		if err := s.server.Close(); err != nil {
			return err
		}
	}

	s.running = false
	s.logger.Printf("API server stopped")
	return nil
}

// registerRoutes registers the API routes.
func (s *Server) registerRoutes() {
	s.router.HandleFunc("/messages", s.handleMessages)
	s.router.HandleFunc("/messages/", s.handleGetMessage)
	s.router.HandleFunc("/status", s.handleStatus)
	s.router.HandleFunc("/peers", s.handleGetPeers)
}

// submitRequest represents the body of a message submission.
type submitRequest struct {
	Raw     string `json:"raw,omitempty"`
	Parent1 string `json:"parent1,omitempty"`
	Parent2 string `json:"parent2,omitempty"`
	Index   string `json:"index,omitempty"`
	Data    string `json:"data,omitempty"`
}

// handleMessages handles message submission.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	raw, err := s.buildRawMessage(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.processor.SubmitLocal(r.Context(), raw, pow.Score(raw))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"messageId": id.Hex()})
}

// buildRawMessage turns a submission into a raw encoding with sufficient
// proof of work. Missing parents default to current tips.
func (s *Server) buildRawMessage(req *submitRequest) ([]byte, error) {
	if req.Raw != "" {
		raw, err := hex.DecodeString(req.Raw)
		if err != nil {
			return nil, fmt.Errorf("invalid raw hex: %v", err)
		}
		return raw, nil
	}

	msg := &types.Message{NetworkID: s.config.NetworkID}

	parent1, parent2, err := s.resolveParents(req)
	if err != nil {
		return nil, err
	}
	msg.Parent1, msg.Parent2 = parent1, parent2

	if req.Index != "" {
		msg.Payload = &types.IndexationPayload{
			Index: []byte(req.Index),
			Data:  []byte(req.Data),
		}
	}

	raw, err := types.EncodeMessage(msg)
	if err != nil {
		return nil, err
	}

	solved, err := pow.Solve(raw, s.config.MinPoWScore)
	if err != nil {
		return nil, fmt.Errorf("failed to solve proof of work: %v", err)
	}
	return solved, nil
}

// resolveParents picks explicit or tip-based parents for a submission.
func (s *Server) resolveParents(req *submitRequest) (types.MessageID, types.MessageID, error) {
	tips := s.tangle.Tips()
	pick := func(hexID string, fallback int) (types.MessageID, error) {
		if hexID != "" {
			return types.MessageIDFromHex(hexID)
		}
		if len(tips) > fallback {
			return tips[fallback], nil
		}
		if len(tips) > 0 {
			return tips[0], nil
		}
		return types.EmptyMessageID, nil
	}

	parent1, err := pick(req.Parent1, 0)
	if err != nil {
		return types.EmptyMessageID, types.EmptyMessageID, err
	}
	parent2, err := pick(req.Parent2, 1)
	if err != nil {
		return types.EmptyMessageID, types.EmptyMessageID, err
	}
	return parent1, parent2, nil
}

// handleGetMessage handles message retrieval by ID.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	idHex := strings.TrimPrefix(r.URL.Path, "/messages/")
	id, err := types.MessageIDFromHex(idHex)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, ok := s.tangle.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	meta, _ := s.tangle.Metadata(id)

	resp := map[string]interface{}{
		"messageId": id.Hex(),
		"networkId": msg.NetworkID,
		"parent1":   msg.Parent1.Hex(),
		"parent2":   msg.Parent2.Hex(),
		"nonce":     msg.Nonce,
	}
	if meta != nil {
		resp["arrivedAt"] = meta.ArrivedAt
		resp["requested"] = meta.Requested
	}
	switch payload := msg.Payload.(type) {
	case *types.MilestonePayload:
		resp["payload"] = map[string]interface{}{
			"kind":      "milestone",
			"index":     payload.Index,
			"timestamp": payload.Timestamp,
		}
	case *types.IndexationPayload:
		resp["payload"] = map[string]interface{}{
			"kind":  "indexation",
			"index": string(payload.Index),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStatus handles the status endpoint.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messageCount":     s.tangle.MessageCount(),
		"tipCount":         len(s.tangle.Tips()),
		"activePeers":      s.registry.Len(),
		"replacementPeers": s.registry.ReplacementLen(),
		"metrics":          s.metrics.Snapshot(),
	})
}

// handleGetPeers handles the peer listing endpoint.
func (s *Server) handleGetPeers(w http.ResponseWriter, r *http.Request) {
	type peerInfo struct {
		ID            string `json:"id"`
		Addr          string `json:"addr"`
		VerifiedCount int    `json:"verifiedCount,omitempty"`
		LastNewPeers  int    `json:"lastNewPeers,omitempty"`
	}

	active := make([]peerInfo, 0)
	for _, p := range s.registry.ActivePeers() {
		active = append(active, peerInfo{
			ID:            p.ID.String(),
			Addr:          p.Addr,
			VerifiedCount: p.VerifiedCount,
			LastNewPeers:  p.LastNewPeers,
		})
	}
	replacements := make([]peerInfo, 0)
	for _, p := range s.registry.ReplacementPeers() {
		replacements = append(replacements, peerInfo{ID: p.ID.String(), Addr: p.Addr})
	}
	entries := make([]peerInfo, 0)
	for _, p := range s.registry.EntryPeers() {
		entries = append(entries, peerInfo{ID: p.ID.String(), Addr: p.Addr})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":       active,
		"replacements": replacements,
		"entry":        entries,
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
