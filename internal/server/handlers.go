package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/goautomatik/router-server/internal/apperr"
	"github.com/goautomatik/router-server/internal/domain"
	"github.com/goautomatik/router-server/internal/events"
	"github.com/goautomatik/router-server/internal/ratelimit"
	"github.com/goautomatik/router-server/internal/routing"
)

// handleHealth responde o health check do serviço
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"nodes":     s.registry.NodeCount(),
		"uptime":    time.Since(s.startedAt).Seconds(),
	})
}

// handleOptimalNode é o caminho quente: cache -> motor de decisão -> cache.
// Com user_id presente a decisão também vive no namespace por usuário, que
// tem precedência sobre o namespace por par na consulta.
func (s *Server) handleOptimalNode(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userLocation := query.Get("user_location")
	destination := query.Get("destination")
	if userLocation == "" || destination == "" {
		s.writeError(w, r, apperr.Validation("user_location and destination are required"))
		return
	}

	priority := domain.ParsePriorityMode(query.Get("priority"))
	userID := query.Get("user_id")

	if userID != "" {
		if cached, ok := s.cache.GetDecisionForUser(r.Context(), userID); ok {
			s.metrics.CacheHits.Inc()
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}
	if cached, ok := s.cache.GetDecision(r.Context(), userLocation, destination); ok {
		s.metrics.CacheHits.Inc()
		writeJSON(w, http.StatusOK, cached)
		return
	}
	s.metrics.CacheMisses.Inc()

	req := &domain.UserRoutingRequest{
		UserID:       userID,
		UserLocation: userLocation,
		Destination:  destination,
		Priority:     priority,
	}

	decision, err := s.engine.SelectOptimalNode(req)
	if err != nil {
		if err == routing.ErrNoNodesAvailable {
			s.writeError(w, r, apperr.Unavailable("no relay nodes available", err))
			return
		}
		s.writeError(w, r, err)
		return
	}

	s.metrics.RoutingDecisions.WithLabelValues(priority.String()).Inc()
	s.cache.SetDecision(r.Context(), userLocation, destination, decision)
	if userID != "" {
		s.cache.SetDecisionForUser(r.Context(), userID, decision)
	}

	writeJSON(w, http.StatusOK, decision)
}

type reportFailureRequest struct {
	NodeID        string `json:"node_id"`
	FailureReason string `json:"failure_reason"`
}

// handleReportFailure registra uma falha reportada pelo cliente
func (s *Server) handleReportFailure(w http.ResponseWriter, r *http.Request) {
	var req reportFailureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperr.Validation("invalid JSON body"))
		return
	}
	if req.NodeID == "" {
		s.writeError(w, r, apperr.Validation("node_id is required"))
		return
	}

	s.metrics.FailedConnections.Inc()
	s.sessions.RecordFailedConnection(ratelimit.Identity(r), req.NodeID, req.FailureReason)
	s.bus.Publish(events.TypeNodeFailure, map[string]string{
		"node_id": req.NodeID,
		"reason":  req.FailureReason,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleNodesHealthStatus retorna os nós ativos e os agregados de saúde
func (s *Server) handleNodesHealthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nodes": s.registry.GetActive(),
		"stats": map[string]interface{}{
			"node_count":      s.registry.NodeCount(),
			"average_latency": s.registry.AverageLatency(),
			"average_uptime":  s.registry.AverageUptime(),
		},
		"timestamp": time.Now().UTC(),
	})
}

// handleGetNode retorna um nó pelo ID, ou 404
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")
	node := s.registry.GetByID(nodeID)
	if node == nil {
		s.writeError(w, r, apperr.NotFound("node not found"))
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// handleThreatIntel retorna a entrada de um país (default para desconhecidos)
func (s *Server) handleThreatIntel(w http.ResponseWriter, r *http.Request) {
	countryCode := chi.URLParam(r, "countryCode")
	writeJSON(w, http.StatusOK, s.threats.GetThreatLevel(countryCode))
}

// handleThreatIntelAll retorna todas as entradas conhecidas
func (s *Server) handleThreatIntelAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.threats.GetAll())
}

// handleStats agrega estatísticas de roteamento, cache e processo
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	points, err := s.metrics.ExportJSON()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"traffic":             s.sessions.Stats(),
		"cache":               s.cache.Stats(),
		"encryption_sessions": s.keyExchange.SessionCount(),
		"metrics":             points,
		"timestamp":           time.Now().UTC(),
	})
}

// handleNearbyNodes expõe a busca por proximidade regional
func (s *Server) handleNearbyNodes(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")
	if country == "" {
		s.writeError(w, r, apperr.Validation("country is required"))
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	writeJSON(w, http.StatusOK, s.engine.GetNearbyNodes(r.Context(), country, limit))
}

type establishSessionRequest struct {
	UserID string `json:"user_id"`
	NodeID string `json:"node_id"`
}

// handleEstablishSession cria uma sessão no nó pedido
func (s *Server) handleEstablishSession(w http.ResponseWriter, r *http.Request) {
	var req establishSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperr.Validation("invalid JSON body"))
		return
	}
	if req.UserID == "" || req.NodeID == "" {
		s.writeError(w, r, apperr.Validation("user_id and node_id are required"))
		return
	}

	node := s.registry.GetByID(req.NodeID)
	if node == nil {
		s.writeError(w, r, apperr.NotFound("node not found"))
		return
	}

	sessionID := s.sessions.Establish(req.UserID, node)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))

	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
}

type switchNodeRequest struct {
	NodeID string `json:"node_id"`
	Reason string `json:"reason"`
}

// handleSwitchNode troca o nó de uma sessão ativa
func (s *Server) handleSwitchNode(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req switchNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperr.Validation("invalid JSON body"))
		return
	}

	node := s.registry.GetByID(req.NodeID)
	if node == nil {
		s.writeError(w, r, apperr.NotFound("node not found"))
		return
	}

	if !s.sessions.SwitchNode(sessionID, node, req.Reason) {
		s.writeError(w, r, apperr.NotFound("session not found or inactive"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleTerminateSession encerra uma sessão; idempotente. A destruição da
// chave de criptografia acontece via o hook de término do gerenciador, o
// mesmo caminho da colheita de sessões inativas.
func (s *Server) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s.sessions.Terminate(sessionID)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleServerPublicKey publica a chave RSA usada no handshake
func (s *Server) handleServerPublicKey(w http.ResponseWriter, r *http.Request) {
	pemBytes, err := s.keyExchange.ServerPublicKeyPEM()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": string(pemBytes)})
}

type keyExchangeRequest struct {
	EncryptedKey string `json:"encrypted_key"` // base64, cifrada com a chave pública do servidor
}

// handleKeyExchange executa o handshake de chave da sessão
func (s *Server) handleKeyExchange(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if s.sessions.GetSession(sessionID) == nil {
		s.writeError(w, r, apperr.NotFound("session not found"))
		return
	}

	var req keyExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperr.Validation("invalid JSON body"))
		return
	}

	encryptedKey, err := base64.StdEncoding.DecodeString(req.EncryptedKey)
	if err != nil {
		s.writeError(w, r, apperr.Validation("encrypted_key must be base64"))
		return
	}

	if _, err := s.keyExchange.HandleKeyExchange(sessionID, encryptedKey); err != nil {
		s.writeError(w, r, apperr.Validation("key exchange failed"))
		return
	}

	s.metrics.KeyExchanges.Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleMetricsJSON expõe o exportador JSON de métricas
func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	points, err := s.metrics.ExportJSON()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}
