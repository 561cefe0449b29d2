// Package session gerencia o ciclo de vida das sessões cliente<->nó
// escolhidas pelo motor de roteamento: estabelecimento, contabilização de
// tráfego, troca de nó, término e colheita de sessões inativas.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goautomatik/router-server/internal/domain"
	"github.com/goautomatik/router-server/internal/events"
)

const (
	// historyCap é o teto do buffer de histórico; ao estourar, corta
	// para historyTrim descartando os registros mais antigos.
	historyCap  = 10000
	historyTrim = 5000
)

// Manager é o dono da tabela de sessões ativas e do histórico limitado
type Manager struct {
	logger     *zap.Logger
	clock      clock.Clock
	bus        *events.Bus
	staleAfter time.Duration
	reapEvery  time.Duration

	mu       sync.RWMutex
	active   map[string]*domain.Connection
	history  []domain.Connection
	total    int64
	failed   int64

	onTerminate func(sessionID string)
}

// NewManager cria o gerenciador de sessões
func NewManager(logger *zap.Logger, clk clock.Clock, bus *events.Bus, staleAfter, reapEvery time.Duration) *Manager {
	return &Manager{
		logger:     logger,
		clock:      clk,
		bus:        bus,
		staleAfter: staleAfter,
		reapEvery:  reapEvery,
		active:     make(map[string]*domain.Connection),
	}
}

// OnTerminate registra o hook chamado em todo término de sessão, explícito
// ou pela colheita. Usado para destruir o estado acoplado à sessão (como a
// chave de criptografia) no mesmo instante do término. Deve ser configurado
// antes do servidor começar a atender.
func (m *Manager) OnTerminate(hook func(sessionID string)) {
	m.onTerminate = hook
}

// Establish cria uma sessão para o usuário no nó escolhido e publica o
// evento de estabelecimento
func (m *Manager) Establish(userID string, node *domain.NodeHealthMetrics) string {
	now := m.clock.Now()
	conn := &domain.Connection{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		NodeID:       node.NodeID,
		StartTime:    now,
		LastActivity: now,
		IsActive:     true,
	}

	m.mu.Lock()
	m.active[conn.SessionID] = conn
	m.total++
	m.mu.Unlock()

	m.logger.Info("session established",
		zap.String("session_id", conn.SessionID),
		zap.String("user_id", userID),
		zap.String("node_id", node.NodeID))
	m.bus.Publish(events.TypeConnectionEstablished, *conn)

	return conn.SessionID
}

// RouteTraffic contabiliza bytes na sessão. Sessão ausente ou inativa é
// no-op e retorna false; tráfego em sessão morta nunca é erro.
func (m *Manager) RouteTraffic(sessionID string, bytes int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.active[sessionID]
	if !ok || !conn.IsActive {
		return false
	}

	conn.BytesTransferred += bytes
	conn.PacketsOut++
	conn.PacketsIn++
	conn.LastActivity = m.clock.Now()
	return true
}

// SwitchNode troca o nó da sessão mantendo-a ativa; reinicia LastActivity
func (m *Manager) SwitchNode(sessionID string, newNode *domain.NodeHealthMetrics, reason string) bool {
	m.mu.Lock()
	conn, ok := m.active[sessionID]
	if !ok || !conn.IsActive {
		m.mu.Unlock()
		return false
	}

	oldNodeID := conn.NodeID
	conn.NodeID = newNode.NodeID
	conn.LastActivity = m.clock.Now()
	snapshot := *conn
	m.mu.Unlock()

	m.logger.Info("session switched node",
		zap.String("session_id", sessionID),
		zap.String("from", oldNodeID),
		zap.String("to", newNode.NodeID),
		zap.String("reason", reason))
	m.bus.Publish(events.TypeNodeSwitched, map[string]interface{}{
		"session":  snapshot,
		"old_node": oldNodeID,
		"reason":   reason,
	})
	return true
}

// Terminate encerra a sessão e move o registro para o histórico.
// Idempotente: sessão ausente apenas loga e retorna.
func (m *Manager) Terminate(sessionID string) {
	m.mu.Lock()
	conn, ok := m.active[sessionID]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("terminate on unknown session", zap.String("session_id", sessionID))
		return
	}

	// Remove do mapa ativo antes do append no histórico: nenhum leitor
	// concorrente observa a sessão como ativa e histórica ao mesmo tempo.
	delete(m.active, sessionID)
	conn.IsActive = false
	conn.LastActivity = m.clock.Now()
	m.appendHistoryLocked(*conn)
	snapshot := *conn
	m.mu.Unlock()

	m.logger.Info("session terminated", zap.String("session_id", sessionID))
	m.bus.Publish(events.TypeConnectionTerminated, snapshot)

	if m.onTerminate != nil {
		m.onTerminate(sessionID)
	}
}

// appendHistoryLocked adiciona ao histórico aplicando o corte no teto
func (m *Manager) appendHistoryLocked(conn domain.Connection) {
	m.history = append(m.history, conn)
	if len(m.history) > historyCap {
		trimmed := make([]domain.Connection, historyTrim)
		copy(trimmed, m.history[len(m.history)-historyTrim:])
		m.history = trimmed
	}
}

// RecordFailedConnection registra uma falha de estabelecimento e publica
// o evento correspondente
func (m *Manager) RecordFailedConnection(userID, nodeID, reason string) {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()

	m.logger.Warn("connection failed",
		zap.String("user_id", userID),
		zap.String("node_id", nodeID),
		zap.String("reason", reason))
	m.bus.Publish(events.TypeConnectionFailed, map[string]string{
		"user_id": userID,
		"node_id": nodeID,
		"reason":  reason,
	})
}

// SessionsByUser retorna as sessões ativas de um usuário
func (m *Manager) SessionsByUser(userID string) []domain.Connection {
	return m.filterActive(func(c *domain.Connection) bool { return c.UserID == userID })
}

// SessionsByNode retorna as sessões ativas vinculadas a um nó
func (m *Manager) SessionsByNode(nodeID string) []domain.Connection {
	return m.filterActive(func(c *domain.Connection) bool { return c.NodeID == nodeID })
}

func (m *Manager) filterActive(keep func(*domain.Connection) bool) []domain.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []domain.Connection
	for _, conn := range m.active {
		if keep(conn) {
			result = append(result, *conn)
		}
	}
	return result
}

// GetSession retorna uma cópia da sessão ativa, ou nil
func (m *Manager) GetSession(sessionID string) *domain.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if conn, ok := m.active[sessionID]; ok {
		copied := *conn
		return &copied
	}
	return nil
}

// ActiveCount retorna o número de sessões ativas
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// Stats agrega os contadores de tráfego. A latência média é um proxy
// derivado dos gaps de inatividade das sessões ativas, não latência de rede.
func (m *Manager) Stats() domain.TrafficStats {
	now := m.clock.Now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var totalBytes int64
	var gapSum float64
	for _, conn := range m.active {
		totalBytes += conn.BytesTransferred
		gapSum += float64(now.Sub(conn.LastActivity).Milliseconds())
	}
	for _, conn := range m.history {
		totalBytes += conn.BytesTransferred
	}

	var avgLatency float64
	if len(m.active) > 0 {
		avgLatency = gapSum / float64(len(m.active))
	}

	var successRate float64
	if m.total+m.failed > 0 {
		successRate = float64(m.total) / float64(m.total+m.failed) * 100
	}

	return domain.TrafficStats{
		TotalConnections:  m.total,
		ActiveConnections: len(m.active),
		TotalBytes:        totalBytes,
		AverageLatencyMs:  avgLatency,
		FailedConnections: m.failed,
		SuccessRate:       successRate,
	}
}

// ReapStale termina sessões inativas além do limiar, exatamente como um
// término explícito. Retorna quantas foram colhidas.
func (m *Manager) ReapStale() int {
	now := m.clock.Now()

	m.mu.Lock()
	var stale []string
	for id, conn := range m.active {
		if now.Sub(conn.LastActivity) > m.staleAfter {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.logger.Info("reaping stale session", zap.String("session_id", id))
		m.Terminate(id)
	}
	return len(stale)
}

// Start roda a colheita periódica de sessões inativas
func (m *Manager) Start(ctx context.Context) {
	ticker := m.clock.Ticker(m.reapEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("session reaper stopped")
			return
		case <-ticker.C:
			m.ReapStale()
		}
	}
}
