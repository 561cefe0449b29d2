package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/goautomatik/router-server/internal/events"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

// subscribeMessage é o comando enviado pelo cliente após conectar
type subscribeMessage struct {
	Type string `json:"type"`
}

// wsHub gerencia as conexões websocket assinantes dos eventos de roteamento
type wsHub struct {
	logger   *zap.Logger
	bus      *events.Bus
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newWSHub(logger *zap.Logger, bus *events.Bus, allowAllOrigins bool) *wsHub {
	return &wsHub{
		logger: logger,
		bus:    bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return allowAllOrigins || r.Header.Get("Origin") == ""
			},
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// handle faz o upgrade e serve a conexão até o cliente sair
func (h *wsHub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Primeiro frame deve ser o comando de assinatura
	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	var msg subscribeMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "subscribe_routing" {
		h.logger.Debug("websocket client did not subscribe", zap.Error(err))
		return
	}

	eventCh, cancel := h.bus.Subscribe()
	defer cancel()

	// Leitor descarta frames subsequentes e mantém o pong handler vivo
	done := make(chan struct{})
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeAll derruba todas as conexões; usado no shutdown
func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		delete(h.conns, conn)
	}
}
