// Package events implementa o barramento interno de publicação/assinatura
// usado para propagar mudanças de ciclo de vida das sessões e dos nós.
// A entrega é best-effort: assinantes lentos perdem eventos em vez de
// bloquear o publicador.
package events

import (
	"sync"
	"time"
)

// Tipos de evento publicados no barramento
const (
	TypeConnectionEstablished = "connection_established"
	TypeConnectionTerminated  = "connection_terminated"
	TypeNodeSwitched          = "node_switched"
	TypeConnectionFailed      = "connection_failed"
	TypeNodeFailure           = "node_failure"
	TypeStatsUpdate           = "stats_update"
)

// Event é a unidade publicada: tipo, payload e carimbo de tempo
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Bus faz fan-out de eventos para assinantes registrados
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus cria um barramento vazio
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registra um assinante e retorna o canal de eventos e a função
// de cancelamento. O buffer segura 64 eventos; excedentes são descartados.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish entrega o evento a todos os assinantes sem bloquear
func (b *Bus) Publish(eventType string, data interface{}) {
	event := Event{Type: eventType, Data: data, Timestamp: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Assinante lento, descarta
		}
	}
}

// SubscriberCount retorna o número de assinantes ativos
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close encerra o barramento e fecha todos os canais de assinantes
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
