// Package ratelimit implementa o throttle por identidade que protege o
// motor de decisão e a superfície da API.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultMaxRequests = 100
	DefaultWindow      = 60 * time.Second
)

// entry é a janela corrente de uma identidade
type entry struct {
	count   int
	resetAt time.Time
}

// Result é o veredito de uma request
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter é um contador de janela fixa por identidade
type Limiter struct {
	clock  clock.Clock
	max    int
	window time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

// New cria o limiter; valores não-positivos caem nos defaults
func New(clk clock.Clock, maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		clock:   clk,
		max:     maxRequests,
		window:  window,
		entries: make(map[string]*entry),
	}
}

// Allow registra uma request da identidade e decide se passa.
// Janela expirada reinicia o contador; excedente é rejeitado com o tempo
// até o reset da janela.
func (l *Limiter) Allow(identity string) Result {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[identity]
	if !ok || now.After(e.resetAt) {
		e = &entry{resetAt: now.Add(l.window)}
		l.entries[identity] = e
	}

	e.count++
	if e.count > l.max {
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    e.resetAt,
			RetryAfter: e.resetAt.Sub(now),
		}
	}

	return Result{
		Allowed:   true,
		Remaining: l.max - e.count,
		ResetAt:   e.resetAt,
	}
}

// Sweep remove janelas expiradas para limitar memória
func (l *Limiter) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for identity, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, identity)
			removed++
		}
	}
	return removed
}

// EntryCount retorna o número de identidades rastreadas
func (l *Limiter) EntryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Start roda a varredura periódica (intervalo = tamanho da janela)
func (l *Limiter) Start(ctx context.Context) {
	ticker := l.clock.Ticker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
