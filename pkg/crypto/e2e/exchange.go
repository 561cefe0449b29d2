package e2e

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultSessionMaxAge é a validade padrão de uma sessão de criptografia
	DefaultSessionMaxAge = time.Hour
	// sweepInterval é o intervalo da varredura de sessões expiradas
	sweepInterval = 5 * time.Minute
)

var (
	ErrSessionNotFound   = errors.New("encryption session not found")
	ErrInvalidClientKey  = errors.New("client symmetric key must be 32 bytes")
	ErrSessionTerminated = errors.New("encryption session terminated")
)

// EncryptionSession vincula uma chave simétrica a uma sessão de roteamento.
// A chave vive apenas em memória e é destruída no término da sessão.
type EncryptionSession struct {
	SessionID string
	CreatedAt time.Time

	mu             sync.Mutex
	key            []byte
	bytesEncrypted int64
	bytesDecrypted int64
	terminated     bool
}

// Encrypt cifra dados com a chave da sessão e atualiza os contadores
func (s *EncryptionSession) Encrypt(plaintext []byte) (*EncryptedData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return nil, ErrSessionTerminated
	}

	data, err := Encrypt(s.key, plaintext)
	if err != nil {
		return nil, err
	}
	s.bytesEncrypted += int64(len(plaintext))
	return data, nil
}

// Decrypt decifra dados com a chave da sessão e atualiza os contadores
func (s *EncryptionSession) Decrypt(data *EncryptedData) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return nil, ErrSessionTerminated
	}

	plaintext, err := Decrypt(s.key, data)
	if err != nil {
		return nil, err
	}
	s.bytesDecrypted += int64(len(plaintext))
	return plaintext, nil
}

// Counters retorna os bytes cifrados e decifrados pela sessão
func (s *EncryptionSession) Counters() (encrypted, decrypted int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesEncrypted, s.bytesDecrypted
}

// destroy zera a chave; a sessão não pode mais cifrar
func (s *EncryptionSession) destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.key {
		s.key[i] = 0
	}
	s.terminated = true
}

// KeyExchangeService é o lado servidor do handshake: mantém um par RSA de
// longa duração e as sessões de criptografia ativas.
type KeyExchangeService struct {
	keyPair *KeyPair
	clock   clock.Clock
	maxAge  time.Duration

	mu       sync.RWMutex
	sessions map[string]*EncryptionSession
}

// NewKeyExchangeService gera o par RSA do servidor e inicializa o serviço
func NewKeyExchangeService(clk clock.Clock, maxAge time.Duration) (*KeyExchangeService, error) {
	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	return &KeyExchangeService{
		keyPair:  kp,
		clock:    clk,
		maxAge:   maxAge,
		sessions: make(map[string]*EncryptionSession),
	}, nil
}

// ServerPublicKeyPEM retorna a chave pública que os clientes usam para
// cifrar a chave simétrica proposta
func (ks *KeyExchangeService) ServerPublicKeyPEM() ([]byte, error) {
	return ks.keyPair.PublicKeyPEM()
}

// HandleKeyExchange decifra a chave simétrica proposta pelo cliente com a
// chave privada do servidor e cria a sessão de criptografia vinculada.
func (ks *KeyExchangeService) HandleKeyExchange(sessionID string, encryptedKey []byte) (*EncryptionSession, error) {
	key, err := DecryptOAEP(ks.keyPair.Private, encryptedKey)
	if err != nil {
		return nil, err
	}
	if len(key) != KeySize {
		return nil, ErrInvalidClientKey
	}

	session := &EncryptionSession{
		SessionID: sessionID,
		CreatedAt: ks.clock.Now(),
		key:       key,
	}

	ks.mu.Lock()
	ks.sessions[sessionID] = session
	ks.mu.Unlock()

	return session, nil
}

// GetSession retorna a sessão de criptografia de uma sessão de roteamento
func (ks *KeyExchangeService) GetSession(sessionID string) (*EncryptionSession, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	session, ok := ks.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// DestroySession remove a sessão e zera a chave
func (ks *KeyExchangeService) DestroySession(sessionID string) {
	ks.mu.Lock()
	session, ok := ks.sessions[sessionID]
	if ok {
		delete(ks.sessions, sessionID)
	}
	ks.mu.Unlock()

	if ok {
		session.destroy()
	}
}

// SessionCount retorna o número de sessões de criptografia ativas
func (ks *KeyExchangeService) SessionCount() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.sessions)
}

// SweepExpired destrói sessões mais antigas que o máximo configurado e
// retorna quantas foram removidas
func (ks *KeyExchangeService) SweepExpired() int {
	now := ks.clock.Now()

	ks.mu.Lock()
	var expired []*EncryptionSession
	for id, session := range ks.sessions {
		if now.Sub(session.CreatedAt) > ks.maxAge {
			delete(ks.sessions, id)
			expired = append(expired, session)
		}
	}
	ks.mu.Unlock()

	for _, session := range expired {
		session.destroy()
	}
	return len(expired)
}

// Start roda a varredura periódica de sessões expiradas
func (ks *KeyExchangeService) Start(ctx context.Context) {
	ticker := ks.clock.Ticker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ks.SweepExpired()
		}
	}
}
