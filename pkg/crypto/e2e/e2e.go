// Package e2e implementa a camada de criptografia de sessão: AES-256-GCM
// para dados, RSA-2048 para transporte de chave e o protocolo de troca de
// chaves por sessão.
package e2e

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize é o tamanho da chave simétrica de sessão
	KeySize = 32
	// NonceSize é o tamanho do nonce aleatório gerado por chamada
	NonceSize = 16
	// TagSize é o tamanho da tag de autenticação GCM
	TagSize = 16
)

var (
	ErrInvalidKeySize  = errors.New("encryption key must be 32 bytes")
	ErrCiphertextShort = errors.New("ciphertext too short")
	// ErrAuthFailed indica chave errada ou dados adulterados; a falha é
	// determinística, nunca corrupção silenciosa.
	ErrAuthFailed = errors.New("authentication failed")
)

// EncryptedData carrega o resultado de uma chamada de Encrypt.
// O nonce nunca é reutilizado com a mesma chave.
type EncryptedData struct {
	Nonce      []byte `json:"nonce"`
	Tag        []byte `json:"tag"`
	Ciphertext []byte `json:"ciphertext"`
}

// GenerateKey gera uma chave simétrica aleatória de 32 bytes
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, NonceSize)
}

// Encrypt cifra plaintext com AES-256-GCM e um nonce aleatório de 16 bytes
func Encrypt(key, plaintext []byte) (*EncryptedData, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	sealed := aesgcm.Seal(nil, nonce, plaintext, nil)

	// Seal anexa a tag ao fim do ciphertext; separa para o formato de wire
	split := len(sealed) - TagSize
	return &EncryptedData{
		Nonce:      nonce,
		Tag:        sealed[split:],
		Ciphertext: sealed[:split],
	}, nil
}

// Decrypt decifra dados produzidos por Encrypt. Chave errada ou tag
// adulterada resultam em ErrAuthFailed.
func Decrypt(key []byte, data *EncryptedData) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data.Nonce) != NonceSize || len(data.Tag) != TagSize {
		return nil, ErrCiphertextShort
	}

	sealed := make([]byte, 0, len(data.Ciphertext)+TagSize)
	sealed = append(sealed, data.Ciphertext...)
	sealed = append(sealed, data.Tag...)

	plaintext, err := aesgcm.Open(nil, data.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}
