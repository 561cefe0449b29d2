package e2e

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// rsaKeyBits é o tamanho do par de chaves usado no handshake
const rsaKeyBits = 2048

var ErrInvalidPublicKeyPEM = errors.New("invalid RSA public key PEM")

// KeyPair é o par assimétrico usado apenas para troca de chaves,
// nunca para dados em volume.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// GenerateKeyPair gera um par RSA-2048
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return &KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// PublicKeyPEM serializa a chave pública em PEM (PKIX) para envio ao cliente
func (kp *KeyPair) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(kp.Public)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePublicKeyPEM decodifica uma chave pública RSA em PEM
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPublicKeyPEM
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidPublicKeyPEM
	}
	return rsaKey, nil
}

// EncryptOAEP cifra um payload curto (tipicamente a chave simétrica)
// com RSA-OAEP-SHA256
func EncryptOAEP(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
}

// DecryptOAEP decifra um payload cifrado com EncryptOAEP
func DecryptOAEP(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("OAEP decryption failed: %w", err)
	}
	return plaintext, nil
}

// Sign assina o digest SHA-256 da mensagem com RSA-PSS
func Sign(priv *rsa.PrivateKey, message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	return rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], nil)
}

// Verify verifica uma assinatura RSA-PSS-SHA256
func Verify(pub *rsa.PublicKey, message, signature []byte) error {
	digest := sha256.Sum256(message)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], signature, nil); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}
