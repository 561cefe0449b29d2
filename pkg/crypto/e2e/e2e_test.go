package e2e

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	plaintext := []byte("hello relay")
	data, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	require.Len(t, data.Nonce, NonceSize)
	require.Len(t, data.Tag, TagSize)

	decrypted, err := Decrypt(key, data)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptFailsOnTamperedTag(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	data, err := Encrypt(key, []byte("payload"))
	require.NoError(t, err)

	// Qualquer bit da tag invertido deve falhar a autenticação
	data.Tag[0] ^= 0x01
	_, err = Decrypt(key, data)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	data, err := Encrypt(key, []byte("payload"))
	require.NoError(t, err)

	data.Ciphertext[0] ^= 0xFF
	_, err = Decrypt(key, data)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestDecryptFailsWithWrongKey(t *testing.T) {
	key1, err := GenerateKey()
	require.NoError(t, err)
	key2, err := GenerateKey()
	require.NoError(t, err)

	data, err := Encrypt(key1, []byte("secret"))
	require.NoError(t, err)

	_, err = Decrypt(key2, data)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestEncryptRejectsShortKey(t *testing.T) {
	_, err := Encrypt([]byte("short"), []byte("data"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestNonceUniquePerCall(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	first, err := Encrypt(key, []byte("x"))
	require.NoError(t, err)
	second, err := Encrypt(key, []byte("x"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Nonce, second.Nonce)
}

func TestRSASignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	message := []byte("routing decision payload")
	sig, err := Sign(kp.Private, message)
	require.NoError(t, err)

	require.NoError(t, Verify(kp.Public, message, sig))
	assert.Error(t, Verify(kp.Public, []byte("other message"), sig))
}

func TestPublicKeyPEMRoundtrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	pemBytes, err := kp.PublicKeyPEM()
	require.NoError(t, err)

	parsed, err := ParsePublicKeyPEM(pemBytes)
	require.NoError(t, err)
	assert.Equal(t, kp.Public.N, parsed.N)
}

// Cenário completo do handshake: cliente gera a chave, cifra com a chave
// pública do servidor, o servidor decifra e a sessão resultante funciona.
func TestKeyExchangeHandshake(t *testing.T) {
	mock := clock.NewMock()
	service, err := NewKeyExchangeService(mock, time.Hour)
	require.NoError(t, err)

	pemBytes, err := service.ServerPublicKeyPEM()
	require.NoError(t, err)
	serverPub, err := ParsePublicKeyPEM(pemBytes)
	require.NoError(t, err)

	clientKey, err := GenerateKey()
	require.NoError(t, err)
	encryptedKey, err := EncryptOAEP(serverPub, clientKey)
	require.NoError(t, err)

	session, err := service.HandleKeyExchange("session-1", encryptedKey)
	require.NoError(t, err)

	data, err := session.Encrypt([]byte("hello"))
	require.NoError(t, err)
	decrypted, err := session.Decrypt(data)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), decrypted)

	encryptedBytes, decryptedBytes := session.Counters()
	assert.Equal(t, int64(5), encryptedBytes)
	assert.Equal(t, int64(5), decryptedBytes)
}

func TestKeyExchangeRejectsWrongKeySize(t *testing.T) {
	mock := clock.NewMock()
	service, err := NewKeyExchangeService(mock, time.Hour)
	require.NoError(t, err)

	pemBytes, err := service.ServerPublicKeyPEM()
	require.NoError(t, err)
	serverPub, err := ParsePublicKeyPEM(pemBytes)
	require.NoError(t, err)

	encrypted, err := EncryptOAEP(serverPub, []byte("too-short"))
	require.NoError(t, err)

	_, err = service.HandleKeyExchange("session-1", encrypted)
	assert.ErrorIs(t, err, ErrInvalidClientKey)
}

func TestSessionExpirySweep(t *testing.T) {
	mock := clock.NewMock()
	service, err := NewKeyExchangeService(mock, time.Hour)
	require.NoError(t, err)

	pemBytes, err := service.ServerPublicKeyPEM()
	require.NoError(t, err)
	serverPub, err := ParsePublicKeyPEM(pemBytes)
	require.NoError(t, err)

	clientKey, err := GenerateKey()
	require.NoError(t, err)
	encryptedKey, err := EncryptOAEP(serverPub, clientKey)
	require.NoError(t, err)

	_, err = service.HandleKeyExchange("old-session", encryptedKey)
	require.NoError(t, err)
	require.Equal(t, 1, service.SessionCount())

	mock.Add(30 * time.Minute)
	assert.Equal(t, 0, service.SweepExpired())

	mock.Add(31 * time.Minute)
	assert.Equal(t, 1, service.SweepExpired())
	assert.Equal(t, 0, service.SessionCount())

	_, err = service.GetSession("old-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDestroySessionZeroesKey(t *testing.T) {
	mock := clock.NewMock()
	service, err := NewKeyExchangeService(mock, time.Hour)
	require.NoError(t, err)

	pemBytes, err := service.ServerPublicKeyPEM()
	require.NoError(t, err)
	serverPub, err := ParsePublicKeyPEM(pemBytes)
	require.NoError(t, err)

	clientKey, err := GenerateKey()
	require.NoError(t, err)
	encryptedKey, err := EncryptOAEP(serverPub, clientKey)
	require.NoError(t, err)

	session, err := service.HandleKeyExchange("session-1", encryptedKey)
	require.NoError(t, err)

	service.DestroySession("session-1")
	_, err = session.Encrypt([]byte("data"))
	assert.ErrorIs(t, err, ErrSessionTerminated)
}

func TestRandomToken(t *testing.T) {
	token, err := RandomToken(16)
	require.NoError(t, err)
	assert.Len(t, token, 32) // hex dobra o tamanho

	other, err := RandomToken(16)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestConstantTimeEquals(t *testing.T) {
	assert.True(t, ConstantTimeEquals("abc123", "abc123"))
	assert.False(t, ConstantTimeEquals("abc123", "abc124"))
	assert.False(t, ConstantTimeEquals("abc", "abc123"))
}

func TestSHA256Hex(t *testing.T) {
	// Vetor conhecido de SHA-256("abc")
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		SHA256Hex([]byte("abc")))
}
