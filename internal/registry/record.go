package registry

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/goautomatik/router-server/internal/domain"
)

// Layout binário versionado dos registros do relay registry.
// Versão 1 (64 bytes):
//
//	off  tam  campo
//	0    1    versão (=1)
//	1    32   chave pública do operador
//	33   16   localização "COUNTRY-CITY" (ASCII, zero-padded)
//	49   1    reputação [0,100]
//	50   4    banda em Mbps (uint32 big-endian)
//	54   1    uptime [0,100]
//	55   8    último heartbeat (unix segundos, int64 big-endian)
//	63   1    flag de ativo
const (
	recordVersion1 = 1
	recordV1Size   = 64
)

var (
	ErrRecordTooShort      = errors.New("registry record too short")
	ErrUnknownVersion      = errors.New("unknown registry record version")
	ErrFieldOutOfRange     = errors.New("registry record field out of range")
	errEmptyLocation       = errors.New("registry record has empty location")
	errZeroOperator        = errors.New("registry record has zero operator key")
)

// defaultPricePerGB é aplicado a registros que não carregam preço; o preço
// canônico vive no programa de pool, fora deste processo.
const defaultPricePerGB = 0.05

// DecodeRecord decodifica um registro binário do registry de forma
// defensiva: valida o tamanho do buffer antes de cada campo e retorna erro
// por registro malformado em vez de abortar o fetch inteiro.
func DecodeRecord(buf []byte) (domain.NodeHealthMetrics, error) {
	var node domain.NodeHealthMetrics

	if len(buf) < 1 {
		return node, ErrRecordTooShort
	}
	if buf[0] != recordVersion1 {
		return node, fmt.Errorf("%w: %d", ErrUnknownVersion, buf[0])
	}
	if len(buf) < recordV1Size {
		return node, fmt.Errorf("%w: got %d bytes, want %d", ErrRecordTooShort, len(buf), recordV1Size)
	}

	operator := buf[1:33]
	if bytes.Equal(operator, make([]byte, 32)) {
		return node, errZeroOperator
	}

	location := string(bytes.TrimRight(buf[33:49], "\x00"))
	if location == "" {
		return node, errEmptyLocation
	}

	reputation := buf[49]
	if reputation > 100 {
		return node, fmt.Errorf("%w: reputation %d", ErrFieldOutOfRange, reputation)
	}

	bandwidth := binary.BigEndian.Uint32(buf[50:54])

	uptime := buf[54]
	if uptime > 100 {
		return node, fmt.Errorf("%w: uptime %d", ErrFieldOutOfRange, uptime)
	}

	heartbeat := int64(binary.BigEndian.Uint64(buf[55:63]))
	if heartbeat < 0 {
		return node, fmt.Errorf("%w: heartbeat %d", ErrFieldOutOfRange, heartbeat)
	}

	active := buf[63] == 1

	node = domain.NodeHealthMetrics{
		NodeID:        DeriveNodeID(operator),
		Operator:      hex.EncodeToString(operator),
		Location:      location,
		Reputation:    float64(reputation),
		BandwidthMbps: float64(bandwidth),
		UptimePct:     float64(uptime),
		PricePerGB:    defaultPricePerGB,
		LastHeartbeat: time.Unix(heartbeat, 0).UTC(),
		IsActive:      active,
	}
	return node, nil
}

// EncodeRecord serializa um nó no layout v1; usado por testes e ferramentas
func EncodeRecord(node *domain.NodeHealthMetrics) ([]byte, error) {
	operator, err := hex.DecodeString(node.Operator)
	if err != nil || len(operator) != 32 {
		return nil, errZeroOperator
	}
	if len(node.Location) > 16 {
		return nil, fmt.Errorf("%w: location %q", ErrFieldOutOfRange, node.Location)
	}

	buf := make([]byte, recordV1Size)
	buf[0] = recordVersion1
	copy(buf[1:33], operator)
	copy(buf[33:49], node.Location)
	buf[49] = byte(node.Reputation)
	binary.BigEndian.PutUint32(buf[50:54], uint32(node.BandwidthMbps))
	buf[54] = byte(node.UptimePct)
	binary.BigEndian.PutUint64(buf[55:63], uint64(node.LastHeartbeat.Unix()))
	if node.IsActive {
		buf[63] = 1
	}
	return buf, nil
}

// DeriveNodeID deriva o ID do nó a partir da chave do operador.
// Formato: primeiros 16 bytes do SHA256, hex-encoded.
func DeriveNodeID(operatorKey []byte) string {
	digest := sha256.Sum256(operatorKey)
	return hex.EncodeToString(digest[:16])
}
