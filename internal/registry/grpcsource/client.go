// Package grpcsource implementa a fonte de metadados de relays via o
// endpoint RPC do registry. O serviço é descrito manualmente, já que o
// registry publica registros binários de layout fixo e não um .proto.
package grpcsource

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/goautomatik/router-server/internal/domain"
	"github.com/goautomatik/router-server/internal/registry"
)

// ListRelaysRequest é o pedido de listagem; sem filtros no v1
type ListRelaysRequest struct{}

// ListRelaysResponse carrega os registros binários de layout fixo
type ListRelaysResponse struct {
	Records [][]byte `json:"records"`
}

// Client consome o RelayRegistryService e decodifica os registros
// defensivamente: registro malformado é pulado, nunca fatal.
type Client struct {
	conn    *grpc.ClientConn
	logger  *zap.Logger
	timeout time.Duration
}

// Dial conecta ao endpoint do registry
func Dial(endpoint string, logger *zap.Logger) (*Client, error) {
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, logger: logger, timeout: 10 * time.Second}, nil
}

// Close encerra a conexão com o registry
func (c *Client) Close() error {
	return c.conn.Close()
}

// FetchAll implementa registry.Source
func (c *Client) FetchAll(ctx context.Context) ([]domain.NodeHealthMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := new(ListRelaysResponse)
	err := c.conn.Invoke(ctx, "/registry.v1.RelayRegistryService/ListRelays", new(ListRelaysRequest), resp)
	if err != nil {
		return nil, err
	}

	nodes := make([]domain.NodeHealthMetrics, 0, len(resp.Records))
	for i, record := range resp.Records {
		node, err := registry.DecodeRecord(record)
		if err != nil {
			c.logger.Warn("skipping malformed registry record",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

var _ registry.Source = (*Client)(nil)
