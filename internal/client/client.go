// Package client dials a profile daemon.
package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/matheus3301/comet/internal/api"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn  *grpc.ClientConn
	Comet *api.CometClient
}

// New dials the daemon's Unix domain socket. The connection is lazy, so a
// missing daemon surfaces on the first call.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:  conn,
		Comet: api.NewCometClient(conn),
	}, nil
}

// Call invokes a unary CometService method.
func (c *Client) Call(ctx context.Context, method string, req, resp any) error {
	return c.Comet.Call(ctx, method, req, resp)
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
