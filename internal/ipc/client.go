package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"imagebit/internal/conversion"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start asks the daemon to convert inputDir into outputDir. A run already in
// progress yields an error wrapping conversion.ErrRunActive.
func (c *Client) Start(ctx context.Context, inputDir, outputDir string) (*StartResponse, error) {
	var resp StartResponse
	if err := c.call(ctx, "Start", StartRequest{InputDir: inputDir, OutputDir: outputDir}, &resp); err != nil {
		return nil, err
	}
	switch resp.Code {
	case CodeRunActive:
		return &resp, fmt.Errorf("%w (daemon)", conversion.ErrRunActive)
	case CodeRejected:
		return &resp, errors.New(resp.Message)
	}
	return &resp, nil
}

// Cancel requests cancellation of the active run.
func (c *Client) Cancel(ctx context.Context) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.call(ctx, "Cancel", CancelRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, "Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call(ctx, "TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	call := c.client.Go(ServiceName+"."+method, req, resp, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case done := <-call.Done:
		return done.Error
	}
}
