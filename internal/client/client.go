// Package client provides a synchronous, connection-per-request TCP
// client for the wire protocol: no pipelining, no keep-alive.
package client

import (
	"fmt"
	"net"

	"github.com/flintkv/flintkv/internal/protocol"
)

// Client holds the server address to dial for each request.
type Client struct {
	addr string
}

// New returns a Client targeting addr.
func New(addr string) *Client {
	return &Client{addr: addr}
}

// Do connects, sends req, half-closes the write side, and reads the
// single response.
func (c *Client) Do(req protocol.Request) (protocol.Response, error) {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("client: connect to %s: %w", c.addr, err)
	}
	defer conn.Close()

	if err := protocol.WriteRequest(conn, req); err != nil {
		return protocol.Response{}, err
	}

	tcpConn, ok := conn.(*net.TCPConn)
	if ok {
		if err := tcpConn.CloseWrite(); err != nil {
			return protocol.Response{}, fmt.Errorf("client: half-close: %w", err)
		}
	}

	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		return protocol.Response{}, err
	}
	return resp, nil
}

// Get sends a Get request for key.
func (c *Client) Get(key string) (protocol.Response, error) {
	return c.Do(protocol.Request{Kind: protocol.RequestGet, Key: key})
}

// Set sends a Set request for key/value.
func (c *Client) Set(key, value string) (protocol.Response, error) {
	return c.Do(protocol.Request{Kind: protocol.RequestSet, Key: key, Value: value})
}

// Remove sends a Remove request for key.
func (c *Client) Remove(key string) (protocol.Response, error) {
	return c.Do(protocol.Request{Kind: protocol.RequestRemove, Key: key})
}
