// Package protocol defines the wire request/response messages exchanged
// between the client and server, and their textual codec. Framing is one
// message per direction per connection: the codec itself carries no
// length prefix because the client half-closes its write side and the
// server reads to EOF (and vice versa for the response).
package protocol

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v2"
)

// RequestKind tags which operation a Request names.
type RequestKind string

const (
	RequestGet    RequestKind = "get"
	RequestSet    RequestKind = "set"
	RequestRemove RequestKind = "remove"
)

// Request is a single client request.
type Request struct {
	Kind  RequestKind `yaml:"kind"`
	Key   string      `yaml:"key"`
	Value string      `yaml:"value,omitempty"`
}

// ResponseKind tags which outcome a Response names.
type ResponseKind string

const (
	ResponseValue    ResponseKind = "value"
	ResponseNotFound ResponseKind = "not_found"
	ResponseSuccess  ResponseKind = "success"
	ResponseError    ResponseKind = "error"
)

// Response is a single server response.
type Response struct {
	Kind  ResponseKind `yaml:"kind"`
	Value string       `yaml:"value,omitempty"`
	Error string       `yaml:"error,omitempty"`
}

// WriteRequest encodes req to w.
func WriteRequest(w io.Writer, req Request) error {
	data, err := yaml.Marshal(req)
	if err != nil {
		return fmt.Errorf("protocol: encode request: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("protocol: write request: %w", err)
	}
	return nil
}

// ReadRequest reads and decodes one Request from r, which must yield EOF
// after the single message (the client half-closes its write side).
func ReadRequest(r io.Reader) (Request, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Request{}, fmt.Errorf("protocol: read request: %w", err)
	}
	var req Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("protocol: decode request: %w", err)
	}
	return req, nil
}

// WriteResponse encodes resp to w.
func WriteResponse(w io.Writer, resp Response) error {
	data, err := yaml.Marshal(resp)
	if err != nil {
		return fmt.Errorf("protocol: encode response: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("protocol: write response: %w", err)
	}
	return nil
}

// ReadResponse reads and decodes one Response from r.
func ReadResponse(r io.Reader) (Response, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Response{}, fmt.Errorf("protocol: read response: %w", err)
	}
	var resp Response
	if err := yaml.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("protocol: decode response: %w", err)
	}
	return resp, nil
}
