/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package edgerpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kentakayama/subdevice-fota/internal/config"
	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/kentakayama/subdevice-fota/internal/domain/service"
	"github.com/kentakayama/subdevice-fota/internal/fota"
	"github.com/rs/zerolog"
)

const (
	defaultDialTimeout = 10 * time.Second
	writeTimeout       = 10 * time.Second
	bufferSize         = 4096

	methodRegister = "protocol_translator_register"
	methodWrite    = "write"
)

// RequestHandler applies resource writes pushed by the gateway core.
type RequestHandler interface {
	Write(ctx context.Context, deviceID string, path model.ResourcePath, value []byte) error
}

// Client is a JSON-RPC 2.0 connection to the gateway core over websocket.
// It implements service.Transport; responses are delivered from Run.
type Client struct {
	id      service.ConnectionID
	ws      *websocket.Conn
	handler RequestHandler
	logger  zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]service.ResponseHandler
	closed  bool
}

// Dial connects to cfg.URL and returns a client identified by conn.
func Dial(ctx context.Context, cfg config.EdgeConfig, conn service.ConnectionID, handler RequestHandler) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("edge url is empty")
	}
	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = defaultDialTimeout
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		ReadBufferSize:   bufferSize,
		WriteBufferSize:  bufferSize,
	}
	ws, resp, err := dialer.DialContext(ctx, cfg.URL, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", cfg.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	return NewClient(ws, conn, handler, cfg.Logger), nil
}

func NewClient(ws *websocket.Conn, conn service.ConnectionID, handler RequestHandler, logger zerolog.Logger) *Client {
	return &Client{
		id:      conn,
		ws:      ws,
		handler: handler,
		logger:  logger,
		pending: make(map[string]service.ResponseHandler),
	}
}

func (c *Client) ID() service.ConnectionID {
	return c.id
}

func (c *Client) NewRequest(method string) (*service.Message, error) {
	if method == "" {
		return nil, ErrInvalidMessage
	}
	return &service.Message{
		ID:     uuid.NewString(),
		Method: method,
		Params: make(map[string]any),
	}, nil
}

// Dispatch sends msg and hands handler to the read loop. On error the handler
// was never invoked and stays with the caller.
func (c *Client) Dispatch(ctx context.Context, conn service.ConnectionID, msg *service.Message, handler service.ResponseHandler) error {
	if conn != c.id {
		return ErrUnknownConnection
	}
	if msg == nil || handler == nil {
		return ErrInvalidMessage
	}
	frame, err := json.Marshal(request{
		JSONRPC: jsonRPCVersion,
		ID:      msg.ID,
		Method:  msg.Method,
		Params:  msg.Params,
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Method, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[msg.ID] = handler
	c.mu.Unlock()

	if err := c.write(ctx, frame); err != nil {
		if c.forget(msg.ID) == nil {
			// Close already failed and released the handler
			c.logger.Debug().Err(err).Str("request_id", msg.ID).Msg("write failed after close")
			return nil
		}
		return err
	}
	return nil
}

// Register announces this translator to the gateway core and waits for the answer.
func (c *Client) Register(ctx context.Context, name string) error {
	msg, err := c.NewRequest(methodRegister)
	if err != nil {
		return err
	}
	msg.Params["name"] = name

	done := make(chan error, 1)
	if err := c.Dispatch(ctx, c.id, msg, &waiter{done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.forget(msg.ID)
		return ctx.Err()
	}
}

// Run reads frames until the connection fails or ctx is done, then fails
// every pending request with ErrClosed.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.Close()
	})
	defer stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			c.Close()
			if closed || ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read from gateway core: %w", err)
		}
		c.handleFrame(ctx, data)
	}
}

// Close closes the websocket and releases every pending request.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]service.ResponseHandler)
	c.mu.Unlock()

	for id, h := range pending {
		c.logger.Debug().Str("request_id", id).Msg("failing pending request")
		h.HandleFailure(ErrClosed)
		h.Release()
	}

	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// Pending returns the number of requests waiting for a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) handleFrame(ctx context.Context, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn().Err(err).Msg("discarding malformed frame")
		c.reply(ctx, nil, nil, &rpcError{Code: codeParseError, Message: "parse error"})
		return
	}
	if env.isRequest() {
		c.handleRequest(ctx, &env)
		return
	}
	if len(env.ID) == 0 {
		c.reply(ctx, nil, nil, &rpcError{Code: codeInvalidRequest, Message: "invalid request"})
		return
	}

	id := env.id()
	h := c.forget(id)
	if h == nil {
		c.logger.Warn().Str("request_id", id).Msg("response to unknown request")
		return
	}
	if env.Error != nil {
		h.HandleFailure(&fota.RemoteError{Code: env.Error.Code, Message: env.Error.Message})
	} else {
		h.HandleSuccess(json.RawMessage(data))
	}
	h.Release()
}

func (c *Client) handleRequest(ctx context.Context, env *envelope) {
	switch env.Method {
	case methodWrite:
		var p writeParams
		if err := json.Unmarshal(env.Params, &p); err != nil || p.DeviceID == "" {
			c.reply(ctx, env.ID, nil, &rpcError{Code: codeInvalidParams, Message: "invalid write parameters"})
			return
		}
		path := model.ResourcePath{
			Object:   model.ObjectID(p.ObjectID),
			Instance: p.ObjectInstanceID,
			Resource: p.ResourceID,
		}
		if c.handler == nil {
			c.reply(ctx, env.ID, nil, &rpcError{Code: codeInternalError, Message: "writes not supported"})
			return
		}
		if err := c.handler.Write(ctx, p.DeviceID, path, p.Value); err != nil {
			c.logger.Warn().Err(err).Str("device_id", p.DeviceID).Stringer("path", path).Msg("write rejected")
			c.reply(ctx, env.ID, nil, &rpcError{Code: codeInvalidParams, Message: err.Error()})
			return
		}
		c.reply(ctx, env.ID, "ok", nil)
	default:
		c.reply(ctx, env.ID, nil, &rpcError{Code: codeMethodNotFound, Message: "method not found: " + env.Method})
	}
}

func (c *Client) reply(ctx context.Context, id json.RawMessage, result any, rerr *rpcError) {
	frame, err := json.Marshal(response{JSONRPC: jsonRPCVersion, ID: id, Result: result, Error: rerr})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode response")
		return
	}
	if err := c.write(ctx, frame); err != nil {
		c.logger.Warn().Err(err).Msg("failed to send response")
	}
}

func (c *Client) write(ctx context.Context, frame []byte) error {
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write to gateway core: %w", err)
	}
	return nil
}

func (c *Client) forget(id string) service.ResponseHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return h
}

// waiter turns a response into a synchronous result for Register.
type waiter struct {
	done chan error
}

func (w *waiter) HandleSuccess(json.RawMessage) {
	w.done <- nil
}

func (w *waiter) HandleFailure(err error) {
	w.done <- err
}

func (w *waiter) Release() {}
