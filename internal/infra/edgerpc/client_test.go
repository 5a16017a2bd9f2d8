/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package edgerpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kentakayama/subdevice-fota/internal/config"
	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/kentakayama/subdevice-fota/internal/fota"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateway plays the gateway core side of the connection.
type gateway struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	g := &gateway{conns: make(chan *websocket.Conn, 1)}
	upgrader := websocket.Upgrader{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.conns <- ws
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *gateway) url() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

func (g *gateway) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-g.conns:
		t.Cleanup(func() { ws.Close() })
		return ws
	case <-time.After(5 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

type recorder struct {
	mu       sync.Mutex
	success  []json.RawMessage
	failures []error
	released int
	done     chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{}, 4)}
}

func (r *recorder) HandleSuccess(resp json.RawMessage) {
	r.mu.Lock()
	r.success = append(r.success, resp)
	r.mu.Unlock()
}

func (r *recorder) HandleFailure(err error) {
	r.mu.Lock()
	r.failures = append(r.failures, err)
	r.mu.Unlock()
}

func (r *recorder) Release() {
	r.mu.Lock()
	r.released++
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not released")
	}
}

type writeRecorder struct {
	mu     sync.Mutex
	device string
	path   model.ResourcePath
	value  []byte
}

func (w *writeRecorder) Write(_ context.Context, deviceID string, path model.ResourcePath, value []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.device, w.path, w.value = deviceID, path, value
	return nil
}

func startClient(t *testing.T, handler RequestHandler) (*Client, *websocket.Conn) {
	t.Helper()
	g := newGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c, err := Dial(ctx, config.EdgeConfig{URL: g.url(), Logger: zerolog.Nop()}, 1, handler)
	require.NoError(t, err)
	ws := g.accept(t)
	go c.Run(ctx)
	return c, ws
}

func TestClient_DispatchSuccess(t *testing.T) {
	c, ws := startClient(t, nil)

	msg, err := c.NewRequest("download_asset")
	require.NoError(t, err)
	msg.Params["url"] = "https://x/fw.bin"
	rec := newRecorder()
	require.NoError(t, c.Dispatch(context.Background(), 1, msg, rec))

	req := readFrame(t, ws)
	assert.Equal(t, "2.0", req["jsonrpc"])
	assert.Equal(t, msg.ID, req["id"])
	assert.Equal(t, "download_asset", req["method"])
	assert.Equal(t, "https://x/fw.bin", req["params"].(map[string]any)["url"])

	require.NoError(t, ws.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"id":      msg.ID,
		"result":  map[string]any{"filename": "fw.bin", "error": 0},
	}))
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.success, 1)
	assert.Contains(t, string(rec.success[0]), `"filename":"fw.bin"`)
	assert.Empty(t, rec.failures)
	assert.Equal(t, 1, rec.released)
	assert.Equal(t, 0, c.Pending())
}

func TestClient_DispatchRemoteError(t *testing.T) {
	c, ws := startClient(t, nil)

	msg, err := c.NewRequest("subdevice_manifest_status")
	require.NoError(t, err)
	rec := newRecorder()
	require.NoError(t, c.Dispatch(context.Background(), 1, msg, rec))
	readFrame(t, ws)

	require.NoError(t, ws.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"id":      msg.ID,
		"error":   map[string]any{"code": -30000, "message": "device not found"},
	}))
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.failures, 1)
	assert.True(t, fota.IsRemote(rec.failures[0]))
	var re *fota.RemoteError
	require.ErrorAs(t, rec.failures[0], &re)
	assert.Equal(t, -30000, re.Code)
}

func TestClient_WriteRequest(t *testing.T) {
	w := &writeRecorder{}
	_, ws := startClient(t, w)

	require.NoError(t, ws.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"id":      "42",
		"method":  "write",
		"params": map[string]any{
			"device_id":          "dev-1",
			"object_id":          10252,
			"object_instance_id": 0,
			"resource_id":        1,
			"value":              "oA==",
		},
	}))

	resp := readFrame(t, ws)
	assert.Equal(t, "42", resp["id"])
	assert.Equal(t, "ok", resp["result"])

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, "dev-1", w.device)
	assert.Equal(t, model.ResourceManifestPayload.Path(), w.path)
	assert.Equal(t, []byte{0xa0}, w.value)
}

func TestClient_UnknownMethod(t *testing.T) {
	_, ws := startClient(t, &writeRecorder{})

	require.NoError(t, ws.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 7, "method": "reboot"}))
	resp := readFrame(t, ws)
	assert.Equal(t, float64(7), resp["id"])
	assert.Equal(t, float64(codeMethodNotFound), resp["error"].(map[string]any)["code"])
}

func TestClient_CloseReleasesPending(t *testing.T) {
	c, ws := startClient(t, nil)

	recs := []*recorder{newRecorder(), newRecorder()}
	for _, rec := range recs {
		msg, err := c.NewRequest("download_asset")
		require.NoError(t, err)
		require.NoError(t, c.Dispatch(context.Background(), 1, msg, rec))
		readFrame(t, ws)
	}
	assert.Equal(t, 2, c.Pending())

	require.NoError(t, c.Close())
	for _, rec := range recs {
		rec.wait(t)
		rec.mu.Lock()
		assert.Equal(t, []error{ErrClosed}, rec.failures)
		assert.Equal(t, 1, rec.released)
		rec.mu.Unlock()
	}
	assert.Equal(t, 0, c.Pending())

	msg, err := c.NewRequest("download_asset")
	require.NoError(t, err)
	assert.ErrorIs(t, c.Dispatch(context.Background(), 1, msg, newRecorder()), ErrClosed)
}

func TestClient_CloseDuringDispatchWrite(t *testing.T) {
	c, _ := startClient(t, nil)

	msg, err := c.NewRequest("download_asset")
	require.NoError(t, err)
	rec := newRecorder()

	// hold the write lock so Dispatch stops between registering and writing
	c.writeMu.Lock()
	result := make(chan error, 1)
	go func() {
		result <- c.Dispatch(context.Background(), 1, msg, rec)
	}()
	require.Eventually(t, func() bool { return c.Pending() == 1 }, 5*time.Second, time.Millisecond)

	go c.Close()
	rec.wait(t)
	// the frame can no longer be written
	require.NoError(t, c.ws.UnderlyingConn().Close())
	c.writeMu.Unlock()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not return")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []error{ErrClosed}, rec.failures)
	assert.Empty(t, rec.success)
	assert.Equal(t, 1, rec.released)
}

func TestClient_DispatchUnknownConnection(t *testing.T) {
	c, _ := startClient(t, nil)

	msg, err := c.NewRequest("download_asset")
	require.NoError(t, err)
	assert.ErrorIs(t, c.Dispatch(context.Background(), 2, msg, newRecorder()), ErrUnknownConnection)
	assert.Equal(t, 0, c.Pending())

	_, err = c.NewRequest("")
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestClient_Register(t *testing.T) {
	c, ws := startClient(t, nil)

	errc := make(chan error, 1)
	go func() {
		errc <- c.Register(context.Background(), "fota-translator")
	}()

	req := readFrame(t, ws)
	assert.Equal(t, "protocol_translator_register", req["method"])
	assert.Equal(t, "fota-translator", req["params"].(map[string]any)["name"])
	require.NoError(t, ws.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req["id"], "result": "ok"}))

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("register did not return")
	}
}
