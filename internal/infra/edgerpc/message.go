/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package edgerpc

import "encoding/json"

const jsonRPCVersion = "2.0"

type request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// envelope is any frame read from the gateway core.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (e *envelope) isRequest() bool {
	return e.Method != ""
}

// id returns the request id as a string; numeric ids are kept verbatim.
func (e *envelope) id() string {
	var s string
	if err := json.Unmarshal(e.ID, &s); err == nil {
		return s
	}
	return string(e.ID)
}

// writeParams are sent by the gateway core when a resource value is written.
type writeParams struct {
	DeviceID         string `json:"device_id"`
	ObjectID         uint16 `json:"object_id"`
	ObjectInstanceID uint16 `json:"object_instance_id"`
	ResourceID       uint16 `json:"resource_id"`
	Value            []byte `json:"value"` // base64
}
