/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package edgerpc

import "errors"

var (
	ErrClosed            = errors.New("connection to gateway core closed")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrInvalidMessage    = errors.New("invalid json-rpc message")
)

// JSON-RPC 2.0 error codes
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)
