/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fota

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/kentakayama/subdevice-fota/internal/domain/service"
)

type CallbackKind int

const (
	CallbackDownload CallbackKind = iota + 1
	CallbackStatusReport
)

func (k CallbackKind) String() string {
	switch k {
	case CallbackDownload:
		return "download"
	case CallbackStatusReport:
		return "status-report"
	default:
		return "unknown"
	}
}

// callbackVariant is implemented by *downloadCallback and *statusCallback only.
type callbackVariant interface {
	kind() CallbackKind
	success(conn service.ConnectionID, response json.RawMessage)
	failure(conn service.ConnectionID, err error)
}

// Ledger bounds and counts the callbacks waiting for a response.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	live     int
}

// NewLedger returns a ledger admitting at most capacity live callbacks.
// A capacity <= 0 admits none.
func NewLedger(capacity int) *Ledger {
	return &Ledger{capacity: capacity}
}

func (l *Ledger) Allocate(conn service.ConnectionID, variant callbackVariant) (*PendingCallback, error) {
	if variant == nil {
		return nil, ErrInvalidParameters
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.live >= l.capacity {
		return nil, ErrAllocationFailure
	}
	l.live++
	return &PendingCallback{ledger: l, conn: conn, variant: variant}, nil
}

// Live returns the number of callbacks allocated and not yet released.
func (l *Ledger) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}

func (l *Ledger) release() {
	l.mu.Lock()
	l.live--
	l.mu.Unlock()
}

// PendingCallback binds the handlers of one outstanding request.
// It implements service.ResponseHandler.
type PendingCallback struct {
	ledger  *Ledger
	conn    service.ConnectionID
	variant callbackVariant

	settled  atomic.Bool
	released sync.Once
}

func (p *PendingCallback) Kind() CallbackKind {
	return p.variant.kind()
}

// Settled reports whether a handler has been invoked.
func (p *PendingCallback) Settled() bool {
	return p.settled.Load()
}

func (p *PendingCallback) HandleSuccess(response json.RawMessage) {
	if !p.settled.CompareAndSwap(false, true) {
		return
	}
	p.variant.success(p.conn, response)
}

func (p *PendingCallback) HandleFailure(err error) {
	if !p.settled.CompareAndSwap(false, true) {
		return
	}
	p.variant.failure(p.conn, err)
}

// Release returns the slot to the ledger. Later calls are no-ops.
func (p *PendingCallback) Release() {
	p.released.Do(p.ledger.release)
}
