/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fota

import (
	"context"
	"errors"
	"sync"

	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/kentakayama/subdevice-fota/internal/domain/service"
	"github.com/kentakayama/subdevice-fota/internal/util"
	"github.com/rs/zerolog"
)

// FlowObserver is notified of every device flow transition.
type FlowObserver interface {
	Observe(ctx context.Context, ev model.FlowEvent)
}

// Client is the firmware update engine for the subdevices behind one gateway.
type Client struct {
	store     service.ResourceStore
	transport service.Transport
	accessor  service.ManifestAccessor
	ledger    *Ledger
	identity  Identity
	logger    zerolog.Logger
	observers []FlowObserver

	mu       sync.Mutex
	states   map[string]model.FlowState
	inFlight util.Set[string]
}

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithObserver(o FlowObserver) Option {
	return func(c *Client) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

func NewClient(store service.ResourceStore, transport service.Transport, accessor service.ManifestAccessor, ledger *Ledger, identity Identity, opts ...Option) (*Client, error) {
	if store == nil || transport == nil || accessor == nil || ledger == nil {
		return nil, errors.New("store, transport, accessor and ledger are required")
	}
	if identity.VendorID == "" || identity.ClassID == "" {
		return nil, errors.New("vendor id and class id are required")
	}
	c := &Client{
		store:     store,
		transport: transport,
		accessor:  accessor,
		ledger:    ledger,
		identity:  identity,
		logger:    zerolog.Nop(),
		states:    make(map[string]model.FlowState),
		inFlight:  util.NewSet[string](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Validate runs ValidateManifest with the client's identity.
func (c *Client) Validate(manifest []byte) (*model.UpdateDescriptor, error) {
	return ValidateManifest(c.accessor, manifest, c.identity, c.logger)
}

// FlowState returns the last known state of the device flow.
func (c *Client) FlowState(deviceID string) model.FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[deviceID]; ok {
		return s
	}
	return model.FlowUnprovisioned
}

func (c *Client) InFlight(deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight.Has(deviceID)
}

// transition moves the device flow to next and notifies the observers.
func (c *Client) transition(ctx context.Context, deviceID string, next model.FlowState, result model.UpdateResult, detail string) error {
	c.mu.Lock()
	cur, ok := c.states[deviceID]
	if !ok {
		cur = model.FlowUnprovisioned
	}
	if !cur.CanTransition(next) {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	c.states[deviceID] = next
	c.mu.Unlock()

	c.logger.Debug().
		Str("device_id", deviceID).
		Str("state", string(next)).
		Int64("result", int64(result)).
		Msg("flow transition")

	ev := model.FlowEvent{
		DeviceID: deviceID,
		State:    next,
		Result:   result,
		Detail:   detail,
	}
	for _, o := range c.observers {
		o.Observe(ctx, ev)
	}
	return nil
}
