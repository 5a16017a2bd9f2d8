/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package service

import (
	"context"
	"encoding/json"

	"github.com/kentakayama/subdevice-fota/internal/domain/model"
)

// ConnectionID identifies a transport connection to the gateway core.
type ConnectionID int

// WriteHandler is called after a write to a resource registered with a callback.
type WriteHandler func(ctx context.Context, deviceID string, path model.ResourcePath, value []byte)

// ResourceStore defines the resource-object store the engine provisions into.
// Values passed in are copied; the caller keeps ownership of its slices.
type ResourceStore interface {
	DeviceExists(ctx context.Context, deviceID string) (bool, error)
	FeatureFlags(ctx context.Context, deviceID string) (model.FeatureFlags, error)
	ResourceExists(ctx context.Context, deviceID string, path model.ResourcePath) (bool, error)
	AddResource(ctx context.Context, deviceID string, path model.ResourcePath, typ model.ResourceType, ops model.Operation, value []byte) error
	AddResourceWithCallback(ctx context.Context, deviceID string, path model.ResourcePath, typ model.ResourceType, ops model.Operation, value []byte, onWrite WriteHandler) error
	SetResourceValue(ctx context.Context, deviceID string, path model.ResourcePath, value []byte) error
	// SetWriteCallback replaces the write callback of an existing resource.
	SetWriteCallback(ctx context.Context, deviceID string, path model.ResourcePath, onWrite WriteHandler) error
}

// Message is an outgoing request with a mutable params object.
type Message struct {
	ID     string
	Method string
	Params map[string]any
}

// ResponseHandler receives the outcome of a dispatched Message.
// Exactly one of HandleSuccess or HandleFailure is called, followed by Release.
type ResponseHandler interface {
	HandleSuccess(response json.RawMessage)
	HandleFailure(err error)
	Release()
}

// Transport builds and dispatches requests to the gateway core.
// Dispatch takes ownership of the handler only when it returns nil.
type Transport interface {
	NewRequest(method string) (*Message, error)
	Dispatch(ctx context.Context, conn ConnectionID, msg *Message, handler ResponseHandler) error
}

// ManifestAccessor extracts raw fields from an opaque manifest blob.
// A nil slice with a nil error means the field is absent.
type ManifestAccessor interface {
	VendorGUID(manifest []byte) ([]byte, error)
	ClassGUID(manifest []byte) ([]byte, error)
	FirmwareSize(manifest []byte) (uint32, error)
	Timestamp(manifest []byte) (uint64, error)
	FirmwareURI(manifest []byte) ([]byte, error)
	FirmwareHash(manifest []byte) ([]byte, error)
}

// FlowRepository persists the history of device flows.
type FlowRepository interface {
	Create(ctx context.Context, ev *model.FlowEvent) (int64, error)
	ListByDevice(ctx context.Context, deviceID string) ([]model.FlowEvent, error)
}
