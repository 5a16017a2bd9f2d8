/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// LwM2M object ids used by the firmware update resources.
type ObjectID uint16

const (
	ObjectManifest   ObjectID = 10252
	ObjectDeviceMeta ObjectID = 10255
)

// ResourcePath addresses a single resource value as object/instance/resource.
type ResourcePath struct {
	Object   ObjectID
	Instance uint16
	Resource uint16
}

func (p ResourcePath) String() string {
	return fmt.Sprintf("/%d/%d/%d", p.Object, p.Instance, p.Resource)
}

type ResourceType int

const (
	ResourceTypeString ResourceType = iota
	ResourceTypeInteger
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeString:
		return "string"
	case ResourceTypeInteger:
		return "integer"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Operation is a bitmask of the operations allowed on a resource.
type Operation uint8

const (
	OperationRead    Operation = 0x01
	OperationWrite   Operation = 0x02
	OperationExecute Operation = 0x04
)

// Resource enumerates every resource provisioned for the firmware update flow.
type Resource int

const (
	ResourceManifestPayload Resource = iota
	ResourceManifestState
	ResourceManifestResult
	ResourceManifestHash
	ResourceManifestVersion
	ResourceProtocolVersion
	ResourceBootHash
	ResourceOEMBootHash
	ResourceVendorID
	ResourceClassID

	resourceCount
)

type resourceSpec struct {
	name string
	path ResourcePath
	typ  ResourceType
	ops  Operation
}

var resourceTable = [...]resourceSpec{
	ResourceManifestPayload: {"manifest-payload", ResourcePath{ObjectManifest, 0, 1}, ResourceTypeString, OperationExecute},
	ResourceManifestState:   {"manifest-state", ResourcePath{ObjectManifest, 0, 2}, ResourceTypeInteger, OperationRead},
	ResourceManifestResult:  {"manifest-result", ResourcePath{ObjectManifest, 0, 3}, ResourceTypeInteger, OperationRead},
	ResourceManifestHash:    {"manifest-hash", ResourcePath{ObjectManifest, 0, 5}, ResourceTypeString, OperationRead},
	ResourceManifestVersion: {"manifest-version", ResourcePath{ObjectManifest, 0, 6}, ResourceTypeString, OperationRead},
	ResourceProtocolVersion: {"protocol-version", ResourcePath{ObjectDeviceMeta, 0, 0}, ResourceTypeInteger, OperationRead},
	ResourceBootHash:        {"boot-hash", ResourcePath{ObjectDeviceMeta, 0, 1}, ResourceTypeString, OperationRead},
	ResourceOEMBootHash:     {"oem-boot-hash", ResourcePath{ObjectDeviceMeta, 0, 2}, ResourceTypeString, OperationRead},
	ResourceVendorID:        {"vendor-id", ResourcePath{ObjectDeviceMeta, 0, 3}, ResourceTypeString, OperationRead},
	ResourceClassID:         {"class-id", ResourcePath{ObjectDeviceMeta, 0, 4}, ResourceTypeString, OperationRead},
}

// fails to compile unless resourceTable has exactly one entry per Resource
var _ = [1]struct{}{}[len(resourceTable)-int(resourceCount)]

// AllResources lists the provisioned resources in creation order.
func AllResources() []Resource {
	all := make([]Resource, 0, resourceCount)
	for r := Resource(0); r < resourceCount; r++ {
		all = append(all, r)
	}
	return all
}

func (r Resource) Path() ResourcePath {
	return resourceTable[r].path
}

func (r Resource) Type() ResourceType {
	return resourceTable[r].typ
}

func (r Resource) Operations() Operation {
	return resourceTable[r].ops
}

func (r Resource) String() string {
	if r < 0 || r >= resourceCount {
		return fmt.Sprintf("unknown(%d)", int(r))
	}
	return resourceTable[r].name
}

// ResourceValue is a stored resource row.
type ResourceValue struct {
	ID         int64
	DeviceID   int64
	Path       ResourcePath
	Type       ResourceType
	Operations Operation
	Value      []byte
	UpdatedAt  time.Time
}

var ErrIntegerEncoding = errors.New("integer resource value must be 8 bytes")

// EncodeInteger renders an integer resource value as 8 bytes big-endian.
func EncodeInteger(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func DecodeInteger(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, ErrIntegerEncoding
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}
