/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "fmt"

// UpdateDescriptor is the normalized result of a validated manifest.
type UpdateDescriptor struct {
	Size    uint32
	Version string // decimal epoch timestamp, not a semantic version
	URL     string
	Hash    string // lowercase hex
}

// ManifestField names the manifest fields that are required for a descriptor.
type ManifestField int

const (
	FieldSize ManifestField = iota
	FieldTimestamp
	FieldURI
	FieldHash
)

func (f ManifestField) String() string {
	switch f {
	case FieldSize:
		return "size"
	case FieldTimestamp:
		return "timestamp"
	case FieldURI:
		return "uri"
	case FieldHash:
		return "hash"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

type RejectionReason int

const (
	ReasonWrongVendorID RejectionReason = iota + 1
	ReasonWrongClassID
	ReasonFieldMissing
	ReasonFieldOversized
	ReasonAllocationFailure
)

func (r RejectionReason) String() string {
	switch r {
	case ReasonWrongVendorID:
		return "wrong vendor id"
	case ReasonWrongClassID:
		return "wrong class id"
	case ReasonFieldMissing:
		return "field missing"
	case ReasonFieldOversized:
		return "field oversized"
	case ReasonAllocationFailure:
		return "allocation failure"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// UpdateResult is the code reported back in subdevice_manifest_status.
type UpdateResult int64

const (
	ResultUninitialized         UpdateResult = -1
	ResultSuccess               UpdateResult = 0
	ResultDownloadFailed        UpdateResult = 1
	ResultMalformedResponse     UpdateResult = 2
	ResultWrongVendorID         UpdateResult = 3
	ResultWrongClassID          UpdateResult = 4
	ResultManifestFieldMissing  UpdateResult = 5
	ResultManifestFieldOversize UpdateResult = 6
	ResultAllocationFailure     UpdateResult = 7
)

// Result maps a rejection reason to the code reported to the managing service.
func (r RejectionReason) Result() UpdateResult {
	switch r {
	case ReasonWrongVendorID:
		return ResultWrongVendorID
	case ReasonWrongClassID:
		return ResultWrongClassID
	case ReasonFieldMissing:
		return ResultManifestFieldMissing
	case ReasonFieldOversized:
		return ResultManifestFieldOversize
	default:
		return ResultAllocationFailure
	}
}
