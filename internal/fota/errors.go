/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fota

import (
	"errors"
	"fmt"

	"github.com/kentakayama/subdevice-fota/internal/domain/model"
)

var (
	ErrInvalidParameters        = errors.New("invalid parameters")
	ErrInvalidDevice            = errors.New("invalid device")
	ErrFeatureDisabled          = errors.New("firmware update feature disabled")
	ErrAlreadyProvisioned       = errors.New("firmware update resources already provisioned")
	ErrNotProvisioned           = errors.New("firmware update resources not provisioned")
	ErrAllocationFailure        = errors.New("allocation failure")
	ErrTransportDispatch        = errors.New("failed to dispatch request")
	ErrFlowInProgress           = errors.New("update flow already in progress")
	ErrInvalidTransition        = errors.New("invalid flow transition")
	ErrManifestIdentityMismatch = errors.New("manifest identity mismatch")
	ErrManifestFieldMissing     = errors.New("manifest field missing")
	ErrManifestFieldOversized   = errors.New("manifest field oversized")
)

// RejectionError describes why a manifest was not accepted.
type RejectionError struct {
	Reason model.RejectionReason
	Field  model.ManifestField // meaningful for field missing/oversized
	Err    error
}

func (e *RejectionError) Error() string {
	switch e.Reason {
	case model.ReasonFieldMissing, model.ReasonFieldOversized:
		if e.Err != nil {
			return fmt.Sprintf("manifest rejected: %s %s: %v", e.Field, e.Reason, e.Err)
		}
		return fmt.Sprintf("manifest rejected: %s %s", e.Field, e.Reason)
	default:
		return "manifest rejected: " + e.Reason.String()
	}
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

func (e *RejectionError) Is(target error) bool {
	switch target {
	case ErrManifestIdentityMismatch:
		return e.Reason == model.ReasonWrongVendorID || e.Reason == model.ReasonWrongClassID
	case ErrManifestFieldMissing:
		return e.Reason == model.ReasonFieldMissing
	case ErrManifestFieldOversized:
		return e.Reason == model.ReasonFieldOversized
	case ErrAllocationFailure:
		return e.Reason == model.ReasonAllocationFailure
	}
	return false
}

// RemoteError is reported by the gateway core for a request that was sent.
// It only ever reaches failure handlers, never a synchronous return.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
