/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import (
	"fmt"
	"time"
)

// FlowState is the position of a device in the firmware update flow.
type FlowState string

const (
	FlowUnprovisioned     FlowState = "unprovisioned"
	FlowProvisioned       FlowState = "provisioned"
	FlowManifestReceived  FlowState = "manifest-received"
	FlowValidated         FlowState = "validated"
	FlowRejected          FlowState = "rejected"
	FlowDownloadRequested FlowState = "download-requested"
	FlowDownloadComplete  FlowState = "download-complete"
	FlowDownloadFailed    FlowState = "download-failed"
	FlowStatusReported    FlowState = "status-reported"
)

var flowTransitions = map[FlowState][]FlowState{
	FlowUnprovisioned:     {FlowProvisioned},
	FlowProvisioned:       {FlowManifestReceived},
	FlowManifestReceived:  {FlowValidated, FlowRejected},
	FlowValidated:         {FlowDownloadRequested, FlowRejected},
	FlowDownloadRequested: {FlowDownloadComplete, FlowDownloadFailed},
	FlowDownloadComplete:  {FlowStatusReported},
	FlowDownloadFailed:    {FlowStatusReported},
}

// Terminal reports whether no further transition leaves s.
func (s FlowState) Terminal() bool {
	return s == FlowRejected || s == FlowStatusReported
}

func (s FlowState) CanTransition(next FlowState) bool {
	for _, n := range flowTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

var flowStateCodes = map[FlowState]int64{
	FlowUnprovisioned:     -1,
	FlowProvisioned:       0,
	FlowManifestReceived:  1,
	FlowValidated:         2,
	FlowRejected:          3,
	FlowDownloadRequested: 4,
	FlowDownloadComplete:  5,
	FlowDownloadFailed:    6,
	FlowStatusReported:    7,
}

// Code is the value written to the manifest state resource.
func (s FlowState) Code() int64 {
	if c, ok := flowStateCodes[s]; ok {
		return c
	}
	return -1
}

// FlowEvent records one state change of a device flow.
type FlowEvent struct {
	ID        int64
	DeviceID  string
	State     FlowState
	Result    UpdateResult
	Detail    string
	CreatedAt time.Time
}

func (e FlowEvent) String() string {
	return fmt.Sprintf("%s: %s (result %d)", e.DeviceID, e.State, e.Result)
}
