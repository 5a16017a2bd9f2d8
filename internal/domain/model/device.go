/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "time"

// FeatureFlags advertises the optional capabilities of a subdevice.
type FeatureFlags uint32

const (
	FeatureFirmwareUpdate     FeatureFlags = 0x01
	FeatureCertificateRenewal FeatureFlags = 0x02
)

func (f FeatureFlags) Has(flag FeatureFlags) bool {
	return f&flag == flag
}

type Device struct {
	ID           int64
	Name         string // device_id on the wire
	FeatureFlags FeatureFlags
	CreatedAt    time.Time
}
