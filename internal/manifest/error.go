/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package manifest

import "errors"

var (
	ErrInvalidFormat     = errors.New("invalid manifest")
	ErrSizeOverflow      = errors.New("firmware size exceeds 32 bits")
	ErrFieldNotPresent   = errors.New("field not present")
	ErrUnsupportedDigest = errors.New("unsupported digest algorithm")
)
