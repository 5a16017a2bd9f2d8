/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package util

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := NewSet[string]()
	s.Add("dev-1")
	s.Add("dev-1")
	assert.True(t, s.Has("dev-1"))
	assert.Equal(t, 1, s.Len())

	s.Remove("dev-1")
	assert.False(t, s.Has("dev-1"))
	assert.Equal(t, 0, s.Len())
}

func TestDiagnoseCBOR(t *testing.T) {
	data, err := cbor.Marshal(map[int]any{
		1: uint64(1),
		3: []byte{0xab, 0xcd},
	})
	require.NoError(t, err)

	out, err := DiagnoseCBOR(data)
	require.NoError(t, err)
	assert.Contains(t, out, `"1": 1`)
	assert.Contains(t, out, `"3": "h'abcd'"`)

	_, err = DiagnoseCBOR([]byte{0xff})
	assert.Error(t, err)
}
