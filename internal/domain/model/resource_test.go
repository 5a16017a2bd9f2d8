/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceTable_Complete(t *testing.T) {
	seen := map[ResourcePath]Resource{}
	for _, r := range AllResources() {
		require.NotEmpty(t, r.String(), "resource %d has no name", int(r))
		require.NotZero(t, r.Path().Object, "resource %s has no object", r)
		prev, dup := seen[r.Path()]
		require.False(t, dup, "%s and %s share %s", prev, r, r.Path())
		seen[r.Path()] = r
	}
	assert.Len(t, seen, 10)

	assert.Equal(t, "/10252/0/1", ResourceManifestPayload.Path().String())
	assert.Equal(t, "/10255/0/4", ResourceClassID.Path().String())
	assert.Equal(t, OperationExecute, ResourceManifestPayload.Operations())
	assert.Equal(t, ResourceTypeInteger, ResourceManifestState.Type())
}

func TestIntegerEncoding(t *testing.T) {
	for _, v := range []int64{-1, 0, 3, 1700000000} {
		b := EncodeInteger(v)
		require.Len(t, b, 8)
		got, err := DecodeInteger(b)
		require.Nil(t, err)
		assert.Equal(t, v, got)
	}
	_, err := DecodeInteger([]byte{0x01})
	assert.ErrorIs(t, err, ErrIntegerEncoding)
}
