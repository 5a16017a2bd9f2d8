/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package util

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// DiagnoseCBOR renders an encoded CBOR item as indented JSON for logs.
// Byte strings are shown as h'..', tags as {"tag": n, "content": ...}.
// A byte string that itself holds CBOR is left opaque.
func DiagnoseCBOR(data []byte) (string, error) {
	var decoded any
	if err := cbor.Unmarshal(data, &decoded); err != nil {
		return "", err
	}
	pretty, err := json.MarshalIndent(toJSONValue(decoded), "", "  ")
	if err != nil {
		return "", err
	}
	return string(pretty), nil
}

func toJSONValue(value any) any {
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = toJSONValue(elem)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[keyString(key)] = toJSONValue(val)
		}
		return out
	case []byte:
		return fmt.Sprintf("h'%x'", v)
	case cbor.Tag:
		return map[string]any{
			"tag":     v.Number,
			"content": toJSONValue(v.Content),
		}
	default:
		return v
	}
}

func keyString(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case []byte:
		return fmt.Sprintf("h'%x'", k)
	default:
		return fmt.Sprint(k)
	}
}
