/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package manifest

import (
	"bytes"
	"math"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"
)

var sign1TagBytes = []byte{0xD2}

// COSE hash algorithm ids (RFC 9054).
const (
	DigestSHA256 cose.Algorithm = -16
	DigestSHA384 cose.Algorithm = -43
	DigestSHA512 cose.Algorithm = -44
)

type Nested[T any] struct {
	Value T
}

func (n *Nested[T]) UnmarshalCBOR(data []byte) error {
	// data is bstr wrapped something
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	// raw is the content
	return cbor.Unmarshal(raw, &n.Value)
}

func (n Nested[T]) MarshalCBOR() ([]byte, error) {
	raw, err := cbor.Marshal(n.Value)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(raw)
}

// Manifest is the firmware manifest carried as COSE_Sign1 payload or bare CBOR.
type Manifest struct {
	Version   uint64           `cbor:"1,keyasint"`
	Timestamp *uint64          `cbor:"2,keyasint,omitempty"`
	VendorID  []byte           `cbor:"3,keyasint,omitempty"`
	ClassID   []byte           `cbor:"4,keyasint,omitempty"`
	Payload   *Nested[Payload] `cbor:"5,keyasint,omitempty"`
}

// Payload describes the firmware image.
type Payload struct {
	Size   *uint64 `cbor:"1,keyasint,omitempty"`
	URI    *string `cbor:"2,keyasint,omitempty"`
	Digest *Digest `cbor:"3,keyasint,omitempty"`
}

type Digest struct {
	_           struct{}       `cbor:",toarray"`
	DigestAlg   cose.Algorithm `cbor:"0,keyasint"` // SHA-256 (-16), etc.
	DigestBytes []byte         `cbor:"1,keyasint"`
}

// Decode parses a manifest blob. A COSE_Sign1 envelope is unwrapped without
// verifying its signature.
func Decode(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, ErrInvalidFormat
	}
	body := data
	if bytes.HasPrefix(data, sign1TagBytes) {
		var sign1 cose.Sign1Message
		if err := sign1.UnmarshalCBOR(data); err != nil {
			return nil, ErrInvalidFormat
		}
		if sign1.Payload == nil {
			// detached payloads are not supported
			return nil, ErrInvalidFormat
		}
		body = sign1.Payload
	}

	var m Manifest
	if err := cbor.Unmarshal(body, &m); err != nil {
		return nil, ErrInvalidFormat
	}
	return &m, nil
}

// Encode produces the bare CBOR form of m.
func (m *Manifest) Encode() ([]byte, error) {
	return cbor.Marshal(m)
}

func (m *Manifest) size() (uint32, error) {
	if m.Payload == nil || m.Payload.Value.Size == nil {
		return 0, ErrFieldNotPresent
	}
	if *m.Payload.Value.Size > math.MaxUint32 {
		return 0, ErrSizeOverflow
	}
	return uint32(*m.Payload.Value.Size), nil
}

func (m *Manifest) uri() ([]byte, error) {
	if m.Payload == nil || m.Payload.Value.URI == nil {
		return nil, ErrFieldNotPresent
	}
	return []byte(*m.Payload.Value.URI), nil
}

func (m *Manifest) hash() ([]byte, error) {
	if m.Payload == nil || m.Payload.Value.Digest == nil {
		return nil, ErrFieldNotPresent
	}
	d := m.Payload.Value.Digest
	switch d.DigestAlg {
	case DigestSHA256, DigestSHA384, DigestSHA512:
	default:
		return nil, ErrUnsupportedDigest
	}
	if len(d.DigestBytes) == 0 {
		return nil, ErrFieldNotPresent
	}
	return d.DigestBytes, nil
}
