/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package manifest

// Decoder extracts individual fields from a manifest blob.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) VendorGUID(data []byte) ([]byte, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return m.VendorID, nil
}

func (d *Decoder) ClassGUID(data []byte) ([]byte, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return m.ClassID, nil
}

func (d *Decoder) FirmwareSize(data []byte) (uint32, error) {
	m, err := Decode(data)
	if err != nil {
		return 0, err
	}
	return m.size()
}

func (d *Decoder) Timestamp(data []byte) (uint64, error) {
	m, err := Decode(data)
	if err != nil {
		return 0, err
	}
	if m.Timestamp == nil {
		return 0, ErrFieldNotPresent
	}
	return *m.Timestamp, nil
}

func (d *Decoder) FirmwareURI(data []byte) ([]byte, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return m.uri()
}

func (d *Decoder) FirmwareHash(data []byte) ([]byte, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return m.hash()
}
