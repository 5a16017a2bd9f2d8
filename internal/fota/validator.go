/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fota

import (
	"bytes"
	"encoding/hex"
	"strconv"

	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/kentakayama/subdevice-fota/internal/domain/service"
	"github.com/rs/zerolog"
)

const (
	MaxURLLength  = 256
	MaxHashLength = 64 // binary; the hex form is twice as long
)

// Identity is the vendor and class a manifest must target.
type Identity struct {
	VendorID string
	ClassID  string
}

// ValidateManifest checks the manifest identity and extracts an UpdateDescriptor.
// On rejection the returned error is a *RejectionError and no descriptor is produced.
func ValidateManifest(accessor service.ManifestAccessor, manifest []byte, identity Identity, logger zerolog.Logger) (*model.UpdateDescriptor, error) {
	if accessor == nil || len(manifest) == 0 {
		return nil, ErrInvalidParameters
	}

	vendor, err := accessor.VendorGUID(manifest)
	if err != nil {
		logger.Warn().Err(err).Msg("could not read vendor id from manifest")
		vendor = nil
	}
	// an empty id counts as absent
	if len(vendor) > 0 && !bytes.Equal(vendor, []byte(identity.VendorID)) {
		return nil, &RejectionError{Reason: model.ReasonWrongVendorID}
	}

	class, err := accessor.ClassGUID(manifest)
	if err != nil {
		logger.Warn().Err(err).Msg("could not read class id from manifest")
		class = nil
	}
	if len(class) > 0 && !bytes.Equal(class, []byte(identity.ClassID)) {
		return nil, &RejectionError{Reason: model.ReasonWrongClassID}
	}

	size, err := accessor.FirmwareSize(manifest)
	if err != nil {
		return nil, missing(model.FieldSize, err)
	}

	timestamp, err := accessor.Timestamp(manifest)
	if err != nil {
		return nil, missing(model.FieldTimestamp, err)
	}

	uri, err := accessor.FirmwareURI(manifest)
	if err != nil {
		return nil, missing(model.FieldURI, err)
	}
	if len(uri) == 0 {
		return nil, missing(model.FieldURI, nil)
	}
	if len(uri) > MaxURLLength {
		return nil, &RejectionError{Reason: model.ReasonFieldOversized, Field: model.FieldURI}
	}

	hash, err := accessor.FirmwareHash(manifest)
	if err != nil {
		return nil, missing(model.FieldHash, err)
	}
	if len(hash) == 0 {
		return nil, missing(model.FieldHash, nil)
	}
	if len(hash) > MaxHashLength {
		return nil, &RejectionError{Reason: model.ReasonFieldOversized, Field: model.FieldHash}
	}

	return &model.UpdateDescriptor{
		Size:    size,
		Version: strconv.FormatUint(timestamp, 10),
		URL:     string(uri),
		Hash:    hex.EncodeToString(hash),
	}, nil
}

func missing(field model.ManifestField, err error) *RejectionError {
	return &RejectionError{Reason: model.ReasonFieldMissing, Field: field, Err: err}
}
