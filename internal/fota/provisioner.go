/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fota

import (
	"context"
	"fmt"

	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/kentakayama/subdevice-fota/internal/domain/service"
)

const (
	DefaultProtocolVersion = 3
	unsetBootHash          = "INVALID"
)

func (c *Client) defaultValue(r model.Resource) []byte {
	switch r {
	case model.ResourceManifestPayload:
		return []byte{}
	case model.ResourceManifestState, model.ResourceManifestResult:
		return model.EncodeInteger(-1)
	case model.ResourceManifestHash, model.ResourceManifestVersion:
		return []byte("0")
	case model.ResourceProtocolVersion:
		return model.EncodeInteger(DefaultProtocolVersion)
	case model.ResourceBootHash, model.ResourceOEMBootHash:
		return []byte(unsetBootHash)
	case model.ResourceVendorID:
		return []byte(c.identity.VendorID)
	case model.ResourceClassID:
		return []byte(c.identity.ClassID)
	}
	return nil
}

// Provision creates the firmware update resources of a device.
// Resources created before a failing one are left in place; a retry then
// fails with ErrAlreadyProvisioned because the payload resource comes first.
func (c *Client) Provision(ctx context.Context, deviceID string, onManifest service.WriteHandler) error {
	if deviceID == "" {
		return ErrInvalidParameters
	}
	exists, err := c.store.DeviceExists(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to look up device: %w", err)
	}
	if !exists {
		return ErrInvalidDevice
	}
	flags, err := c.store.FeatureFlags(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to get feature flags: %w", err)
	}
	if !flags.Has(model.FeatureFirmwareUpdate) {
		return ErrFeatureDisabled
	}
	provisioned, err := c.store.ResourceExists(ctx, deviceID, model.ResourceManifestPayload.Path())
	if err != nil {
		return fmt.Errorf("failed to check resource: %w", err)
	}
	if provisioned {
		return ErrAlreadyProvisioned
	}

	for _, r := range model.AllResources() {
		value := c.defaultValue(r)
		if r == model.ResourceManifestPayload {
			if onManifest == nil {
				c.logger.Warn().Str("device_id", deviceID).Msg("no manifest handler given, manifest writes will not be processed")
			}
			err = c.store.AddResourceWithCallback(ctx, deviceID, r.Path(), r.Type(), r.Operations(), value, onManifest)
		} else {
			err = c.store.AddResource(ctx, deviceID, r.Path(), r.Type(), r.Operations(), value)
		}
		if err != nil {
			return fmt.Errorf("failed to add resource %s %s: %w", r, r.Path(), err)
		}
	}

	c.logger.Info().Str("device_id", deviceID).Msg("firmware update resources provisioned")
	if err := c.transition(ctx, deviceID, model.FlowProvisioned, model.ResultUninitialized, ""); err != nil {
		c.logger.Warn().Err(err).Str("device_id", deviceID).Msg("unexpected flow state")
	}
	return nil
}

// UpdateResources publishes the hash and version of the installed firmware.
func (c *Client) UpdateResources(ctx context.Context, deviceID, hash, version string) error {
	if deviceID == "" || hash == "" || version == "" {
		return ErrInvalidParameters
	}
	if err := c.requireProvisioned(ctx, deviceID); err != nil {
		return err
	}
	if err := c.store.SetResourceValue(ctx, deviceID, model.ResourceManifestHash.Path(), []byte(hash)); err != nil {
		return fmt.Errorf("failed to set manifest hash: %w", err)
	}
	if err := c.store.SetResourceValue(ctx, deviceID, model.ResourceManifestVersion.Path(), []byte(version)); err != nil {
		return fmt.Errorf("failed to set manifest version: %w", err)
	}
	return nil
}

// SetUpdateState writes the flow state and result resources of a device.
func (c *Client) SetUpdateState(ctx context.Context, deviceID string, state model.FlowState, result model.UpdateResult) error {
	if deviceID == "" {
		return ErrInvalidParameters
	}
	if err := c.store.SetResourceValue(ctx, deviceID, model.ResourceManifestState.Path(), model.EncodeInteger(state.Code())); err != nil {
		return fmt.Errorf("failed to set manifest state: %w", err)
	}
	if err := c.store.SetResourceValue(ctx, deviceID, model.ResourceManifestResult.Path(), model.EncodeInteger(int64(result))); err != nil {
		return fmt.Errorf("failed to set manifest result: %w", err)
	}
	return nil
}

// Reattach restores the manifest write callback of a device provisioned by an
// earlier process and marks its flow as provisioned. A flow that was in flight
// when the process stopped is not resumed.
func (c *Client) Reattach(ctx context.Context, deviceID string, onManifest service.WriteHandler) error {
	if deviceID == "" || onManifest == nil {
		return ErrInvalidParameters
	}
	if err := c.requireProvisioned(ctx, deviceID); err != nil {
		return err
	}
	if err := c.store.SetWriteCallback(ctx, deviceID, model.ResourceManifestPayload.Path(), onManifest); err != nil {
		return fmt.Errorf("failed to attach manifest handler: %w", err)
	}

	c.mu.Lock()
	if _, ok := c.states[deviceID]; !ok {
		c.states[deviceID] = model.FlowProvisioned
	}
	c.mu.Unlock()

	c.logger.Info().Str("device_id", deviceID).Msg("manifest handler reattached")
	return nil
}

func (c *Client) requireProvisioned(ctx context.Context, deviceID string) error {
	ok, err := c.store.ResourceExists(ctx, deviceID, model.ResourceManifestPayload.Path())
	if err != nil {
		return fmt.Errorf("failed to check resource: %w", err)
	}
	if !ok {
		return ErrNotProvisioned
	}
	return nil
}
