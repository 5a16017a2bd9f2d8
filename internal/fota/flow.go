/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fota

import (
	"context"
	"errors"

	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/kentakayama/subdevice-fota/internal/domain/service"
	"github.com/kentakayama/subdevice-fota/internal/util"
	"github.com/rs/zerolog"
)

// HandleManifest runs the update flow of a device for a received manifest:
// validation, the download request and the final status report.
// A rejected manifest is reported to the gateway core and its
// *RejectionError returned. Download results arrive asynchronously.
func (c *Client) HandleManifest(ctx context.Context, conn service.ConnectionID, deviceID string, manifest []byte) error {
	if deviceID == "" || len(manifest) == 0 {
		return ErrInvalidParameters
	}
	if err := c.requireProvisioned(ctx, deviceID); err != nil {
		return err
	}
	if err := c.begin(deviceID); err != nil {
		return err
	}
	// callbacks outlive the caller
	ctx = context.WithoutCancel(ctx)

	if err := c.step(ctx, deviceID, model.FlowManifestReceived, model.ResultUninitialized, ""); err != nil {
		c.finish(deviceID)
		return err
	}
	if c.logger.GetLevel() <= zerolog.TraceLevel {
		if diag, err := util.DiagnoseCBOR(manifest); err == nil {
			c.logger.Trace().Str("device_id", deviceID).Msg("manifest:\n" + diag)
		}
	}

	desc, err := c.Validate(manifest)
	if err != nil {
		var rej *RejectionError
		if !errors.As(err, &rej) {
			c.finish(deviceID)
			return err
		}
		c.logger.Info().Err(err).Str("device_id", deviceID).Msg("manifest rejected")
		_ = c.step(ctx, deviceID, model.FlowRejected, rej.Reason.Result(), rej.Error())
		c.report(ctx, conn, deviceID, rej.Reason.Result())
		return err
	}
	_ = c.step(ctx, deviceID, model.FlowValidated, model.ResultUninitialized, desc.URL)

	// the response may be delivered before RequestDownload returns
	_ = c.step(ctx, deviceID, model.FlowDownloadRequested, model.ResultUninitialized, desc.URL)
	err = c.RequestDownload(ctx, conn, deviceID, desc,
		func(conn service.ConnectionID, filename string, code int64, _ any) {
			c.downloadDone(ctx, conn, deviceID, desc, filename, code)
		},
		func(conn service.ConnectionID, code int64, err error, _ any) {
			c.downloadFailed(ctx, conn, deviceID, code, err)
		},
		nil,
	)
	if err != nil {
		result := model.ResultDownloadFailed
		if errors.Is(err, ErrAllocationFailure) {
			result = model.ResultAllocationFailure
		}
		_ = c.step(ctx, deviceID, model.FlowDownloadFailed, result, err.Error())
		c.report(ctx, conn, deviceID, result)
		return err
	}
	return nil
}

// ManifestWriteHandler adapts HandleManifest to a write callback on the
// manifest payload resource of connection conn.
func (c *Client) ManifestWriteHandler(conn service.ConnectionID) service.WriteHandler {
	return func(ctx context.Context, deviceID string, path model.ResourcePath, value []byte) {
		if err := c.HandleManifest(ctx, conn, deviceID, value); err != nil {
			c.logger.Warn().Err(err).Str("device_id", deviceID).Stringer("path", path).Msg("manifest write not processed")
		}
	}
}

func (c *Client) downloadDone(ctx context.Context, conn service.ConnectionID, deviceID string, desc *model.UpdateDescriptor, filename string, code int64) {
	if code != 0 {
		c.logger.Warn().Str("device_id", deviceID).Int64("error", code).Msg("gateway reported download error")
		_ = c.step(ctx, deviceID, model.FlowDownloadFailed, model.ResultDownloadFailed, filename)
		c.report(ctx, conn, deviceID, model.ResultDownloadFailed)
		return
	}
	c.logger.Info().Str("device_id", deviceID).Str("filename", filename).Msg("firmware downloaded")
	_ = c.step(ctx, deviceID, model.FlowDownloadComplete, model.ResultSuccess, filename)
	if err := c.UpdateResources(ctx, deviceID, desc.Hash, desc.Version); err != nil {
		c.logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to update firmware resources")
	}
	c.report(ctx, conn, deviceID, model.ResultSuccess)
}

func (c *Client) downloadFailed(ctx context.Context, conn service.ConnectionID, deviceID string, code int64, err error) {
	result := model.ResultDownloadFailed
	if code == CodeMalformedResponse {
		result = model.ResultMalformedResponse
	}
	c.logger.Warn().Err(err).Str("device_id", deviceID).Int64("code", code).Msg("firmware download failed")
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	_ = c.step(ctx, deviceID, model.FlowDownloadFailed, result, detail)
	c.report(ctx, conn, deviceID, result)
}

// report sends the final result and ends the flow.
func (c *Client) report(ctx context.Context, conn service.ConnectionID, deviceID string, result model.UpdateResult) {
	defer c.finish(deviceID)
	if err := c.ReportStatus(ctx, conn, deviceID, result, nil, nil, nil); err != nil {
		c.logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to report manifest status")
		return
	}
	if c.FlowState(deviceID).Terminal() {
		return
	}
	_ = c.step(ctx, deviceID, model.FlowStatusReported, result, "")
}

// step transitions the flow and mirrors it into the device resources.
func (c *Client) step(ctx context.Context, deviceID string, next model.FlowState, result model.UpdateResult, detail string) error {
	if err := c.transition(ctx, deviceID, next, result, detail); err != nil {
		c.logger.Error().Err(err).Str("device_id", deviceID).Str("state", string(next)).Msg("flow transition refused")
		return err
	}
	if err := c.SetUpdateState(ctx, deviceID, next, result); err != nil {
		c.logger.Warn().Err(err).Str("device_id", deviceID).Msg("failed to write update state")
	}
	return nil
}

// begin marks a flow as in flight. A finished flow restarts from provisioned.
func (c *Client) begin(deviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight.Has(deviceID) {
		return ErrFlowInProgress
	}
	c.inFlight.Add(deviceID)
	c.states[deviceID] = model.FlowProvisioned
	return nil
}

func (c *Client) finish(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight.Remove(deviceID)
}
