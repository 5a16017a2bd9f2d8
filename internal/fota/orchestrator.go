/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/kentakayama/subdevice-fota/internal/domain/service"
	"github.com/rs/zerolog"
)

const (
	MethodDownloadAsset   = "download_asset"
	MethodManifestStatus  = "subdevice_manifest_status"
	CodeTransportFailure  = -1
	CodeMalformedResponse = -2
)

var ErrMalformedResponse = errors.New("download response has no filename")

type (
	DownloadSuccessFunc func(conn service.ConnectionID, filename string, code int64, userData any)
	// DownloadFailureFunc receives CodeTransportFailure or CodeMalformedResponse.
	DownloadFailureFunc func(conn service.ConnectionID, code int64, err error, userData any)
	StatusSuccessFunc   func(conn service.ConnectionID, response json.RawMessage, userData any)
	StatusFailureFunc   func(conn service.ConnectionID, err error, userData any)
)

type downloadResponse struct {
	Result *struct {
		Filename *string `json:"filename"`
		Error    int64   `json:"error"`
	} `json:"result"`
}

type downloadCallback struct {
	onSuccess DownloadSuccessFunc
	onFailure DownloadFailureFunc
	userData  any
}

func (d *downloadCallback) kind() CallbackKind {
	return CallbackDownload
}

func (d *downloadCallback) success(conn service.ConnectionID, response json.RawMessage) {
	var resp downloadResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		d.onFailure(conn, CodeMalformedResponse, fmt.Errorf("%w: %v", ErrMalformedResponse, err), d.userData)
		return
	}
	if resp.Result == nil || resp.Result.Filename == nil {
		d.onFailure(conn, CodeMalformedResponse, ErrMalformedResponse, d.userData)
		return
	}
	d.onSuccess(conn, *resp.Result.Filename, resp.Result.Error, d.userData)
}

func (d *downloadCallback) failure(conn service.ConnectionID, err error) {
	d.onFailure(conn, CodeTransportFailure, err, d.userData)
}

type statusCallback struct {
	deviceID  string
	logger    zerolog.Logger
	onSuccess StatusSuccessFunc
	onFailure StatusFailureFunc
	userData  any
}

func (s *statusCallback) kind() CallbackKind {
	return CallbackStatusReport
}

func (s *statusCallback) success(conn service.ConnectionID, response json.RawMessage) {
	s.logger.Debug().Str("device_id", s.deviceID).RawJSON("response", response).Msg("manifest status acknowledged")
	if s.onSuccess != nil {
		s.onSuccess(conn, response, s.userData)
	}
}

func (s *statusCallback) failure(conn service.ConnectionID, err error) {
	s.logger.Warn().Err(err).Str("device_id", s.deviceID).Msg("manifest status report failed")
	if s.onFailure != nil {
		s.onFailure(conn, err, s.userData)
	}
}

// RequestDownload asks the gateway core to fetch the firmware described by desc.
// A nil return means the request was sent and exactly one handler will run.
func (c *Client) RequestDownload(ctx context.Context, conn service.ConnectionID, deviceID string, desc *model.UpdateDescriptor, onSuccess DownloadSuccessFunc, onFailure DownloadFailureFunc, userData any) error {
	if desc == nil || desc.URL == "" || desc.Hash == "" || onSuccess == nil || onFailure == nil {
		return ErrInvalidParameters
	}

	msg, err := c.transport.NewRequest(MethodDownloadAsset)
	if err != nil {
		c.logger.Error().Err(err).Str("method", MethodDownloadAsset).Msg("failed to build request")
		return ErrAllocationFailure
	}
	if msg.Params == nil {
		msg.Params = make(map[string]any)
	}
	msg.Params["url"] = desc.URL
	msg.Params["size"] = desc.Size
	msg.Params["hash"] = desc.Hash
	msg.Params["device_id"] = deviceID

	cb, err := c.ledger.Allocate(conn, &downloadCallback{
		onSuccess: onSuccess,
		onFailure: onFailure,
		userData:  userData,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("method", MethodDownloadAsset).Str("device_id", deviceID).Msg("failed to allocate callback")
		return ErrAllocationFailure
	}
	return c.dispatch(ctx, conn, deviceID, msg, cb)
}

// ReportStatus sends the result code of a device flow. Both handlers are optional.
func (c *Client) ReportStatus(ctx context.Context, conn service.ConnectionID, deviceID string, code model.UpdateResult, onSuccess StatusSuccessFunc, onFailure StatusFailureFunc, userData any) error {
	if deviceID == "" {
		return ErrInvalidParameters
	}

	msg, err := c.transport.NewRequest(MethodManifestStatus)
	if err != nil {
		c.logger.Error().Err(err).Str("method", MethodManifestStatus).Msg("failed to build request")
		return ErrAllocationFailure
	}
	if msg.Params == nil {
		msg.Params = make(map[string]any)
	}
	msg.Params["error_manifest"] = FormatResultCode(int64(code))
	msg.Params["device_id"] = deviceID

	cb, err := c.ledger.Allocate(conn, &statusCallback{
		deviceID:  deviceID,
		logger:    c.logger,
		onSuccess: onSuccess,
		onFailure: onFailure,
		userData:  userData,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("method", MethodManifestStatus).Str("device_id", deviceID).Msg("failed to allocate callback")
		return ErrAllocationFailure
	}
	return c.dispatch(ctx, conn, deviceID, msg, cb)
}

func (c *Client) dispatch(ctx context.Context, conn service.ConnectionID, deviceID string, msg *service.Message, cb *PendingCallback) error {
	if err := c.transport.Dispatch(ctx, conn, msg, cb); err != nil {
		cb.Release()
		c.logger.Error().Err(err).
			Str("method", msg.Method).
			Str("request_id", msg.ID).
			Str("device_id", deviceID).
			Msg("failed to dispatch request")
		return fmt.Errorf("%w: %v", ErrTransportDispatch, err)
	}
	c.logger.Debug().
		Str("method", msg.Method).
		Str("request_id", msg.ID).
		Str("device_id", deviceID).
		Msg("request dispatched")
	return nil
}

// FormatResultCode renders a signed result code in decimal.
func FormatResultCode(code int64) string {
	return strconv.FormatInt(code, 10)
}
