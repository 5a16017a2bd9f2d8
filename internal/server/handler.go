/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kentakayama/subdevice-fota/internal/domain"
	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/kentakayama/subdevice-fota/internal/domain/service"
	"github.com/kentakayama/subdevice-fota/internal/fota"
	"github.com/rs/zerolog"
)

const (
	maxRequestBodyBytes = 64 << 10 // manifests are small
)

// Engine is the part of the firmware update engine exposed over HTTP.
type Engine interface {
	Provision(ctx context.Context, deviceID string, onManifest service.WriteHandler) error
	HandleManifest(ctx context.Context, conn service.ConnectionID, deviceID string, manifest []byte) error
	ManifestWriteHandler(conn service.ConnectionID) service.WriteHandler
	FlowState(deviceID string) model.FlowState
	InFlight(deviceID string) bool
}

type DeviceStore interface {
	RegisterDevice(ctx context.Context, name string, flags model.FeatureFlags) (*model.Device, error)
	Devices(ctx context.Context) ([]model.Device, error)
	Resources(ctx context.Context, name string) ([]model.ResourceValue, error)
}

type FlowHistory interface {
	List(ctx context.Context, deviceID string) ([]model.FlowEvent, error)
}

var manifestContentTypes = map[string]bool{
	"application/cose":         true,
	"application/cbor":         true,
	"application/octet-stream": true,
}

type handler struct {
	engine  Engine
	store   DeviceStore
	history FlowHistory
	conn    service.ConnectionID
	logger  zerolog.Logger
}

type responseSpec struct {
	status      int
	body        []byte
	contentType string
}

func newHandler(engine Engine, store DeviceStore, history FlowHistory, conn service.ConnectionID, logger zerolog.Logger) *handler {
	return &handler{
		engine:  engine,
		store:   store,
		history: history,
		conn:    conn,
		logger:  logger,
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        []byte("OK"),
		contentType: "text/plain",
	})
}

type deviceRequest struct {
	DeviceID     string `json:"device_id"`
	FeatureFlags uint32 `json:"feature_flags"`
}

type deviceView struct {
	DeviceID     string    `json:"device_id"`
	FeatureFlags uint32    `json:"feature_flags"`
	FlowState    string    `json:"flow_state"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *handler) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.store.Devices(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list devices")
		h.writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	out := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, h.view(&d))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *handler) registerDevice(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var req deviceRequest
	if err := json.Unmarshal(body, &req); err != nil || req.DeviceID == "" {
		h.writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	d, err := h.store.RegisterDevice(r.Context(), req.DeviceID, model.FeatureFlags(req.FeatureFlags))
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			h.writeError(w, http.StatusConflict, "device already registered")
			return
		}
		h.logger.Error().Err(err).Str("device_id", req.DeviceID).Msg("failed to register device")
		h.writeError(w, http.StatusInternalServerError, "failed to register device")
		return
	}
	h.logger.Info().Str("device_id", d.Name).Uint32("feature_flags", uint32(d.FeatureFlags)).Msg("device registered")
	h.writeJSON(w, http.StatusCreated, h.view(d))
}

func (h *handler) provision(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	err := h.engine.Provision(r.Context(), deviceID, h.engine.ManifestWriteHandler(h.conn))
	if err != nil {
		h.writeEngineError(w, deviceID, err)
		return
	}
	h.writeResponse(w, responseSpec{status: http.StatusNoContent})
}

func (h *handler) uploadManifest(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	// check the content
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !manifestContentTypes[mediaType] {
		h.logger.Warn().Str("content_type", r.Header.Get("Content-Type")).Msg("content type mismatch")
		h.writeError(w, http.StatusUnsupportedMediaType, "this endpoint only accepts application/cose or application/cbor")
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if err := h.engine.HandleManifest(r.Context(), h.conn, deviceID, body); err != nil {
		h.writeEngineError(w, deviceID, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"device_id":  deviceID,
		"flow_state": string(h.engine.FlowState(deviceID)),
	})
}

type flowView struct {
	DeviceID string      `json:"device_id"`
	State    string      `json:"state"`
	InFlight bool        `json:"in_flight"`
	Events   []eventView `json:"events"`
}

type eventView struct {
	State     string    `json:"state"`
	Result    int64     `json:"result"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *handler) flow(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	out := flowView{
		DeviceID: deviceID,
		State:    string(h.engine.FlowState(deviceID)),
		InFlight: h.engine.InFlight(deviceID),
		Events:   []eventView{},
	}
	if h.history != nil {
		events, err := h.history.List(r.Context(), deviceID)
		if err != nil {
			h.logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to list flow events")
			h.writeError(w, http.StatusInternalServerError, "failed to list flow events")
			return
		}
		for _, ev := range events {
			out.Events = append(out.Events, eventView{
				State:     string(ev.State),
				Result:    int64(ev.Result),
				Detail:    ev.Detail,
				CreatedAt: ev.CreatedAt,
			})
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

type resourceView struct {
	Path  string `json:"path"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

func (h *handler) resources(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	values, err := h.store.Resources(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "device not found")
			return
		}
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("failed to list resources")
		h.writeError(w, http.StatusInternalServerError, "failed to list resources")
		return
	}
	out := make([]resourceView, 0, len(values))
	for _, v := range values {
		rv := resourceView{Path: v.Path.String(), Type: v.Type.String(), Value: string(v.Value)}
		if v.Type == model.ResourceTypeInteger {
			if n, err := model.DecodeInteger(v.Value); err == nil {
				rv.Value = n
			}
		}
		out = append(out, rv)
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *handler) view(d *model.Device) deviceView {
	return deviceView{
		DeviceID:     d.Name,
		FeatureFlags: uint32(d.FeatureFlags),
		FlowState:    string(h.engine.FlowState(d.Name)),
		CreatedAt:    d.CreatedAt,
	}
}

func (h *handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed reading request body")
		h.writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	if err := r.Body.Close(); err != nil {
		h.logger.Warn().Err(err).Msg("failed closing request body")
		h.writeError(w, http.StatusBadRequest, "failed to close request body")
		return nil, false
	}
	return body, true
}

func (h *handler) writeEngineError(w http.ResponseWriter, deviceID string, err error) {
	var rej *fota.RejectionError
	switch {
	case errors.As(err, &rej):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  rej.Error(),
			"reason": rej.Reason.String(),
			"result": int64(rej.Reason.Result()),
		})
	case errors.Is(err, fota.ErrInvalidParameters):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fota.ErrInvalidDevice):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, fota.ErrFeatureDisabled),
		errors.Is(err, fota.ErrAlreadyProvisioned),
		errors.Is(err, fota.ErrNotProvisioned),
		errors.Is(err, fota.ErrFlowInProgress):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, fota.ErrAllocationFailure):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, fota.ErrTransportDispatch):
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("request failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
		h.writeResponse(w, responseSpec{status: http.StatusInternalServerError})
		return
	}
	h.writeResponse(w, responseSpec{
		status:      status,
		body:        body,
		contentType: "application/json",
	})
}

func (h *handler) writeResponse(w http.ResponseWriter, spec responseSpec) {
	if len(spec.body) > 0 {
		for k, v := range defaultHeaders {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", spec.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(spec.body)))
		w.WriteHeader(spec.status)
		if _, err := w.Write(spec.body); err != nil {
			h.logger.Warn().Err(err).Msg("failed writing response body")
		}
		return
	}

	w.WriteHeader(spec.status)
}

var defaultHeaders = map[string]string{
	"Cache-Control":           "no-store",
	"X-Content-Type-Options":  "nosniff",
	"Content-Security-Policy": "default-src 'none'",
	"Referrer-Policy":         "no-referrer",
}
