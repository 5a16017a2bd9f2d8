/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fota

import (
	"context"
	"time"

	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/kentakayama/subdevice-fota/internal/domain/service"
	"github.com/rs/zerolog"
)

// History persists flow transitions to a FlowRepository.
type History struct {
	repo   service.FlowRepository
	logger zerolog.Logger
}

func NewHistory(repo service.FlowRepository, logger zerolog.Logger) *History {
	return &History{repo: repo, logger: logger}
}

func (h *History) Observe(ctx context.Context, ev model.FlowEvent) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if _, err := h.repo.Create(ctx, &ev); err != nil {
		h.logger.Error().Err(err).Str("device_id", ev.DeviceID).Str("state", string(ev.State)).Msg("failed to record flow event")
	}
}

func (h *History) List(ctx context.Context, deviceID string) ([]model.FlowEvent, error) {
	return h.repo.ListByDevice(ctx, deviceID)
}
