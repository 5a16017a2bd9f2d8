/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fota

import (
	"context"
	"errors"
	"testing"

	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFlowRepository struct {
	mock.Mock
}

func (m *mockFlowRepository) Create(ctx context.Context, ev *model.FlowEvent) (int64, error) {
	args := m.Called(ctx, ev)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockFlowRepository) ListByDevice(ctx context.Context, deviceID string) ([]model.FlowEvent, error) {
	args := m.Called(ctx, deviceID)
	return args.Get(0).([]model.FlowEvent), args.Error(1)
}

func TestHistory(t *testing.T) {
	repo := &mockFlowRepository{}
	repo.On("Create", mock.Anything, mock.MatchedBy(func(ev *model.FlowEvent) bool {
		return ev.DeviceID == "dev-1" && ev.State == model.FlowValidated && !ev.CreatedAt.IsZero()
	})).Return(int64(1), nil).Once()
	repo.On("Create", mock.Anything, mock.Anything).Return(int64(0), errors.New("disk full")).Once()
	repo.On("ListByDevice", mock.Anything, "dev-1").Return([]model.FlowEvent{{DeviceID: "dev-1"}}, nil)

	h := NewHistory(repo, zerolog.Nop())
	h.Observe(context.Background(), model.FlowEvent{DeviceID: "dev-1", State: model.FlowValidated})
	// errors are logged, not returned
	h.Observe(context.Background(), model.FlowEvent{DeviceID: "dev-1", State: model.FlowRejected})

	events, err := h.List(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	repo.AssertExpectations(t)
}
