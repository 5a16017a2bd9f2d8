/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kentakayama/subdevice-fota/internal/config"
	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const defaultSubjectPrefix = "fota.flow"

type publishConn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends every flow transition to NATS on <prefix>.<device_id>.
type Publisher struct {
	nc     publishConn
	closer func()
	prefix string
	logger zerolog.Logger
}

type flowMessage struct {
	DeviceID string    `json:"device_id"`
	State    string    `json:"state"`
	Result   int64     `json:"result"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

func NewPublisher(cfg config.EventsConfig, logger zerolog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("subdevice-fota"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	p := newPublisher(nc, cfg.SubjectPrefix, logger)
	p.closer = func() {
		_ = nc.Drain()
		nc.Close()
	}
	return p, nil
}

func newPublisher(nc publishConn, prefix string, logger zerolog.Logger) *Publisher {
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger}
}

func (p *Publisher) Subject(deviceID string) string {
	return p.prefix + "." + deviceID
}

// Observe publishes ev. Failures are logged; the flow never waits on NATS.
func (p *Publisher) Observe(_ context.Context, ev model.FlowEvent) {
	at := ev.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	payload, err := json.Marshal(flowMessage{
		DeviceID: ev.DeviceID,
		State:    string(ev.State),
		Result:   int64(ev.Result),
		Detail:   ev.Detail,
		At:       at,
	})
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to encode flow event")
		return
	}
	if err := p.nc.Publish(p.Subject(ev.DeviceID), payload); err != nil {
		p.logger.Warn().Err(err).Str("device_id", ev.DeviceID).Msg("failed to publish flow event")
	}
}

func (p *Publisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}
