/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/kentakayama/subdevice-fota/internal/domain"
	"github.com/kentakayama/subdevice-fota/internal/domain/model"
)

// FlowEventRepository stores flow events keyed by device name.
type FlowEventRepository struct {
	db *sql.DB
}

func NewFlowEventRepository(db *sql.DB) *FlowEventRepository {
	return &FlowEventRepository{db: db}
}

func (r *FlowEventRepository) Create(ctx context.Context, ev *model.FlowEvent) (int64, error) {
	const query = `
		INSERT INTO flow_events (device_id, state, result, detail, created_at)
		SELECT id, ?, ?, ?, ?
		FROM devices
		WHERE name = ?
	`
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx, query, string(ev.State), int64(ev.Result), ev.Detail, ev.CreatedAt, ev.DeviceID)
	if err != nil {
		return 0, err
	}
	if n, err := result.RowsAffected(); err != nil {
		return 0, err
	} else if n == 0 {
		return 0, domain.ErrNotFound
	}
	id, err := result.LastInsertId()
	if err == nil {
		ev.ID = id
	}
	return id, err
}

func (r *FlowEventRepository) ListByDevice(ctx context.Context, name string) ([]model.FlowEvent, error) {
	const query = `
		SELECT e.id, d.name, e.state, e.result, e.detail, e.created_at
		FROM flow_events e
		JOIN devices d ON d.id = e.device_id
		WHERE d.name = ?
		ORDER BY e.id
	`
	rows, err := r.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FlowEvent
	for rows.Next() {
		var ev model.FlowEvent
		var state string
		var result int64
		if err := rows.Scan(&ev.ID, &ev.DeviceID, &state, &result, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.State = model.FlowState(state)
		ev.Result = model.UpdateResult(result)
		out = append(out, ev)
	}
	return out, rows.Err()
}
