/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kentakayama/subdevice-fota/internal/domain"
	"github.com/kentakayama/subdevice-fota/internal/domain/model"
)

type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository creates a new instance of DeviceRepository.
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

func (r *DeviceRepository) FindByName(ctx context.Context, name string) (*model.Device, error) {
	const query = `
		SELECT id, name, feature_flags, created_at
		FROM devices
		WHERE name = ?
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query, name)
	var d model.Device
	if err := row.Scan(&d.ID, &d.Name, &d.FeatureFlags, &d.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	return &d, nil
}

func (r *DeviceRepository) Create(ctx context.Context, d *model.Device) (int64, error) {
	const query = `
		INSERT INTO devices (name, feature_flags, created_at)
		VALUES (?, ?, ?)
	`
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx, query, d.Name, d.FeatureFlags, d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.ErrDuplicate
		}
		return 0, err
	}
	id, err := result.LastInsertId()
	if err == nil {
		d.ID = id
	}
	return id, err
}

func (r *DeviceRepository) List(ctx context.Context) ([]model.Device, error) {
	const query = `
		SELECT id, name, feature_flags, created_at
		FROM devices
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		var d model.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.FeatureFlags, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
