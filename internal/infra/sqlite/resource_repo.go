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

type ResourceRepository struct {
	db *sql.DB
}

func NewResourceRepository(db *sql.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

// Create inserts a resource; an existing path yields domain.ErrDuplicate.
func (r *ResourceRepository) Create(ctx context.Context, v *model.ResourceValue) (int64, error) {
	const query = `
		INSERT INTO resources (device_id, object_id, instance_id, resource_id, type, operations, value, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now().UTC()
	}
	value := v.Value
	if value == nil {
		value = []byte{}
	}
	result, err := r.db.ExecContext(ctx, query,
		v.DeviceID, v.Path.Object, v.Path.Instance, v.Path.Resource,
		v.Type, v.Operations, value, v.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.ErrDuplicate
		}
		return 0, err
	}
	return result.LastInsertId()
}

func (r *ResourceRepository) Find(ctx context.Context, deviceID int64, path model.ResourcePath) (*model.ResourceValue, error) {
	const query = `
		SELECT id, device_id, object_id, instance_id, resource_id, type, operations, value, updated_at
		FROM resources
		WHERE device_id = ? AND object_id = ? AND instance_id = ? AND resource_id = ?
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query, deviceID, path.Object, path.Instance, path.Resource)
	v, err := scanResource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

func (r *ResourceRepository) Exists(ctx context.Context, deviceID int64, path model.ResourcePath) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM resources
			WHERE device_id = ? AND object_id = ? AND instance_id = ? AND resource_id = ?
		)
	`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, deviceID, path.Object, path.Instance, path.Resource).Scan(&exists)
	return exists, err
}

func (r *ResourceRepository) UpdateValue(ctx context.Context, deviceID int64, path model.ResourcePath, value []byte) error {
	const query = `
		UPDATE resources
		SET value = ?, updated_at = ?
		WHERE device_id = ? AND object_id = ? AND instance_id = ? AND resource_id = ?
	`
	if value == nil {
		value = []byte{}
	}
	result, err := r.db.ExecContext(ctx, query, value, time.Now().UTC(), deviceID, path.Object, path.Instance, path.Resource)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ResourceRepository) ListByDevice(ctx context.Context, deviceID int64) ([]model.ResourceValue, error) {
	const query = `
		SELECT id, device_id, object_id, instance_id, resource_id, type, operations, value, updated_at
		FROM resources
		WHERE device_id = ?
		ORDER BY object_id, instance_id, resource_id
	`
	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ResourceValue
	for rows.Next() {
		v, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(s scanner) (*model.ResourceValue, error) {
	var v model.ResourceValue
	if err := s.Scan(&v.ID, &v.DeviceID, &v.Path.Object, &v.Path.Instance, &v.Path.Resource,
		&v.Type, &v.Operations, &v.Value, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}
