/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/kentakayama/subdevice-fota/internal/domain"
	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/kentakayama/subdevice-fota/internal/domain/service"
)

var ErrNotWritable = errors.New("resource is not writable")

type callbackKey struct {
	device string
	path   model.ResourcePath
}

// ResourceStore implements service.ResourceStore on top of the repositories.
// Write callbacks live in memory only and must be registered again after a restart.
type ResourceStore struct {
	devices   *DeviceRepository
	resources *ResourceRepository

	mu        sync.RWMutex
	callbacks map[callbackKey]service.WriteHandler
}

func NewResourceStore(db *sql.DB) *ResourceStore {
	return &ResourceStore{
		devices:   NewDeviceRepository(db),
		resources: NewResourceRepository(db),
		callbacks: make(map[callbackKey]service.WriteHandler),
	}
}

// RegisterDevice adds a subdevice; an existing name yields domain.ErrDuplicate.
func (s *ResourceStore) RegisterDevice(ctx context.Context, name string, flags model.FeatureFlags) (*model.Device, error) {
	d := &model.Device{Name: name, FeatureFlags: flags}
	if _, err := s.devices.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *ResourceStore) Device(ctx context.Context, name string) (*model.Device, error) {
	return s.devices.FindByName(ctx, name)
}

func (s *ResourceStore) Devices(ctx context.Context) ([]model.Device, error) {
	return s.devices.List(ctx)
}

func (s *ResourceStore) DeviceExists(ctx context.Context, name string) (bool, error) {
	_, err := s.devices.FindByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *ResourceStore) FeatureFlags(ctx context.Context, name string) (model.FeatureFlags, error) {
	d, err := s.devices.FindByName(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to find device %q: %w", name, err)
	}
	return d.FeatureFlags, nil
}

func (s *ResourceStore) ResourceExists(ctx context.Context, name string, path model.ResourcePath) (bool, error) {
	d, err := s.devices.FindByName(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to find device %q: %w", name, err)
	}
	return s.resources.Exists(ctx, d.ID, path)
}

func (s *ResourceStore) AddResource(ctx context.Context, name string, path model.ResourcePath, typ model.ResourceType, ops model.Operation, value []byte) error {
	d, err := s.devices.FindByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to find device %q: %w", name, err)
	}
	_, err = s.resources.Create(ctx, &model.ResourceValue{
		DeviceID:   d.ID,
		Path:       path,
		Type:       typ,
		Operations: ops,
		Value:      bytes.Clone(value),
	})
	if err != nil {
		return fmt.Errorf("failed to create resource %s: %w", path, err)
	}
	return nil
}

func (s *ResourceStore) AddResourceWithCallback(ctx context.Context, name string, path model.ResourcePath, typ model.ResourceType, ops model.Operation, value []byte, onWrite service.WriteHandler) error {
	if err := s.AddResource(ctx, name, path, typ, ops, value); err != nil {
		return err
	}
	if onWrite != nil {
		s.mu.Lock()
		s.callbacks[callbackKey{name, path}] = onWrite
		s.mu.Unlock()
	}
	return nil
}

// SetWriteCallback attaches onWrite to an existing resource; a nil handler
// removes it. Callbacks are not persisted, so they are attached again on startup.
func (s *ResourceStore) SetWriteCallback(ctx context.Context, name string, path model.ResourcePath, onWrite service.WriteHandler) error {
	ok, err := s.ResourceExists(ctx, name, path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("resource %s of %q: %w", path, name, domain.ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := callbackKey{name, path}
	if onWrite == nil {
		delete(s.callbacks, key)
		return nil
	}
	s.callbacks[key] = onWrite
	return nil
}

func (s *ResourceStore) SetResourceValue(ctx context.Context, name string, path model.ResourcePath, value []byte) error {
	d, err := s.devices.FindByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to find device %q: %w", name, err)
	}
	if err := s.resources.UpdateValue(ctx, d.ID, path, bytes.Clone(value)); err != nil {
		return fmt.Errorf("failed to set resource %s: %w", path, err)
	}
	return nil
}

func (s *ResourceStore) Value(ctx context.Context, name string, path model.ResourcePath) ([]byte, error) {
	d, err := s.devices.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	v, err := s.resources.Find(ctx, d.ID, path)
	if err != nil {
		return nil, err
	}
	return v.Value, nil
}

func (s *ResourceStore) Resources(ctx context.Context, name string) ([]model.ResourceValue, error) {
	d, err := s.devices.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.resources.ListByDevice(ctx, d.ID)
}

// Write applies a write coming from the gateway core and then runs the
// callback registered for the resource, if any.
func (s *ResourceStore) Write(ctx context.Context, name string, path model.ResourcePath, value []byte) error {
	d, err := s.devices.FindByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to find device %q: %w", name, err)
	}
	res, err := s.resources.Find(ctx, d.ID, path)
	if err != nil {
		return fmt.Errorf("failed to find resource %s: %w", path, err)
	}
	if res.Operations&(model.OperationWrite|model.OperationExecute) == 0 {
		return ErrNotWritable
	}
	if err := s.resources.UpdateValue(ctx, d.ID, path, bytes.Clone(value)); err != nil {
		return fmt.Errorf("failed to set resource %s: %w", path, err)
	}

	s.mu.RLock()
	onWrite := s.callbacks[callbackKey{name, path}]
	s.mu.RUnlock()
	if onWrite != nil {
		onWrite(ctx, name, path, bytes.Clone(value))
	}
	return nil
}
