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
	"sync"

	"github.com/kentakayama/subdevice-fota/internal/domain/model"
	"github.com/kentakayama/subdevice-fota/internal/domain/service"
	"github.com/stretchr/testify/mock"
)

var testIdentity = Identity{VendorID: "SUBDEVICE-VENDOR", ClassID: "SUBDEVICE-_CLASS"}

type mockAccessor struct {
	mock.Mock
}

func bytesArg(args mock.Arguments, i int) []byte {
	if v := args.Get(i); v != nil {
		return v.([]byte)
	}
	return nil
}

func (m *mockAccessor) VendorGUID(b []byte) ([]byte, error) {
	args := m.Called(b)
	return bytesArg(args, 0), args.Error(1)
}

func (m *mockAccessor) ClassGUID(b []byte) ([]byte, error) {
	args := m.Called(b)
	return bytesArg(args, 0), args.Error(1)
}

func (m *mockAccessor) FirmwareSize(b []byte) (uint32, error) {
	args := m.Called(b)
	return args.Get(0).(uint32), args.Error(1)
}

func (m *mockAccessor) Timestamp(b []byte) (uint64, error) {
	args := m.Called(b)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockAccessor) FirmwareURI(b []byte) ([]byte, error) {
	args := m.Called(b)
	return bytesArg(args, 0), args.Error(1)
}

func (m *mockAccessor) FirmwareHash(b []byte) ([]byte, error) {
	args := m.Called(b)
	return bytesArg(args, 0), args.Error(1)
}

// staticAccessor ignores the blob and returns fixed fields.
type staticAccessor struct {
	vendor, class []byte
	size          uint32
	timestamp     uint64
	uri, hash     []byte
}

func validAccessor() *staticAccessor {
	return &staticAccessor{
		vendor:    []byte(testIdentity.VendorID),
		class:     []byte(testIdentity.ClassID),
		size:      1024,
		timestamp: 1700000000,
		uri:       []byte("https://x/fw.bin"),
		hash:      []byte{0xAB, 0xCD},
	}
}

var errAbsent = errors.New("absent")

func (s *staticAccessor) VendorGUID([]byte) ([]byte, error) { return s.vendor, nil }
func (s *staticAccessor) ClassGUID([]byte) ([]byte, error)  { return s.class, nil }
func (s *staticAccessor) FirmwareSize([]byte) (uint32, error) {
	return s.size, nil
}
func (s *staticAccessor) Timestamp([]byte) (uint64, error) { return s.timestamp, nil }
func (s *staticAccessor) FirmwareURI([]byte) ([]byte, error) {
	if s.uri == nil {
		return nil, errAbsent
	}
	return s.uri, nil
}
func (s *staticAccessor) FirmwareHash([]byte) ([]byte, error) {
	if s.hash == nil {
		return nil, errAbsent
	}
	return s.hash, nil
}

type fakeStore struct {
	mu       sync.Mutex
	devices  map[string]model.FeatureFlags
	values   map[string]map[model.ResourcePath][]byte
	handlers map[string]service.WriteHandler
	failPath *model.ResourcePath
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		devices:  make(map[string]model.FeatureFlags),
		values:   make(map[string]map[model.ResourcePath][]byte),
		handlers: make(map[string]service.WriteHandler),
	}
}

func (s *fakeStore) addDevice(id string, flags model.FeatureFlags) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[id] = flags
	s.values[id] = make(map[model.ResourcePath][]byte)
}

func (s *fakeStore) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values[id])
}

func (s *fakeStore) value(id string, r model.Resource) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[id][r.Path()]
}

func (s *fakeStore) DeviceExists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.devices[id]
	return ok, nil
}

func (s *fakeStore) FeatureFlags(_ context.Context, id string) (model.FeatureFlags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.devices[id]
	if !ok {
		return 0, errors.New("unknown device")
	}
	return f, nil
}

func (s *fakeStore) ResourceExists(_ context.Context, id string, path model.ResourcePath) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[id][path]
	return ok, nil
}

func (s *fakeStore) AddResource(_ context.Context, id string, path model.ResourcePath, _ model.ResourceType, _ model.Operation, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPath != nil && *s.failPath == path {
		return errors.New("store full")
	}
	if _, ok := s.values[id][path]; ok {
		return fmt.Errorf("duplicate %s", path)
	}
	s.values[id][path] = append([]byte(nil), value...)
	return nil
}

func (s *fakeStore) AddResourceWithCallback(ctx context.Context, id string, path model.ResourcePath, typ model.ResourceType, ops model.Operation, value []byte, onWrite service.WriteHandler) error {
	if err := s.AddResource(ctx, id, path, typ, ops, value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[id] = onWrite
	return nil
}

func (s *fakeStore) SetWriteCallback(_ context.Context, id string, path model.ResourcePath, onWrite service.WriteHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[id][path]; !ok {
		return errors.New("no such resource")
	}
	s.handlers[id] = onWrite
	return nil
}

func (s *fakeStore) SetResourceValue(_ context.Context, id string, path model.ResourcePath, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[id][path]; !ok {
		return errors.New("no such resource")
	}
	s.values[id][path] = append([]byte(nil), value...)
	return nil
}

type fakeTransport struct {
	mu            sync.Mutex
	newRequestErr error
	dispatchErr   error
	built         int
	sent          []*service.Message
	handlers      []service.ResponseHandler
}

func (t *fakeTransport) NewRequest(method string) (*service.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.newRequestErr != nil {
		return nil, t.newRequestErr
	}
	t.built++
	return &service.Message{
		ID:     fmt.Sprintf("req-%d", t.built),
		Method: method,
		Params: map[string]any{},
	}, nil
}

func (t *fakeTransport) Dispatch(_ context.Context, _ service.ConnectionID, msg *service.Message, h service.ResponseHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dispatchErr != nil {
		return t.dispatchErr
	}
	t.sent = append(t.sent, msg)
	t.handlers = append(t.handlers, h)
	return nil
}

func (t *fakeTransport) messages() []*service.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*service.Message(nil), t.sent...)
}

func (t *fakeTransport) handler(i int) service.ResponseHandler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handlers[i]
}

func (t *fakeTransport) respond(i int, raw string) {
	h := t.handler(i)
	h.HandleSuccess(json.RawMessage(raw))
	h.Release()
}

func (t *fakeTransport) fail(i int, err error) {
	h := t.handler(i)
	h.HandleFailure(err)
	h.Release()
}

type recordingObserver struct {
	mu     sync.Mutex
	events []model.FlowEvent
}

func (r *recordingObserver) Observe(_ context.Context, ev model.FlowEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingObserver) states() []model.FlowState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.FlowState, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.State)
	}
	return out
}
