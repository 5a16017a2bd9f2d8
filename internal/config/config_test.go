/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.Nil(t, err)

	assert.Equal(t, "SUBDEVICE-VENDOR", cfg.Identity.VendorID)
	assert.Equal(t, "SUBDEVICE-_CLASS", cfg.Identity.ClassID)
	assert.Equal(t, "fota_state.db", cfg.Database.Path)
	assert.Equal(t, "ws://127.0.0.1:8080/1/pt", cfg.Edge.URL)
	assert.Equal(t, 10*time.Second, cfg.Edge.DialTimeout)
	assert.Equal(t, 64, cfg.Ledger.MaxInFlight)
	assert.Equal(t, "", cfg.Events.NATSURL)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fota.yaml")
	err := os.WriteFile(path, []byte("identity:\n  vendor_id: ACME\nledger:\n  max_in_flight: 2\n"), 0o600)
	require.Nil(t, err)
	t.Setenv("FOTA_ADMIN_ADDR", ":9999")

	cfg, err := Load(path)
	require.Nil(t, err)
	assert.Equal(t, "ACME", cfg.Identity.VendorID)
	// not overridden by the file
	assert.Equal(t, "SUBDEVICE-_CLASS", cfg.Identity.ClassID)
	assert.Equal(t, 2, cfg.Ledger.MaxInFlight)
	assert.Equal(t, ":9999", cfg.Admin.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.NotNil(t, err)
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn"}, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Str("device_id", "dev-1").Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"device_id":"dev-1"`)

	assert.Equal(t, zerolog.InfoLevel, NewLogger(LogConfig{Level: "bogus"}, &buf).GetLevel())
}
