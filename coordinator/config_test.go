// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgemesh/edgemesh/ci"
	"github.com/shoenig/test/must"
)

func TestDefaultConfig(t *testing.T) {
	ci.Parallel(t)

	c := DefaultConfig()
	must.Eq(t, "0.0.0.0", c.Host)
	must.Eq(t, 8000, c.Port)
	must.Eq(t, "INFO", c.LogLevel)
	must.Eq(t, 60*time.Second, c.HeartbeatTTL)
	must.Eq(t, 15*time.Second, c.NodeStale)
	must.Eq(t, 5*time.Second, c.SweepInterval)
	must.Eq(t, []string{"http://localhost:5173"}, c.CORSOrigins)
	must.Eq(t, "coordinator.db", c.DBPath)
	must.NoError(t, c.Validate())
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	// t.Setenv forbids parallel tests.
	t.Setenv("COORDINATOR_HOST", "127.0.0.1")
	t.Setenv("COORDINATOR_PORT", "9000")
	t.Setenv("COORDINATOR_LOG_LEVEL", "DEBUG")
	t.Setenv("COORDINATOR_HEARTBEAT_TTL_SECONDS", "30")
	t.Setenv("NODE_STALE_SECONDS", "45")
	t.Setenv("COORDINATOR_CORS_ORIGINS", "http://a.example, http://b.example ,")
	t.Setenv("COORDINATOR_DB_URL", "/tmp/mesh.db")
	t.Setenv("EDGE_MESH_SHARED_SECRET", "hunter2")

	c, err := LoadConfigFromEnv()
	must.NoError(t, err)
	must.Eq(t, "127.0.0.1", c.Host)
	must.Eq(t, 9000, c.Port)
	must.Eq(t, "DEBUG", c.LogLevel)
	must.Eq(t, 30*time.Second, c.HeartbeatTTL)
	must.Eq(t, 45*time.Second, c.NodeStale)
	must.Eq(t, []string{"http://a.example", "http://b.example"}, c.CORSOrigins)
	must.Eq(t, "/tmp/mesh.db", c.DBPath)
	must.Eq(t, "hunter2", c.SharedSecret)
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv("COORDINATOR_PORT", "not-a-port")
	_, err := LoadConfigFromEnv()
	must.ErrorContains(t, err, "COORDINATOR_PORT")

	t.Setenv("COORDINATOR_PORT", "8000")
	t.Setenv("COORDINATOR_HEARTBEAT_TTL_SECONDS", "soon")
	_, err = LoadConfigFromEnv()
	must.ErrorContains(t, err, "COORDINATOR_HEARTBEAT_TTL_SECONDS")

	t.Setenv("COORDINATOR_HEARTBEAT_TTL_SECONDS", "30")
	t.Setenv("NODE_STALE_SECONDS", "0")
	_, err = LoadConfigFromEnv()
	must.ErrorContains(t, err, "stale window")
}

func TestConfig_Validate(t *testing.T) {
	ci.Parallel(t)

	c := DefaultConfig()
	c.Port = 70000
	c.NodeStale = 0
	c.SweepInterval = -time.Second

	err := c.Validate()
	must.Error(t, err)

	// All failures come back at once.
	must.StrContains(t, err.Error(), "port")
	must.StrContains(t, err.Error(), "stale window")
	must.StrContains(t, err.Error(), "sweep interval")
}

func TestConfig_BindAddr(t *testing.T) {
	ci.Parallel(t)

	c := &Config{Host: "10.0.0.1", Port: 8080}
	must.Eq(t, "10.0.0.1:8080", c.BindAddr())
}

func TestLoadDotEnv(t *testing.T) {
	// Mutates the process environment, so no parallel.
	path := filepath.Join(t.TempDir(), ".env")
	must.NoError(t, os.WriteFile(path, []byte("EDGEMESH_TEST_DOTENV_A=from-file\nEDGEMESH_TEST_DOTENV_B=shadowed\n"), 0o600))

	t.Setenv("EDGEMESH_TEST_DOTENV_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("EDGEMESH_TEST_DOTENV_A") })

	loadDotEnv(path)

	// File values fill gaps; the real environment wins.
	must.Eq(t, "from-file", os.Getenv("EDGEMESH_TEST_DOTENV_A"))
	must.Eq(t, "from-env", os.Getenv("EDGEMESH_TEST_DOTENV_B"))

	// A missing file is silently ignored.
	loadDotEnv(filepath.Join(t.TempDir(), "nope.env"))
}
