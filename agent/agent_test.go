// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/edgemesh/edgemesh/api"
	"github.com/edgemesh/edgemesh/ci"
	"github.com/edgemesh/edgemesh/coordinator"
	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/edgemesh/edgemesh/helper/testlog"
	"github.com/shoenig/test/must"
	"github.com/shoenig/test/wait"
)

func TestLoadOrCreateNodeID(t *testing.T) {
	ci.Parallel(t)

	path := filepath.Join(t.TempDir(), "state", "node_id.txt")

	id, err := loadOrCreateNodeID(path)
	must.NoError(t, err)
	must.StrHasPrefix(t, "node-", id)

	// The id is persisted with a trailing newline.
	raw, err := os.ReadFile(path)
	must.NoError(t, err)
	must.Eq(t, id+"\n", string(raw))

	// A second load reuses it.
	again, err := loadOrCreateNodeID(path)
	must.NoError(t, err)
	must.Eq(t, id, again)
}

func TestLoadOrCreateNodeID_EmptyFile(t *testing.T) {
	ci.Parallel(t)

	path := filepath.Join(t.TempDir(), "node_id.txt")
	must.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))

	// Whitespace-only content counts as missing.
	id, err := loadOrCreateNodeID(path)
	must.NoError(t, err)
	must.StrHasPrefix(t, "node-", id)
}

func TestDetectLocalIP(t *testing.T) {
	ci.Parallel(t)

	ip := detectLocalIP()
	must.NotEq(t, "", ip)
	must.False(t, strings.Contains(ip, ":"))
}

// TestAgent_RunAgainstCoordinator registers and heartbeats against a real
// coordinator and waits for the node to come ONLINE.
func TestAgent_RunAgainstCoordinator(t *testing.T) {
	ci.Parallel(t)

	coordConfig := coordinator.DefaultConfig()
	coordConfig.Host = "127.0.0.1"
	coordConfig.Port = 0
	coordConfig.DBPath = ""

	server, err := coordinator.NewServer(coordConfig, testlog.HCLogger(t))
	must.NoError(t, err)
	httpSrv, err := coordinator.NewHTTPServer(server)
	must.NoError(t, err)
	t.Cleanup(func() {
		httpSrv.Shutdown()
		server.Shutdown()
	})

	config := DefaultConfig()
	config.CoordinatorURL = "http://" + httpSrv.Addr
	config.DisplayName = "Test Box"
	config.HeartbeatInterval = 50 * time.Millisecond
	config.NodeIDFile = filepath.Join(t.TempDir(), "node_id.txt")

	a, err := NewAgent(config, testlog.HCLogger(t))
	must.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	client, err := api.NewClient(&api.Config{Address: config.CoordinatorURL})
	must.NoError(t, err)

	must.Wait(t, wait.InitialSuccess(
		wait.BoolFunc(func() bool {
			nodes, err := client.Nodes().List()
			if err != nil || len(nodes) != 1 {
				return false
			}
			node := nodes[0]
			return node.NodeID == a.NodeID() &&
				node.DisplayName == "Test Box" &&
				node.Status == structs.NodeStatusOnline &&
				node.Metrics != nil
		}),
		wait.Timeout(10*time.Second),
		wait.Gap(50*time.Millisecond),
	))
}
