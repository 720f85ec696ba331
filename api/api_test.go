// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgemesh/edgemesh/ci"
	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/shoenig/test/must"
)

// fakeCoordinator serves canned JSON and records the last request.
type fakeCoordinator struct {
	t        *testing.T
	code     int
	body     interface{}
	lastReq  *http.Request
	lastBody []byte
}

func (f *fakeCoordinator) ServeHTTP(resp http.ResponseWriter, req *http.Request) {
	f.lastReq = req
	if req.Body != nil {
		f.lastBody, _ = io.ReadAll(req.Body)
	}
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(f.code)
	if f.body != nil {
		json.NewEncoder(resp).Encode(f.body)
	}
}

func testClient(t *testing.T, fake *fakeCoordinator) *Client {
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewClient(&Config{Address: srv.URL, Secret: "hunter2"})
	must.NoError(t, err)
	return client
}

func TestNewClient_Defaults(t *testing.T) {
	ci.Parallel(t)

	client, err := NewClient(&Config{})
	must.NoError(t, err)
	must.Eq(t, "http://localhost:8000", client.Address())
}

func TestClient_SecretHeader(t *testing.T) {
	ci.Parallel(t)

	fake := &fakeCoordinator{t: t, code: 200, body: map[string]string{"status": "ok"}}
	client := testClient(t, fake)

	must.NoError(t, client.Health())
	must.Eq(t, "hunter2", fake.lastReq.Header.Get("X-EdgeMesh-Secret"))
}

func TestClient_Health_BadStatus(t *testing.T) {
	ci.Parallel(t)

	fake := &fakeCoordinator{t: t, code: 200, body: map[string]string{"status": "degraded"}}
	client := testClient(t, fake)

	must.ErrorContains(t, client.Health(), "degraded")
}

func TestClient_UnexpectedResponse(t *testing.T) {
	ci.Parallel(t)

	fake := &fakeCoordinator{t: t, code: 404, body: map[string]string{"error": "node not found"}}
	client := testClient(t, fake)

	_, err := client.Nodes().Info("ghost", false, 0)
	must.Error(t, err)
	must.True(t, IsStatus(err, 404))
	must.True(t, IsNotFound(err))
	must.False(t, IsConflict(err))
	must.StrContains(t, err.Error(), "node not found")
}

func TestNodes_Info_Query(t *testing.T) {
	ci.Parallel(t)

	fake := &fakeCoordinator{t: t, code: 200, body: &structs.NodeDetail{
		Node: &structs.Node{NodeID: "node-1"},
	}}
	client := testClient(t, fake)

	detail, err := client.Nodes().Info("node-1", true, 5)
	must.NoError(t, err)
	must.Eq(t, "node-1", detail.Node.NodeID)

	must.Eq(t, "/v1/nodes/node-1", fake.lastReq.URL.Path)
	query := fake.lastReq.URL.Query()
	must.Eq(t, "true", query.Get("include_metrics_history"))
	must.Eq(t, "5", query.Get("history_limit"))
}

func TestJobs_List_Options(t *testing.T) {
	ci.Parallel(t)

	fake := &fakeCoordinator{t: t, code: 200, body: []*structs.Job{}}
	client := testClient(t, fake)

	_, err := client.Jobs().List(&JobListOptions{
		Status:   "RUNNING",
		TaskType: "embed",
		NodeID:   "node-1",
	})
	must.NoError(t, err)

	query := fake.lastReq.URL.Query()
	must.Eq(t, "RUNNING", query.Get("status"))
	must.Eq(t, "embed", query.Get("task_type"))
	must.Eq(t, "node-1", query.Get("node_id"))

	// No options, no query.
	_, err = client.Jobs().List(nil)
	must.NoError(t, err)
	must.Eq(t, "", fake.lastReq.URL.RawQuery)
}

func TestJobs_MissingID(t *testing.T) {
	ci.Parallel(t)

	fake := &fakeCoordinator{t: t, code: 200}
	client := testClient(t, fake)

	_, err := client.Jobs().Info("")
	must.ErrorIs(t, err, errMissingID)

	_, err = client.Jobs().SetStatus("", "RUNNING", nil)
	must.ErrorIs(t, err, errMissingID)
}

func TestAgent_RegisterRoundTrip(t *testing.T) {
	ci.Parallel(t)

	fake := &fakeCoordinator{t: t, code: 201, body: &structs.Node{
		NodeID: "node-1",
		Status: structs.NodeStatusUnknown,
	}}
	client := testClient(t, fake)

	node, err := client.Agent().Register(&structs.AgentRegisterRequest{
		NodeID: "node-1",
		Port:   9100,
	})
	must.NoError(t, err)
	must.Eq(t, "node-1", node.NodeID)
	must.Eq(t, "/v1/agent/register", fake.lastReq.URL.Path)
	must.Eq(t, "application/json", fake.lastReq.Header.Get("Content-Type"))
	must.StrContains(t, string(fake.lastBody), `"node_id":"node-1"`)
}
