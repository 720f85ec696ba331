// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// sseKeepaliveInterval is how often a comment frame is written so
// intermediaries keep an otherwise quiet stream open.
const sseKeepaliveInterval = 15 * time.Second

// NodeStreamRequest handles GET /v1/stream/nodes as a server-sent-event
// stream of node_update frames. It bypasses wrap because it owns the
// response for the lifetime of the connection; disconnects tear the
// subscription down.
func (s *HTTPServer) NodeStreamRequest(resp http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(resp, ErrInvalidMethod, http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := resp.(http.Flusher)
	if !ok {
		http.Error(resp, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.server.Broker().Subscribe()
	defer sub.Unsubscribe()

	s.logger.Debug("sse subscriber connected", "remote", req.RemoteAddr)
	defer s.logger.Debug("sse subscriber disconnected", "remote", req.RemoteAddr)

	ctx := req.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		// Race Next against the keepalive so quiet fleets still emit
		// comment frames.
		eventCtx, cancel := contextWithTicker(ctx, keepalive.C)
		event, err := sub.Next(eventCtx)
		cancel()

		switch {
		case err == nil:
			payload, merr := json.Marshal(event)
			if merr != nil {
				s.logger.Error("failed to encode node update", "error", merr)
				continue
			}
			if _, werr := fmt.Fprintf(resp, "event: node_update\ndata: %s\n\n", payload); werr != nil {
				return
			}
			flusher.Flush()

		case eventCtx.Err() != nil && ctx.Err() == nil:
			// Keepalive tick, not a client disconnect.
			if _, werr := fmt.Fprint(resp, ": keepalive\n\n"); werr != nil {
				return
			}
			flusher.Flush()

		default:
			// Client gone or broker shut down.
			return
		}
	}
}

// contextWithTicker derives a context that is cancelled by the next tick,
// so a blocking Next call can be interrupted for a keepalive frame.
func contextWithTicker(parent context.Context, tick <-chan time.Time) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-tick:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
