// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package uuid generates the opaque identifiers used for nodes and jobs.
package uuid

import (
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// Generate returns a random UUID string, panicking on entropy failure.
func Generate() string {
	id, err := uuid.GenerateUUID()
	if err != nil {
		panic(fmt.Errorf("failed to generate uuid: %w", err))
	}
	return id
}

// Short returns a prefixed 12 hex character identifier, e.g. "job-1a2b3c4d5e6f".
// Used for generated job and node ids, which only need to be unique within a
// single coordinator.
func Short(prefix string) string {
	b, err := uuid.GenerateRandomBytes(6)
	if err != nil {
		panic(fmt.Errorf("failed to generate id bytes: %w", err))
	}
	return fmt.Sprintf("%s-%x", prefix, b)
}
