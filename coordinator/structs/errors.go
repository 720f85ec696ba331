// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the store and services. The HTTP layer is the
// only place these are translated to status codes.
var (
	// ErrValidation marks input that violates schema bounds (422).
	ErrValidation = errors.New("validation failed")

	// ErrNodeNotFound marks a lookup of an unknown node id (404).
	ErrNodeNotFound = errors.New("node not found")

	// ErrJobNotFound marks a lookup of an unknown job id (404).
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition marks an illegal job status transition (409).
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// NewValidationError wraps a formatted message in ErrValidation so callers
// can classify it with errors.Is.
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func IsErrValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsErrNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound) || errors.Is(err, ErrJobNotFound)
}

func IsErrInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
