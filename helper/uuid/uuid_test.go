// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package uuid

import (
	"regexp"
	"testing"

	"github.com/edgemesh/edgemesh/ci"
	"github.com/shoenig/test/must"
)

func TestGenerate(t *testing.T) {
	ci.Parallel(t)

	id := Generate()
	must.RegexMatch(t, regexp.MustCompile(`^[0-9a-f-]{36}$`), id)
	must.NotEq(t, id, Generate())
}

func TestShort(t *testing.T) {
	ci.Parallel(t)

	job := Short("job")
	must.RegexMatch(t, regexp.MustCompile(`^job-[0-9a-f]{12}$`), job)

	node := Short("node")
	must.RegexMatch(t, regexp.MustCompile(`^node-[0-9a-f]{12}$`), node)

	must.NotEq(t, Short("job"), Short("job"))
}
