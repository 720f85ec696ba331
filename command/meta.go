// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"flag"

	"github.com/edgemesh/edgemesh/api"
	"github.com/hashicorp/cli"
	"github.com/posener/complete"
)

// FlagSetFlags is an enum to define what flags are present in the
// default FlagSet returned by Meta.FlagSet.
type FlagSetFlags uint

const (
	FlagSetNone   FlagSetFlags = 0
	FlagSetClient FlagSetFlags = 1 << iota
	FlagSetDefault             = FlagSetClient
)

// Meta contains the meta-options and functionality that nearly every
// EdgeMesh command inherits.
type Meta struct {
	Ui cli.Ui

	// These are set by the command line flags.
	flagAddress string
	secret      string
}

// FlagSet returns a FlagSet with the common flags that every command
// implements. The exact behavior of FlagSet can be configured using the
// flags as the second parameter.
func (m *Meta) FlagSet(n string, fs FlagSetFlags) *flag.FlagSet {
	f := flag.NewFlagSet(n, flag.ContinueOnError)

	// FlagSetClient enables the settings for specifying coordinator
	// connectivity options.
	if fs&FlagSetClient != 0 {
		f.StringVar(&m.flagAddress, "address", "", "")
		f.StringVar(&m.secret, "secret", "", "")
	}

	f.SetOutput(&uiErrorWriter{ui: m.Ui})

	return f
}

// AutocompleteFlags returns a set of flag completions for the given flag set.
func (m *Meta) AutocompleteFlags(fs FlagSetFlags) complete.Flags {
	if fs&FlagSetClient == 0 {
		return nil
	}

	return complete.Flags{
		"-address": complete.PredictAnything,
		"-secret":  complete.PredictNothing,
	}
}

// Client is used to initialize and return a new API client using the
// default command line arguments and env vars.
func (m *Meta) Client() (*api.Client, error) {
	config := api.DefaultConfig()
	if m.flagAddress != "" {
		config.Address = m.flagAddress
	}
	if m.secret != "" {
		config.Secret = m.secret
	}
	return api.NewClient(config)
}

func generalOptionsUsage() string {
	return `
  -address=<addr>
    The address of the EdgeMesh coordinator.
    Overrides the COORDINATOR_URL environment variable if set.
    Default = http://localhost:8000

  -secret=<secret>
    The shared secret for authenticated endpoints.
    Overrides the EDGE_MESH_SHARED_SECRET environment variable if set.`
}
