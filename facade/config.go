// File: facade/config.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"github.com/kelseyhightower/envconfig"

	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/topology"
)

// Config holds parameters immutable per run. Policy, granularity and
// method names use the same spelling as their String forms, so a
// config can round-trip through the environment or a YAML file.
type Config struct {
	// Policy selects how places are derived: none, explicit, logical,
	// physical, compact, scatter, balanced or disabled.
	Policy string `envconfig:"POLICY" default:"none" yaml:"policy"`
	// Granularity is the smallest topology unit a place may split:
	// thread, core, socket, numa, llc, ...
	Granularity string `envconfig:"GRANULARITY" default:"core" yaml:"granularity"`
	// Compact and Offset tune the sorting policies.
	Compact int `envconfig:"COMPACT" yaml:"compact"`
	Offset  int `envconfig:"OFFSET" yaml:"offset"`
	// ProcList / PlaceList feed the explicit policy.
	ProcList  string `envconfig:"PROCLIST" yaml:"proclist"`
	PlaceList string `envconfig:"PLACELIST" yaml:"placelist"`
	// Subset restricts the machine before placement, e.g. "1s,2c,1t".
	Subset string `envconfig:"SUBSET" yaml:"subset"`
	// Respect keeps the inherited process mask instead of widening to
	// the whole machine.
	Respect bool `envconfig:"RESPECT" default:"true" yaml:"respect"`
	// Dups publishes one place per hardware thread even when the
	// granularity groups several threads.
	Dups bool `envconfig:"DUPS" yaml:"dups"`
	// MaxPlaces caps the published place count, 0 meaning no cap.
	MaxPlaces int `envconfig:"MAX_PLACES" yaml:"max_places"`
	// Method forces one discovery backend: hwloc, x2apicid,
	// x2apicid_1f, apicid, cpuinfo, group, flat. Empty tries all.
	Method string `envconfig:"METHOD" yaml:"method"`
	// Warnings enables diagnostics for recoverable conditions.
	Warnings bool `envconfig:"WARNINGS" yaml:"warnings"`
}

// DefaultConfig returns the defaults: no binding policy, core
// granularity, respect the inherited mask.
func DefaultConfig() *Config {
	return &Config{
		Policy:      "none",
		Granularity: "core",
		Respect:     true,
	}
}

// ConfigFromEnv loads a Config from HIOLOAD_AFFINITY_* environment
// variables on top of the defaults.
func ConfigFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process("hioload_affinity", cfg); err != nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "loading affinity environment failed").
			WithContext("cause", err.Error())
	}
	return cfg, nil
}

// Spec translates the config into a placement request.
func (c *Config) Spec() (api.PolicySpec, error) {
	kind, ok := api.ParsePolicyKind(c.Policy)
	if !ok {
		return api.PolicySpec{}, api.NewError(api.ErrCodeInvalidArgument, "unknown placement policy").
			WithContext("policy", c.Policy)
	}
	gran := api.ParseLevelType(c.Granularity)
	if c.Granularity != "" && gran == api.LevelUnknown {
		return api.PolicySpec{}, api.NewError(api.ErrCodeInvalidArgument, "unknown granularity level").
			WithContext("granularity", c.Granularity)
	}
	subset, subsetAbsolute, err := topology.ParseSubset(c.Subset)
	if err != nil {
		return api.PolicySpec{}, err
	}
	return api.PolicySpec{
		Kind:             kind,
		Compact:          c.Compact,
		Offset:           c.Offset,
		Granularity:      gran,
		GranularityAttrs: api.UnknownCoreAttrs(),
		ProcList:         c.ProcList,
		PlaceList:        c.PlaceList,
		Subset:           subset,
		SubsetAbsolute:   subsetAbsolute,
		MaxPlaces:        c.MaxPlaces,
		Dups:             c.Dups,
		Respect:          c.Respect,
	}, nil
}
