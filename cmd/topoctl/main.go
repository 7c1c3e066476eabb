// File: cmd/topoctl/main.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// topoctl inspects the hardware topology and previews thread placement
// without binding anything. Settings come from HIOLOAD_AFFINITY_*
// environment variables, an optional YAML file and CLI flags, in that
// order of precedence.

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-affinity/adapters"
	"github.com/momentics/hioload-affinity/api"
	"github.com/momentics/hioload-affinity/facade"
	"github.com/momentics/hioload-affinity/internal/platform"
)

var (
	// CLI flags shared by all subcommands
	cfgFile     string // YAML config file overlaying the environment
	logLevel    string // Log verbosity level
	policy      string // Placement policy: none, explicit, logical, physical, compact, scatter, balanced, disabled
	granularity string // Smallest unit a place may split: thread, core, socket, numa, llc
	compact     int    // Compact knob for the sorting policies
	offset      int    // Offset knob for the sorting policies
	procList    string // Explicit OS processor list
	placeList   string // Explicit place list
	subset      string // Hardware subset, e.g. "1s,2c,1t"
	respect     bool   // Keep the inherited process mask
	dups        bool   // One place per hardware thread even at coarse granularity
	maxPlaces   int    // Cap on the published place count, 0 for no cap
	method      string // Forced discovery backend, empty tries all
	cpuinfoPath string // Alternate /proc/cpuinfo, for the cpuinfo backend
	dump        bool   // Print the full per-thread record dump
	nthreads    int    // Worker count for the bind plan
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "topoctl",
	Short: "Inspect hardware topology and preview thread placement",
}

// loadConfig builds the effective config: environment, then the YAML
// file, then any flag the user set explicitly.
func loadConfig(cmd *cobra.Command) *facade.Config {
	cfg, err := facade.ConfigFromEnv()
	if err != nil {
		logrus.Fatalf("Invalid environment: %v", err)
	}
	if cfgFile != "" {
		data, err := os.ReadFile(cfgFile)
		if err != nil {
			logrus.Fatalf("Reading config file: %v", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			logrus.Fatalf("Parsing config file %s: %v", cfgFile, err)
		}
	}
	flags := cmd.Flags()
	if flags.Changed("policy") {
		cfg.Policy = policy
	}
	if flags.Changed("granularity") {
		cfg.Granularity = granularity
	}
	if flags.Changed("compact") {
		cfg.Compact = compact
	}
	if flags.Changed("offset") {
		cfg.Offset = offset
	}
	if flags.Changed("proclist") {
		cfg.ProcList = procList
	}
	if flags.Changed("placelist") {
		cfg.PlaceList = placeList
	}
	if flags.Changed("subset") {
		cfg.Subset = subset
	}
	if flags.Changed("respect") {
		cfg.Respect = respect
	}
	if flags.Changed("dups") {
		cfg.Dups = dups
	}
	if flags.Changed("max-places") {
		cfg.MaxPlaces = maxPlaces
	}
	if flags.Changed("method") {
		cfg.Method = method
	}
	cfg.Warnings = true
	return cfg
}

// newRuntime initializes a runtime for the effective config.
func newRuntime(cmd *cobra.Command) *facade.Runtime {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)

	cfg := loadConfig(cmd)
	opts := []facade.Option{
		facade.WithDiagnostics(adapters.NewLogrusDiagnostics(logrus.StandardLogger(), true)),
	}
	if cpuinfoPath != "" {
		opts = append(opts, facade.WithCpuinfoPath(cpuinfoPath))
	}
	rt := facade.New(cfg, opts...)
	if err := rt.Initialize(); err != nil {
		logrus.Fatalf("Topology discovery failed: %v", err)
	}
	return rt
}

// discoverCmd prints the discovered topology
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover the hardware topology and print a summary",
	Run: func(cmd *cobra.Command, args []string) {
		rt := newRuntime(cmd)
		if v := platform.VendorString(); v != "" && cpuinfoPath == "" {
			fmt.Printf("host: %s, %d cores, %d threads (%d per core)\n",
				v, platform.PhysicalCores(), platform.LogicalCores(),
				platform.ThreadsPerCore())
		}
		fmt.Printf("method: %s\n", rt.Method())
		summary, err := rt.Summary()
		if err != nil {
			logrus.Fatalf("Summary unavailable: %v", err)
		}
		fmt.Println(summary)
		if dump {
			topo, err := rt.Topology()
			if err != nil {
				logrus.Fatalf("Topology unavailable: %v", err)
			}
			fmt.Print(topo.Dump())
		}
	},
}

// placesCmd previews the place list the current settings would publish
var placesCmd = &cobra.Command{
	Use:   "places",
	Short: "Print the places the current settings would publish",
	Run: func(cmd *cobra.Command, args []string) {
		rt := newRuntime(cmd)
		topo, err := rt.Topology()
		if err != nil {
			logrus.Fatalf("Topology unavailable: %v", err)
		}
		fmt.Printf("policy: %s, %d places\n", rt.Policy(), rt.PlaceCount())
		for i := 0; i < rt.PlaceCount(); i++ {
			s, err := rt.FormatPlace(i)
			if err != nil {
				logrus.Fatalf("Place %d: %v", i, err)
			}
			line := fmt.Sprintf("place %d: %s", i, s)
			if info, err := rt.PlaceIDs(i); err == nil && len(info.IDs) > 0 {
				var parts []string
				for level, id := range info.IDs {
					parts = append(parts, fmt.Sprintf("%s %s",
						topo.TypeAt(level), formatID(id)))
				}
				line += "  (" + strings.Join(parts, ", ") + ")"
				if info.Attrs.Valid() {
					line += fmt.Sprintf("  [%s]", info.Attrs.Type)
				}
			}
			fmt.Println(line)
		}
	},
}

// bindPlanCmd previews the mask each worker thread would receive
var bindPlanCmd = &cobra.Command{
	Use:   "bind-plan",
	Short: "Print the mask each of N worker threads would receive",
	Run: func(cmd *cobra.Command, args []string) {
		rt := newRuntime(cmd)
		if nthreads <= 0 {
			logrus.Fatalf("Thread count must be positive, got %d", nthreads)
		}
		count := rt.PlaceCount()
		if count == 0 {
			logrus.Fatalf("No places available")
		}
		for tid := 0; tid < nthreads; tid++ {
			if rt.Policy() == api.PolicyBalanced {
				m, err := rt.BalancedMask(tid, nthreads)
				if err != nil {
					logrus.Fatalf("Thread %d: %v", tid, err)
				}
				fmt.Printf("thread %d: %s\n", tid, m)
				continue
			}
			s, err := rt.FormatPlace(tid % count)
			if err != nil {
				logrus.Fatalf("Thread %d: %v", tid, err)
			}
			fmt.Printf("thread %d: place %d %s\n", tid, tid%count, s)
		}
	},
}

func formatID(id int) string {
	switch id {
	case api.MultipleID:
		return "*"
	case api.UnknownID:
		return "?"
	}
	return strconv.Itoa(id)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file")
	pf.StringVar(&logLevel, "log-level", "warning", "Log level (debug, info, warning, error)")
	pf.StringVar(&policy, "policy", "none", "Placement policy")
	pf.StringVar(&granularity, "granularity", "core", "Place granularity")
	pf.IntVar(&compact, "compact", 0, "Compact knob for sorting policies")
	pf.IntVar(&offset, "offset", 0, "Offset knob for sorting policies")
	pf.StringVar(&procList, "proclist", "", "Explicit OS processor list")
	pf.StringVar(&placeList, "placelist", "", "Explicit place list")
	pf.StringVar(&subset, "subset", "", "Hardware subset, e.g. 1s,2c,1t")
	pf.BoolVar(&respect, "respect", true, "Keep the inherited process mask")
	pf.BoolVar(&dups, "dups", false, "One place per hardware thread")
	pf.IntVar(&maxPlaces, "max-places", 0, "Cap on the place count, 0 for none")
	pf.StringVar(&method, "method", "", "Forced discovery backend")
	pf.StringVar(&cpuinfoPath, "cpuinfo", "", "Alternate cpuinfo path")

	discoverCmd.Flags().BoolVar(&dump, "dump", false, "Dump per-thread records")
	bindPlanCmd.Flags().IntVar(&nthreads, "threads", 1, "Worker thread count")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(placesCmd)
	rootCmd.AddCommand(bindPlanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
