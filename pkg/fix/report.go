package fix

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/replug/replug/pkg/catalog"
	"github.com/replug/replug/pkg/rawio"
	"github.com/replug/replug/pkg/units"
)

// ProbeResult is the outcome of an open-then-close accessibility probe.
type ProbeResult struct {
	Path       string `json:"path"`
	Accessible bool   `json:"accessible"`
	Error      string `json:"error,omitempty"`
}

// HostInfo carries host vitals for the debug report.
type HostInfo struct {
	Hostname          string  `json:"hostname,omitempty"`
	OS                string  `json:"os,omitempty"`
	Platform          string  `json:"platform,omitempty"`
	UptimeSeconds     uint64  `json:"uptime_seconds"`
	MemoryTotalBytes  uint64  `json:"memory_total_bytes"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
}

// DebugReport is a read-only diagnostic snapshot.
type DebugReport struct {
	GeneratedAt       time.Time         `json:"generated_at"`
	Host              HostInfo          `json:"host"`
	DurableFlags      map[string]string `json:"durable_flags"`
	SessionFlags      map[string]string `json:"session_flags"`
	FlagErrors        []string          `json:"flag_errors,omitempty"`
	ConfigProbe       ProbeResult       `json:"config_probe"`
	ManifestProbe     ProbeResult       `json:"manifest_probe"`
	LoadedUnits       []string          `json:"loaded_units,omitempty"`
	ProblematicTitles []string          `json:"problematic_titles"`
}

// DebugReport gathers diagnostics without mutating anything: flag state
// in both tiers, accessibility probes on the config and manifest, the
// loaded unit set when the runtime exposes it, host vitals, and the
// problematic-title catalog. Faults along the way degrade to entries in
// the report rather than aborting it.
func (o *Orchestrator) DebugReport(ctx context.Context) *DebugReport {
	report := &DebugReport{
		GeneratedAt:       time.Now().UTC(),
		Host:              collectHostInfo(),
		DurableFlags:      map[string]string{},
		SessionFlags:      map[string]string{},
		ProblematicTitles: catalog.ProblematicTitles(),
	}

	flags, err := o.store.ListFlags(ctx)
	if err != nil {
		report.FlagErrors = append(report.FlagErrors, fmt.Sprintf("durable: %v", err))
	}
	for _, flag := range flags {
		report.DurableFlags[flag.Key] = flag.Value
	}

	if lister, ok := o.session.(interface{ Flags() map[string]string }); ok {
		report.SessionFlags = lister.Flags()
	} else {
		// The flag contract has no listing, so probe the keys the fix uses.
		for _, key := range []string{FlagFixApplied, FlagRuntimeLoaded} {
			value, present, err := o.session.GetFlag(ctx, key)
			if err != nil {
				report.FlagErrors = append(report.FlagErrors, fmt.Sprintf("session %s: %v", key, err))
				continue
			}
			if present {
				report.SessionFlags[key] = value
			}
		}
	}

	report.ConfigProbe = o.probeFile(ctx, o.cfg.ConfigPath)
	report.ManifestProbe = o.probeFile(ctx, o.cfg.ManifestPath)
	report.LoadedUnits = loadedUnitNames(o.runtime)

	o.log.WithField("config_accessible", report.ConfigProbe.Accessible).Debugf("Debug report generated")
	return report
}

// probeFile opens a path read-only and immediately closes it.
func (o *Orchestrator) probeFile(ctx context.Context, path string) ProbeResult {
	result := ProbeResult{Path: path}
	file, err := o.runtime.Open(ctx, path, rawio.ReadOnly)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	_ = file.Close()
	result.Accessible = true
	return result
}

// loadedUnitNames extracts the loaded unit set from runtimes that expose
// one. The rawio contract itself has no listing, and compositions hide
// their halves behind the contract, so unwrap first.
func loadedUnitNames(runtime rawio.Runtime) []string {
	var target interface{} = runtime
	if composed, ok := runtime.(interface{ Units() rawio.UnitLoader }); ok {
		target = composed.Units()
	}

	switch lister := target.(type) {
	case interface{ LoadedUnits() []string }:
		return lister.LoadedUnits()
	case interface{ LoadedUnits() []units.UnitInfo }:
		var names []string
		for _, info := range lister.LoadedUnits() {
			names = append(names, info.Name)
		}
		return names
	default:
		return nil
	}
}

// collectHostInfo reads host vitals, tolerating platforms where either
// probe is unavailable.
func collectHostInfo() HostInfo {
	info := HostInfo{}
	if stat, err := host.Info(); err == nil {
		info.Hostname = stat.Hostname
		info.OS = stat.OS
		info.Platform = stat.Platform
		info.UptimeSeconds = stat.Uptime
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotalBytes = vm.Total
		info.MemoryUsedPercent = vm.UsedPercent
	}
	return info
}
