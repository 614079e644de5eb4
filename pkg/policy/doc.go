// Package policy provides Open Policy Agent (OPA) gating for plugin
// configuration changes.
//
// This package evaluates Rego policies against plugin settings and unit
// manifests before the fix pipeline rewrites them. It includes built-in
// policies for the common ways a plugin setup goes wrong and supports
// custom policy loading.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Engine - Compiles and evaluates Rego policies
//  2. Loader - Loads policies from files, directories, and bundles
//  3. Types - Data structures for policies, violations, and results
//  4. Built-in Policies - Pre-defined policies for common requirements
//
// # Usage
//
// Creating a policy engine:
//
//	log, _ := telemetry.NewLogger(telemetry.LoggingConfig{Level: "info"})
//	engine, err := policy.NewEngine(log)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Evaluating a configuration:
//
//	doc := configdoc.Parse(configBytes)
//	result, err := engine.EvaluateConfig(ctx, doc, manifestPath, manifestBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Allowed {
//	    for _, violation := range result.Violations {
//	        fmt.Printf("Policy %s violated: %s\n", violation.Policy, violation.Message)
//	    }
//	}
//
// Loading custom policies:
//
//	paths := []string{
//	    "/etc/plugind/policies",
//	    "/opt/policies/custom.rego",
//	}
//
//	err = engine.LoadPolicies(ctx, paths)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Built-in Policies
//
// The following policies are included by default:
//
//  1. blocked-settings - Setting combinations that disable loading or patching
//  2. unit-allowlist - Units must load from the allowed plugin directories
//  3. unit-format - Manifest entries the runtime will not load as written
//  4. manifest-size - Manifests larger than a reload cycle reads
//
// # Custom Policies
//
// Custom policies can be written in Rego and loaded from files:
//
//	package custom.policies.timeout
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.settings
//
//	    # Require a bounded load timeout
//	    not input.settings.LOAD_TIMEOUT_MS
//
//	    violation := {
//	        "message": "LOAD_TIMEOUT_MS must be set so a hung unit cannot stall startup",
//	        "severity": "warning",
//	        "setting": "LOAD_TIMEOUT_MS",
//	    }
//	}
//
// # Input Shape
//
// Policies receive a single input document:
//
//	{
//	    "settings": {"PLUGIN_LOADER_ENABLED": "1", ...},
//	    "manifest": {"path": "...", "units": [...], "size": 1234},
//	    "context": {"operation": "fix", "source": "cli", "dry_run": false}
//	}
//
// BuildInput assembles this from a parsed configuration document and raw
// manifest bytes.
//
// # Severity Levels
//
// Violations have four severity levels:
//
//   - info: Informational messages
//   - warning: Issues that should be reviewed but don't block operations
//   - error: Issues that block operations
//   - critical: Severe issues requiring immediate attention
//
// A result is Allowed when no violation reaches error or critical.
//
// # Hot Reload
//
// The loader supports watching policy files for changes and reloading
// automatically:
//
//	loader := policy.NewLoader(log)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return engine.LoadPolicies(ctx, paths)
//	})
//
// # Performance
//
// Policies are compiled once and reused for multiple evaluations. The engine
// uses OPA's PreparedEvalQuery for optimal performance. Caching is implemented
// at both the loader and engine levels.
package policy
