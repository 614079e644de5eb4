// Package profile provides CUE fix-profile parsing and Starlark step
// planning for replug.
//
// # Overview
//
// A fix profile is a site-specific override set: where the managed
// runtime keeps its config and manifest, which settings the fix must
// enforce, which units it retires, and how long it waits between
// steps. Without a profile, replug uses the catalog defaults; a
// profile replaces only what it names.
//
// # Features
//
//   - Profile parsing from CUE files, directories, and inline content
//   - Layered profiles via CUE unification (base + site override)
//   - Schema validation with a built-in profile schema
//   - Struct-tag validation of decoded profiles
//   - Error reporting with file locations and line numbers
//   - Starlark build_steps scripts for custom step plans
//
// # Components
//
// Parser: parses CUE profile sources, validates them, and builds step
// plans for the reload sequencer.
//
// SchemaRegistry: manages CUE schemas for validation. Registering a
// schema resolves the named definition so validation applies its
// constraints and closedness to the data.
//
// StarlarkEvaluator: sandboxed build_steps execution with timeout
// enforcement, step-constructor builtins, and type conversion between
// Go and Starlark.
//
// # Profile Structure
//
// A profile file declares a top-level profile section:
//
//	profile: {
//	    name: "kiosk-fleet"
//	    targets: {
//	        config:   "/mnt/data/plugind/plugind.conf"
//	        manifest: "/mnt/data/plugind/plugins.list"
//	    }
//	    settings: required: {
//	        PLUGIN_LOADER_ENABLED: "1"
//	        PATCH_ENGINE_ENABLED:  "1"
//	    }
//	    unload_set: ["patch-engine"]
//	    timing: unload_settle_ms: 500
//	}
//
// # Step Planning
//
// Profiles normally reshape the canonical fix sequence through their
// paths, unload set, and timing. A build_steps script replaces the
// plan outright:
//
//	steps = [
//	    set_setting("PLUGIN_LOADER_ENABLED", "0"),
//	    delay(timings["disable_settle_ms"]),
//	    set_setting("PLUGIN_LOADER_ENABLED", "1"),
//	    unload("patch-engine"),
//	    delay(200),
//	    reload_manifest(),
//	]
//
// The script sees the resolved profile as input (config_path,
// manifest_path, unload_set, required, recommended, timings) and must
// define a steps global listing the plan.
//
// # Security
//
// Starlark execution is sandboxed:
//   - No filesystem access
//   - No network access
//   - Timeout enforcement (default 30 seconds)
//   - Print statements suppressed
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package profile
