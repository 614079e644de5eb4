package policy

import (
	"strconv"
	"time"

	"github.com/replug/replug/pkg/reload"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		blockedSettingsPolicy(),
		unitAllowlistPolicy(),
		unitFormatPolicy(),
		manifestSizePolicy(),
	}
}

// blockedSettingsPolicy catches setting combinations that would leave the
// runtime unable to load or patch units.
func blockedSettingsPolicy() Policy {
	return Policy{
		Name:        "blocked-settings",
		Description: "Prevents setting combinations that disable unit loading or patching",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"settings", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package replug.policies.settings

import rego.v1

deny contains violation if {
	input.settings

	# Safe mode suppresses every unit regardless of the manifest
	input.settings.SAFE_MODE == "1"
	violation := {
		"message": "SAFE_MODE=1 suppresses all unit loading",
		"severity": "error",
		"setting": "SAFE_MODE",
	}
}

deny contains violation if {
	input.settings

	input.settings.PLUGIN_LOADER_ENABLED == "0"
	violation := {
		"message": "PLUGIN_LOADER_ENABLED=0 disables the plugin loader entirely",
		"severity": "error",
		"setting": "PLUGIN_LOADER_ENABLED",
	}
}

deny contains violation if {
	input.settings

	# A running loader with a disabled patch engine loads units it cannot fix
	input.settings.PATCH_ENGINE_ENABLED == "0"
	input.settings.PLUGIN_LOADER_ENABLED == "1"
	violation := {
		"message": "PATCH_ENGINE_ENABLED=0 leaves loaded units unpatched",
		"severity": "warning",
		"setting": "PATCH_ENGINE_ENABLED",
	}
}

deny contains violation if {
	input.settings

	input.settings.REMOTE_MANAGEMENT_ENABLED == "0"
	violation := {
		"message": "REMOTE_MANAGEMENT_ENABLED=0 blocks the remote control channel",
		"severity": "warning",
		"setting": "REMOTE_MANAGEMENT_ENABLED",
	}
}`,
	}
}

// unitAllowlistPolicy confines manifest units to the known plugin
// directories.
func unitAllowlistPolicy() Policy {
	return Policy{
		Name:        "unit-allowlist",
		Description: "Ensures manifest units load only from the allowed plugin directories",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"units", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package replug.policies.units

import rego.v1

# Directories units may load from
allowed_prefixes := ["ux0:plugins/", "ur0:plugins/", "/etc/plugind/units/"]

allowed(unit) if {
	some prefix in allowed_prefixes
	startswith(unit, prefix)
}

deny contains violation if {
	input.manifest
	some unit in input.manifest.units

	not allowed(unit)
	violation := {
		"message": sprintf("Unit %s is outside the allowed plugin directories", [unit]),
		"severity": "error",
		"unit": unit,
	}
}

deny contains violation if {
	input.manifest
	some unit in input.manifest.units

	# Relative traversal escapes the allowed directories even with a good prefix
	contains(unit, "..")
	violation := {
		"message": sprintf("Unit path %s climbs out of its directory", [unit]),
		"severity": "critical",
		"unit": unit,
	}
}`,
	}
}

// unitFormatPolicy lints manifest entries for mistakes that make units
// silently unloadable.
func unitFormatPolicy() Policy {
	return Policy{
		Name:        "unit-format",
		Description: "Warns about manifest entries the runtime will not load as written",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"units", "hygiene"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package replug.policies.format

import rego.v1

# Suffixes the runtime can load
known_suffixes := [".prx", ".suprx", ".skprx", ".wasm"]

well_formed(unit) if {
	# The path is the first token; anything after it is arguments
	path := regex.split("\\s+", unit)[0]
	some suffix in known_suffixes
	endswith(path, suffix)
}

deny contains violation if {
	input.manifest
	some unit in input.manifest.units

	not well_formed(unit)
	violation := {
		"message": sprintf("Unit %s does not name a loadable file before its arguments", [unit]),
		"severity": "warning",
		"unit": unit,
	}
}

deny contains violation if {
	input.manifest
	units := input.manifest.units
	some i, unit in units
	some j, other in units
	i < j
	unit == other

	violation := {
		"message": sprintf("Unit %s is listed more than once", [unit]),
		"severity": "warning",
		"unit": unit,
	}
}`,
	}
}

// manifestSizePolicy bounds manifest size against what a reload cycle
// actually reads.
func manifestSizePolicy() Policy {
	return Policy{
		Name:        "manifest-size",
		Description: "Warns when a manifest outgrows what a reload cycle reads",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"manifest", "limits"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package replug.policies.manifest

import rego.v1

# A reload cycle reads at most this many manifest bytes; units past the
# bound are silently dropped.
max_manifest_bytes := ` + strconv.Itoa(reload.MaxConfigSize) + `

max_unit_count := 64

deny contains violation if {
	input.manifest
	input.manifest.size > max_manifest_bytes

	violation := {
		"message": sprintf("Manifest %s is %d bytes; a reload reads only the first %d", [input.manifest.path, input.manifest.size, max_manifest_bytes]),
		"severity": "error",
	}
}

deny contains violation if {
	input.manifest
	unit_count := count(input.manifest.units)
	unit_count > max_unit_count

	violation := {
		"message": sprintf("Manifest %s declares %d units, more than a reload can settle promptly", [input.manifest.path, unit_count]),
		"severity": "warning",
	}
}`,
	}
}
