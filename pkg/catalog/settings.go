// Package catalog holds the static data the orchestrator consumes: required
// and preferred configuration settings for the plugin runtime, the default
// unit set cycled during reactivation, and the known problematic-title list.
// Everything here is pure data; behavior lives in the packages that read it.
package catalog

// Configuration keys understood by the plugin runtime.
const (
	// KeyLoaderEnabled turns the plugin loader itself on or off.
	KeyLoaderEnabled = "PLUGIN_LOADER_ENABLED"

	// KeyPatchEngineEnabled controls the patch-engine unit that rewrites
	// runtime behavior of loaded titles.
	KeyPatchEngineEnabled = "PATCH_ENGINE_ENABLED"

	// KeyRemoteManagementEnabled controls the remote management server.
	KeyRemoteManagementEnabled = "REMOTE_MANAGEMENT_ENABLED"

	// KeySafeMode, when set to 1, suppresses all unit loading. It conflicts
	// with every other setting here.
	KeySafeMode = "SAFE_MODE"

	// KeyLoadTimeout bounds individual unit loads, in milliseconds.
	KeyLoadTimeout = "LOAD_TIMEOUT_MS"

	// KeyVerboseLogging toggles the runtime's own chatty logging.
	KeyVerboseLogging = "VERBOSE_LOGGING"

	// KeyAutoReload lets the runtime pick up manifest changes on its own.
	KeyAutoReload = "AUTO_RELOAD"
)

// SettingsSection is the config section canonical settings are written under.
const SettingsSection = "Settings"

// SafeModeBlockedValue is the KeySafeMode value that blocks unit loading.
const SafeModeBlockedValue = "1"

// Default resource locations.
const (
	DefaultConfigPath   = "/etc/plugind/plugind.conf"
	DefaultManifestPath = "/etc/plugind/plugins.list"
	DefaultStatePath    = "/var/lib/replug/replug.db"
)

// Setting pairs a configuration key with its value.
type Setting struct {
	Key   string
	Value string
}

// Preference is an optional setting with the reason it is preferred.
type Preference struct {
	Key    string
	Value  string
	Reason string
}

// RequiredSettings returns the settings a healthy runtime configuration must
// carry, in canonical write order.
func RequiredSettings() []Setting {
	return []Setting{
		{Key: KeyLoaderEnabled, Value: "1"},
		{Key: KeyPatchEngineEnabled, Value: "1"},
		{Key: KeyRemoteManagementEnabled, Value: "1"},
	}
}

// Preferences returns the optional settings the advisor recommends when a
// configuration disagrees or is silent.
func Preferences() []Preference {
	return []Preference{
		{Key: KeyLoadTimeout, Value: "5000", Reason: "bounded unit loads keep reload sweeps from hanging"},
		{Key: KeyVerboseLogging, Value: "0", Reason: "verbose runtime logging distorts reload settle timing"},
		{Key: KeyAutoReload, Value: "1", Reason: "runtime picks up manifest changes without a manual fix"},
	}
}

// DefaultUnloadSet returns the unit names cycled (unloaded then reloaded
// from the manifest) during reactivation.
func DefaultUnloadSet() []string {
	return []string{"patch-engine", "overlay-menu"}
}
