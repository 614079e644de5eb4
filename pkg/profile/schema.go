package profile

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for profile validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas. The builtin
// definitions live in one CUE source so they can reference each other.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	sr.RegisterSchema("profile", builtinProfileSchema)
	sr.RegisterSchema("targets", builtinProfileSchema)
	sr.RegisterSchema("settings", builtinProfileSchema)
	sr.RegisterSchema("timing", builtinProfileSchema)
}

// RegisterSchema compiles the given CUE source and registers the
// definition named after the schema (e.g. "profile" registers
// #Profile). Validation unifies data against the definition itself,
// so the definition's constraints and closedness both apply.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definitionName(name)))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, definitionName(name))
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema definition by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// ValidateProfile validates a profile against the profile schema.
func (sr *SchemaRegistry) ValidateProfile(ctx context.Context, prof Profile) error {
	return sr.ValidateAgainstSchema(ctx, "profile", prof)
}

// ValidateTargets validates target paths against the targets schema.
func (sr *SchemaRegistry) ValidateTargets(ctx context.Context, targets TargetPaths) error {
	return sr.ValidateAgainstSchema(ctx, "targets", targets)
}

// ValidateTiming validates timing overrides against the timing schema.
func (sr *SchemaRegistry) ValidateTiming(ctx context.Context, timing Timing) error {
	return sr.ValidateAgainstSchema(ctx, "timing", timing)
}

// definitionName maps a registry name to its CUE definition label.
func definitionName(name string) string {
	return "#" + strings.ToUpper(name[:1]) + name[1:]
}

// Built-in schema definitions

const builtinProfileSchema = `
// Profile schema for replug fix profiles
#Profile: {
	// Name identifies the profile
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// Description is a human-readable summary
	description?: string

	// Targets overrides the managed file locations
	targets?: #Targets

	// Settings overrides the enforced setting sets
	settings?: #Settings

	// UnloadSet lists the unit names retired before reload
	unload_set?: [...string & =~"^[a-z0-9][a-z0-9._-]*$"]

	// Timing overrides the settle windows
	timing?: #Timing

	// BuildSteps is a Starlark script computing the step plan
	build_steps?: string
}

#Targets: {
	// Config is the runtime configuration file path
	config?: string & !=""

	// Manifest is the unit manifest file path
	manifest?: string & !=""

	// State is the orchestrator state database path
	state?: string & !=""
}

#Settings: {
	// Required settings use uppercase runtime keys
	required?: {[=~"^[A-Z][A-Z0-9_]*$"]: string}

	// Recommended settings use uppercase runtime keys
	recommended?: {[=~"^[A-Z][A-Z0-9_]*$"]: string}
}

#Timing: {
	// Settle windows are bounded to keep a bad profile from
	// stalling the fix for minutes
	disable_settle_ms?: int & >=0 & <=60000
	setting_settle_ms?: int & >=0 & <=60000
	unload_settle_ms?:  int & >=0 & <=60000
	reload_settle_ms?:  int & >=0 & <=60000
}
`
