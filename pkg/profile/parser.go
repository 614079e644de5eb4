package profile

import (
	"context"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
)

// defaultStarlarkTimeout bounds build_steps script execution.
const defaultStarlarkTimeout = 30 * time.Second

// Parser parses and validates CUE fix profiles.
type Parser struct {
	ctx       *cue.Context
	registry  *SchemaRegistry
	starlark  *StarlarkEvaluator
	validator *validator.Validate
}

// NewParser creates a new profile parser with the builtin schemas loaded.
func NewParser() *Parser {
	return &Parser{
		ctx:       cuecontext.New(),
		registry:  NewSchemaRegistry(),
		starlark:  NewStarlarkEvaluator(defaultStarlarkTimeout),
		validator: validator.New(),
	}
}

// Load parses the given profile sources and returns the decoded profile.
// It fails on the first source whose content does not parse, decode, or
// validate; callers that want per-error locations use Parse directly.
func (p *Parser) Load(ctx context.Context, sources []string) (*Profile, error) {
	parsed, err := p.Parse(ctx, sources)
	if err != nil {
		return nil, err
	}

	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("profile validation errors: %v", parsed.Errors)
	}

	if err := p.Validate(ctx, &parsed.Profile); err != nil {
		return nil, err
	}

	return &parsed.Profile, nil
}

// Parse parses profile configuration from the given sources. Later
// sources unify with earlier ones, so a site file can refine a base
// profile; CUE rejects conflicting concrete values.
func (p *Parser) Parse(ctx context.Context, sources []string) (*ParsedProfile, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var cueValue cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		if info.IsDir() {
			val, files, errs := p.loadDirectory(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if cueValue.Exists() {
					cueValue = cueValue.Unify(val)
				} else {
					cueValue = val
				}
			}
			sourceFiles = append(sourceFiles, files...)
		} else {
			val, errs := p.loadFile(source)
			if len(errs) > 0 {
				parseErrors = append(parseErrors, errs...)
			}
			if val.Exists() {
				if cueValue.Exists() {
					cueValue = cueValue.Unify(val)
				} else {
					cueValue = val
				}
			}
			sourceFiles = append(sourceFiles, source)
		}
	}

	if len(parseErrors) > 0 {
		return &ParsedProfile{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	if err := cueValue.Err(); err != nil {
		parseErrors = append(parseErrors, p.convertCUEErrors(err)...)
		return &ParsedProfile{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	return p.extractProfile(cueValue, sourceFiles), nil
}

// ParseInline parses inline CUE content.
func (p *Parser) ParseInline(ctx context.Context, content string) (*ParsedProfile, error) {
	val := p.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return &ParsedProfile{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      p.convertCUEErrors(err),
		}, nil
	}

	return p.extractProfile(val, []string{"inline"}), nil
}

// Validate checks a profile against struct tags and the builtin schema.
func (p *Parser) Validate(ctx context.Context, prof *Profile) error {
	if err := p.validator.Struct(prof); err != nil {
		return fmt.Errorf("profile %s validation failed: %w", prof.Name, err)
	}

	if err := p.registry.ValidateProfile(ctx, *prof); err != nil {
		return fmt.Errorf("profile %s schema validation failed: %w", prof.Name, err)
	}

	return nil
}

// GetSchemaRegistry returns the schema registry.
func (p *Parser) GetSchemaRegistry() *SchemaRegistry {
	return p.registry
}

// loadDirectory loads a directory as a CUE package.
func (p *Parser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, p.convertCUEErrors(inst.Err)
	}

	val := p.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, p.convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// loadFile loads a single CUE file.
func (p *Parser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := p.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, p.convertCUEErrors(err)
	}

	return val, nil
}

// extractProfile extracts the profile from a CUE value.
func (p *Parser) extractProfile(val cue.Value, sourceFiles []string) *ParsedProfile {
	parsed := &ParsedProfile{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	profileVal := val.LookupPath(cue.ParsePath("profile"))
	if !profileVal.Exists() {
		parsed.Errors = append(parsed.Errors, ValidationError{
			Path:     "profile",
			Message:  "missing top-level profile section",
			Severity: "error",
		})
		return parsed
	}

	var prof Profile
	if err := profileVal.Decode(&prof); err != nil {
		parsed.Errors = append(parsed.Errors, ValidationError{
			Path:     "profile",
			Message:  fmt.Sprintf("failed to decode profile: %v", err),
			Severity: "error",
		})
		return parsed
	}

	if err := p.validator.Struct(prof); err != nil {
		parsed.Errors = append(parsed.Errors, ValidationError{
			Path:     "profile",
			Message:  fmt.Sprintf("validation failed: %v", err),
			Severity: "error",
		})
		return parsed
	}

	parsed.Profile = prof
	return parsed
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (p *Parser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	errs := errors.Errors(err)
	for _, e := range errs {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}
