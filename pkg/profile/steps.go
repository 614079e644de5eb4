package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/replug/replug/pkg/catalog"
	"github.com/replug/replug/pkg/reload"
)

// Step plan operation names, shared between the Starlark builtins and
// the plan decoder.
const (
	opSetSetting = "set"
	opDelay      = "delay"
	opUnload     = "unload"
	opReload     = "reload"
)

// Timings converts the profile's timing overrides to settle windows.
// Fields left at zero keep the stock window.
func (p *Profile) Timings() reload.Timings {
	t := reload.DefaultTimings()
	if p.Timing == nil {
		return t
	}

	if p.Timing.DisableSettleMS > 0 {
		t.DisableSettle = time.Duration(p.Timing.DisableSettleMS) * time.Millisecond
	}
	if p.Timing.SettingSettleMS > 0 {
		t.SettingSettle = time.Duration(p.Timing.SettingSettleMS) * time.Millisecond
	}
	if p.Timing.UnloadSettleMS > 0 {
		t.UnloadSettle = time.Duration(p.Timing.UnloadSettleMS) * time.Millisecond
	}
	if p.Timing.ReloadSettleMS > 0 {
		t.ReloadSettle = time.Duration(p.Timing.ReloadSettleMS) * time.Millisecond
	}

	return t
}

// Plan returns the canonical fix sequence with the profile's paths,
// unload set, and timing applied. The build_steps hook, if any, is
// not consulted; use Parser.BuildPlan for that.
func (p *Profile) Plan() []reload.Step {
	return reload.FixSequenceWithTimings(p.ManifestPath(), p.Units(), p.Timings())
}

// BuildPlan returns the profile's step plan. When the profile carries a
// build_steps script the script is evaluated and must define a "steps"
// global listing the plan; otherwise the canonical sequence is used.
func (p *Parser) BuildPlan(ctx context.Context, prof *Profile) ([]reload.Step, error) {
	if prof.BuildSteps == "" {
		return prof.Plan(), nil
	}

	timings := prof.Timings()

	// The input key is unload_set, not unload, so it cannot shadow the
	// unload builtin in the predeclared environment.
	input := map[string]interface{}{
		"config_path":   prof.ConfigPath(),
		"manifest_path": prof.ManifestPath(),
		"unload_set":    prof.Units(),
		"required":      settingsToMap(prof.RequiredSettings()),
		"recommended":   settingsToMap(prof.RecommendedSettings()),
		"timings": map[string]interface{}{
			"disable_settle_ms": int64(timings.DisableSettle / time.Millisecond),
			"setting_settle_ms": int64(timings.SettingSettle / time.Millisecond),
			"unload_settle_ms":  int64(timings.UnloadSettle / time.Millisecond),
			"reload_settle_ms":  int64(timings.ReloadSettle / time.Millisecond),
		},
	}

	result, err := p.starlark.Evaluate(ctx, prof.BuildSteps, input)
	if err != nil {
		return nil, fmt.Errorf("build_steps script failed: %w", err)
	}

	raw, ok := result.Output["steps"]
	if !ok {
		return nil, fmt.Errorf("build_steps script did not define steps")
	}

	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("build_steps steps must be a list, got %T", raw)
	}

	return stepsFromPlan(list, prof.ManifestPath())
}

// stepsFromPlan decodes a script-produced plan into reload steps.
func stepsFromPlan(plan []interface{}, manifestPath string) ([]reload.Step, error) {
	if len(plan) == 0 {
		return nil, fmt.Errorf("build_steps produced an empty plan")
	}

	steps := make([]reload.Step, 0, len(plan))
	for i, entry := range plan {
		dict, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("step %d is not a step dict, got %T", i, entry)
		}

		op, _ := dict["op"].(string)
		switch op {
		case opSetSetting:
			key, ok := dict["key"].(string)
			if !ok || key == "" {
				return nil, fmt.Errorf("step %d: set requires a key", i)
			}
			value, ok := dict["value"].(string)
			if !ok {
				return nil, fmt.Errorf("step %d: set requires a value", i)
			}
			steps = append(steps, reload.SetSetting{Key: key, Value: value})

		case opDelay:
			ms, ok := dict["ms"].(int64)
			if !ok {
				return nil, fmt.Errorf("step %d: delay requires ms", i)
			}
			if ms < 0 {
				return nil, fmt.Errorf("step %d: delay ms cannot be negative", i)
			}
			steps = append(steps, reload.Delay{Duration: time.Duration(ms) * time.Millisecond})

		case opUnload:
			rawNames, ok := dict["names"].([]interface{})
			if !ok {
				return nil, fmt.Errorf("step %d: unload requires names", i)
			}
			names := make([]string, len(rawNames))
			for j, rawName := range rawNames {
				name, ok := rawName.(string)
				if !ok {
					return nil, fmt.Errorf("step %d: unload name %d is not a string", i, j)
				}
				names[j] = name
			}
			steps = append(steps, reload.UnloadSet{Names: names})

		case opReload:
			path, _ := dict["path"].(string)
			if path == "" {
				path = manifestPath
			}
			steps = append(steps, reload.ReloadFromManifest{Path: path})

		default:
			return nil, fmt.Errorf("step %d: unknown op %q", i, op)
		}
	}

	return steps, nil
}

// settingsToMap flattens a setting slice for script input.
func settingsToMap(settings []catalog.Setting) map[string]string {
	m := make(map[string]string, len(settings))
	for _, setting := range settings {
		m[setting.Key] = setting.Value
	}
	return m
}
