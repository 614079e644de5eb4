package profile

import (
	"context"
	"testing"
	"time"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		input     map[string]interface{}
		checkFunc func(*testing.T, *StarlarkResult)
		wantErr   bool
	}{
		{
			name: "simple arithmetic",
			script: `
result = 2 + 2
`,
			input: nil,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != int64(4) {
					t.Errorf("expected result=4, got %v", sr.Output["result"])
				}
			},
		},
		{
			name: "use input variables",
			script: `
doubled = count * 2
`,
			input: map[string]interface{}{
				"count": 5,
			},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["doubled"] != int64(10) {
					t.Errorf("expected doubled=10, got %v", sr.Output["doubled"])
				}
			},
		},
		{
			name: "step constructor produces step dict",
			script: `
step = set_setting("PLUGIN_LOADER_ENABLED", "1")
`,
			input: nil,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				step, ok := sr.Output["step"].(map[string]interface{})
				if !ok {
					t.Fatalf("expected step to be a dict, got %T", sr.Output["step"])
				}
				if step["op"] != "set" || step["key"] != "PLUGIN_LOADER_ENABLED" || step["value"] != "1" {
					t.Errorf("unexpected step dict: %v", step)
				}
			},
		},
		{
			name: "plan built from input",
			script: `
steps = [unload(*unload_set), reload_manifest()]
`,
			input: map[string]interface{}{
				"unload_set": []string{"patch-engine", "overlay-menu"},
			},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				steps, ok := sr.Output["steps"].([]interface{})
				if !ok {
					t.Fatalf("expected steps to be a list, got %T", sr.Output["steps"])
				}
				if len(steps) != 2 {
					t.Fatalf("expected 2 steps, got %d", len(steps))
				}
				first := steps[0].(map[string]interface{})
				if first["op"] != "unload" {
					t.Errorf("expected unload op, got %v", first["op"])
				}
				names, ok := first["names"].([]interface{})
				if !ok || len(names) != 2 || names[0] != "patch-engine" {
					t.Errorf("unexpected unload names: %v", first["names"])
				}
				second := steps[1].(map[string]interface{})
				if second["op"] != "reload" || second["path"] != "" {
					t.Errorf("unexpected reload step: %v", second)
				}
			},
		},
		{
			name: "delay constructor validates input",
			script: `
step = delay(-5)
`,
			input:   nil,
			wantErr: true,
		},
		{
			name: "underscore globals are skipped",
			script: `
_scratch = 99
result = 1
`,
			input: nil,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if _, ok := sr.Output["_scratch"]; ok {
					t.Error("expected _scratch to be skipped")
				}
				if sr.Output["result"] != int64(1) {
					t.Errorf("expected result=1, got %v", sr.Output["result"])
				}
			},
		},
		{
			name: "syntax error",
			script: `
steps = [
`,
			input:   nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, tt.input)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got none")
				}
				if result != nil && result.Error == "" {
					t.Error("expected error in result")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.checkFunc != nil {
				tt.checkFunc(t, result)
			}
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(100 * time.Millisecond)
	ctx := context.Background()

	// Script that takes too long
	script := `
def slow_function():
    result = 0
    for i in range(20000000):
        result = result + i
    return result

output = slow_function()
`

	result, err := evaluator.Evaluate(ctx, script, nil)
	if err == nil {
		t.Error("expected timeout error")
	}

	if result != nil && result.Error == "" {
		t.Error("expected timeout error in result")
	}
}

func TestStarlarkEvaluator_Security(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	// Attempt to use print (should be suppressed)
	script := `
print("this should not appear")
result = "done"
`

	result, err := evaluator.Evaluate(ctx, script, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Output["result"] != "done" {
		t.Errorf("expected result='done', got %v", result.Output["result"])
	}
}

func TestStarlarkEvaluator_TypeConversion(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		input     map[string]interface{}
		script    string
		checkFunc func(*testing.T, *StarlarkResult)
	}{
		{
			name: "bool conversion",
			input: map[string]interface{}{
				"enabled": true,
			},
			script: `
result = enabled and True
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != true {
					t.Errorf("expected result=true, got %v", sr.Output["result"])
				}
			},
		},
		{
			name: "string map conversion",
			input: map[string]interface{}{
				"required": map[string]string{
					"PLUGIN_LOADER_ENABLED": "1",
				},
			},
			script: `
value = required["PLUGIN_LOADER_ENABLED"]
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["value"] != "1" {
					t.Errorf("expected value='1', got %v", sr.Output["value"])
				}
			},
		},
		{
			name: "nested map conversion",
			input: map[string]interface{}{
				"timings": map[string]interface{}{
					"unload_settle_ms": int64(200),
				},
			},
			script: `
window = timings["unload_settle_ms"]
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["window"] != int64(200) {
					t.Errorf("expected window=200, got %v", sr.Output["window"])
				}
			},
		},
		{
			name:  "struct conversion",
			input: nil,
			script: `
pair = struct(key = "LOAD_TIMEOUT_MS", value = "5000")
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				pair, ok := sr.Output["pair"].(map[string]interface{})
				if !ok {
					t.Fatalf("expected pair to be a dict, got %T", sr.Output["pair"])
				}
				if pair["key"] != "LOAD_TIMEOUT_MS" || pair["value"] != "5000" {
					t.Errorf("unexpected pair: %v", pair)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.checkFunc != nil {
				tt.checkFunc(t, result)
			}
		})
	}
}
