package debug

import (
	"encoding/json"
	"testing"
)

func TestEmitter_EmitAndSerialize(t *testing.T) {
	p := &GeneratedProgram{
		ModuleName: "refcount",
		Functions: []GeneratedFunction{
			{
				Name:        "Dec_list_42",
				LayoutKind:  "List",
				BlockLabels: []string{"entry", "is_refcounted", "decref"},
				Variables: []GeneratedVariable{
					{Name: "value", Type: "ptr", Size: 8, Alignment: 8, IsParam: true},
				},
			},
		},
	}

	em := NewEmitter()

	info, err := em.Emit(p)
	if err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	if len(info.Modules) != 1 || len(info.Modules[0].Functions) != 1 {
		t.Fatalf("unexpected modules/functions")
	}

	fn := info.Modules[0].Functions[0]
	if len(fn.Lines) != 3 {
		t.Fatalf("expected 3 synthetic lines, got %d", len(fn.Lines))
	}

	out, err := Serialize(info)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	var tmp map[string]any
	if err := json.Unmarshal(out, &tmp); err != nil {
		t.Fatalf("json invalid: %v", err)
	}
}

func TestEmitter_EmitNilProgram(t *testing.T) {
	em := NewEmitter()
	if _, err := em.Emit(nil); err == nil {
		t.Fatalf("expected error for nil program")
	}
}
