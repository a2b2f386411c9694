package debug

import (
	"encoding/json"
	"testing"
)

func TestGenerateSourceMap_Minimal(t *testing.T) {
	p := &GeneratedProgram{
		ModuleName: "refcount",
		Functions: []GeneratedFunction{
			{Name: "f", BlockLabels: []string{"entry", "decref"}},
		},
	}

	sm, err := GenerateSourceMap(p)
	if err != nil {
		t.Fatalf("GenerateSourceMap failed: %v", err)
	}

	if len(sm.Files) != 1 || sm.Files[0] != "<generated>/refcount.rc" {
		t.Fatalf("unexpected files: %+v", sm.Files)
	}

	if len(sm.Functions) != 1 || sm.Functions[0].Name != "f" || len(sm.Functions[0].Mappings) == 0 {
		t.Fatalf("unexpected functions: %+v", sm.Functions)
	}

	if _, err := json.Marshal(sm); err != nil {
		t.Fatalf("json marshal failed: %v", err)
	}
}

func TestGenerateSourceMap_NilProgram(t *testing.T) {
	if _, err := GenerateSourceMap(nil); err == nil {
		t.Fatalf("expected error for nil program")
	}
}
