package debug

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// minimalProgram builds a tiny GeneratedProgram with one function and one
// parameter, enough to seed a line mapping and a frame-base/location entry.
func minimalProgram() *GeneratedProgram {
	return &GeneratedProgram{
		ModuleName: "refcount",
		Functions: []GeneratedFunction{
			{
				Name:        "foo",
				LayoutKind:  "Struct",
				BlockLabels: []string{"entry", "body"},
				Variables: []GeneratedVariable{
					{Name: "x", Type: "i64", Size: 8, Alignment: 8, IsParam: true},
				},
			},
		},
	}
}

func TestBuildDWARF_MinimalSections(t *testing.T) {
	em := NewEmitter()

	dbg, err := em.Emit(minimalProgram())
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	secs, err := BuildDWARF(dbg)
	if err != nil {
		t.Fatalf("BuildDWARF: %v", err)
	}

	if len(secs.Abbrev) == 0 || len(secs.Info) == 0 || len(secs.Line) == 0 || len(secs.Str) == 0 {
		t.Fatalf("unexpected empty sections: %+v", secs)
	}

	if len(secs.Info) < 8 {
		t.Fatalf("info too small: %d", len(secs.Info))
	}

	ul := uint32(secs.Info[0]) | uint32(secs.Info[1])<<8 | uint32(secs.Info[2])<<16 | uint32(secs.Info[3])<<24
	if int(ul) != len(secs.Info)-4 {
		t.Fatalf("info unit length mismatch: got %d want %d", ul, len(secs.Info)-4)
	}

	if len(secs.Line) < 8 {
		t.Fatalf("line too small: %d", len(secs.Line))
	}

	ll := uint32(secs.Line[0]) | uint32(secs.Line[1])<<8 | uint32(secs.Line[2])<<16 | uint32(secs.Line[3])<<24
	if int(ll) != len(secs.Line)-4 {
		t.Fatalf("line unit length mismatch: got %d want %d", ll, len(secs.Line)-4)
	}

	if secs.Abbrev[0] != 0x01 {
		t.Fatalf("abbrev does not start with code 1: 0x%x", secs.Abbrev[0])
	}
}

func TestBuildDWARF_ContainsFrameBaseAndParamLocation(t *testing.T) {
	em := NewEmitter()

	dbg, err := em.Emit(minimalProgram())
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	secs, err := BuildDWARF(dbg)
	if err != nil {
		t.Fatalf("BuildDWARF: %v", err)
	}

	if len(secs.Info) == 0 {
		t.Fatalf("info empty")
	}

	foundCFA := false

	for _, b := range secs.Info {
		if b == 0x9c {
			foundCFA = true

			break
		}
	}

	if !foundCFA {
		t.Fatalf("expected DW_OP_call_frame_cfa (0x9c) in .debug_info")
	}

	foundFBReg := false

	for _, b := range secs.Info {
		if b == 0x91 {
			foundFBReg = true

			break
		}
	}

	if !foundFBReg {
		t.Fatalf("expected DW_OP_fbreg (0x91) in .debug_info")
	}

	if len(secs.Abbrev) == 0 || secs.Abbrev[0] == 0 {
		t.Fatalf("abbrev empty")
	}
}

func TestWriteELFWithDWARF_Minimal(t *testing.T) {
	em := NewEmitter()

	dbg, err := em.Emit(minimalProgram())
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	secs, err := BuildDWARF(dbg)
	if err != nil {
		t.Fatalf("BuildDWARF: %v", err)
	}

	tmp := t.TempDir()
	out := filepath.Join(tmp, "dbg.o")

	if err := WriteELFWithDWARF(out, secs); err != nil {
		t.Fatalf("WriteELFWithDWARF: %v", err)
	}

	fi, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if fi.Size() <= 64 {
		t.Fatalf("elf too small: %d", fi.Size())
	}
}

func TestWriteCOFFWithDWARF_Minimal(t *testing.T) {
	em := NewEmitter()

	dbg, err := em.Emit(minimalProgram())
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	secs, err := BuildDWARF(dbg)
	if err != nil {
		t.Fatalf("BuildDWARF: %v", err)
	}

	tmp := t.TempDir()
	out := filepath.Join(tmp, "dbg.obj")

	if err := WriteCOFFWithDWARF(out, secs); err != nil {
		t.Fatalf("WriteCOFFWithDWARF: %v", err)
	}

	fi, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if fi.Size() <= 20 {
		t.Fatalf("coff too small: %d", fi.Size())
	}
}

func TestWriteMachOWithDWARF_Minimal(t *testing.T) {
	em := NewEmitter()

	dbg, err := em.Emit(minimalProgram())
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	secs, err := BuildDWARF(dbg)
	if err != nil {
		t.Fatalf("BuildDWARF: %v", err)
	}

	tmp := t.TempDir()
	out := filepath.Join(tmp, "dbg.o")

	if err := WriteMachOWithDWARF(out, secs); err != nil {
		t.Fatalf("WriteMachOWithDWARF: %v", err)
	}

	fi, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if fi.Size() <= 32 {
		t.Fatalf("macho too small: %d", fi.Size())
	}
}

func TestBuildDWARF_StructArray_DIEs(t *testing.T) {
	structType := &TypeMeta{
		Kind: "struct",
		Name: "S",
		Fields: []TypeField{
			{Name: "a", Offset: 0, Type: TypeMeta{Kind: "builtin", Name: "int32", Size: 4, Alignment: 4}},
			{Name: "b", Offset: 8, Type: TypeMeta{Kind: "pointer", Name: "*int64", Size: 8, Alignment: 8}},
		},
		Size:      16,
		Alignment: 8,
	}
	arrType := &TypeMeta{Kind: "array", Name: "[]int32", Size: 4, Alignment: 4}

	p := &GeneratedProgram{
		ModuleName: "refcount",
		Functions: []GeneratedFunction{
			{
				Name:        "f",
				LayoutKind:  "Struct",
				BlockLabels: []string{"entry"},
				Variables: []GeneratedVariable{
					{Name: "s", IsParam: true, TypeMeta: structType},
					{Name: "arr", IsParam: true, TypeMeta: arrType},
				},
			},
		},
	}

	em := NewEmitter()

	dbg, err := em.Emit(p)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	secs, err := BuildDWARF(dbg)
	if err != nil {
		t.Fatalf("BuildDWARF: %v", err)
	}

	if !bytes.Contains(secs.Str, []byte("S\x00")) || !bytes.Contains(secs.Str, []byte("a\x00")) || !bytes.Contains(secs.Str, []byte("b\x00")) {
		t.Fatalf("expected struct and member names in .debug_str")
	}
}

func TestBuildDWARF_StructMemberOffsets(t *testing.T) {
	structType := &TypeMeta{
		Kind: "struct",
		Name: "S",
		Fields: []TypeField{
			{Name: "a", Offset: 0, Type: TypeMeta{Kind: "builtin", Name: "int32", Size: 4, Alignment: 4}},
			{Name: "b", Offset: 4, Type: TypeMeta{Kind: "pointer", Name: "*int64", Size: 8, Alignment: 8}},
		},
		Size:      12,
		Alignment: 8,
	}

	p := &GeneratedProgram{
		ModuleName: "refcount",
		Functions: []GeneratedFunction{
			{
				Name:        "f",
				LayoutKind:  "Struct",
				BlockLabels: []string{"entry"},
				Variables: []GeneratedVariable{
					{Name: "s", IsParam: true, TypeMeta: structType},
				},
			},
		},
	}

	em := NewEmitter()

	dbg, err := em.Emit(p)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	secs, err := BuildDWARF(dbg)
	if err != nil {
		t.Fatalf("BuildDWARF: %v", err)
	}

	want := []byte{0x04, 0x00, 0x00, 0x00}
	if !bytes.Contains(secs.Info, want) {
		t.Fatalf("expected member offset 4 encoded in .debug_info")
	}
}
