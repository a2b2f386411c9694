package debug

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/orizon-lang/rcgen/internal/position"
)

// LineEntry maps an address (abstract) to a source line.
type LineEntry struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// VariableInfo describes a variable with scope and type.
type VariableInfo struct {
	TypeMeta    *TypeMeta     `json:"type_meta,omitempty"`
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Location    string        `json:"location"`
	AddressBase string        `json:"address_base,omitempty"`
	Span        position.Span `json:"span"`
	FrameOffset int64         `json:"frame_offset,omitempty"`
	IsParam     bool          `json:"is_param"`
	IsCaptured  bool          `json:"is_captured"`
}

// FunctionInfo describes a function for debug.
type FunctionInfo struct {
	ReturnType *TypeMeta      `json:"return_type,omitempty"`
	Name       string         `json:"name"`
	Lines      []LineEntry    `json:"lines"`
	Variables  []VariableInfo `json:"variables"`
	ParamTypes []TypeMeta     `json:"param_types,omitempty"`
	Span       position.Span  `json:"span"`
}

// ModuleDebugInfo aggregates module-level debug info.
type ModuleDebugInfo struct {
	ModuleName string         `json:"module_name"`
	Functions  []FunctionInfo `json:"functions"`
}

// ProgramDebugInfo is the top-level debug info artifact.
type ProgramDebugInfo struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Modules     []ModuleDebugInfo `json:"modules"`
}

// TypeMeta provides a lightweight, JSON-serializable snapshot of a type.
type TypeMeta struct {
	AliasOf    *TypeMeta   `json:"alias_of,omitempty"`
	Kind       string      `json:"kind"`
	Name       string      `json:"name"`
	Parameters []TypeMeta  `json:"parameters,omitempty"`
	Fields     []TypeField `json:"fields,omitempty"`
	Qualifiers []string    `json:"qualifiers,omitempty"`
	Size       int64       `json:"size"`
	Alignment  int64       `json:"alignment"`
}

// TypeField describes a struct/record field.
type TypeField struct {
	Type   TypeMeta `json:"type"`
	Name   string   `json:"name"`
	Offset int64    `json:"offset"`
}

// GeneratedVariable describes one slot (parameter or local) of a generated
// refcount helper function, as reported by the emitter that built it.
type GeneratedVariable struct {
	Name      string
	Type      string
	Size      int64
	Alignment int64
	IsParam   bool
	// TypeMeta, when set, overrides the Type/Size/Alignment trio with a full
	// type description (used for struct and array layouts, whose field
	// offsets downstream DWARF consumers need).
	TypeMeta *TypeMeta
}

// GeneratedFunction describes one memoized increment/decrement helper
// function for debug-info purposes. BlockLabels gives one synthetic
// source line per basic block, in emission order, so a disassembler or
// debugger can still step block-by-block through generated code that has
// no originating source file.
type GeneratedFunction struct {
	Name        string
	LayoutKind  string
	BlockLabels []string
	Variables   []GeneratedVariable
}

// GeneratedProgram is the debug-info input produced by the refcount
// package: one synthetic module containing every helper function it
// memoized during a run.
type GeneratedProgram struct {
	ModuleName string
	Functions  []GeneratedFunction
}

// Emitter builds debug information for generated code.
type Emitter struct{}

func NewEmitter() *Emitter { return &Emitter{} }

// Emit constructs ProgramDebugInfo from a GeneratedProgram in a
// deterministic order. Since helper functions have no originating source
// file, lines are synthesized under a "<generated>/<module>.rc" pseudo-file,
// one line per basic block, so tooling downstream of the debug-info sink
// still gets a stable, steppable line table.
func (e *Emitter) Emit(p *GeneratedProgram) (ProgramDebugInfo, error) {
	if p == nil {
		return ProgramDebugInfo{}, errors.New("nil program")
	}

	funcs := make([]GeneratedFunction, len(p.Functions))
	copy(funcs, p.Functions)
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].Name < funcs[j].Name })

	out := ProgramDebugInfo{GeneratedAt: time.Now().UTC()}
	mdi := ModuleDebugInfo{ModuleName: p.ModuleName}
	file := "<generated>/" + p.ModuleName + ".rc"

	for _, fn := range funcs {
		fi := FunctionInfo{Name: fn.Name}

		lines := make([]LineEntry, 0, len(fn.BlockLabels))
		for i := range fn.BlockLabels {
			lines = append(lines, LineEntry{File: file, Line: i + 1, Column: 1})
		}

		fi.Lines = lines

		vars := make([]VariableInfo, 0, len(fn.Variables))
		for _, v := range fn.Variables {
			tm := v.TypeMeta
			if tm == nil {
				tm = &TypeMeta{Kind: "builtin", Name: v.Type, Size: v.Size, Alignment: v.Alignment}
			}

			vars = append(vars, VariableInfo{
				Name:     v.Name,
				Type:     v.Type,
				TypeMeta: tm,
				Location: variableLocation(v),
				IsParam:  v.IsParam,
			})
		}

		sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })

		var paramOffset, localOffset int64

		for i := range vars {
			sz := int64(computeVarSlotSize(vars[i]))
			if vars[i].IsParam {
				vars[i].AddressBase = "fbreg"
				vars[i].FrameOffset = paramOffset
				paramOffset += sz
			} else {
				vars[i].AddressBase = "fbreg"
				localOffset += sz
				vars[i].FrameOffset = -localOffset
			}
		}

		fi.Variables = vars
		mdi.Functions = append(mdi.Functions, fi)
	}

	sort.Slice(mdi.Functions, func(i, j int) bool { return mdi.Functions[i].Name < mdi.Functions[j].Name })
	out.Modules = append(out.Modules, mdi)

	return out, nil
}

func variableLocation(v GeneratedVariable) string {
	if v.IsParam {
		return "param:" + v.Name
	}

	return "local:" + v.Name
}

// Serialize returns canonical JSON for the debug info.
func Serialize(info ProgramDebugInfo) ([]byte, error) {
	return json.MarshalIndent(info, "", "  ")
}

// Deserialize parses ProgramDebugInfo from JSON.
func Deserialize(b []byte) (ProgramDebugInfo, error) {
	var info ProgramDebugInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return ProgramDebugInfo{}, err
	}

	return info, nil
}

// computeVarSlotSize estimates a stack slot size for a variable for frame offset modeling.
// It prefers TypeMeta.Size when present; otherwise falls back to common base type sizes.
func computeVarSlotSize(v VariableInfo) int {
	if v.TypeMeta != nil && v.TypeMeta.Size > 0 {
		sz := int(v.TypeMeta.Size)
		if sz%8 != 0 {
			sz = ((sz + 7) / 8) * 8
		}

		return sz
	}

	switch v.Type {
	case "int64", "uint64", "float64", "i64", "u64", "f64":
		return 8
	case "int32", "uint32", "float32", "i32", "u32", "f32":
		return 4
	case "bool", "u8", "i8", "byte", "char":
		return 1
	default:
		return 8
	}
}

