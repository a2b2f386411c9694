package debug

import (
	"encoding/json"
	"errors"
	"sort"
)

// SourceMap is a compact mapping from generated code back to synthetic
// "source" locations within the generated-code pseudo-files.
type SourceMap struct {
	Version   int              `json:"version"`
	Files     []string         `json:"files"`
	Functions []FunctionRanges `json:"functions"`
}

// FunctionRanges captures the line ranges that belong to a function per file.
type FunctionRanges struct {
	Module   string          `json:"module"`
	Name     string          `json:"name"`
	Mappings []FileLineRange `json:"mappings"`
}

// FileLineRange is an inclusive line range within a specific file.
type FileLineRange struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	StartCol  int    `json:"start_col"`
	EndLine   int    `json:"end_line"`
	EndCol    int    `json:"end_col"`
}

// GenerateSourceMap builds a SourceMap from a GeneratedProgram. Each helper
// function's block labels become a contiguous line range in a synthetic
// per-module file, mirroring the line table produced by Emitter.Emit.
func GenerateSourceMap(p *GeneratedProgram) (SourceMap, error) {
	if p == nil {
		return SourceMap{}, errors.New("nil program")
	}

	file := "<generated>/" + p.ModuleName + ".rc"

	var out SourceMap
	out.Version = 1
	out.Files = []string{file}

	funcs := make([]GeneratedFunction, len(p.Functions))
	copy(funcs, p.Functions)
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].Name < funcs[j].Name })

	for _, fn := range funcs {
		if len(fn.BlockLabels) == 0 {
			continue
		}

		mapping := FileLineRange{
			File:      file,
			StartLine: 1,
			StartCol:  1,
			EndLine:   len(fn.BlockLabels),
			EndCol:    1,
		}

		out.Functions = append(out.Functions, FunctionRanges{
			Module:   p.ModuleName,
			Name:     fn.Name,
			Mappings: []FileLineRange{mapping},
		})
	}

	return out, nil
}

// SerializeSourceMap returns canonical JSON for the SourceMap.
func SerializeSourceMap(sm SourceMap) ([]byte, error) {
	return json.MarshalIndent(sm, "", "  ")
}
