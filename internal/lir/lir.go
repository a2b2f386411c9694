// Package lir defines a Low-level IR close to the target ISA.
// It is suitable for straightforward instruction selection and regalloc.
package lir

import (
	"fmt"
	"strings"
)

// Module bundles functions for one object file.
type Module struct {
	Name      string
	Functions []*Function
}

// Function is a sequence of basic blocks of target-like instructions.
type Function struct {
	Name   string
	Params []string
	Blocks []*BasicBlock
}

// BasicBlock contains a linear list of target-like instructions.
type BasicBlock struct {
	Label string
	Insns []Insn
}

// Insn is a target-agnostic instruction representation.
type Insn interface{ Op() string }

// Mov, Add, Sub, Mul are minimal sample instructions with textual form.
type Mov struct{ Dst, Src string }

func (Mov) Op() string       { return "mov" }
func (m Mov) String() string { return fmt.Sprintf("mov %s, %s", m.Dst, m.Src) }

type Add struct{ Dst, LHS, RHS string }

func (Add) Op() string       { return "add" }
func (a Add) String() string { return fmt.Sprintf("add %s, %s, %s", a.Dst, a.LHS, a.RHS) }

type Sub struct{ Dst, LHS, RHS string }

func (Sub) Op() string       { return "sub" }
func (s Sub) String() string { return fmt.Sprintf("sub %s, %s, %s", s.Dst, s.LHS, s.RHS) }

type Mul struct{ Dst, LHS, RHS string }

func (Mul) Op() string       { return "mul" }
func (m Mul) String() string { return fmt.Sprintf("mul %s, %s, %s", m.Dst, m.LHS, m.RHS) }

type Div struct{ Dst, LHS, RHS string }

func (Div) Op() string       { return "div" }
func (d Div) String() string { return fmt.Sprintf("div %s, %s, %s", d.Dst, d.LHS, d.RHS) }

type Ret struct{ Src string }

func (Ret) Op() string { return "ret" }
func (r Ret) String() string {
	if r.Src == "" {
		return "ret"
	}

	return fmt.Sprintf("ret %s", r.Src)
}

type Call struct {
	Dst        string
	Callee     string
	RetClass   string
	Args       []string
	ArgClasses []string
	// Tail marks a call as being in tail position. A recursive decrement
	// helper reaching its own call through a RecursivePointer field emits
	// this so the backend can lower it as a jump instead of a call,
	// turning the otherwise-recursive decrement into an iterative loop.
	Tail bool
}

func (Call) Op() string { return "call" }
func (c Call) String() string {
	var b strings.Builder
	if c.Dst != "" {
		fmt.Fprintf(&b, "%s = ", c.Dst)
	}

	if c.Tail {
		b.WriteString("tail ")
	}

	fmt.Fprintf(&b, "call %s(", c.Callee)

	for i, a := range c.Args {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteString(a)
	}

	b.WriteString(")")
	// Annotate classes as a comment for debugging.
	if len(c.ArgClasses) > 0 || c.RetClass != "" {
		b.WriteString(" ;")

		if len(c.ArgClasses) > 0 {
			b.WriteString(" args:")

			for i, cl := range c.ArgClasses {
				if i > 0 {
					b.WriteString(",")
				}

				if cl == "" {
					cl = "?"
				}

				b.WriteString(cl)
			}
		}

		if c.RetClass != "" {
			fmt.Fprintf(&b, " ret:%s", c.RetClass)
		}
	}

	return b.String()
}

// Compare and branching.
type Cmp struct{ Dst, Pred, LHS, RHS string }

func (Cmp) Op() string       { return "cmp" }
func (c Cmp) String() string { return fmt.Sprintf("cmp.%s %s, %s, %s", c.Pred, c.Dst, c.LHS, c.RHS) }

type Br struct{ Target string }

func (Br) Op() string       { return "br" }
func (b Br) String() string { return fmt.Sprintf("br %s", b.Target) }

type BrCond struct{ Cond, True, False string }

func (BrCond) Op() string       { return "brcond" }
func (b BrCond) String() string { return fmt.Sprintf("brcond %s, %s, %s", b.Cond, b.True, b.False) }

// Memory operations.
type Alloc struct{ Dst, Name string }

func (Alloc) Op() string { return "alloca" }
func (a Alloc) String() string {
	if a.Name != "" {
		return fmt.Sprintf("%s = alloca %s", a.Dst, a.Name)
	}

	return fmt.Sprintf("%s = alloca", a.Dst)
}

type Load struct{ Dst, Addr string }

func (Load) Op() string       { return "load" }
func (l Load) String() string { return fmt.Sprintf("%s = load %s", l.Dst, l.Addr) }

type Store struct{ Addr, Val string }

func (Store) Op() string       { return "store" }
func (s Store) String() string { return fmt.Sprintf("store %s, %s", s.Addr, s.Val) }

// BitCast reinterprets a value's pointer/integer representation without
// changing its bits, used to move between a tag-union's opaque payload
// pointer and its per-variant struct pointer.
type BitCast struct{ Dst, Src, ToType string }

func (BitCast) Op() string { return "bitcast" }
func (b BitCast) String() string {
	return fmt.Sprintf("%s = bitcast %s to %s", b.Dst, b.Src, b.ToType)
}

// GEP computes the address of a struct field without dereferencing it,
// mirroring LLVM's getelementptr for a fixed field index at a known offset.
type GEP struct {
	Dst    string
	Base   string
	Index  int
	Offset int64
}

func (GEP) Op() string { return "gep" }
func (g GEP) String() string {
	return fmt.Sprintf("%s = gep %s, %d ; offset=%d", g.Dst, g.Base, g.Index, g.Offset)
}

// IntToPtr converts an integer value to a pointer, used when a union's
// payload is carried as a tagged machine word.
type IntToPtr struct{ Dst, Src string }

func (IntToPtr) Op() string       { return "inttoptr" }
func (i IntToPtr) String() string { return fmt.Sprintf("%s = inttoptr %s", i.Dst, i.Src) }

// SwitchCase is one arm of a Switch instruction.
type SwitchCase struct {
	Value  int64
	Target string
}

// Switch dispatches on an integer value (a union's discriminant tag) to one
// of several basic blocks, falling back to Default when no case matches.
type Switch struct {
	Cond    string
	Default string
	Cases   []SwitchCase
}

func (Switch) Op() string { return "switch" }
func (s Switch) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "switch %s [", s.Cond)

	for i, c := range s.Cases {
		if i > 0 {
			b.WriteString(", ")
		}

		fmt.Fprintf(&b, "%d -> %s", c.Value, c.Target)
	}

	fmt.Fprintf(&b, "] default %s", s.Default)

	return b.String()
}

// OverflowAdd adds two integers and reports whether the addition overflowed,
// grounding the "sadd.with.overflow" intrinsic the refcount encoding relies
// on when bumping a cell's saturating count.
type OverflowAdd struct {
	Dst      string
	Overflow string
	LHS, RHS string
}

func (OverflowAdd) Op() string { return "sadd.with.overflow" }
func (o OverflowAdd) String() string {
	return fmt.Sprintf("%s, %s = sadd.with.overflow %s, %s", o.Dst, o.Overflow, o.LHS, o.RHS)
}

// Free calls the configured deallocation primitive on a pointer previously
// returned by the allocator, offset back from a refcounted cell's data
// pointer to the start of its allocation.
type Free struct{ Ptr string }

func (Free) Op() string       { return "free" }
func (f Free) String() string { return fmt.Sprintf("free %s", f.Ptr) }

func (m *Module) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "module %s\n", m.Name)

	for _, f := range m.Functions {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}

	return b.String()
}

func (f *Function) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "func %s() {\n", f.Name)

	for _, bb := range f.Blocks {
		if bb.Label != "" {
			fmt.Fprintf(&b, "%s:\n", bb.Label)
		}

		for _, ins := range bb.Insns {
			if s, ok := any(ins).(fmt.Stringer); ok {
				b.WriteString("  ")
				b.WriteString(s.String())
				b.WriteByte('\n')
			} else {
				fmt.Fprintf(&b, "  %s\n", ins.Op())
			}
		}
	}

	b.WriteString("}\n")

	return b.String()
}
