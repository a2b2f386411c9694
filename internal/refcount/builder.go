package refcount

import (
	"fmt"
	"strconv"

	"github.com/orizon-lang/rcgen/internal/lir"
)

// Value is an operand: an SSA temporary's name (e.g. "%t3"), a parameter
// name, or a literal (e.g. "42"). It follows the same plain-string operand
// convention the underlying low-level IR already uses for registers.
type Value = string

// funcBuilder accumulates basic blocks and instructions for one generated
// lir.Function, tracking the current insertion block and a per-function
// temporary counter. It is intentionally unexported: external callers only
// ever see the finished *lir.Function through Emitter's public API.
type funcBuilder struct {
	fn     *lir.Function
	cur    *lir.BasicBlock
	tmp    int
	blockN int
}

// helperParamsFor returns the parameter list a generated helper takes for
// mode. A decrement helper's signature is void(value): it always drops the
// count by exactly one, so it carries no amount. An increment helper's
// signature is void(value, amount): a plain inc-by-1 call site simply
// passes the literal "1"; a loop-collapsing caller can pass a runtime count
// instead, without needing a second helper body.
func helperParamsFor(mode Mode) []string {
	if mode == ModeDec {
		return []string{"value"}
	}

	return []string{"value", "amount"}
}

func newFuncBuilder(name string, params []string) *funcBuilder {
	fn := &lir.Function{Name: name, Params: params}
	b := &funcBuilder{fn: fn}
	b.block("entry")

	return b
}

func (b *funcBuilder) newTemp(prefix string) Value {
	b.tmp++

	return fmt.Sprintf("%%%s%d", prefix, b.tmp)
}

// block opens a new basic block, appends it to the function, and makes it
// the current insertion point. Labels are de-duplicated with a numeric
// suffix so callers can pass descriptive names freely.
func (b *funcBuilder) block(label string) *lir.BasicBlock {
	b.blockN++
	bb := &lir.BasicBlock{Label: fmt.Sprintf("%s_%d", label, b.blockN)}
	b.fn.Blocks = append(b.fn.Blocks, bb)
	b.cur = bb

	return bb
}

func (b *funcBuilder) emit(i lir.Insn) {
	b.cur.Insns = append(b.cur.Insns, i)
}

// reserveLabel allocates a unique block label without creating the block,
// so a branch instruction can reference a forward target before the block
// it names has been opened.
func (b *funcBuilder) reserveLabel(name string) string {
	b.blockN++

	return fmt.Sprintf("%s_%d", name, b.blockN)
}

// reserveLabels2 and reserveLabels3 allocate two or three unique labels at
// once, in argument order, for the common case of a branch whose targets
// are all known up front.
func reserveLabels2(b *funcBuilder, a, c string) (string, string) {
	return b.reserveLabel(a), b.reserveLabel(c)
}

func reserveLabels3(b *funcBuilder, a, c, d string) (string, string, string) {
	return b.reserveLabel(a), b.reserveLabel(c), b.reserveLabel(d)
}

// openReserved creates and opens a block under a label previously returned
// by reserveLabel/reserveLabels, making it the current insertion point.
func (b *funcBuilder) openReserved(label string) *lir.BasicBlock {
	bb := &lir.BasicBlock{Label: label}
	b.fn.Blocks = append(b.fn.Blocks, bb)
	b.cur = bb

	return bb
}

// blockLabels returns the labels of every block emitted so far, in
// emission order, for use as the debug-info sink's synthetic line table.
func (b *funcBuilder) blockLabels() []string {
	labels := make([]string, len(b.fn.Blocks))
	for i, bb := range b.fn.Blocks {
		labels[i] = bb.Label
	}

	return labels
}

func intLit(v int64) string { return strconv.FormatInt(v, 10) }
