// Package listing renders annotated instruction lists as aligned text.
package listing

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/speakeasy-api/blockjit"
)

// Options controls rendering.
type Options struct {
	// Color wraps types in ANSI escapes.
	Color bool
	// Indent is the number of spaces per nesting level (default: 2).
	Indent int
}

// Single types can be stored unboxed and get their own colour; unions and
// Unknown cannot.
var typeColors = map[blockjit.StaticType]string{
	blockjit.Number: "36",
	blockjit.Bool:   "33",
	blockjit.String: "32",
}

const (
	unionColor   = "35"
	unknownColor = "90"
)

type row struct {
	index   string
	op      string
	subject string
	typ     blockjit.StaticType
	hasType bool
	args    string
	result  string
}

// Format renders list as a string.
func Format(list *blockjit.InstructionList, opts Options) string {
	var b strings.Builder
	_ = Write(&b, list, opts)
	return b.String()
}

// Write renders one line per instruction: index, indented opcode, the
// variable, list or function it names, the variable type before it runs,
// operands and result register.
func Write(w io.Writer, list *blockjit.InstructionList, opts Options) error {
	if opts.Indent <= 0 {
		opts.Indent = 2
	}
	rows := build(list, opts.Indent)

	var opW, subjW, typW int
	for _, r := range rows {
		opW = max(opW, runewidth.StringWidth(r.op))
		subjW = max(subjW, runewidth.StringWidth(r.subject))
		if r.hasType {
			typW = max(typW, len(r.typ.String()))
		}
	}
	idxW := len(fmt.Sprint(len(rows) - 1))

	for _, r := range rows {
		var line strings.Builder
		line.WriteString(runewidth.FillLeft(r.index, idxW))
		line.WriteString("  ")
		line.WriteString(runewidth.FillRight(r.op, opW))
		line.WriteString("  ")
		line.WriteString(runewidth.FillRight(r.subject, subjW))
		line.WriteString("  ")
		typ := ""
		if r.hasType {
			typ = r.typ.String()
		}
		padded := runewidth.FillRight(typ, typW)
		if opts.Color && r.hasType {
			padded = colorize(r.typ, typ) + padded[len(typ):]
		}
		line.WriteString(padded)
		line.WriteString("  ")
		line.WriteString(r.args)
		if r.result != "" {
			line.WriteString("  => ")
			line.WriteString(r.result)
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(line.String(), " ")); err != nil {
			return err
		}
	}
	return nil
}

func build(list *blockjit.InstructionList, indent int) []row {
	regs := make(map[*blockjit.Value]int)
	rows := make([]row, 0, list.Len())
	var stack []blockjit.Opcode

	for i, ins := range list.All() {
		if ins.Result != nil {
			regs[ins.Result] = i
		}

		depth := len(stack)
		switch {
		case ins.Op == blockjit.OpBeginElse:
			depth--
		case ins.Op.IsEnd():
			depth--
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case ins.Op.IsLoopOpener() && ins.Op.HasCondition() &&
			len(stack) > 0 && stack[len(stack)-1] == blockjit.OpBeginLoopCondition:
			// Closes the condition region of the same loop.
			depth--
			stack[len(stack)-1] = ins.Op
		case ins.Op.IsBegin():
			stack = append(stack, ins.Op)
		}

		r := row{
			index: fmt.Sprint(i),
			op:    strings.Repeat(" ", max(depth, 0)*indent) + ins.Op.String(),
		}
		switch {
		case ins.Variable != nil:
			r.subject = ins.Variable.String()
		case ins.List != nil:
			r.subject = ins.List.String()
		case ins.Function != "":
			r.subject = ins.Function
		}
		if ins.Op == blockjit.OpReadVariable || ins.Op == blockjit.OpWriteVariable {
			r.typ, r.hasType = ins.TargetType, true
		}

		args := make([]string, 0, len(ins.Args))
		for _, a := range ins.Args {
			args = append(args, operand(a.Value, regs))
		}
		r.args = strings.Join(args, ", ")
		if ins.Result != nil {
			r.result = fmt.Sprintf("%%%d:%s", i, ins.Result.Type)
		}
		rows = append(rows, r)
	}
	return rows
}

func operand(v *blockjit.Value, regs map[*blockjit.Value]int) string {
	if v == nil {
		return "<nil>"
	}
	if v.IsConst() {
		return v.String()
	}
	if i, ok := regs[v]; ok {
		return fmt.Sprintf("%%%d", i)
	}
	return v.String()
}

func colorize(t blockjit.StaticType, s string) string {
	c := unionColor
	switch {
	case t.IsUnknown():
		c = unknownColor
	case t.IsSingle():
		c = typeColors[t]
	}
	return "\x1b[" + c + "m" + s + "\x1b[0m"
}
