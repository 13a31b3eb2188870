// Package typeanalysis computes, for every read and write of a script
// variable, the set of runtime types the variable may hold at that point.
//
// The analysis is a forward walk over a structured instruction list that
// carries the types of all variables together. Blocks (if, if/else and the
// loop forms) are summarised by TypeAfterBlock; the whole-script walk steps
// over each block as a single unit. Whenever information is missing the
// result is Unknown, never a narrower guess, because lowering uses these
// annotations to pick unboxed storage.
package typeanalysis

import (
	"fmt"
	"sync/atomic"

	"github.com/speakeasy-api/blockjit"
)

type walkStatus uint8

const (
	walkPending walkStatus = iota
	walkRunning
	walkDone
)

var analyzerSeq atomic.Uint64

// Analyzer computes static variable types for one instruction list.
// It is not safe for concurrent use; independent lists need independent Analyzers.
type Analyzer struct {
	list      *blockjit.InstructionList
	br        *brackets
	opts      Options
	logger    Logger
	execID    string
	loopLimit int

	vars   []*blockjit.Variable
	slots  map[*blockjit.Variable]int
	status walkStatus
	before []typeState // state before each visited instruction, nil if never reached

	warnings []string
	warned   map[string]bool
}

// New prepares an Analyzer for list. It fails only when the block markers
// of list do not nest.
func New(list *blockjit.InstructionList, opts ...Options) (*Analyzer, error) {
	if list == nil {
		return nil, ErrNilList
	}
	opt := DefaultOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	var logger Logger
	switch {
	case opt.Logger != nil:
		logger = opt.Logger
	case opt.LogLevel != "":
		logger = NewLogger(ParseLogLevel(opt.LogLevel), opt.LogOutput)
	default:
		logger = newNoopLogger()
	}
	execID := fmt.Sprintf("a%d", analyzerSeq.Add(1))
	logger = logger.With(map[string]any{"exec": execID})

	br, err := buildBrackets(list)
	if err != nil {
		logger.Errorf("Rejected instruction list: %v", err)
		return nil, fmt.Errorf("invalid instruction list: %w", err)
	}

	vars := list.Variables()
	slots := make(map[*blockjit.Variable]int, len(vars))
	for i, v := range vars {
		slots[v] = i
	}
	loopLimit := opt.MaxLoopPasses
	if loopLimit <= 0 {
		loopLimit = 2*len(vars) + 2
	}

	return &Analyzer{
		list:      list,
		br:        br,
		opts:      opt,
		logger:    logger,
		execID:    execID,
		loopLimit: loopLimit,
		vars:      vars,
		slots:     slots,
		before:    make([]typeState, list.Len()),
		warned:    make(map[string]bool),
	}, nil
}

// AnalyzeScript annotates list in place: every variable read and write gets
// its TargetType and every register operand its resolved type.
func AnalyzeScript(list *blockjit.InstructionList, opts ...Options) (*Result, error) {
	a, err := New(list, opts...)
	if err != nil {
		return nil, err
	}
	return a.Annotate(), nil
}

// Annotate runs the whole-script walk and writes the results into the list,
// replacing any earlier annotations.
func (a *Analyzer) Annotate() *Result {
	names := make([]string, len(a.vars))
	for i, v := range a.vars {
		names[i] = v.String()
	}
	a.logger.With(map[string]any{
		"instructions": a.list.Len(),
		"variables":    truncateList(names, a.opts.LogMaxVariables),
	}).Infof("Starting type analysis")

	a.list.ResetAnnotations()
	a.ensure()

	annotated, unboxed := 0, 0
	for i, ins := range a.list.All() {
		switch ins.Op {
		case blockjit.OpReadVariable, blockjit.OpWriteVariable:
			if ins.Variable == nil {
				break
			}
			t := a.typeBefore(ins.Variable, i)
			ins.TargetType = t
			if ins.Op == blockjit.OpReadVariable && ins.Result != nil {
				ins.Result.Type = t
			}
			annotated++
			if t.IsSingle() {
				unboxed++
			}
		default:
			if ins.Result != nil {
				ins.Result.Type = a.registerType(ins.Result)
			}
		}
		for _, arg := range ins.Args {
			if arg.Value != nil {
				arg.Value.Type = a.registerType(arg.Value)
			}
		}
	}

	res := &Result{
		Variables:   a.summaries(),
		Annotated:   annotated,
		Unboxed:     unboxed,
		Fingerprint: Fingerprint(a.list),
		Warnings:    a.Warnings(),
	}
	a.logger.With(map[string]any{
		"annotated": annotated,
		"unboxed":   unboxed,
		"warnings":  len(res.Warnings),
	}).Infof("Type analysis complete")
	return res
}

// TypeAfterBlock returns the type of v immediately after the block opened by
// start, given entry on entry to the block. Other variables enter the block
// with the types the whole-script walk found there. It returns entry
// unchanged when v or start is nil or start does not open a block.
func (a *Analyzer) TypeAfterBlock(v *blockjit.Variable, start *blockjit.Instruction, entry blockjit.StaticType) blockjit.StaticType {
	if v == nil || start == nil {
		return entry
	}
	idx, ok := a.list.IndexOf(start)
	if !ok {
		return entry
	}
	b := a.br.at(idx)
	if b == nil {
		return entry
	}

	a.ensure()
	ctx := make(typeState, len(a.vars))
	if s := a.before[b.start]; s != nil {
		ctx = s.clone()
	}
	slot, tracked := a.slots[v]
	if !tracked {
		// v never appears in the list; only procedure calls can change it.
		ctx = append(ctx, entry)
		slot = len(ctx) - 1
	}
	ctx[slot] = entry

	w := newWalker(a, false)
	return w.block(b, ctx)[slot]
}

// TypeBeforeInstruction returns the type of v immediately before ins runs.
func (a *Analyzer) TypeBeforeInstruction(v *blockjit.Variable, ins *blockjit.Instruction) blockjit.StaticType {
	if v == nil || ins == nil {
		return blockjit.Unknown
	}
	idx, ok := a.list.IndexOf(ins)
	if !ok {
		return blockjit.Unknown
	}
	return a.typeBefore(v, idx)
}

// Warnings returns the precision-loss notes collected so far.
func (a *Analyzer) Warnings() []string {
	out := make([]string, len(a.warnings))
	copy(out, a.warnings)
	return out
}

// ensure runs the whole-script walk unless it already ran.
func (a *Analyzer) ensure() {
	if a.status != walkPending {
		return
	}
	a.status = walkRunning
	w := newWalker(a, true)
	final := w.walkRange(0, a.list.Len(), make(typeState, len(a.vars)))
	a.status = walkDone
	a.logger.With(map[string]any{
		"final": a.stateString(final),
	}).Debugf("Script walk complete")
}

// typeBefore returns the recorded type of v before instruction i. Positions
// the walk never reached, and queries made while the walk is still running,
// resolve to Unknown.
func (a *Analyzer) typeBefore(v *blockjit.Variable, i int) blockjit.StaticType {
	slot, ok := a.slots[v]
	if !ok || a.status == walkRunning {
		return blockjit.Unknown
	}
	a.ensure()
	if i < 0 || i >= len(a.before) || a.before[i] == nil {
		return blockjit.Unknown
	}
	return a.before[i][slot]
}

// registerType resolves the static type of an operand.
func (a *Analyzer) registerType(val *blockjit.Value) blockjit.StaticType {
	if val == nil {
		return blockjit.Unknown
	}
	if val.IsConst() {
		return blockjit.TypeOf(val.Literal())
	}
	p := val.Producer()
	if p == nil {
		return blockjit.Unknown
	}
	switch p.Op {
	case blockjit.OpConst:
		if len(p.Args) > 0 {
			return a.registerType(p.Args[0].Value)
		}
	case blockjit.OpReadVariable:
		if idx, ok := a.list.IndexOf(p); ok {
			return a.typeBefore(p.Variable, idx)
		}
	case blockjit.OpCallFunction:
		return p.ReturnType
	case blockjit.OpListLength:
		return blockjit.Number
	case blockjit.OpReadList:
		return blockjit.String
	}
	return blockjit.Unknown
}

func (a *Analyzer) summaries() []VariableSummary {
	out := make([]VariableSummary, 0, len(a.vars))
	for _, v := range a.vars {
		s := VariableSummary{Variable: v}
		var observed, stored []blockjit.StaticType
		for i, ins := range a.list.All() {
			if ins.Variable != v {
				continue
			}
			switch ins.Op {
			case blockjit.OpReadVariable:
				s.Reads++
			case blockjit.OpWriteVariable:
				s.Writes++
				stored = append(stored, a.registerType(ins.Source()))
			default:
				continue
			}
			observed = append(observed, a.typeBefore(v, i))
		}
		s.Observed = blockjit.UnionAll(observed...)
		s.Stored = blockjit.UnionAll(stored...)
		out = append(out, s)
	}
	return out
}

// stateDelta lists the variables whose type differs between two states.
func (a *Analyzer) stateDelta(before, after typeState) string {
	var changed []string
	for i := range after {
		if before[i] != after[i] {
			changed = append(changed, a.slotName(i)+":"+typeDelta(before[i], after[i]))
		}
	}
	if len(changed) == 0 {
		return "none"
	}
	return truncateList(changed, a.opts.LogMaxVariables)
}

func (a *Analyzer) stateString(s typeState) string {
	parts := make([]string, len(s))
	for i, t := range s {
		parts[i] = a.slotName(i) + ":" + t.String()
	}
	return truncateList(parts, a.opts.LogMaxVariables)
}

func (a *Analyzer) slotName(i int) string {
	if i < len(a.vars) {
		return a.vars[i].String()
	}
	return "(query)"
}

func (a *Analyzer) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if a.warned[msg] {
		return
	}
	a.warned[msg] = true
	a.logger.Warnf("%s", msg)
	if a.opts.EnableWarnings {
		a.warnings = append(a.warnings, msg)
	}
}
