package typeanalysis

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/speakeasy-api/blockjit"
)

func newVar(name string) *blockjit.Variable {
	return &blockjit.Variable{ID: name, Name: name}
}

func analyze(t *testing.T, l *blockjit.InstructionList) *Result {
	t.Helper()
	res, err := AnalyzeScript(l)
	if err != nil {
		t.Fatalf("AnalyzeScript failed: %v", err)
	}
	return res
}

func expectTarget(t *testing.T, ins *blockjit.Instruction, want blockjit.StaticType) {
	t.Helper()
	if ins.TargetType != want {
		t.Errorf("%s: TargetType = %s, want %s", ins, ins.TargetType, want)
	}
}

func TestFirstWriteHasNoPriorType(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	w := l.WriteVariable(v, l.Const(42))

	analyze(t, l)
	expectTarget(t, w, blockjit.Unknown)
}

func TestSequentialOverwrite(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.WriteVariable(v, l.Const(42))
	second := l.WriteVariable(v, l.Const("hello"))
	third := l.WriteVariable(v, l.Const(true))

	analyze(t, l)
	expectTarget(t, second, blockjit.Number)
	expectTarget(t, third, blockjit.String)
}

func TestNumericStringFolding(t *testing.T) {
	tests := []struct {
		literal string
		want    blockjit.StaticType
	}{
		{"3.14", blockjit.Number},
		{"1.0", blockjit.String},
		{"abc", blockjit.String},
		{"-12", blockjit.Number},
	}
	for _, tt := range tests {
		t.Run(tt.literal, func(t *testing.T) {
			l := blockjit.NewInstructionList()
			v := newVar("v")
			l.WriteVariable(v, l.Const(tt.literal))
			second := l.WriteVariable(v, l.Const(true))

			analyze(t, l)
			expectTarget(t, second, tt.want)
		})
	}
}

func TestIfElseJoinSameType(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.BeginIf(l.Const(true))
	l.WriteVariable(v, l.Const(42))
	l.BeginElse()
	l.WriteVariable(v, l.Const(1.25))
	l.EndIf()
	trailing := l.WriteVariable(v, l.Const("x"))

	analyze(t, l)
	expectTarget(t, trailing, blockjit.Number)
}

func TestIfElseJoinDifferentTypes(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.WriteVariable(v, l.Const(true))
	l.BeginIf(l.Const(true))
	inThen := l.WriteVariable(v, l.Const(42))
	l.BeginElse()
	inElse := l.WriteVariable(v, l.Const("s"))
	l.EndIf()
	trailing := l.WriteVariable(v, l.Const(1))

	analyze(t, l)
	expectTarget(t, inThen, blockjit.Bool)
	expectTarget(t, inElse, blockjit.Bool)
	expectTarget(t, trailing, blockjit.Number|blockjit.String)
}

func TestIfWithoutElseKeepsEntry(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.WriteVariable(v, l.Const("s"))
	l.BeginIf(l.Const(true))
	l.WriteVariable(v, l.Const(42))
	l.EndIf()
	trailing := l.WriteVariable(v, l.Const(1))

	analyze(t, l)
	expectTarget(t, trailing, blockjit.Number|blockjit.String)
}

func TestProcedureCallOpacity(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.BeginRepeatLoop(l.Const(10))
	w := l.WriteVariable(v, l.Const(5))
	call := l.CallProcedure("custom")
	l.EndLoop()
	after := l.ReadVariable(v)

	a, err := New(l)
	if err != nil {
		t.Fatal(err)
	}
	a.Annotate()

	expectTarget(t, w, blockjit.Unknown)
	if got := a.TypeBeforeInstruction(v, call); got != blockjit.Number {
		t.Errorf("type before call = %s, want number", got)
	}
	if got := after.Type; got != blockjit.Unknown {
		t.Errorf("read after loop = %s, want unknown", got)
	}
}

func TestProcedureCallResetsPriorType(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.WriteVariable(v, l.Const(5))
	l.BeginRepeatLoop(l.Const(3))
	w := l.WriteVariable(v, l.Const(6))
	l.CallProcedure("custom")
	l.EndLoop()

	analyze(t, l)
	// The second iteration starts after the call.
	expectTarget(t, w, blockjit.Unknown)
}

func TestSelfAssignmentInLoop(t *testing.T) {
	t.Run("no prior type", func(t *testing.T) {
		l := blockjit.NewInstructionList()
		v := newVar("v")
		l.BeginRepeatLoop(l.Const(3))
		r := l.ReadVariable(v)
		w := l.WriteVariable(v, r)
		l.EndLoop()

		analyze(t, l)
		expectTarget(t, w, blockjit.Unknown)
	})

	t.Run("prior string", func(t *testing.T) {
		l := blockjit.NewInstructionList()
		v := newVar("v")
		l.WriteVariable(v, l.Const("s"))
		l.BeginForeverLoop()
		r := l.ReadVariable(v)
		w := l.WriteVariable(v, r)
		l.EndLoop()
		trailing := l.WriteVariable(v, l.Const(1))

		analyze(t, l)
		expectTarget(t, w, blockjit.String)
		expectTarget(t, trailing, blockjit.String)
		if r.Type != blockjit.String {
			t.Errorf("read register = %s, want string", r.Type)
		}
	})

	t.Run("read before intervening write", func(t *testing.T) {
		l := blockjit.NewInstructionList()
		v := newVar("v")
		l.WriteVariable(v, l.Const(true))
		r := l.ReadVariable(v)
		l.WriteVariable(v, l.Const("s"))
		w := l.WriteVariable(v, r)
		trailing := l.WriteVariable(v, l.Const(1))

		analyze(t, l)
		expectTarget(t, w, blockjit.String)
		expectTarget(t, trailing, blockjit.Bool)
	})
}

func TestLoopZeroOrMoreJoin(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.WriteVariable(v, l.Const("initial"))
	l.BeginRepeatLoop(l.Const(4))
	inner := l.WriteVariable(v, l.Const(42))
	l.EndLoop()
	trailing := l.WriteVariable(v, l.Const(false))

	analyze(t, l)
	expectTarget(t, trailing, blockjit.String|blockjit.Number)
	expectTarget(t, inner, blockjit.String|blockjit.Number)
}

func TestLoopWithoutTypeChange(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.WriteVariable(v, l.Const(1))
	l.BeginRepeatLoop(l.Const(4))
	inner := l.WriteVariable(v, l.Const(2))
	l.EndLoop()
	trailing := l.WriteVariable(v, l.Const("x"))

	analyze(t, l)
	expectTarget(t, inner, blockjit.Number)
	expectTarget(t, trailing, blockjit.Number)
}

func TestReadCarriedAcrossIterations(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.WriteVariable(v, l.Const("s"))
	l.BeginRepeatLoop(l.Const(4))
	read := l.ReadVariable(v)
	mid := l.WriteVariable(v, l.Const(1))
	readAfter := l.ReadVariable(v)
	l.WriteVariable(v, l.Const(true))
	l.EndLoop()

	analyze(t, l)
	// First iteration sees the string, later ones the bool from the previous pass.
	expectTarget(t, read.Producer(), blockjit.String|blockjit.Bool)
	expectTarget(t, mid, blockjit.String|blockjit.Bool)
	expectTarget(t, readAfter.Producer(), blockjit.Number)
}

func TestNestedLoops(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.WriteVariable(v, l.Const(1))
	l.BeginRepeatLoop(l.Const(2))
	outerRead := l.ReadVariable(v)
	l.BeginRepeatLoop(l.Const(2))
	innerWrite := l.WriteVariable(v, l.Const("s"))
	l.EndLoop()
	l.WriteVariable(v, l.Const(true))
	l.EndLoop()
	trailing := l.WriteVariable(v, l.Const(0))

	analyze(t, l)
	expectTarget(t, outerRead.Producer(), blockjit.Number|blockjit.Bool)
	expectTarget(t, innerWrite, blockjit.Unknown)
	expectTarget(t, trailing, blockjit.Number|blockjit.Bool)
}

func TestWhileLoopCondition(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.WriteVariable(v, l.Const(1))
	l.BeginLoopCondition()
	cond := l.ReadVariable(v)
	l.BeginWhileLoop(l.CallFunction("to_bool", blockjit.Bool, cond))
	l.WriteVariable(v, l.Const("s"))
	l.EndLoop()
	trailing := l.WriteVariable(v, l.Const(true))

	analyze(t, l)
	expectTarget(t, cond.Producer(), blockjit.Number|blockjit.String)
	expectTarget(t, trailing, blockjit.Number|blockjit.String)
}

func TestRepeatUntilLoop(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.WriteVariable(v, l.Const(true))
	l.BeginLoopCondition()
	done := l.CallFunction("done", blockjit.Bool)
	l.BeginRepeatUntilLoop(done)
	l.WriteVariable(v, l.Const(false))
	l.EndLoop()
	trailing := l.WriteVariable(v, l.Const(1))

	res := analyze(t, l)
	expectTarget(t, trailing, blockjit.Bool)
	if done.Type != blockjit.Bool {
		t.Errorf("function result = %s, want bool", done.Type)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestCrossVariableRead(t *testing.T) {
	l := blockjit.NewInstructionList()
	a := newVar("a")
	b := newVar("b")
	l.WriteVariable(b, l.Const(true))
	l.WriteVariable(a, l.Const(5))
	ra := l.ReadVariable(a)
	l.WriteVariable(b, ra)
	trailing := l.WriteVariable(b, l.Const("x"))
	sum := l.CallFunction("add", blockjit.Number, ra, l.Const(1))

	analyze(t, l)
	if ra.Type != blockjit.Number {
		t.Errorf("read of a = %s, want number", ra.Type)
	}
	expectTarget(t, trailing, blockjit.Number)
	call := sum.Producer()
	if got := call.Args[0].Value.Type; got != blockjit.Number {
		t.Errorf("argument type = %s, want number", got)
	}
	if got := call.Args[1].Value.Type; got != blockjit.Number {
		t.Errorf("constant argument type = %s, want number", got)
	}
	if sum.Type != blockjit.Number {
		t.Errorf("call result = %s, want number", sum.Type)
	}
}

func TestMutualDependencyInLoop(t *testing.T) {
	l := blockjit.NewInstructionList()
	a := newVar("a")
	b := newVar("b")
	l.WriteVariable(a, l.Const(1))
	l.WriteVariable(b, l.Const(2))
	l.BeginForeverLoop()
	rb := l.ReadVariable(b)
	wa := l.WriteVariable(a, rb)
	ra := l.ReadVariable(a)
	wb := l.WriteVariable(b, ra)
	l.EndLoop()

	res := analyze(t, l)
	expectTarget(t, wa, blockjit.Number)
	expectTarget(t, wb, blockjit.Number)
	if rb.Type != blockjit.Number || ra.Type != blockjit.Number {
		t.Errorf("reads = %s, %s, want number", rb.Type, ra.Type)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestCrossVariableChain(t *testing.T) {
	l := blockjit.NewInstructionList()
	a := newVar("a")
	b := newVar("b")
	l.WriteVariable(a, l.Const(1))
	l.WriteVariable(b, l.ReadVariable(a))
	l.WriteVariable(a, l.ReadVariable(b))
	lastB := l.WriteVariable(b, l.Const(true))
	lastA := l.WriteVariable(a, l.Const("s"))

	res := analyze(t, l)
	expectTarget(t, lastB, blockjit.Number)
	expectTarget(t, lastA, blockjit.Number)
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestSwapThroughTemporary(t *testing.T) {
	l := blockjit.NewInstructionList()
	a, b, tmp := newVar("a"), newVar("b"), newVar("tmp")
	l.WriteVariable(a, l.Const(1))
	l.WriteVariable(b, l.Const("s"))
	l.WriteVariable(tmp, l.ReadVariable(a))
	l.WriteVariable(a, l.ReadVariable(b))
	l.WriteVariable(b, l.ReadVariable(tmp))
	lastA := l.WriteVariable(a, l.Const(true))
	lastB := l.WriteVariable(b, l.Const(true))
	lastTmp := l.WriteVariable(tmp, l.Const(true))

	res := analyze(t, l)
	expectTarget(t, lastA, blockjit.String)
	expectTarget(t, lastB, blockjit.Number)
	expectTarget(t, lastTmp, blockjit.Number)
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestResultsIndependentOfVariableOrder(t *testing.T) {
	// The same program with its first statements swapped, so the variables
	// appear in the opposite order.
	build := func(aFirst bool) (*blockjit.InstructionList, *blockjit.Instruction) {
		l := blockjit.NewInstructionList()
		a, b := newVar("a"), newVar("b")
		if aFirst {
			l.WriteVariable(a, l.Const(1))
			l.WriteVariable(b, l.Const("s"))
		} else {
			l.WriteVariable(b, l.Const("s"))
			l.WriteVariable(a, l.Const(1))
		}
		l.BeginRepeatLoop(l.Const(3))
		l.WriteVariable(b, l.ReadVariable(a))
		l.WriteVariable(a, l.ReadVariable(b))
		l.EndLoop()
		return l, l.WriteVariable(b, l.Const(true))
	}
	for _, aFirst := range []bool{true, false} {
		l, last := build(aFirst)
		analyze(t, l)
		expectTarget(t, last, blockjit.Number|blockjit.String)
	}
}

func TestLoopBoundScalesWithVariables(t *testing.T) {
	// Each pass moves the string one variable further along the chain, so the
	// loop needs more passes than there are variables.
	const n = 12
	l := blockjit.NewInstructionList()
	vars := make([]*blockjit.Variable, n)
	for i := range vars {
		vars[i] = newVar(fmt.Sprintf("v%d", i))
		l.WriteVariable(vars[i], l.Const(i))
	}
	l.BeginRepeatLoop(l.Const(100))
	for i := n - 1; i > 0; i-- {
		l.WriteVariable(vars[i], l.ReadVariable(vars[i-1]))
	}
	l.WriteVariable(vars[0], l.Const("s"))
	l.EndLoop()
	last := l.ReadVariable(vars[n-1])

	res := analyze(t, l)
	if last.Type != blockjit.Number|blockjit.String {
		t.Errorf("last variable after loop = %s, want number|string", last.Type)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestTypeAfterBlock(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	other := newVar("other")

	plain := l.WriteVariable(v, l.Const(1))
	emptyIf := l.BeginIf(l.Const(true))
	l.WriteVariable(other, l.Const("s"))
	l.EndIf()
	ifOnly := l.BeginIf(l.Const(true))
	l.WriteVariable(v, l.Const("s"))
	l.EndIf()
	ifElse := l.BeginIf(l.Const(true))
	l.WriteVariable(v, l.Const("s"))
	l.BeginElse()
	l.WriteVariable(v, l.Const(true))
	l.EndIf()
	loop := l.BeginRepeatLoop(l.Const(3))
	l.WriteVariable(v, l.Const("s"))
	l.EndLoop()
	selfLoop := l.BeginRepeatLoop(l.Const(3))
	l.WriteVariable(v, l.ReadVariable(v))
	l.EndLoop()
	nested := l.BeginIf(l.Const(true))
	l.BeginRepeatLoop(l.Const(3))
	l.WriteVariable(v, l.Const(true))
	l.EndLoop()
	l.EndIf()

	a, err := New(l)
	if err != nil {
		t.Fatal(err)
	}

	N, B, S := blockjit.Number, blockjit.Bool, blockjit.String
	tests := []struct {
		name  string
		v     *blockjit.Variable
		start *blockjit.Instruction
		entry blockjit.StaticType
		want  blockjit.StaticType
	}{
		{"nil variable", nil, ifOnly, N, N},
		{"nil instruction", v, nil, N, N},
		{"not a block", v, plain, N, N},
		{"empty block", v, emptyIf, N, N},
		{"if", v, ifOnly, N, N | S},
		{"if from unknown", v, ifOnly, blockjit.Unknown, blockjit.Unknown},
		{"if else", v, ifElse, N, S | B},
		{"loop", v, loop, N, N | S},
		{"loop same type", v, loop, S, S},
		{"self assignment loop", v, selfLoop, B, B},
		{"nested", v, nested, S, S | B},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.TypeAfterBlock(tt.v, tt.start, tt.entry); got != tt.want {
				t.Errorf("TypeAfterBlock = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIdempotence(t *testing.T) {
	build := func() *blockjit.InstructionList {
		l := blockjit.NewInstructionList()
		a, b := newVar("a"), newVar("b")
		l.WriteVariable(a, l.Const("3.14"))
		l.BeginLoopCondition()
		c := l.ReadVariable(b)
		l.BeginWhileLoop(l.CallFunction("lt", blockjit.Bool, c, l.Const(10)))
		l.BeginIf(l.Const(true))
		l.WriteVariable(b, l.ReadVariable(a))
		l.BeginElse()
		l.CallProcedure("p")
		l.EndIf()
		l.EndLoop()
		l.WriteVariable(a, l.ReadVariable(b))
		return l
	}

	original := build()
	copy1 := original.Clone()
	copy2 := original.Clone()

	r1 := analyze(t, copy1)
	r2 := analyze(t, copy2)

	if r1.Fingerprint != r2.Fingerprint {
		t.Errorf("fingerprints differ: %s vs %s", r1.Fingerprint, r2.Fingerprint)
	}
	targets := func(l *blockjit.InstructionList) []string {
		var out []string
		for _, ins := range l.All() {
			out = append(out, ins.TargetType.String())
		}
		return out
	}
	if diff := cmp.Diff(targets(copy1), targets(copy2)); diff != "" {
		t.Errorf("annotations differ (-first +second):\n%s", diff)
	}
	for _, ins := range original.All() {
		if ins.TargetType != blockjit.Unknown || (ins.Result != nil && ins.Result.Type != blockjit.Unknown) {
			t.Errorf("original was annotated: %s", ins)
		}
	}

	// Annotating again with a fresh analyzer reproduces the same result.
	r3 := analyze(t, copy1)
	if r3.Fingerprint != r1.Fingerprint {
		t.Errorf("re-analysis changed fingerprint")
	}
}

func TestSummaries(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.WriteVariable(v, l.Const(1))
	l.ReadVariable(v)
	l.WriteVariable(v, l.Const("x"))
	never := newVar("never")
	l.ReadVariable(never)

	res := analyze(t, l)
	type summary struct {
		Name     string
		Reads    int
		Writes   int
		Observed string
		Stored   string
	}
	var got []summary
	for _, s := range res.Variables {
		got = append(got, summary{s.Variable.Name, s.Reads, s.Writes, s.Observed.String(), s.Stored.String()})
	}
	want := []summary{
		{"v", 1, 2, "unknown", "number|string"},
		{"never", 1, 0, "unknown", "unknown"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summaries mismatch (-want +got):\n%s", diff)
	}
	if res.Annotated != 4 {
		t.Errorf("Annotated = %d, want 4", res.Annotated)
	}
	if res.Unboxed != 2 {
		t.Errorf("Unboxed = %d, want 2", res.Unboxed)
	}
}

func TestAnalyzeScriptErrors(t *testing.T) {
	if _, err := AnalyzeScript(nil); !errors.Is(err, ErrNilList) {
		t.Errorf("nil list error = %v, want ErrNilList", err)
	}

	l := blockjit.NewInstructionList()
	l.BeginIf(l.Const(true))
	if _, err := AnalyzeScript(l); !errors.Is(err, ErrUnbalanced) {
		t.Errorf("unclosed if error = %v, want ErrUnbalanced", err)
	}
}

func TestLoopPassLimit(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	l.WriteVariable(v, l.Const(1))
	l.BeginRepeatLoop(l.Const(3))
	inner := l.WriteVariable(v, l.Const("s"))
	l.EndLoop()
	trailing := l.WriteVariable(v, l.Const(true))

	opts := DefaultOptions()
	opts.MaxLoopPasses = 1
	res, err := AnalyzeScript(l, opts)
	if err != nil {
		t.Fatal(err)
	}
	expectTarget(t, inner, blockjit.Unknown)
	expectTarget(t, trailing, blockjit.Unknown)
	if len(res.Warnings) == 0 {
		t.Error("expected a pass limit warning")
	}
}

func TestAnnotateReplacesStaleAnnotations(t *testing.T) {
	l := blockjit.NewInstructionList()
	v := newVar("v")
	begin := l.BeginIf(l.Const(true))
	l.WriteVariable(v, l.Const(1))
	l.EndIf()
	fresh := l.Clone()

	begin.TargetType = blockjit.Bool
	res := analyze(t, l)
	expectTarget(t, begin, blockjit.Unknown)
	if want := analyze(t, fresh).Fingerprint; res.Fingerprint != want {
		t.Errorf("fingerprint %s, want %s", res.Fingerprint, want)
	}
}
