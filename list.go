package blockjit

import "iter"

// InstructionList is the program-ordered instruction sequence of one compiled
// script or procedure body. Begin and End markers nest like parentheses.
type InstructionList struct {
	insts []*Instruction
	index map[*Instruction]int
}

// NewInstructionList creates an empty list.
func NewInstructionList() *InstructionList {
	return &InstructionList{
		insts: make([]*Instruction, 0, 64),
		index: make(map[*Instruction]int, 64),
	}
}

// Append adds ins at the end of the list and returns it.
func (l *InstructionList) Append(ins *Instruction) *Instruction {
	l.index[ins] = len(l.insts)
	l.insts = append(l.insts, ins)
	return ins
}

func (l *InstructionList) Len() int { return len(l.insts) }

// At returns the instruction at position i, or nil when out of range.
func (l *InstructionList) At(i int) *Instruction {
	if i < 0 || i >= len(l.insts) {
		return nil
	}
	return l.insts[i]
}

// IndexOf returns the position of ins in the list.
func (l *InstructionList) IndexOf(ins *Instruction) (int, bool) {
	i, ok := l.index[ins]
	return i, ok
}

// All iterates over positions and instructions in program order.
func (l *InstructionList) All() iter.Seq2[int, *Instruction] {
	return func(yield func(int, *Instruction) bool) {
		for i, ins := range l.insts {
			if !yield(i, ins) {
				return
			}
		}
	}
}

// Variables returns every variable read or written, in order of first appearance.
func (l *InstructionList) Variables() []*Variable {
	seen := make(map[*Variable]bool)
	var vars []*Variable
	for _, ins := range l.insts {
		if ins.Variable != nil && !seen[ins.Variable] {
			seen[ins.Variable] = true
			vars = append(vars, ins.Variable)
		}
	}
	return vars
}

// Clone returns an independent copy of the list. Variables and Lists keep
// their identity; instructions, registers and annotations are copied.
func (l *InstructionList) Clone() *InstructionList {
	out := NewInstructionList()
	regs := make(map[*Value]*Value)
	for _, ins := range l.insts {
		c := *ins
		if ins.Result != nil {
			r := *ins.Result
			r.producer = &c
			c.Result = &r
			regs[ins.Result] = &r
		}
		c.Args = make([]*Arg, len(ins.Args))
		for i, a := range ins.Args {
			v := a.Value
			if mapped, ok := regs[v]; ok {
				v = mapped
			} else if v != nil {
				cv := *v
				v = &cv
			}
			c.Args[i] = &Arg{Type: a.Type, Value: v}
		}
		out.Append(&c)
	}
	return out
}

// ResetAnnotations clears every TargetType and register type.
func (l *InstructionList) ResetAnnotations() {
	for _, ins := range l.insts {
		ins.TargetType = Unknown
		if ins.Result != nil {
			ins.Result.Type = Unknown
		}
	}
}

func (l *InstructionList) emit(ins *Instruction, produces bool) *Instruction {
	if produces {
		ins.Result = NewRegister(ins)
	}
	return l.Append(ins)
}

func args(expected StaticType, values ...*Value) []*Arg {
	out := make([]*Arg, len(values))
	for i, v := range values {
		out[i] = &Arg{Type: expected, Value: v}
	}
	return out
}

// Const returns a constant operand. It does not emit an instruction.
func (l *InstructionList) Const(literal any) *Value {
	return NewConstValue(literal)
}

// LoadConst emits an explicit constant load and returns its register.
func (l *InstructionList) LoadConst(literal any) *Value {
	return l.emit(&Instruction{Op: OpConst, Args: args(Unknown, NewConstValue(literal))}, true).Result
}

// ReadVariable emits a read of v and returns its register.
func (l *InstructionList) ReadVariable(v *Variable) *Value {
	return l.emit(&Instruction{Op: OpReadVariable, Variable: v}, true).Result
}

// WriteVariable emits a write of src into v.
func (l *InstructionList) WriteVariable(v *Variable, src *Value) *Instruction {
	return l.emit(&Instruction{Op: OpWriteVariable, Variable: v, Args: args(Unknown, src)}, false)
}

// CallFunction emits a call to a pure function returning ret.
func (l *InstructionList) CallFunction(name string, ret StaticType, in ...*Value) *Value {
	return l.emit(&Instruction{Op: OpCallFunction, Function: name, ReturnType: ret, Args: args(Unknown, in...)}, true).Result
}

// CallProcedure emits a call to a custom block.
func (l *InstructionList) CallProcedure(name string, in ...*Value) *Instruction {
	return l.emit(&Instruction{Op: OpCallProcedure, Function: name, Args: args(Unknown, in...)}, false)
}

func (l *InstructionList) BeginIf(cond *Value) *Instruction {
	return l.emit(&Instruction{Op: OpBeginIf, Args: args(Bool, cond)}, false)
}

func (l *InstructionList) BeginElse() *Instruction {
	return l.emit(&Instruction{Op: OpBeginElse}, false)
}

func (l *InstructionList) EndIf() *Instruction {
	return l.emit(&Instruction{Op: OpEndIf}, false)
}

func (l *InstructionList) BeginRepeatLoop(count *Value) *Instruction {
	return l.emit(&Instruction{Op: OpBeginRepeatLoop, Args: args(Number, count)}, false)
}

// BeginLoopCondition starts the condition region of a while or repeat-until
// loop. The region ends at the following BeginWhileLoop or BeginRepeatUntilLoop.
func (l *InstructionList) BeginLoopCondition() *Instruction {
	return l.emit(&Instruction{Op: OpBeginLoopCondition}, false)
}

func (l *InstructionList) BeginWhileLoop(cond *Value) *Instruction {
	return l.emit(&Instruction{Op: OpBeginWhileLoop, Args: args(Bool, cond)}, false)
}

func (l *InstructionList) BeginRepeatUntilLoop(cond *Value) *Instruction {
	return l.emit(&Instruction{Op: OpBeginRepeatUntilLoop, Args: args(Bool, cond)}, false)
}

// BeginForeverLoop emits an infinite loop: a while loop with a constant true condition.
func (l *InstructionList) BeginForeverLoop() *Instruction {
	return l.BeginWhileLoop(NewConstValue(true))
}

func (l *InstructionList) EndLoop() *Instruction {
	return l.emit(&Instruction{Op: OpEndLoop}, false)
}

func (l *InstructionList) ReadList(list *List) *Value {
	return l.emit(&Instruction{Op: OpReadList, List: list}, true).Result
}

func (l *InstructionList) ListItem(list *List, index *Value) *Value {
	return l.emit(&Instruction{Op: OpListItem, List: list, Args: args(Number, index)}, true).Result
}

func (l *InstructionList) ListLength(list *List) *Value {
	return l.emit(&Instruction{Op: OpListLength, List: list, ReturnType: Number}, true).Result
}

func (l *InstructionList) ListAppend(list *List, item *Value) *Instruction {
	return l.emit(&Instruction{Op: OpListAppend, List: list, Args: args(Unknown, item)}, false)
}

func (l *InstructionList) ListReplace(list *List, index, item *Value) *Instruction {
	return l.emit(&Instruction{Op: OpListReplace, List: list, Args: []*Arg{{Type: Number, Value: index}, {Type: Unknown, Value: item}}}, false)
}

func (l *InstructionList) ListRemove(list *List, index *Value) *Instruction {
	return l.emit(&Instruction{Op: OpListRemove, List: list, Args: args(Number, index)}, false)
}

func (l *InstructionList) ListClear(list *List) *Instruction {
	return l.emit(&Instruction{Op: OpListClear, List: list}, false)
}
