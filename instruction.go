package blockjit

import (
	"fmt"
	"strings"
)

// Variable is the identity of a script-level variable. Every read and write of
// the same variable within a list shares one *Variable. It carries no type:
// types belong to program points.
type Variable struct {
	ID   string
	Name string
}

func (v *Variable) String() string {
	if v == nil {
		return "<nil>"
	}
	if v.Name != "" {
		return v.Name
	}
	return v.ID
}

// List is the identity of a script-level list.
type List struct {
	ID   string
	Name string
}

func (l *List) String() string {
	if l == nil {
		return "<nil>"
	}
	if l.Name != "" {
		return l.Name
	}
	return l.ID
}

// Value is an instruction operand: either an immutable constant or a register
// holding the result of an earlier instruction.
type Value struct {
	constant bool
	literal  any
	producer *Instruction

	// Type is the resolved static type. Constants resolve when created,
	// registers start Unknown and are filled in by type analysis.
	Type StaticType
}

// NewConstValue returns a constant operand with its literal type.
func NewConstValue(literal any) *Value {
	return &Value{constant: true, literal: literal, Type: TypeOf(literal)}
}

// NewRegister returns the result register of producer.
func NewRegister(producer *Instruction) *Value {
	return &Value{producer: producer}
}

func (v *Value) IsConst() bool { return v != nil && v.constant }

// Literal returns the constant value, or nil for registers.
func (v *Value) Literal() any {
	if v == nil || !v.constant {
		return nil
	}
	return v.literal
}

// Producer returns the instruction whose result v holds, or nil for constants.
func (v *Value) Producer() *Instruction {
	if v == nil {
		return nil
	}
	return v.producer
}

func (v *Value) String() string {
	switch {
	case v == nil:
		return "<nil>"
	case v.constant:
		if s, ok := v.literal.(string); ok {
			return fmt.Sprintf("%q", s)
		}
		return fmt.Sprint(v.literal)
	default:
		return "%" + v.producer.Op.String()
	}
}

// Arg pairs the type an instruction expects with the value it consumes.
type Arg struct {
	Type  StaticType
	Value *Value
}

// Instruction is one operation of an InstructionList.
type Instruction struct {
	Op       Opcode
	Args     []*Arg
	Variable *Variable
	List     *List

	// Function names the callee of OpCallFunction and OpCallProcedure.
	Function string
	// ReturnType is the result type of OpCallFunction declared by the front end.
	ReturnType StaticType
	// Result is nil for instructions that produce no value.
	Result *Value

	// TargetType is the type of Variable immediately before this instruction
	// runs. Set by type analysis on reads and writes.
	TargetType StaticType
}

// Source returns the value stored by a variable write, or nil.
func (ins *Instruction) Source() *Value {
	if ins == nil || ins.Op != OpWriteVariable || len(ins.Args) == 0 {
		return nil
	}
	return ins.Args[0].Value
}

func (ins *Instruction) String() string {
	if ins == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(ins.Op.String())
	if ins.Variable != nil {
		b.WriteByte(' ')
		b.WriteString(ins.Variable.String())
	}
	if ins.List != nil {
		b.WriteByte(' ')
		b.WriteString(ins.List.String())
	}
	if ins.Function != "" {
		b.WriteByte(' ')
		b.WriteString(ins.Function)
	}
	for i, a := range ins.Args {
		if i == 0 {
			b.WriteString(" (")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(a.Value.String())
		if i == len(ins.Args)-1 {
			b.WriteByte(')')
		}
	}
	return b.String()
}
