package blockjit

import "fmt"

// Opcode identifies the kind of an Instruction.
type Opcode int

const (
	OpNop Opcode = iota
	OpConst
	OpReadVariable
	OpWriteVariable
	OpReadList
	OpListItem
	OpListLength
	OpListAppend
	OpListReplace
	OpListRemove
	OpListClear
	OpCallFunction
	OpCallProcedure
	OpBeginIf
	OpBeginElse
	OpEndIf
	OpBeginRepeatLoop
	OpBeginWhileLoop
	OpBeginRepeatUntilLoop
	OpBeginLoopCondition
	OpEndLoop
)

var opcodeNames = [...]string{
	OpNop:                  "nop",
	OpConst:                "const",
	OpReadVariable:         "read_variable",
	OpWriteVariable:        "write_variable",
	OpReadList:             "read_list",
	OpListItem:             "list_item",
	OpListLength:           "list_length",
	OpListAppend:           "list_append",
	OpListReplace:          "list_replace",
	OpListRemove:           "list_remove",
	OpListClear:            "list_clear",
	OpCallFunction:         "call_function",
	OpCallProcedure:        "call_procedure",
	OpBeginIf:              "begin_if",
	OpBeginElse:            "begin_else",
	OpEndIf:                "end_if",
	OpBeginRepeatLoop:      "begin_repeat_loop",
	OpBeginWhileLoop:       "begin_while_loop",
	OpBeginRepeatUntilLoop: "begin_repeat_until_loop",
	OpBeginLoopCondition:   "begin_loop_condition",
	OpEndLoop:              "end_loop",
}

func (op Opcode) String() string {
	if op >= 0 && int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// ParseOpcode returns the opcode with the given name.
func ParseOpcode(name string) (Opcode, error) {
	for op, n := range opcodeNames {
		if n == name {
			return Opcode(op), nil
		}
	}
	return OpNop, fmt.Errorf("unknown opcode %q", name)
}

// IsBegin reports whether op opens a structured block.
// OpBeginElse is not an opener: it splits an if block.
func (op Opcode) IsBegin() bool {
	switch op {
	case OpBeginIf, OpBeginRepeatLoop, OpBeginWhileLoop, OpBeginRepeatUntilLoop, OpBeginLoopCondition:
		return true
	}
	return false
}

// IsEnd reports whether op closes a structured block.
func (op Opcode) IsEnd() bool {
	return op == OpEndIf || op == OpEndLoop
}

// IsLoopOpener reports whether op starts a loop body.
func (op Opcode) IsLoopOpener() bool {
	switch op {
	case OpBeginRepeatLoop, OpBeginWhileLoop, OpBeginRepeatUntilLoop:
		return true
	}
	return false
}

// HasCondition reports whether a loop opener is preceded by a condition region.
func (op Opcode) HasCondition() bool {
	return op == OpBeginWhileLoop || op == OpBeginRepeatUntilLoop
}
