package typeanalysis

import (
	"fmt"

	"github.com/speakeasy-api/blockjit"
)

type blockKind uint8

const (
	blockIf blockKind = iota
	blockLoop
)

// block is one structured region of the list.
//
// For loops, start is the BeginLoopCondition marker when the loop has a
// condition region and the loop opener otherwise; body is always the opener.
// The condition region is (start, body) and is empty when start == body.
type block struct {
	kind   blockKind
	start  int
	elseAt int // -1 without else
	body   int
	end    int
}

// brackets maps Begin markers to the block they open. It is computed once per
// list so matching End markers are never re-scanned.
type brackets struct {
	byIndex []*block
}

func (br *brackets) at(i int) *block {
	if i < 0 || i >= len(br.byIndex) {
		return nil
	}
	return br.byIndex[i]
}

func buildBrackets(list *blockjit.InstructionList) (*brackets, error) {
	br := &brackets{byIndex: make([]*block, list.Len())}
	var stack []*block

	top := func() *block {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}
	open := func(b *block) {
		br.byIndex[b.start] = b
		stack = append(stack, b)
	}

	for i, ins := range list.All() {
		switch ins.Op {
		case blockjit.OpBeginIf:
			open(&block{kind: blockIf, start: i, elseAt: -1, body: i, end: -1})

		case blockjit.OpBeginElse:
			b := top()
			if b == nil || b.kind != blockIf || b.elseAt >= 0 {
				return nil, fmt.Errorf("%w: %s at %d has no open if", ErrUnbalanced, ins.Op, i)
			}
			b.elseAt = i

		case blockjit.OpEndIf:
			b := top()
			if b == nil || b.kind != blockIf {
				return nil, fmt.Errorf("%w: %s at %d has no open if", ErrUnbalanced, ins.Op, i)
			}
			b.end = i
			stack = stack[:len(stack)-1]

		case blockjit.OpBeginLoopCondition:
			open(&block{kind: blockLoop, start: i, elseAt: -1, body: -1, end: -1})

		case blockjit.OpBeginRepeatLoop, blockjit.OpBeginWhileLoop, blockjit.OpBeginRepeatUntilLoop:
			if b := top(); b != nil && b.kind == blockLoop && b.body < 0 {
				if ins.Op == blockjit.OpBeginRepeatLoop {
					return nil, fmt.Errorf("%w: %s at %d follows a loop condition", ErrUnbalanced, ins.Op, i)
				}
				b.body = i
				br.byIndex[i] = b
				continue
			}
			open(&block{kind: blockLoop, start: i, elseAt: -1, body: i, end: -1})

		case blockjit.OpEndLoop:
			b := top()
			if b == nil || b.kind != blockLoop || b.body < 0 {
				return nil, fmt.Errorf("%w: %s at %d has no open loop", ErrUnbalanced, ins.Op, i)
			}
			b.end = i
			stack = stack[:len(stack)-1]
		}
	}

	if b := top(); b != nil {
		return nil, fmt.Errorf("%w: %s at %d is never closed", ErrUnbalanced, list.At(b.start).Op, b.start)
	}
	return br, nil
}
