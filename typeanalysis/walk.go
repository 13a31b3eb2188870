package typeanalysis

import "github.com/speakeasy-api/blockjit"

// walker carries the types of all variables forward along the list.
//
// When record is set the state before every visited instruction is stored on
// the Analyzer. Loop bodies are revisited until their head state stabilises,
// so later visits overwrite earlier ones and the stored states are those of
// the final, stable pass.
type walker struct {
	a      *Analyzer
	record bool

	// reads holds the type seen by each variable read on the current path.
	// A write fed by one of these reads stores exactly that type.
	reads map[int]blockjit.StaticType
}

func newWalker(a *Analyzer, record bool) *walker {
	return &walker{
		a:      a,
		record: record,
		reads:  make(map[int]blockjit.StaticType),
	}
}

func (w *walker) note(i int, s typeState) {
	if w.record {
		w.a.before[i] = s.clone()
	}
}

// walkRange walks instructions [from, to) starting from in and returns the
// state after the last one. Nested blocks are stepped over as one unit.
func (w *walker) walkRange(from, to int, in typeState) typeState {
	cur := in.clone()
	for i := from; i < to; i++ {
		w.note(i, cur)
		ins := w.a.list.At(i)

		if b := w.a.br.at(i); b != nil && b.start == i {
			cur = w.block(b, cur)
			i = b.end
			continue
		}

		switch ins.Op {
		case blockjit.OpCallProcedure:
			// The callee may write any variable.
			cur = make(typeState, len(cur))
		case blockjit.OpReadVariable:
			if slot, ok := w.a.slots[ins.Variable]; ok {
				w.reads[i] = cur[slot]
			}
		case blockjit.OpWriteVariable:
			if slot, ok := w.a.slots[ins.Variable]; ok {
				cur[slot] = w.sourceType(ins.Source())
			}
		}
	}
	return cur
}

// block computes the state after b given entry.
func (w *walker) block(b *block, entry typeState) typeState {
	var out typeState
	switch b.kind {
	case blockIf:
		out = w.ifBlock(b, entry)
	case blockLoop:
		out = w.loop(b, entry)
	default:
		return entry
	}
	w.a.logger.With(map[string]any{
		"block":   w.a.list.At(b.start).Op,
		"start":   b.start,
		"end":     b.end,
		"changed": w.a.stateDelta(entry, out),
	}).Debugf("Block analyzed")
	return out
}

func (w *walker) ifBlock(b *block, entry typeState) typeState {
	if b.elseAt < 0 {
		t1 := w.walkRange(b.start+1, b.end, entry)
		w.note(b.end, t1)
		// The body may not run.
		return entry.join(t1)
	}
	t1 := w.walkRange(b.start+1, b.elseAt, entry)
	w.note(b.elseAt, entry)
	t2 := w.walkRange(b.elseAt+1, b.end, entry)
	w.note(b.end, t2)
	// Exactly one branch runs.
	return t1.join(t2)
}

// loop iterates the loop head state to a fixed point. The head is where the
// condition is evaluated: it is reached from the entry and from the end of
// every pass, and the loop exits there. A loop may run zero times.
//
// The head only grows, and each slot can grow at most twice before it is
// Unknown, so the iteration ends within 2*len(slots)+1 passes.
func (w *walker) loop(b *block, entry typeState) typeState {
	head := entry
	for pass := 1; ; pass++ {
		afterCond, afterBody := w.loopPass(b, head)
		next := entry.join(afterBody)
		if next.equal(head) {
			return afterCond
		}
		w.a.logger.With(map[string]any{
			"start":   b.start,
			"pass":    pass,
			"changed": w.a.stateDelta(head, next),
		}).Debugf("Loop head widened")
		if pass >= w.a.loopLimit {
			w.a.warnf("loop at %d did not stabilise after %d passes (%s), using unknown", b.start, pass, w.a.stateDelta(head, next))
			afterCond, _ = w.loopPass(b, make(typeState, len(entry)))
			return afterCond
		}
		head = next
	}
}

func (w *walker) loopPass(b *block, head typeState) (afterCond, afterBody typeState) {
	afterCond = w.walkRange(b.start+1, b.body, head)
	if b.body != b.start {
		w.note(b.body, afterCond)
	}
	afterBody = w.walkRange(b.body+1, b.end, afterCond)
	w.note(b.end, afterBody)
	return afterCond, afterBody
}

// sourceType resolves the type stored by a variable write. A value read from
// any variable earlier on the current path carries the type seen at that read.
func (w *walker) sourceType(val *blockjit.Value) blockjit.StaticType {
	if p := val.Producer(); p != nil && p.Op == blockjit.OpReadVariable {
		if idx, ok := w.a.list.IndexOf(p); ok {
			if t, ok := w.reads[idx]; ok {
				return t
			}
		}
	}
	return w.a.registerType(val)
}
