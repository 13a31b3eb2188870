// Package scriptfile loads instruction lists from YAML script documents and
// writes analysis results back into them.
//
// A document is either a sequence of statements or a mapping with an optional
// name and a "script" sequence:
//
//	name: counter
//	script:
//	  - write: score
//	    value: 0
//	  - repeat: 10
//	    do:
//	      - read: score
//	        id: s
//	      - call: add
//	        returns: number
//	        args: [{$ref: s}, 1]
//	        id: next
//	      - write: score
//	        value: {$ref: next}
//
// Scalars are constant operands; {$ref: id} refers to the register produced by
// an earlier statement carrying that id. Variables and lists are created on
// first use and share one identity per name.
package scriptfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/speakeasy-api/blockjit"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScript is wrapped by every error caused by a malformed document.
var ErrInvalidScript = errors.New("invalid script")

// Script is a loaded document together with the list it describes.
type Script struct {
	Name string
	List *blockjit.InstructionList

	doc       *yaml.Node
	variables map[string]*blockjit.Variable
	lists     map[string]*blockjit.List
	registers map[string]*blockjit.Value
	nodes     map[*blockjit.Instruction]*yaml.Node
}

// Variable returns the variable named name, or nil.
func (s *Script) Variable(name string) *blockjit.Variable { return s.variables[name] }

// Register returns the register declared with id, or nil.
func (s *Script) Register(id string) *blockjit.Value { return s.registers[id] }

// Line returns the document line of the statement that emitted ins, or 0.
func (s *Script) Line(ins *blockjit.Instruction) int {
	if n, ok := s.nodes[ins]; ok {
		return n.Line
	}
	return 0
}

// LoadFile reads and parses the script at path. The script name defaults to
// the file name without its extension.
func LoadFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// Load parses a script read from r.
func Load(r io.Reader) (*Script, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return Parse(data)
}

// Parse parses a script document.
func Parse(data []byte) (*Script, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}
	s := &Script{
		List:      blockjit.NewInstructionList(),
		doc:       &doc,
		variables: make(map[string]*blockjit.Variable),
		lists:     make(map[string]*blockjit.List),
		registers: make(map[string]*blockjit.Value),
		nodes:     make(map[*blockjit.Instruction]*yaml.Node),
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidScript)
	}

	root := doc.Content[0]
	body := root
	if root.Kind == yaml.MappingNode {
		body = nil
		for i := 0; i+1 < len(root.Content); i += 2 {
			key, val := root.Content[i], root.Content[i+1]
			switch key.Value {
			case "name":
				s.Name = val.Value
			case "script":
				body = val
			default:
				return nil, errorf(key, "unknown top-level key %q", key.Value)
			}
		}
		if body == nil {
			return nil, errorf(root, "missing 'script'")
		}
	}
	if err := s.statements(body); err != nil {
		return nil, err
	}
	return s, nil
}

func errorf(n *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrInvalidScript, n.Line, fmt.Sprintf(format, args...))
}

// fields indexes the keys of a statement mapping.
type fields struct {
	node *yaml.Node
	m    map[string]*yaml.Node
}

func newFields(n *yaml.Node) (fields, error) {
	if n.Kind != yaml.MappingNode {
		return fields{}, errorf(n, "statement must be a mapping")
	}
	f := fields{node: n, m: make(map[string]*yaml.Node, len(n.Content)/2)}
	for i := 0; i+1 < len(n.Content); i += 2 {
		f.m[n.Content[i].Value] = n.Content[i+1]
	}
	return f, nil
}

func (f fields) get(key string) *yaml.Node { return f.m[key] }

func (f fields) require(key string) (*yaml.Node, error) {
	if n, ok := f.m[key]; ok {
		return n, nil
	}
	return nil, errorf(f.node, "missing %q", key)
}

func (f fields) name(key string) (string, error) {
	n, err := f.require(key)
	if err != nil {
		return "", err
	}
	if n.Kind != yaml.ScalarNode || n.Value == "" {
		return "", errorf(n, "%q must be a name", key)
	}
	return n.Value, nil
}

func (s *Script) statements(n *yaml.Node) error {
	if n.Kind != yaml.SequenceNode {
		return errorf(n, "expected a list of statements")
	}
	for _, stmt := range n.Content {
		if err := s.statement(stmt); err != nil {
			return err
		}
	}
	return nil
}

// statement emits the instructions of one statement. Block statements emit
// their markers around the nested statements.
func (s *Script) statement(n *yaml.Node) error {
	f, err := newFields(n)
	if err != nil {
		return err
	}
	l := s.List

	switch {
	case f.get("write") != nil:
		v, err := s.variable(f, "write")
		if err != nil {
			return err
		}
		src, err := s.operand(f, "value")
		if err != nil {
			return err
		}
		s.track(l.WriteVariable(v, src), n)

	case f.get("read") != nil:
		v, err := s.variable(f, "read")
		if err != nil {
			return err
		}
		return s.define(f, l.ReadVariable(v))

	case f.get("load") != nil:
		return s.define(f, l.LoadConst(literal(f.get("load"))))

	case f.get("call") != nil:
		name, err := f.name("call")
		if err != nil {
			return err
		}
		ret := blockjit.Unknown
		if rn := f.get("returns"); rn != nil {
			if ret, err = blockjit.ParseStaticType(rn.Value); err != nil {
				return errorf(rn, "%v", err)
			}
		}
		in, err := s.operands(f)
		if err != nil {
			return err
		}
		return s.define(f, l.CallFunction(name, ret, in...))

	case f.get("procedure") != nil:
		name, err := f.name("procedure")
		if err != nil {
			return err
		}
		in, err := s.operands(f)
		if err != nil {
			return err
		}
		s.track(l.CallProcedure(name, in...), n)

	case f.get("if") != nil:
		return s.ifStatement(f)

	case f.get("repeat") != nil:
		count, err := s.operand(f, "repeat")
		if err != nil {
			return err
		}
		s.track(l.BeginRepeatLoop(count), n)
		return s.loopBody(f)

	case f.get("while") != nil:
		return s.condLoop(f, "while")

	case f.get("until") != nil:
		return s.condLoop(f, "until")

	case f.get("forever") != nil:
		s.track(l.BeginForeverLoop(), n)
		return s.loopBody(f)

	default:
		return s.listStatement(f)
	}
	return nil
}

func (s *Script) ifStatement(f fields) error {
	l := s.List
	cond, err := s.operand(f, "if")
	if err != nil {
		return err
	}
	s.track(l.BeginIf(cond), f.node)
	then, err := f.require("then")
	if err != nil {
		return err
	}
	if err := s.statements(then); err != nil {
		return err
	}
	if els := f.get("else"); els != nil {
		l.BeginElse()
		if err := s.statements(els); err != nil {
			return err
		}
	}
	l.EndIf()
	return nil
}

// condLoop emits a while or until loop. Statements under "cond" form the
// condition region, evaluated before every iteration.
func (s *Script) condLoop(f fields, key string) error {
	l := s.List
	cond := f.get("cond")
	if cond != nil {
		s.track(l.BeginLoopCondition(), f.node)
		if err := s.statements(cond); err != nil {
			return err
		}
	}
	test, err := s.operand(f, key)
	if err != nil {
		return err
	}
	var opener *blockjit.Instruction
	if key == "while" {
		opener = l.BeginWhileLoop(test)
	} else {
		opener = l.BeginRepeatUntilLoop(test)
	}
	if cond == nil {
		s.track(opener, f.node)
	}
	return s.loopBody(f)
}

func (s *Script) loopBody(f fields) error {
	body, err := f.require("do")
	if err != nil {
		return err
	}
	if err := s.statements(body); err != nil {
		return err
	}
	s.List.EndLoop()
	return nil
}

func (s *Script) listStatement(f fields) error {
	l := s.List
	for _, key := range []string{"list_read", "list_item", "list_length", "list_append", "list_replace", "list_remove", "list_clear"} {
		if f.get(key) == nil {
			continue
		}
		list, err := s.list(f, key)
		if err != nil {
			return err
		}
		switch key {
		case "list_read":
			return s.define(f, l.ReadList(list))
		case "list_item":
			idx, err := s.operand(f, "index")
			if err != nil {
				return err
			}
			return s.define(f, l.ListItem(list, idx))
		case "list_length":
			return s.define(f, l.ListLength(list))
		case "list_append":
			item, err := s.operand(f, "value")
			if err != nil {
				return err
			}
			s.track(l.ListAppend(list, item), f.node)
		case "list_replace":
			idx, err := s.operand(f, "index")
			if err != nil {
				return err
			}
			item, err := s.operand(f, "value")
			if err != nil {
				return err
			}
			s.track(l.ListReplace(list, idx, item), f.node)
		case "list_remove":
			idx, err := s.operand(f, "index")
			if err != nil {
				return err
			}
			s.track(l.ListRemove(list, idx), f.node)
		case "list_clear":
			s.track(l.ListClear(list), f.node)
		}
		return nil
	}
	return errorf(f.node, "unknown statement")
}

func (s *Script) track(ins *blockjit.Instruction, n *yaml.Node) {
	s.nodes[ins] = n
}

// define records the statement of a register-producing instruction and binds
// its id, if any.
func (s *Script) define(f fields, reg *blockjit.Value) error {
	s.track(reg.Producer(), f.node)
	idn := f.get("id")
	if idn == nil {
		return nil
	}
	if _, dup := s.registers[idn.Value]; dup {
		return errorf(idn, "register %q already defined", idn.Value)
	}
	s.registers[idn.Value] = reg
	return nil
}

func (s *Script) variable(f fields, key string) (*blockjit.Variable, error) {
	name, err := f.name(key)
	if err != nil {
		return nil, err
	}
	v, ok := s.variables[name]
	if !ok {
		v = &blockjit.Variable{ID: name, Name: name}
		s.variables[name] = v
	}
	return v, nil
}

func (s *Script) list(f fields, key string) (*blockjit.List, error) {
	name, err := f.name(key)
	if err != nil {
		return nil, err
	}
	l, ok := s.lists[name]
	if !ok {
		l = &blockjit.List{ID: name, Name: name}
		s.lists[name] = l
	}
	return l, nil
}

func (s *Script) operand(f fields, key string) (*blockjit.Value, error) {
	n, err := f.require(key)
	if err != nil {
		return nil, err
	}
	return s.value(n)
}

func (s *Script) operands(f fields) ([]*blockjit.Value, error) {
	n := f.get("args")
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, errorf(n, "'args' must be a list")
	}
	out := make([]*blockjit.Value, 0, len(n.Content))
	for _, a := range n.Content {
		v, err := s.value(a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// value resolves an operand node: a scalar constant or a {$ref: id} mapping.
func (s *Script) value(n *yaml.Node) (*blockjit.Value, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return blockjit.NewConstValue(literal(n)), nil
	case yaml.MappingNode:
		if len(n.Content) == 2 && n.Content[0].Value == "$ref" {
			id := n.Content[1].Value
			reg, ok := s.registers[id]
			if !ok {
				return nil, errorf(n, "undefined register %q", id)
			}
			return reg, nil
		}
	}
	return nil, errorf(n, "operand must be a scalar or {$ref: id}")
}

// literal decodes a scalar with YAML's own typing: unquoted numbers and
// booleans keep their type, quoted scalars stay strings.
func literal(n *yaml.Node) any {
	var v any
	if err := n.Decode(&v); err != nil {
		return n.Value
	}
	return v
}
