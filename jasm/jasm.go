//  Copyright (c) 2025 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package jasm assembles methods written in a Jasmin-like text syntax into bytecode.Method
// values. It exists so that method bodies can be written by hand, for the command-line driver
// and for tests:
//
//	.class com/example/Greeter
//	.method public greet(Ljava/lang/String;)I
//	.limit stack 2
//	.limit locals 2
//	.param 0 nullable
//	    aload_1
//	    ifnull Empty
//	Start:
//	    aload_1
//	    invokevirtual java/lang/String/length()I
//	    ireturn
//	Empty:
//	    iconst_0
//	    ireturn
//	Handler:
//	    pop
//	    iconst_m1
//	    ireturn
//	.catch java/lang/RuntimeException from Start to Empty using Handler
//	.end method
//
// Every mnemonic of the JVM instruction set is accepted. The short forms (aload_0, istore_3, ...),
// the _w variants and the wide prefix are folded into their canonical instruction, so positions
// count one per instruction line. Labels name the position of the next instruction. Comments start
// with ';'.
package jasm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/nullsafe/bytecode"
	"go.uber.org/nullsafe/lattice"
)

// ErrSyntax is wrapped by every error Parse returns.
var ErrSyntax = errors.New("syntax error")

// Parse assembles every method in src.
func Parse(src string) ([]*bytecode.Method, error) {
	p := &parser{lines: strings.Split(src, "\n")}
	return p.parse()
}

// MustParseMethod assembles src, which must contain exactly one method, and panics on error. It
// is meant for tests and other fixed inputs.
func MustParseMethod(src string) *bytecode.Method {
	ms, err := Parse(src)
	if err != nil {
		panic(err)
	}
	if len(ms) != 1 {
		panic(fmt.Sprintf("expected exactly one method, got %d", len(ms)))
	}
	return ms[0]
}

// line is one meaningful source line: its 1-based number and its fields.
type line struct {
	num    int
	fields []string
}

type parser struct {
	lines []string
	idx   int
	owner string
}

func (p *parser) errorf(num int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, num, fmt.Sprintf(format, args...))
}

// next returns the next non-empty line, with comments stripped.
func (p *parser) next() (line, bool) {
	for p.idx < len(p.lines) {
		raw := p.lines[p.idx]
		p.idx++
		if f := splitFields(raw); len(f) > 0 {
			return line{num: p.idx, fields: f}, true
		}
	}
	return line{}, false
}

func (p *parser) parse() ([]*bytecode.Method, error) {
	var methods []*bytecode.Method
	for {
		l, ok := p.next()
		if !ok {
			return methods, nil
		}
		switch l.fields[0] {
		case ".class", ".interface":
			if len(l.fields) < 2 {
				return nil, p.errorf(l.num, "%s needs a class name", l.fields[0])
			}
			p.owner = l.fields[len(l.fields)-1]
		case ".source", ".super", ".implements", ".field":
			// Irrelevant to the analysis.
		case ".method":
			m, err := p.parseMethod(l)
			if err != nil {
				return nil, err
			}
			methods = append(methods, m)
		default:
			return nil, p.errorf(l.num, "unexpected %q outside of a method", l.fields[0])
		}
	}
}

// parseMethod reads a method from its .method line up to and including .end method.
func (p *parser) parseMethod(header line) (*bytecode.Method, error) {
	if len(header.fields) < 2 {
		return nil, p.errorf(header.num, ".method needs a name and a descriptor")
	}
	m := &bytecode.Method{Owner: p.owner}
	for _, flag := range header.fields[1 : len(header.fields)-1] {
		if flag == "static" {
			m.Static = true
		}
	}
	nameDesc := header.fields[len(header.fields)-1]
	paren := strings.IndexByte(nameDesc, '(')
	if paren <= 0 {
		return nil, p.errorf(header.num, "malformed method name and descriptor %q", nameDesc)
	}
	m.Name, m.Desc = nameDesc[:paren], nameDesc[paren:]

	// First pass: collect instruction lines and assign label positions.
	var (
		body    []line
		catches []line
		labels  = make(map[string]int)
	)
	for {
		l, ok := p.next()
		if !ok {
			return nil, p.errorf(header.num, "method %s has no .end method", m.Name)
		}

		if name, ok := strings.CutSuffix(l.fields[0], ":"); ok {
			if _, dup := labels[name]; dup {
				return nil, p.errorf(l.num, "duplicate label %q", name)
			}
			labels[name] = len(body)
			if len(l.fields) == 1 {
				continue
			}
			l.fields = l.fields[1:]
		}

		switch l.fields[0] {
		case ".end":
			if err := p.resolve(m, body, catches, labels); err != nil {
				return nil, err
			}
			return m, nil
		case ".limit":
			if err := p.parseLimit(m, l); err != nil {
				return nil, err
			}
		case ".param":
			if err := p.parseParam(m, l); err != nil {
				return nil, err
			}
		case ".catch":
			catches = append(catches, l)
		case ".line", ".var", ".throws", ".signature":
			// Debug information.
		case "tableswitch", "lookupswitch":
			sw, err := p.collectSwitch(l)
			if err != nil {
				return nil, err
			}
			body = append(body, sw)
		default:
			if strings.HasPrefix(l.fields[0], ".") {
				return nil, p.errorf(l.num, "unknown directive %q", l.fields[0])
			}
			if l.fields[0] == "wide" {
				l.fields = l.fields[1:]
				if len(l.fields) == 0 {
					return nil, p.errorf(l.num, "wide without an instruction")
				}
			}
			body = append(body, l)
		}
	}
}

func (p *parser) parseLimit(m *bytecode.Method, l line) error {
	if len(l.fields) != 3 {
		return p.errorf(l.num, "usage: .limit stack|locals N")
	}
	n, err := strconv.Atoi(l.fields[2])
	if err != nil || n < 0 {
		return p.errorf(l.num, "invalid limit %q", l.fields[2])
	}
	switch l.fields[1] {
	case "stack":
		m.MaxStack = n
	case "locals":
		m.MaxLocals = n
	default:
		return p.errorf(l.num, "unknown limit %q", l.fields[1])
	}
	return nil
}

func (p *parser) parseParam(m *bytecode.Method, l line) error {
	if len(l.fields) != 3 {
		return p.errorf(l.num, "usage: .param INDEX nullable|nonnull|null")
	}
	i, err := strconv.Atoi(l.fields[1])
	if err != nil || i < 0 {
		return p.errorf(l.num, "invalid parameter index %q", l.fields[1])
	}
	n, err := lattice.ParseNullability(l.fields[2])
	if err != nil {
		return p.errorf(l.num, "%v", err)
	}
	for len(m.ParamNullability) <= i {
		m.ParamNullability = append(m.ParamNullability, lattice.Unknown)
	}
	m.ParamNullability[i] = n
	return nil
}

// collectSwitch gathers the case lines of a switch, up to and including its default line, into
// a single line.
func (p *parser) collectSwitch(head line) (line, error) {
	out := line{num: head.num, fields: append([]string(nil), head.fields...)}
	for {
		l, ok := p.next()
		if !ok {
			return line{}, p.errorf(head.num, "%s without a default", head.fields[0])
		}
		out.fields = append(out.fields, "|")
		out.fields = append(out.fields, l.fields...)
		// "default : L", "default: L" and "default:L" are all accepted.
		if name, _, _ := strings.Cut(l.fields[0], ":"); name == "default" {
			return out, nil
		}
	}
}

// resolve builds the instructions and handlers of m once all labels are known.
func (p *parser) resolve(m *bytecode.Method, body, catches []line, labels map[string]int) error {
	target := func(l line, name string, allowEnd bool) (int, error) {
		pos, ok := labels[name]
		if !ok {
			return 0, p.errorf(l.num, "undefined label %q", name)
		}
		if pos == len(body) && !allowEnd {
			return 0, p.errorf(l.num, "label %q marks no instruction", name)
		}
		return pos, nil
	}

	m.Instructions = make([]bytecode.Instruction, len(body))
	for i, l := range body {
		insn, err := p.instruction(l, func(name string) (int, error) { return target(l, name, false) })
		if err != nil {
			return err
		}
		m.Instructions[i] = insn
	}

	for _, l := range catches {
		// .catch TYPE from START to END using HANDLER
		f := l.fields
		if len(f) != 8 || f[2] != "from" || f[4] != "to" || f[6] != "using" {
			return p.errorf(l.num, "usage: .catch TYPE from START to END using HANDLER")
		}
		var (
			h   = bytecode.Handler{Type: f[1]}
			err error
		)
		if h.Type == "all" {
			h.Type = ""
		}
		if h.Start, err = target(l, f[3], false); err != nil {
			return err
		}
		if h.End, err = target(l, f[5], true); err != nil {
			return err
		}
		if h.Target, err = target(l, f[7], false); err != nil {
			return err
		}
		m.Handlers = append(m.Handlers, h)
	}
	return nil
}

// splitFields splits a source line into fields, dropping comments. Quoted strings (ldc
// operands) are kept as a single field.
func splitFields(s string) []string {
	var (
		fields []string
		cur    strings.Builder
		quoted bool
	)
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quoted:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
			} else if c == '"' {
				quoted = false
			}
		case c == '"':
			quoted = true
			cur.WriteByte(c)
		case c == ';' && cur.Len() == 0:
			// Only a ';' that starts a field begins a comment: descriptors contain ';' too.
			return fields
		case c == ' ' || c == '\t' || c == '\r':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return fields
}
