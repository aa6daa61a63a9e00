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

package jasm

import (
	"strconv"
	"strings"

	"go.uber.org/nullsafe/bytecode"
)

// _opcodes maps every mnemonic, canonical or not, to its opcode value.
var _opcodes = func() map[string]int {
	m := make(map[string]int)
	for op := 0; ; op++ {
		name, ok := bytecode.Mnemonic(op)
		if !ok {
			return m
		}
		m[name] = op
	}
}()

// _aliases folds the non-canonical mnemonics that are not short-form loads and stores.
var _aliases = map[string]bytecode.Opcode{
	"ldc_w":  bytecode.LDC,
	"ldc2_w": bytecode.LDC,
	"goto_w": bytecode.GOTO,
	"jsr_w":  bytecode.JSR,
}

var _newarrayTypes = map[string]int{
	"boolean": 4, "char": 5, "float": 6, "double": 7, "byte": 8, "short": 9, "int": 10, "long": 11,
}

// instruction builds the instruction of one body line. target resolves label names.
func (p *parser) instruction(l line, target func(string) (int, error)) (bytecode.Instruction, error) {
	mnemonic, args := l.fields[0], l.fields[1:]
	want := func(n int) error {
		if len(args) < n {
			return p.errorf(l.num, "%s needs %d operand(s), got %d", mnemonic, n, len(args))
		}
		return nil
	}
	atoi := func(s string) (int, error) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, p.errorf(l.num, "%s: invalid integer %q", mnemonic, s)
		}
		return n, nil
	}

	// xload_n / xstore_n.
	if base, n, ok := strings.Cut(mnemonic, "_"); ok && len(n) == 1 && n[0] >= '0' && n[0] <= '3' &&
		(strings.HasSuffix(base, "load") || strings.HasSuffix(base, "store")) {
		op, known := _opcodes[base]
		if !known {
			return nil, p.errorf(l.num, "unknown instruction %q", mnemonic)
		}
		return &bytecode.VarInsn{Op: bytecode.Opcode(op), Var: int(n[0] - '0')}, nil
	}

	op, ok := _aliases[mnemonic]
	if !ok {
		v, known := _opcodes[mnemonic]
		if !known || mnemonic == "wide" {
			return nil, p.errorf(l.num, "unknown instruction %q", mnemonic)
		}
		op = bytecode.Opcode(v)
	}

	switch {
	case op == bytecode.BIPUSH || op == bytecode.SIPUSH:
		if err := want(1); err != nil {
			return nil, err
		}
		n, err := atoi(args[0])
		if err != nil {
			return nil, err
		}
		return &bytecode.IntInsn{Op: op, Operand: n}, nil

	case op == bytecode.NEWARRAY:
		if err := want(1); err != nil {
			return nil, err
		}
		code, ok := _newarrayTypes[args[0]]
		if !ok {
			return nil, p.errorf(l.num, "newarray: unknown element type %q", args[0])
		}
		return &bytecode.IntInsn{Op: op, Operand: code}, nil

	case op >= bytecode.ILOAD && op <= bytecode.ALOAD, op >= bytecode.ISTORE && op <= bytecode.ASTORE,
		op == bytecode.RET:
		if err := want(1); err != nil {
			return nil, err
		}
		n, err := atoi(args[0])
		if err != nil {
			return nil, err
		}
		return &bytecode.VarInsn{Op: op, Var: n}, nil

	case op == bytecode.IINC:
		if err := want(2); err != nil {
			return nil, err
		}
		v, err := atoi(args[0])
		if err != nil {
			return nil, err
		}
		incr, err := atoi(args[1])
		if err != nil {
			return nil, err
		}
		return &bytecode.IincInsn{Var: v, Incr: incr}, nil

	case op == bytecode.NEW || op == bytecode.ANEWARRAY || op == bytecode.CHECKCAST || op == bytecode.INSTANCEOF:
		if err := want(1); err != nil {
			return nil, err
		}
		return &bytecode.TypeInsn{Op: op, Desc: args[0]}, nil

	case op >= bytecode.GETSTATIC && op <= bytecode.PUTFIELD:
		if err := want(2); err != nil {
			return nil, err
		}
		slash := strings.LastIndexAny(args[0], "/.")
		if slash <= 0 || slash == len(args[0])-1 {
			return nil, p.errorf(l.num, "%s: expected OWNER/NAME, got %q", mnemonic, args[0])
		}
		return &bytecode.FieldInsn{Op: op, Owner: args[0][:slash], Name: args[0][slash+1:], Desc: args[1]}, nil

	case op >= bytecode.INVOKEVIRTUAL && op <= bytecode.INVOKEINTERFACE:
		if err := want(1); err != nil {
			return nil, err
		}
		paren := strings.IndexByte(args[0], '(')
		if paren < 0 {
			return nil, p.errorf(l.num, "%s: expected OWNER/NAME(DESC)RET, got %q", mnemonic, args[0])
		}
		slash := strings.LastIndexAny(args[0][:paren], "/.")
		if slash <= 0 || slash == paren-1 {
			return nil, p.errorf(l.num, "%s: expected OWNER/NAME(DESC)RET, got %q", mnemonic, args[0])
		}
		return &bytecode.MethodInsn{
			Op:    op,
			Owner: args[0][:slash],
			Name:  args[0][slash+1 : paren],
			Desc:  args[0][paren:],
			Itf:   op == bytecode.INVOKEINTERFACE,
		}, nil

	case op == bytecode.INVOKEDYNAMIC:
		if err := want(1); err != nil {
			return nil, err
		}
		name, desc := args[0], ""
		if len(args) > 1 {
			desc = args[1]
		} else if paren := strings.IndexByte(name, '('); paren > 0 {
			name, desc = name[:paren], name[paren:]
		}
		if desc == "" {
			return nil, p.errorf(l.num, "invokedynamic: missing descriptor")
		}
		return &bytecode.InvokeDynamicInsn{Name: name, Desc: desc}, nil

	case op >= bytecode.IFEQ && op <= bytecode.JSR, op == bytecode.IFNULL, op == bytecode.IFNONNULL:
		if err := want(1); err != nil {
			return nil, err
		}
		t, err := target(args[0])
		if err != nil {
			return nil, err
		}
		return &bytecode.JumpInsn{Op: op, Target: t}, nil

	case op == bytecode.LDC:
		if err := want(1); err != nil {
			return nil, err
		}
		return &bytecode.LdcInsn{Kind: constKind(args[0], mnemonic == "ldc2_w")}, nil

	case op == bytecode.TABLESWITCH || op == bytecode.LOOKUPSWITCH:
		return p.switchInsn(l, op, target)

	case op == bytecode.MULTIANEWARRAY:
		if err := want(2); err != nil {
			return nil, err
		}
		dims, err := atoi(args[1])
		if err != nil {
			return nil, err
		}
		return &bytecode.MultiANewArrayInsn{Desc: args[0], Dims: dims}, nil

	default:
		if len(args) > 0 {
			return nil, p.errorf(l.num, "%s takes no operands", mnemonic)
		}
		return &bytecode.Insn{Op: op}, nil
	}
}

// constKind classifies an ldc operand: quoted strings, numbers (integers or floats, widened for
// ldc2_w), and anything else is taken as a class name.
func constKind(s string, wide bool) bytecode.ConstKind {
	switch {
	case strings.HasPrefix(s, `"`):
		return bytecode.ConstString
	case isInt(s):
		if wide {
			return bytecode.ConstLong
		}
		return bytecode.ConstInt
	case isFloat(s):
		if wide {
			return bytecode.ConstDouble
		}
		return bytecode.ConstFloat
	default:
		return bytecode.ConstClass
	}
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 0, 64)
	return err == nil
}

func isFloat(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// switchInsn builds a switch from the line assembled by collectSwitch, whose case groups are
// separated by "|" fields:
//
//	tableswitch LOW HIGH | LABEL | LABEL ... | default : LABEL
//	lookupswitch | KEY : LABEL ... | default : LABEL
func (p *parser) switchInsn(l line, op bytecode.Opcode, target func(string) (int, error)) (bytecode.Instruction, error) {
	var groups [][]string
	cur := []string{}
	for _, f := range l.fields {
		if f == "|" {
			groups = append(groups, cur)
			cur = []string{}
			continue
		}
		cur = append(cur, f)
	}
	groups = append(groups, cur)

	head, cases := groups[0], groups[1:]
	dflt := strings.Split(strings.Join(cases[len(cases)-1], ""), ":")
	if len(dflt) != 2 || dflt[0] != "default" {
		return nil, p.errorf(l.num, "%s: malformed default case", head[0])
	}
	dfltTarget, err := target(dflt[1])
	if err != nil {
		return nil, err
	}
	cases = cases[:len(cases)-1]

	if op == bytecode.TABLESWITCH {
		if len(head) != 3 {
			return nil, p.errorf(l.num, "usage: tableswitch LOW HIGH")
		}
		low, err1 := strconv.Atoi(head[1])
		high, err2 := strconv.Atoi(head[2])
		if err1 != nil || err2 != nil || high < low {
			return nil, p.errorf(l.num, "tableswitch: invalid range %s..%s", head[1], head[2])
		}
		insn := &bytecode.TableSwitchInsn{Min: low, Max: high, Default: dfltTarget}
		for _, c := range cases {
			t, err := target(strings.Join(c, ""))
			if err != nil {
				return nil, err
			}
			insn.Targets = append(insn.Targets, t)
		}
		return insn, nil
	}

	insn := &bytecode.LookupSwitchInsn{Default: dfltTarget}
	for _, c := range cases {
		kv := strings.Split(strings.Join(c, ""), ":")
		if len(kv) != 2 {
			return nil, p.errorf(l.num, "lookupswitch: expected KEY : LABEL, got %q", strings.Join(c, " "))
		}
		key, err := strconv.Atoi(kv[0])
		if err != nil {
			return nil, p.errorf(l.num, "lookupswitch: invalid key %q", kv[0])
		}
		t, err := target(kv[1])
		if err != nil {
			return nil, err
		}
		insn.Keys = append(insn.Keys, key)
		insn.Targets = append(insn.Targets, t)
	}
	return insn, nil
}
