package teenyat

import "testing"

func assembleSource(t *testing.T, source []string) Program {
	prog, err := Assemble(source)
	assert(t, err == nil, "failed to assemble: %v", err)
	return prog
}

func TestAssembleSimpleProgram(t *testing.T) {
	prog := assembleSource(t, []string{
		"set ax 65",
		"stor ax OUT",
		"stor ax END",
	})
	assert(t, len(prog.Words) == 6, "expected 3 instructions (6 words), got %d words", len(prog.Words))

	instr := Instruction{OpRegs: prog.Words[0], Imm: prog.Words[1]}
	op, ra, _, err := instr.Decode()
	assert(t, err == nil, "unexpected decode error: %v", err)
	assert(t, op == Set, "first instruction should be set, got %v", op)
	assert(t, ra == R1, "first instruction should target ax (r1), got %v", ra)
	assert(t, instr.Imm == 65, "expected immediate 65, got %d", instr.Imm)
}

func TestAssembleLabelsAndForwardReferences(t *testing.T) {
	prog := assembleSource(t, []string{
		"set ax 0",
		"set bx 10",
		":loop inc ax",
		"jl ax bx :loop",
		"stor ax END",
	})

	addr, ok := prog.Labels["loop"]
	assert(t, ok, "expected label %q to be declared", "loop")
	assert(t, addr == 4, "expected :loop at word address 4, got %d", addr)

	// jl ax bx :loop is the 4th instruction (word offset 6).
	instr := Instruction{OpRegs: prog.Words[6], Imm: prog.Words[7]}
	op, _, _, err := instr.Decode()
	assert(t, err == nil, "unexpected decode error: %v", err)
	assert(t, op == Jl, "expected jl, got %v", op)
	assert(t, instr.Imm == addr, "expected branch target to resolve to %d, got %d", addr, instr.Imm)
}

func TestAssembleRepeatedLabel(t *testing.T) {
	_, err := Assemble([]string{
		":dup set ax 1",
		":dup set bx 2",
	})
	assert(t, err != nil, "expected an error for a redeclared label")

	repeated, ok := err.(*RepeatedLabelError)
	assert(t, ok, "expected *RepeatedLabelError, got %T", err)
	assert(t, repeated.Name == "dup", "expected label name %q, got %q", "dup", repeated.Name)
	assert(t, repeated.FirstLine == 1, "expected first declaration on line 1, got %d", repeated.FirstLine)
	assert(t, repeated.SecondLine == 2, "expected redeclaration on line 2, got %d", repeated.SecondLine)
}

func TestAssembleUnresolvableLabel(t *testing.T) {
	_, err := Assemble([]string{
		"call :missing",
	})
	assert(t, err != nil, "expected an error for an undeclared label")

	unresolvable, ok := err.(*UnresolvableLabelError)
	assert(t, ok, "expected *UnresolvableLabelError, got %T", err)
	assert(t, unresolvable.Name == "missing", "expected label name %q, got %q", "missing", unresolvable.Name)
}

func TestPreprocessMacrosAndConstants(t *testing.T) {
	assert(t, Preprocess("jmp loop") == "set pc  loop", "unexpected jmp expansion: %q", Preprocess("jmp loop"))
	assert(t, Preprocess("ret") == "pop pc ", "unexpected ret expansion: %q", Preprocess("ret"))
	assert(t, Preprocess("stor ax OUT") == "stor ax 0x8000", "unexpected OUT substitution: %q", Preprocess("stor ax OUT"))
	assert(t, Preprocess("stor ax END ; comment") == "stor ax 0xffff ", "unexpected comment/END handling: %q", Preprocess("stor ax END ; comment"))
	assert(t, Preprocess("add ax, bx") == "add ax bx", "unexpected comma removal: %q", Preprocess("add ax, bx"))
}

func TestTokenizeImmediates(t *testing.T) {
	tests := []struct {
		word string
		want Word
	}{
		{"65", 65},
		{"-1", 0xFFFF},
		{"0x10", 0x10},
		{"'A'", 65},
		{"'\\n'", 0x0A},
		{"notanumber", 0},
	}
	for _, tc := range tests {
		tok := tokenizeWord(tc.word, 1)
		assert(t, tok.kind == tokImm, "expected %q to tokenize as an immediate, got kind %d", tc.word, tok.kind)
		assert(t, tok.imm == tc.want, "expected %q to tokenize to %d, got %d", tc.word, tc.want, tok.imm)
	}
}

func TestAssembleMissingOperandsDefaultToZero(t *testing.T) {
	prog := assembleSource(t, []string{"set ax"})
	instr := Instruction{OpRegs: prog.Words[0], Imm: prog.Words[1]}
	op, ra, _, err := instr.Decode()
	assert(t, err == nil, "unexpected decode error: %v", err)
	assert(t, op == Set, "expected set, got %v", op)
	assert(t, ra == R1, "expected ax, got %v", ra)
	assert(t, instr.Imm == 0, "expected missing immediate to default to 0, got %d", instr.Imm)
}
