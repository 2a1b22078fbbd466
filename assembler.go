package teenyat

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// escapeSequences maps the character following a backslash in a 4-byte
// quoted literal (e.g. '\n') to its byte value. An escape not in this
// table resolves to 0, same as any other unrecognized token.
var escapeSequences = map[byte]Word{
	'a': 0x07, 'b': 0x08, 'n': 0x0A, 'r': 0x0D, 't': 0x09,
	'\\': 0x5C, '\'': 0x27, '"': 0x22, '?': 0x3F,
}

// Preprocess applies the lexical transforms to one source line, in
// order: trim surrounding whitespace, truncate at the first ';' (line
// comment), delete commas, expand the jmp/ret macros, then substitute
// the OUT/IN/END constants. Every step is a plain textual substitution —
// none of it is escaped or boundary-checked, so "jmp" inside a label
// name would be rewritten too. That is a deliberate simplification
// carried from the macro's definition, not an oversight.
func Preprocess(line string) string {
	line = strings.TrimSpace(line)
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.ReplaceAll(line, ",", "")

	line = strings.ReplaceAll(line, "jmp", "set pc ")
	line = strings.ReplaceAll(line, "JMP", "set pc ")
	line = strings.ReplaceAll(line, "ret", "pop pc ")
	line = strings.ReplaceAll(line, "RET", "pop pc ")

	line = strings.ReplaceAll(line, "OUT", "0x8000")
	line = strings.ReplaceAll(line, "IN", "0x8001")
	line = strings.ReplaceAll(line, "END", "0xffff")

	return line
}

type tokenKind int

const (
	tokLabel tokenKind = iota
	tokOp
	tokReg
	tokImm
)

// token is one lexical unit of preprocessed source: a label declaration
// or reference, an opcode mnemonic, a register mnemonic, or an
// immediate value (literal or char/escape literal already resolved to a
// Word).
type token struct {
	kind tokenKind
	text string // label name, sigil stripped
	op   Opcode
	reg  Register
	imm  Word
	line int
}

// String renders a token the way it appeared (or would appear) in
// source, for diagnostics. Only tokReg and tokImm reach it today, since
// a stray Label or Op token is handled before it is ever turned into a
// Diagnostic.
func (t token) String() string {
	switch t.kind {
	case tokLabel:
		return t.text
	case tokOp:
		return t.op.String()
	case tokReg:
		return t.reg.String()
	default:
		return fmt.Sprintf("%d", t.imm)
	}
}

// tokenizeWord classifies one whitespace-delimited word. Classification
// is tried in a fixed priority order; the first rule that matches wins,
// and anything matching none of them becomes a literal Imm(0) — the
// assembler never raises a lexical error.
func tokenizeWord(word string, line int) token {
	if len(word) > 1 && (word[0] == '!' || word[0] == ':') {
		return token{kind: tokLabel, text: word[1:], line: line}
	}

	if len(word) == 3 && word[0] == '\'' && word[2] == '\'' {
		return token{kind: tokImm, imm: Word(word[1]), line: line}
	}
	if len(word) == 4 && word[0] == '\'' && word[1] == '\\' && word[3] == '\'' {
		return token{kind: tokImm, imm: escapeSequences[word[2]], line: line}
	}

	lower := strings.ToLower(word)
	if op, ok := opcodeMnemonics[lower]; ok {
		return token{kind: tokOp, op: op, line: line}
	}
	if reg, ok := registerMnemonics[lower]; ok {
		return token{kind: tokReg, reg: reg, line: line}
	}

	if v, err := strconv.ParseUint(word, 10, 16); err == nil {
		return token{kind: tokImm, imm: Word(v), line: line}
	}
	if v, err := strconv.ParseInt(word, 10, 32); err == nil && v >= -32768 && v <= 32767 {
		return token{kind: tokImm, imm: Word(int16(v)), line: line}
	}
	if len(word) > 2 && (strings.HasPrefix(word, "0x") || strings.HasPrefix(word, "0X")) {
		if v, err := strconv.ParseUint(word[2:], 16, 16); err == nil {
			return token{kind: tokImm, imm: Word(v), line: line}
		}
	}

	return token{kind: tokImm, imm: 0, line: line}
}

// tokenizeSource preprocesses and tokenizes every line, concatenating
// all lines' tokens into one flat stream: the assembler walks the whole
// program as a single linear scan, not line by line.
func tokenizeSource(lines []string) []token {
	var tokens []token
	for lineNum, raw := range lines {
		processed := Preprocess(raw)
		if processed == "" {
			continue
		}
		for _, word := range strings.Fields(processed) {
			tokens = append(tokens, tokenizeWord(word, lineNum+1))
		}
	}
	return tokens
}

// Program is an assembled image: the resolved words ready to load into
// Memory, the label table, and any non-fatal diagnostics collected
// while assembling.
type Program struct {
	Words       []Word
	Labels      map[string]Word
	Diagnostics []Diagnostic
}

// Diagnostic records a token the assembler skipped because it stood
// outside any instruction's operand positions (for example an operand
// left over after a register slot defaulted to PC); assembly still
// succeeds. A word that falls back to Imm(0) and is consumed in an
// immediate slot is not recorded.
type Diagnostic struct {
	Line   int
	Token  string
	Reason string
}

// RepeatedLabelError reports a label name declared more than once.
type RepeatedLabelError struct {
	Name                  string
	FirstLine, SecondLine int
}

func (e *RepeatedLabelError) Error() string {
	return fmt.Sprintf("label %q redeclared at line %d (first declared at line %d)", e.Name, e.SecondLine, e.FirstLine)
}

// UnresolvableLabelError reports a label referenced in an immediate slot
// that was never declared anywhere in the source.
type UnresolvableLabelError struct {
	Name string
	Line int
}

func (e *UnresolvableLabelError) Error() string {
	return fmt.Sprintf("undeclared label %q referenced at line %d", e.Name, e.Line)
}

// InvalidOperandError reports an immediate slot that resolved to
// neither a literal value nor a label reference. The assembler's own
// token representation cannot produce this, and nothing in this package
// returns it.
type InvalidOperandError struct {
	Line   int
	Detail string
}

func (e *InvalidOperandError) Error() string {
	return fmt.Sprintf("invalid operand at line %d: %s", e.Line, e.Detail)
}

// pendingImm is an instruction's not-yet-resolved immediate slot: either
// a literal value or a label reference to resolve against the label
// table once the whole program has been walked.
type pendingImm struct {
	literal bool
	value   Word
	label   string
	line    int
}

type pendingInstruction struct {
	op     Opcode
	ra, rb Register
	imm    pendingImm
}

// consumeRegister consumes tokens[i] as a register operand if it is
// one, defaulting to PC (register 0) and leaving the cursor unmoved
// otherwise. The parser never raises a syntax error for a missing or
// mistyped operand — the token, if any, is left for the next operand
// slot or for the walk, which reports it as a diagnostic only if it is
// neither an opcode nor a label.
func consumeRegister(tokens []token, i int) (Register, int) {
	if i < len(tokens) && tokens[i].kind == tokReg {
		return tokens[i].reg, i + 1
	}
	return PC, i
}

// consumeImmediate consumes tokens[i] as an immediate or label operand,
// defaulting to literal 0 otherwise.
func consumeImmediate(tokens []token, i int, line int) (pendingImm, int) {
	if i >= len(tokens) {
		return pendingImm{literal: true, value: 0, line: line}, i
	}
	switch tokens[i].kind {
	case tokImm:
		return pendingImm{literal: true, value: tokens[i].imm, line: line}, i + 1
	case tokLabel:
		return pendingImm{literal: false, label: tokens[i].text, line: line}, i + 1
	default:
		return pendingImm{literal: true, value: 0, line: line}, i
	}
}

// Assemble runs the single-walk assembler over already-split source
// lines: tokenize, walk emitting instructions and populating the label
// table, then resolve immediate-slot labels against it.
func Assemble(lines []string) (Program, error) {
	tokens := tokenizeSource(lines)

	labels := make(map[string]Word)
	firstDecl := make(map[string]int)
	var pending []pendingInstruction
	var diags []Diagnostic

	addr := Word(0)
	i := 0
	for i < len(tokens) {
		tok := tokens[i]

		if tok.kind == tokLabel {
			if first, ok := firstDecl[tok.text]; ok {
				return Program{}, &RepeatedLabelError{Name: tok.text, FirstLine: first, SecondLine: tok.line}
			}
			firstDecl[tok.text] = tok.line
			labels[tok.text] = addr
			i++
			continue
		}

		if tok.kind != tokOp {
			diags = append(diags, Diagnostic{Line: tok.line, Token: tok.String(), Reason: "token outside of an instruction's operand positions"})
			i++
			continue
		}

		op := tok.op
		line := tok.line
		i++

		var ra, rb Register
		switch op.numRegisterOperands() {
		case 1:
			ra, i = consumeRegister(tokens, i)
		case 2:
			ra, i = consumeRegister(tokens, i)
			rb, i = consumeRegister(tokens, i)
		}

		imm := pendingImm{literal: true, line: line}
		if op.usesImmediate() {
			imm, i = consumeImmediate(tokens, i, line)
		}

		pending = append(pending, pendingInstruction{op: op, ra: ra, rb: rb, imm: imm})
		addr += 2
	}

	words := make([]Word, 0, len(pending)*2)
	for _, p := range pending {
		imm := p.imm.value
		if !p.imm.literal {
			resolved, ok := labels[p.imm.label]
			if !ok {
				return Program{}, &UnresolvableLabelError{Name: p.imm.label, Line: p.imm.line}
			}
			imm = resolved
		}

		instr := EncodeInstruction(p.op, p.ra, p.rb, imm)
		words = append(words, instr.OpRegs, instr.Imm)
	}

	return Program{Words: words, Labels: labels, Diagnostics: diags}, nil
}

// AssembleLines assembles lines and loads the result into a fresh
// Memory, for callers that don't need the Program value on its own.
func AssembleLines(lines []string) (*Memory, Program, error) {
	prog, err := Assemble(lines)
	if err != nil {
		return nil, Program{}, err
	}
	mem := NewMemory()
	if err := mem.LoadWords(prog.Words); err != nil {
		return nil, Program{}, err
	}
	return mem, prog, nil
}

// AssembleFile reads filename line by line and assembles it.
func AssembleFile(filename string) (Program, error) {
	f, err := os.Open(filename)
	if err != nil {
		return Program{}, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Program{}, err
	}

	return Assemble(lines)
}

// Disassemble renders the decoded program image one instruction per
// line: "addr: mnem ra, rb, imm". Used by the CLI's -d debug dump.
func (p Program) Disassemble() string {
	var b strings.Builder
	for addr := 0; addr+1 < len(p.Words); addr += 2 {
		instr := Instruction{OpRegs: p.Words[addr], Imm: p.Words[addr+1]}
		fmt.Fprintf(&b, "%4d: %s\n", addr, instr)
	}
	return b.String()
}
