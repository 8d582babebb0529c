package vm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Text assembly format
// ---------------------------------------------------------------------------
//
// Line 1 holds the heap base. Every following line is a three-letter
// mnemonic, optionally followed by a space and an operand. A trailing "s"
// marks a string operand; other operands are numbers, parsed as floats when
// they contain a decimal point. Unlinked listings may carry "%n" flag
// operands and "FLG %n" lines.

// ErrEmptyText is returned when the text holds no header line.
var ErrEmptyText = errors.New("vm: empty assembly text")

// FormatText renders a program in the text assembly format.
func FormatText(p *Program) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(p.HeapBase))
	for _, in := range p.Code {
		b.WriteByte('\n')
		b.WriteString(in.String())
	}
	return b.String()
}

// FormatListing renders instructions without the heap-base header.
func FormatListing(code []Instruction) string {
	lines := make([]string, len(code))
	for i, in := range code {
		lines[i] = in.String()
	}
	return strings.Join(lines, "\n")
}

// ParseText parses the text assembly format.
func ParseText(src string) (*Program, error) {
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, ErrEmptyText
	}

	heapBase, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || heapBase < 0 {
		return nil, fmt.Errorf("vm: line 1: invalid heap base %q", lines[0])
	}

	p := &Program{HeapBase: heapBase}
	for i, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		in, err := ParseInstruction(line)
		if err != nil {
			return nil, fmt.Errorf("vm: line %d: %w", i+2, err)
		}
		p.Code = append(p.Code, in)
	}
	return p, nil
}

// ParseInstruction parses a single assembly line.
func ParseInstruction(line string) (Instruction, error) {
	if len(line) < 3 {
		return Instruction{}, fmt.Errorf("truncated instruction %q", line)
	}
	op, ok := LookupMnemonic(line[:3])
	if !ok {
		return Instruction{}, fmt.Errorf("unknown mnemonic %q", line[:3])
	}
	if len(line) < 4 {
		return Inst(op), nil
	}
	if line[3] != ' ' {
		return Instruction{}, fmt.Errorf("malformed instruction %q", line)
	}

	raw := line[4:]
	if strings.TrimSpace(raw) == "" {
		return Inst(op), nil
	}
	if strings.HasSuffix(raw, "s") {
		s, err := unescapeString(raw[:len(raw)-1])
		if err != nil {
			return Instruction{}, err
		}
		return InstArg(op, StrArg(s)), nil
	}

	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "%") {
		id, err := strconv.Atoi(raw[1:])
		if err != nil {
			return Instruction{}, fmt.Errorf("invalid flag %q", raw)
		}
		return InstArg(op, FlagArg(id)), nil
	}
	if strings.Contains(raw, ".") {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Instruction{}, fmt.Errorf("invalid number %q", raw)
		}
		return InstArg(op, NumArg(f)), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return Instruction{}, fmt.Errorf("invalid operand %q", raw)
	}
	return InstInt(op, n), nil
}

func escapeString(s string) string {
	if !strings.ContainsAny(s, "\\\n") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	return r.Replace(s)
}

func unescapeString(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("dangling escape in %q", s)
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		default:
			return "", fmt.Errorf("unknown escape \\%c in %q", s[i], s)
		}
	}
	return b.String(), nil
}
