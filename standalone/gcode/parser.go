package gcode

import (
	"errors"
	"fmt"
)

// ErrSyntax reports a malformed G-code word
var ErrSyntax = errors.New("gcode: syntax error")

// Command is one parsed G-code line
type Command struct {
	Type       byte             // 'G', 'M', 'T', or 0 for a comment-only line
	Number     int              // e.g. 1 for G1
	Parameters map[byte]float64 // X, Y, Z, E, F, I, J, S...
	Comment    string
}

// HasParameter checks if a parameter exists in the command
func (cmd *Command) HasParameter(param byte) bool {
	_, ok := cmd.Parameters[param]
	return ok
}

// GetParameter gets a parameter value, or returns the default if not present
func (cmd *Command) GetParameter(param byte, defaultValue float64) float64 {
	if val, ok := cmd.Parameters[param]; ok {
		return val
	}
	return defaultValue
}

// Parser handles G-code parsing
type Parser struct {
	line int
}

// NewParser creates a new G-code parser
func NewParser() *Parser {
	return &Parser{}
}

// Line returns the number of lines parsed so far
func (p *Parser) Line() int {
	return p.line
}

// ParseLine parses a single line of G-code. Blank lines return nil.
func (p *Parser) ParseLine(line string) (*Command, error) {
	p.line++
	i := skipBlanks(line, 0)
	if i >= len(line) {
		return nil, nil
	}

	cmd := &Command{Parameters: make(map[byte]float64)}
	if isComment(line[i]) {
		cmd.Comment = line[i:]
		return cmd, nil
	}

	// command word
	switch c := toUpper(line[i]); c {
	case 'G', 'M', 'T':
		cmd.Type = c
		value, next := parseNumber(line, i+1)
		if next == i+1 || value != float64(int(value)) {
			return nil, fmt.Errorf("%w: line %d: bad %c word", ErrSyntax, p.line, c)
		}
		cmd.Number = int(value)
		i = next
	}

	for {
		i = skipBlanks(line, i)
		if i >= len(line) {
			break
		}
		if isComment(line[i]) {
			cmd.Comment = line[i:]
			break
		}
		if !isLetter(line[i]) {
			return nil, fmt.Errorf("%w: line %d: unexpected %q", ErrSyntax, p.line, line[i])
		}
		letter := toUpper(line[i])
		value, next := parseNumber(line, i+1)
		if next == i+1 {
			return nil, fmt.Errorf("%w: line %d: %c without a value", ErrSyntax, p.line, letter)
		}
		cmd.Parameters[letter] = value
		i = next
	}

	return cmd, nil
}

func skipBlanks(s string, pos int) int {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t' || s[pos] == '\r' || s[pos] == '\n') {
		pos++
	}
	return pos
}

// parseNumber parses a signed decimal number at pos. It returns pos
// unchanged when there is none.
func parseNumber(s string, pos int) (float64, int) {
	start := pos
	negative := false
	if pos < len(s) && (s[pos] == '-' || s[pos] == '+') {
		negative = s[pos] == '-'
		pos++
	}

	value := 0.0
	digits := 0
	for pos < len(s) && isDigit(s[pos]) {
		value = value*10 + float64(s[pos]-'0')
		pos++
		digits++
	}
	if pos < len(s) && s[pos] == '.' {
		pos++
		frac, divisor := 0.0, 1.0
		for pos < len(s) && isDigit(s[pos]) {
			frac = frac*10 + float64(s[pos]-'0')
			divisor *= 10
			pos++
			digits++
		}
		value += frac / divisor
	}
	if digits == 0 {
		return 0, start
	}

	if negative {
		value = -value
	}
	return value, pos
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isComment(c byte) bool {
	return c == ';' || c == '('
}

// isLetter checks if a byte is a letter
func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// toUpper converts a byte to uppercase
func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
