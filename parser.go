package bootshell

import (
	"strconv"
	"strings"
)

const (
	// maxLineLen bounds a received command line, terminator excluded.
	maxLineLen = 128
	// maxArgs bounds the number of key=value arguments kept per command.
	// Tokens past the limit are silently dropped.
	maxArgs = 10
)

// Command is one parsed command line: a lower-cased name and its key=value
// arguments in the order they were received. Keys need not be unique; lookup
// returns the first match.
type Command struct {
	Name string

	args [][2]string
}

// ParseCommand tokenizes one received line (CRLF already stripped). The whole
// line is case-normalized to lower. Everything before the first space is the
// command name; each following space-delimited token is split on its first
// '='. A token without '=' ends argument scanning and the rest of the line is
// ignored.
func ParseCommand(line string) (Command, error) {
	if len(line) == 0 {
		return Command{}, ErrCmdShort
	}
	line = strings.ToLower(line)

	name, rest, found := strings.Cut(line, " ")
	cmd := Command{Name: name}
	if !found {
		return cmd, nil
	}

	for _, tok := range strings.Split(rest, " ") {
		if len(cmd.args) == maxArgs {
			break
		}
		key, val, ok := strings.Cut(tok, "=")
		if !ok {
			break
		}
		cmd.args = append(cmd.args, [2]string{key, val})
	}
	return cmd, nil
}

// Arg returns the value of the first argument named key.
func (c Command) Arg(key string) (string, bool) {
	for _, a := range c.args {
		if a[0] == key {
			return a[1], true
		}
	}
	return "", false
}

// ArgCount returns the number of parsed arguments.
func (c Command) ArgCount() int { return len(c.args) }

// requiredArg is Arg with the missing-parameter error attached.
func (c Command) requiredArg(key string) (string, error) {
	val, ok := c.Arg(key)
	if !ok {
		return "", ErrNeedParam
	}
	return val, nil
}

// parseHex parses a hexadecimal argument value. A leading "0x" is accepted
// and stripped.
func parseHex(s string) (uint32, error) {
	s = strings.TrimPrefix(s, "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, ErrNotDigit
	}
	return uint32(v), nil
}

// parseDec parses a decimal argument value.
func parseDec(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, ErrNotDigit
	}
	return uint32(v), nil
}
