// Package inputscan counts input() call sites in Python source without
// running it. The scan is structural (comments and string literals are
// stripped, indentation blocks are tracked) but deliberately not a full
// parse: calls reached through user-defined functions or recursion are not
// traced, and any call site inside a loop makes the count indeterminate so
// the caller can fall back to asking the user.
package inputscan

import (
	"strings"
)

// Count returns the number of lexical input() occurrences in src, or
// indeterminate=true when at least one occurrence sits inside a for/while
// block (including the header line of a while, which re-evaluates per
// iteration). Occurrences inside conditionals still count once each; the
// count is lexical, not a runtime prediction.
func Count(src string) (n int, indeterminate bool) {
	stripped := stripLiterals(src)

	type block struct {
		indent int
	}
	var loops []block

	bracketDepth := 0
	for _, line := range strings.Split(stripped, "\n") {
		continuation := bracketDepth > 0
		bracketDepth += netBracketDelta(line)
		if bracketDepth < 0 {
			bracketDepth = 0
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		indent := indentWidth(line)
		if !continuation {
			for len(loops) > 0 && loops[len(loops)-1].indent >= indent {
				loops = loops[:len(loops)-1]
			}
		}

		isLoopHeader := false
		if !continuation {
			switch firstWord(trimmed) {
			case "for", "while":
				isLoopHeader = true
			}
		}

		hits := countInputTokens(line)
		if hits > 0 {
			if len(loops) > 0 || isLoopHeader {
				return 0, true
			}
			n += hits
		}

		if isLoopHeader {
			loops = append(loops, block{indent: indent})
		}
	}
	return n, false
}

// stripLiterals blanks out comments and string literals (including
// triple-quoted strings spanning lines) while preserving newlines, so the
// line/indentation structure of the result matches the source.
func stripLiterals(src string) string {
	var b strings.Builder
	b.Grow(len(src))

	const (
		stCode = iota
		stComment
		stString
	)
	state := stCode
	var quote string // `'`, `"`, `'''` or `"""` while in stString

	i := 0
	for i < len(src) {
		c := src[i]
		switch state {
		case stCode:
			switch {
			case c == '#':
				state = stComment
				b.WriteByte(' ')
				i++
			case c == '\'' || c == '"':
				if i+2 < len(src) && src[i+1] == c && src[i+2] == c {
					quote = string(c) + string(c) + string(c)
					i += 3
					b.WriteString("   ")
				} else {
					quote = string(c)
					i++
					b.WriteByte(' ')
				}
				state = stString
			default:
				b.WriteByte(c)
				i++
			}
		case stComment:
			if c == '\n' {
				state = stCode
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
			i++
		case stString:
			switch {
			case c == '\\' && i+1 < len(src):
				b.WriteString("  ")
				i += 2
			case strings.HasPrefix(src[i:], quote):
				for range quote {
					b.WriteByte(' ')
				}
				i += len(quote)
				state = stCode
			case c == '\n':
				if len(quote) == 1 {
					// Unterminated single-quoted string; resync at the
					// line break rather than swallowing the rest.
					state = stCode
				}
				b.WriteByte('\n')
				i++
			default:
				b.WriteByte(' ')
				i++
			}
		}
	}
	return b.String()
}

// indentWidth measures leading whitespace with tabs advancing to the next
// multiple of 8, matching the CPython tokenizer default.
func indentWidth(line string) int {
	w := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case ' ':
			w++
		case '\t':
			w = (w/8 + 1) * 8
		default:
			return w
		}
	}
	return w
}

func firstWord(trimmed string) string {
	end := 0
	for end < len(trimmed) && isIdentByte(trimmed[end]) {
		end++
	}
	return trimmed[:end]
}

// countInputTokens counts identifier-boundary occurrences of "input"
// followed (after optional spaces) by an opening paren. Attribute access
// like obj.input(...) is not counted; it is a different callable.
func countInputTokens(line string) int {
	const needle = "input"
	count := 0
	start := 0
	for {
		i := strings.Index(line[start:], needle)
		if i < 0 {
			return count
		}
		i += start
		start = i + len(needle)

		if i > 0 {
			prev := line[i-1]
			if isIdentByte(prev) || prev == '.' {
				continue
			}
		}
		j := i + len(needle)
		for j < len(line) && (line[j] == ' ' || line[j] == '\t') {
			j++
		}
		if j < len(line) && line[j] == '(' {
			count++
		}
	}
}

func netBracketDelta(line string) int {
	d := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '(', '[', '{':
			d++
		case ')', ']', '}':
			d--
		}
	}
	return d
}

func isIdentByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
