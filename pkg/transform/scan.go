package transform

import (
	"regexp"
	"strings"
)

// splitArgs splits the argument list of a call expression at its top-level
// commas. The scanner tracks parentheses, braces, brackets, quoted strings
// and line comments. It returns nil when the text has no balanced argument
// list.
func splitArgs(call string) []string {
	open := strings.IndexByte(call, '(')
	if open < 0 {
		return nil
	}
	var (
		args     []string
		depth    = 1
		braces   int
		brackets int
		quote    byte
		argStart = open + 1
		closeAt  = -1
	)
	for i := open + 1; i < len(call) && closeAt < 0; i++ {
		c := call[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '-':
			if i+1 < len(call) && call[i+1] == '-' {
				nl := strings.IndexByte(call[i:], '\n')
				if nl < 0 {
					return nil
				}
				i += nl
			}
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				closeAt = i
			}
		case '{':
			braces++
		case '}':
			braces--
		case '[':
			brackets++
		case ']':
			brackets--
		case ',':
			if depth == 1 && braces == 0 && brackets == 0 {
				args = append(args, strings.TrimSpace(call[argStart:i]))
				argStart = i + 1
			}
		}
	}
	if closeAt < 0 {
		return nil
	}
	args = append(args, strings.TrimSpace(call[argStart:closeAt]))
	return args
}

// balanced reports whether parentheses and braces outside strings and
// comments are balanced in text.
func balanced(text string) bool {
	parens, braces := 0, 0
	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '-':
			if i+1 < len(text) && text[i+1] == '-' {
				return parens == 0 && braces == 0
			}
		case '(':
			parens++
		case ')':
			parens--
		case '{':
			braces++
		case '}':
			braces--
		}
	}
	return parens == 0 && braces == 0 && quote == 0
}

// commentStart returns the offset of the line comment in line, or -1.
func commentStart(line string) int {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '-':
			if i+1 < len(line) && line[i+1] == '-' {
				return i
			}
		}
	}
	return -1
}

// splitComment separates the code of line from its trailing comment. The
// code keeps its string literals.
func splitComment(line string) (code, comment string) {
	if i := commentStart(line); i >= 0 {
		return line[:i], line[i:]
	}
	return line, ""
}

// stripCode removes string contents and the trailing comment of a line,
// leaving the code that keyword and depth scans may inspect.
func stripCode(line string) string {
	var b strings.Builder
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
				b.WriteByte(c)
			}
			continue
		}
		if c == '-' && i+1 < len(line) && line[i+1] == '-' {
			break
		}
		if c == '"' || c == '\'' {
			quote = c
		}
		b.WriteByte(c)
	}
	return b.String()
}

var controlFlowWord = regexp.MustCompile(`\b(if|then|else|elseif|end|for|while|do|repeat|until|function|return|goto|break)\b`)

// hasControlFlow reports whether the code part of line uses a control flow
// keyword.
func hasControlFlow(line string) bool {
	return controlFlowWord.MatchString(stripCode(line))
}

var continuations = []string{" and", " or", "(", ",", "=", "{", "[", "..", "+", "-", "*", "/"}

// continuesExpression reports whether line ends in a way that makes the next
// line part of the same expression.
func continuesExpression(line string) bool {
	code := strings.TrimRight(stripCode(line), " \t\r\n")
	for _, c := range continuations {
		if strings.HasSuffix(code, c) {
			return true
		}
	}
	return false
}

// containsWord reports whether name occurs in text as a whole identifier.
func containsWord(text, name string) bool {
	return regexp.MustCompile(`(^|[^\w])` + regexp.QuoteMeta(name) + `($|[^\w])`).MatchString(text)
}
