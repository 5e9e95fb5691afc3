package compiler

import (
	"fmt"
	"strings"
)

// segment is one piece of a text run: either literal text or an embedded
// expression found between braces.
type segment struct {
	literal string
	expr    string
}

func (s segment) isExpr() bool { return s.expr != "" }

// splitExpressions splits a text run into literal and expression segments.
// Expressions are delimited by braces; nested braces (dict literals,
// comprehensions) and string literals containing braces are handled by a
// depth counter. An unterminated expression is an error.
func splitExpressions(text string) ([]segment, error) {
	var segments []segment
	var literal strings.Builder

	i := 0
	for i < len(text) {
		ch := text[i]
		if ch != '{' {
			literal.WriteByte(ch)
			i++
			continue
		}

		if literal.Len() > 0 {
			segments = append(segments, segment{literal: literal.String()})
			literal.Reset()
		}

		expr, rest, err := scanExpression(text[i+1:])
		if err != nil {
			return nil, err
		}
		expr = strings.TrimSpace(expr)
		if expr == "" {
			return nil, fmt.Errorf("empty expression")
		}
		segments = append(segments, segment{expr: expr})
		i = len(text) - len(rest)
	}

	if literal.Len() > 0 {
		segments = append(segments, segment{literal: literal.String()})
	}

	return segments, nil
}

// scanExpression consumes an expression up to its closing brace and returns
// the expression text and the remainder of the input after the brace.
func scanExpression(input string) (expr, rest string, err error) {
	depth := 1
	var quote byte

	for i := 0; i < len(input); i++ {
		ch := input[i]

		if quote != 0 {
			switch ch {
			case '\\':
				i++ // skip escaped character
			case quote:
				quote = 0
			}
			continue
		}

		switch ch {
		case '"', '\'':
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return input[:i], input[i+1:], nil
			}
		}
	}

	return "", "", fmt.Errorf("unterminated expression: missing closing brace")
}

// containsExpression reports whether the text run has at least one embedded
// expression. Used for the cheap pre-check before full splitting.
func containsExpression(text string) bool {
	return strings.ContainsRune(text, '{')
}
