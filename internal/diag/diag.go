// Package diag holds the positional error value shared by the lexer and
// parser so that both stages produce the exact diagnostic text the CMM
// toolchain is specified to emit.
package diag

import "fmt"

// Kind classifies a diagnostic as lexical or syntactic. The two stages use
// distinct message shapes, but share the same line-carrying representation.
type Kind int

const (
	// Lexical marks a diagnostic raised while scanning characters into tokens.
	Lexical Kind = iota
	// Syntax marks a diagnostic raised while parsing tokens into a tree.
	Syntax
)

// Error is a single fatal diagnostic tied to a source line. The CMM
// toolchain never recovers from one: the first Error aborts the pipeline.
type Error struct {
	Kind Kind
	// Text is either the offending character (Lexical) or the offending
	// token lexeme (Syntax).
	Text string
	Line int
}

func (e *Error) Error() string {
	switch e.Kind {
	case Lexical:
		return fmt.Sprintf("Invalid char: %s in line: %d", e.Text, e.Line)
	default:
		return fmt.Sprintf("Invalid token: %s in line %d", e.Text, e.Line)
	}
}

// Invalid returns a Lexical diagnostic for the given offending character.
func Invalid(ch rune, line int) error {
	return &Error{Kind: Lexical, Text: string(ch), Line: line}
}

// Unexpected returns a Syntax diagnostic for the given offending token lexeme.
func Unexpected(lexeme string, line int) error {
	return &Error{Kind: Syntax, Text: lexeme, Line: line}
}
