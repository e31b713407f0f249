package parser

import (
	"errors"
	"fmt"

	"github.com/cryptexctl/gosh/v2/internal/ast"
)

// SyntaxError reports malformed input. The statement is discarded.
type SyntaxError struct {
	Expected string
	Found    string
	Pos      ast.Pos
}

func (e *SyntaxError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("syntax error at %d:%d: unexpected %s", e.Pos.Line, e.Pos.Col, e.Found)
	}
	return fmt.Sprintf("syntax error at %d:%d: expected %s, found %s", e.Pos.Line, e.Pos.Col, e.Expected, e.Found)
}

type IncompleteKind int

const (
	UnterminatedQuote IncompleteKind = iota
	UnterminatedSubstitution
	UnterminatedHereDoc
	UnterminatedBlock
	TrailingOperator
	LineContinuation
)

func (k IncompleteKind) String() string {
	switch k {
	case UnterminatedQuote:
		return "unterminated quote"
	case UnterminatedSubstitution:
		return "unterminated substitution"
	case UnterminatedHereDoc:
		return "unterminated here-document"
	case UnterminatedBlock:
		return "unterminated block"
	case TrailingOperator:
		return "missing command after operator"
	default:
		return "line continuation"
	}
}

// IncompleteError means the input ended in the middle of a construct. The
// line source should read another line, append it and parse again.
type IncompleteError struct {
	Kind IncompleteKind
	Pos  ast.Pos
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("unexpected end of input: %s (started at %d:%d)", e.Kind, e.Pos.Line, e.Pos.Col)
}

// IsIncomplete reports whether err asks for a continuation line.
func IsIncomplete(err error) bool {
	var ie *IncompleteError
	return errors.As(err, &ie)
}
