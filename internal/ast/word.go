package ast

import "strings"

type PartType int

const (
	// PartLiteral is unquoted source text. Backslash escapes are kept in
	// Value and removed during expansion.
	PartLiteral PartType = iota
	PartSingleQuoted
	PartDoubleQuoted
	PartParam
	PartCommand
	PartArith
)

// Quoting is the quoting class of a literal segment.
type Quoting int

const (
	QuoteNone Quoting = iota
	QuoteSingle
	QuoteDouble
)

// Word is a single shell word before expansion.
type Word struct {
	Parts []*WordPart
	Pos   Pos
}

// WordPart is a tagged segment of a Word.
type WordPart struct {
	Type PartType
	// Value is the literal text of PartLiteral and PartSingleQuoted.
	Value string
	// Dollar marks $'...' quoting; Value is already decoded.
	Dollar bool
	// Parts holds the segments of PartDoubleQuoted.
	Parts []*WordPart
	Param *ParamExp
	// Script is the eagerly parsed body of PartCommand.
	Script    *Script
	Backquote bool
	// Expr is the expression of PartArith, lexed like double-quoted text.
	Expr *Word
	// Raw is the source text for parts that cannot be rebuilt from their
	// fields alone.
	Raw string
}

type ParamOp int

const (
	ParamNone ParamOp = iota
	ParamDefault
	ParamAssign
	ParamAlternate
	ParamError
	ParamTrimPrefix
	ParamTrimLongPrefix
	ParamTrimSuffix
	ParamTrimLongSuffix
	ParamReplace
	ParamReplaceAll
	ParamSlice
	ParamUpper
	ParamUpperFirst
	ParamLower
	ParamLowerFirst
)

// ParamExp is $name or ${...}.
type ParamExp struct {
	Name string
	// Index is the subscript of name[...]; "@" and "*" are kept as literal
	// words.
	Index  *Word
	Length bool
	Op     ParamOp
	// Colon distinguishes ${x:-w} (unset or empty) from ${x-w} (unset).
	Colon  bool
	Arg    *Word
	Repl   *Word
	Offset *Word
	Count  *Word
}

// AllElements reports whether the subscript is [@] or [*].
func (p *ParamExp) AllElements() (all bool, star bool) {
	if p.Index == nil {
		return false, false
	}
	parts := p.Index.Parts
	if len(parts) == 1 && parts[0].Type == PartDoubleQuoted {
		parts = parts[0].Parts
	}
	if len(parts) != 1 || parts[0].Type != PartLiteral {
		return false, false
	}
	lit := parts[0].Value
	return lit == "@" || lit == "*", lit == "*"
}

// NewLiteral returns an unquoted word holding s.
func NewLiteral(s string) *Word {
	return &Word{Parts: []*WordPart{{Type: PartLiteral, Value: s}}}
}

// Lit returns the word's text when it is a single unquoted literal with no
// escapes.
func (w *Word) Lit() (string, bool) {
	if w == nil || len(w.Parts) != 1 {
		return "", false
	}
	p := w.Parts[0]
	if p.Type != PartLiteral || strings.ContainsRune(p.Value, '\\') {
		return "", false
	}
	return p.Value, true
}

// Quoted reports whether any part of the word is quoted or escaped.
func (w *Word) Quoted() bool {
	for _, p := range w.Parts {
		switch p.Type {
		case PartSingleQuoted, PartDoubleQuoted:
			return true
		case PartLiteral:
			if strings.ContainsRune(p.Value, '\\') {
				return true
			}
		}
	}
	return false
}

// String re-serializes the word to shell source.
func (w *Word) String() string {
	if w == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range w.Parts {
		sb.WriteString(p.String())
	}
	return sb.String()
}

func (p *WordPart) String() string {
	switch p.Type {
	case PartLiteral:
		return p.Value
	case PartSingleQuoted:
		if p.Dollar {
			return p.Raw
		}
		return "'" + p.Value + "'"
	case PartDoubleQuoted:
		var sb strings.Builder
		sb.WriteByte('"')
		for _, in := range p.Parts {
			sb.WriteString(in.String())
		}
		sb.WriteByte('"')
		return sb.String()
	default:
		return p.Raw
	}
}

// Quoting returns the quoting class of a literal segment.
func (p *WordPart) Quoting() Quoting {
	switch p.Type {
	case PartSingleQuoted:
		return QuoteSingle
	case PartDoubleQuoted:
		return QuoteDouble
	default:
		return QuoteNone
	}
}

// Words joins words with spaces, as they were written.
func Words(ws []*Word) string {
	s := make([]string, len(ws))
	for i, w := range ws {
		s[i] = w.String()
	}
	return strings.Join(s, " ")
}
