package parser

import (
	"github.com/cryptexctl/gosh/v2/internal/ast"
)

type TokenType int

const (
	TokenEOF TokenType = iota
	TokenWord
	TokenNewline
	TokenIONumber
	TokenPipe
	TokenPipeAll
	TokenOr
	TokenAnd
	TokenBackground
	TokenSemicolon
	TokenCaseBreak
	TokenLParen
	TokenRParen
	TokenRedirectIn
	TokenRedirectOut
	TokenRedirectClobber
	TokenRedirectAppend
	TokenRedirectInOut
	TokenDupIn
	TokenDupOut
	TokenRedirectAll
	TokenAppendAll
	TokenHereDoc
	TokenHereDocStrip
	TokenHereString
)

var operatorNames = map[TokenType]string{
	TokenPipe:            "|",
	TokenPipeAll:         "|&",
	TokenOr:              "||",
	TokenAnd:             "&&",
	TokenBackground:      "&",
	TokenSemicolon:       ";",
	TokenCaseBreak:       ";;",
	TokenLParen:          "(",
	TokenRParen:          ")",
	TokenRedirectIn:      "<",
	TokenRedirectOut:     ">",
	TokenRedirectClobber: ">|",
	TokenRedirectAppend:  ">>",
	TokenRedirectInOut:   "<>",
	TokenDupIn:           "<&",
	TokenDupOut:          ">&",
	TokenRedirectAll:     "&>",
	TokenAppendAll:       "&>>",
	TokenHereDoc:         "<<",
	TokenHereDocStrip:    "<<-",
	TokenHereString:      "<<<",
}

var redirectTypes = map[TokenType]ast.RedirectType{
	TokenRedirectIn:      ast.RedirectInput,
	TokenRedirectOut:     ast.RedirectOutput,
	TokenRedirectClobber: ast.RedirectClobber,
	TokenRedirectAppend:  ast.RedirectAppend,
	TokenRedirectInOut:   ast.RedirectInputOutput,
	TokenDupIn:           ast.RedirectDupInput,
	TokenDupOut:          ast.RedirectDupOutput,
	TokenRedirectAll:     ast.RedirectOutputAll,
	TokenAppendAll:       ast.RedirectAppendAll,
	TokenHereDoc:         ast.RedirectHereDoc,
	TokenHereDocStrip:    ast.RedirectHereDoc,
	TokenHereString:      ast.RedirectHereString,
}

type Token struct {
	Type  TokenType
	Value string
	Word  *ast.Word
	// HereDoc is set on the delimiter word following << or <<-; its body
	// is filled in once the lexer passes the next newline.
	HereDoc *ast.Redirect
	Pos     ast.Pos
	Offset  int
	End     int
}

func (t Token) IsRedirect() bool {
	_, ok := redirectTypes[t.Type]
	return ok
}

// reserved reports whether the token is the unquoted reserved word w.
func (t Token) reserved(words ...string) bool {
	if t.Type != TokenWord {
		return false
	}
	lit, ok := t.Word.Lit()
	if !ok {
		return false
	}
	for _, w := range words {
		if lit == w {
			return true
		}
	}
	return false
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenNewline:
		return "newline"
	case TokenWord:
		return t.Word.String()
	case TokenIONumber:
		return t.Value
	}
	if name, ok := operatorNames[t.Type]; ok {
		return name
	}
	return t.Value
}
