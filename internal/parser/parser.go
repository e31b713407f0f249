// Package parser turns shell source into an ast.Script. Quoting is kept in
// the words it produces; command substitutions are parsed eagerly.
package parser

import (
	"strconv"
	"strings"

	"github.com/cryptexctl/gosh/v2/internal/ast"
)

type Parser struct {
	lexer   *Lexer
	current Token
	prevEnd int
}

func New() *Parser {
	return &Parser{}
}

// Parse parses a complete script. An *IncompleteError means the input
// stopped in the middle of a construct and more lines may finish it.
func (p *Parser) Parse(input string) (*ast.Script, error) {
	p.lexer = NewLexer(input)
	p.current = Token{}
	p.prevEnd = 0
	if err := p.advance(); err != nil {
		return nil, err
	}

	script, err := p.parseScript()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, p.unexpected()
	}
	return script, nil
}

// parseNested parses the body of $( ... ) starting at offset and returns
// the offset just past the closing parenthesis.
func parseNested(input string, offset, limit int) (*ast.Script, int, error) {
	p := &Parser{lexer: &Lexer{input: input, pos: offset, limit: limit}}
	if err := p.advance(); err != nil {
		return nil, 0, err
	}
	script, err := p.parseScript()
	if err != nil {
		return nil, 0, err
	}
	switch p.current.Type {
	case TokenRParen:
		return script, p.current.End, nil
	case TokenEOF:
		return nil, 0, &IncompleteError{Kind: UnterminatedSubstitution, Pos: p.lexer.position(offset - 2)}
	}
	return nil, 0, p.unexpected()
}

func (p *Parser) advance() error {
	p.prevEnd = p.current.End
	tok, err := p.lexer.Next()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

func (p *Parser) skipNewlines() error {
	for p.current.Type == TokenNewline {
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) atTerminator() bool {
	switch p.current.Type {
	case TokenEOF, TokenCaseBreak, TokenRParen:
		return true
	}
	return p.current.reserved("then", "elif", "else", "fi", "do", "done", "esac", "}")
}

func (p *Parser) text(start Token) string {
	return strings.TrimSpace(p.lexer.input[start.Offset:p.prevEnd])
}

func (p *Parser) unexpected() error {
	if p.current.Type == TokenEOF {
		return &IncompleteError{Kind: TrailingOperator, Pos: p.current.Pos}
	}
	return &SyntaxError{Found: p.current.String(), Pos: p.current.Pos}
}

func (p *Parser) expected(what string) error {
	if p.current.Type == TokenEOF {
		return &IncompleteError{Kind: UnterminatedBlock, Pos: p.current.Pos}
	}
	return &SyntaxError{Expected: what, Found: p.current.String(), Pos: p.current.Pos}
}

func (p *Parser) expect(word string) error {
	if !p.current.reserved(word) {
		return p.expected(word)
	}
	return p.advance()
}

func (p *Parser) parseScript() (*ast.Script, error) {
	script := &ast.Script{}
	for {
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.atTerminator() {
			return script, nil
		}

		start := p.current
		cmd, err := p.parseAndOr()
		if err != nil {
			return nil, err
		}
		stmt := &ast.Statement{Command: cmd, Text: p.text(start), Pos: start.Pos}
		script.Statements = append(script.Statements, stmt)

		switch p.current.Type {
		case TokenBackground:
			stmt.Background = true
			err = p.advance()
		case TokenSemicolon, TokenNewline:
			err = p.advance()
		default:
			if !p.atTerminator() {
				return nil, p.unexpected()
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

// parseBlock parses a non-empty command list that must end at one of the
// given reserved words. The terminator is left as the current token.
func (p *Parser) parseBlock(terminators ...string) (*ast.Script, error) {
	script, err := p.parseScript()
	if err != nil {
		return nil, err
	}
	if len(script.Statements) == 0 {
		return nil, p.expected("command")
	}
	if !p.current.reserved(terminators...) {
		return nil, p.expected(terminators[0])
	}
	return script, nil
}

func (p *Parser) parseAndOr() (*ast.Command, error) {
	first, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenAnd && p.current.Type != TokenOr {
		return first, nil
	}

	list := &ast.List{Commands: []*ast.Command{first}}
	for p.current.Type == TokenAnd || p.current.Type == TokenOr {
		op := ast.ListAnd
		if p.current.Type == TokenOr {
			op = ast.ListOr
		}
		if err := p.continueAfterOperator(); err != nil {
			return nil, err
		}
		next, err := p.parsePipeline()
		if err != nil {
			return nil, err
		}
		list.Operators = append(list.Operators, op)
		list.Commands = append(list.Commands, next)
	}
	return &ast.Command{Type: ast.CommandList, List: list, Pos: first.Pos}, nil
}

// continueAfterOperator consumes a binary operator and any newlines after
// it. Input ending there asks for another line.
func (p *Parser) continueAfterOperator() error {
	if err := p.advance(); err != nil {
		return err
	}
	if err := p.skipNewlines(); err != nil {
		return err
	}
	if p.current.Type == TokenEOF {
		return &IncompleteError{Kind: TrailingOperator, Pos: p.current.Pos}
	}
	return nil
}

func (p *Parser) parsePipeline() (*ast.Command, error) {
	start := p.current
	negate := false
	if p.current.reserved("!") {
		negate = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	cmd, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	if !negate && p.current.Type != TokenPipe && p.current.Type != TokenPipeAll {
		return cmd, nil
	}

	pipeline := &ast.Pipeline{Commands: []*ast.Command{cmd}, Negate: negate}
	for p.current.Type == TokenPipe || p.current.Type == TokenPipeAll {
		if p.current.Type == TokenPipeAll {
			addRedirect(cmd, &ast.Redirect{
				Type:   ast.RedirectDupOutput,
				Source: 2,
				Target: ast.NewLiteral("1"),
				Pos:    p.current.Pos,
			})
		}
		if err := p.continueAfterOperator(); err != nil {
			return nil, err
		}
		if cmd, err = p.parseCommand(); err != nil {
			return nil, err
		}
		pipeline.Commands = append(pipeline.Commands, cmd)
	}
	pipeline.Text = p.text(start)
	return &ast.Command{Type: ast.CommandPipeline, Pipeline: pipeline, Pos: start.Pos}, nil
}

func addRedirect(cmd *ast.Command, r *ast.Redirect) {
	if cmd.Type == ast.CommandSimple {
		cmd.Simple.Redirects = append(cmd.Simple.Redirects, r)
		return
	}
	cmd.Redirects = append(cmd.Redirects, r)
}

func (p *Parser) parseCommand() (*ast.Command, error) {
	tok := p.current
	var cmd *ast.Command
	var err error

	switch {
	case tok.Type == TokenLParen:
		if tok.End < p.lexer.limit && p.lexer.input[tok.End] == '(' {
			cmd, err = p.parseArithCommand()
		} else {
			cmd, err = p.parseSubshell()
		}
	case tok.reserved("if"):
		cmd, err = p.parseIf()
	case tok.reserved("while", "until"):
		cmd, err = p.parseWhile()
	case tok.reserved("for"):
		cmd, err = p.parseFor()
	case tok.reserved("case"):
		cmd, err = p.parseCase()
	case tok.reserved("{"):
		cmd, err = p.parseGroup()
	case tok.reserved("function"):
		return p.parseFunction()
	case tok.reserved("then", "elif", "else", "fi", "do", "done", "esac", "}"):
		return nil, p.unexpected()
	case tok.Type == TokenWord, tok.Type == TokenIONumber, tok.IsRedirect():
		return p.parseSimpleCommand()
	default:
		return nil, p.unexpected()
	}
	if err != nil {
		return nil, err
	}
	cmd.Pos = tok.Pos
	return cmd, p.parseTrailingRedirects(cmd)
}

// parseTrailingRedirects reads redirections written after a compound
// command, as in "{ ...; } >out".
func (p *Parser) parseTrailingRedirects(cmd *ast.Command) error {
	for p.current.Type == TokenIONumber || p.current.IsRedirect() {
		r, err := p.parseRedirect()
		if err != nil {
			return err
		}
		cmd.Redirects = append(cmd.Redirects, r)
	}
	return nil
}

func (p *Parser) parseSimpleCommand() (*ast.Command, error) {
	start := p.current
	sc := &ast.SimpleCommand{}

	for {
		switch {
		case p.current.Type == TokenIONumber || p.current.IsRedirect():
			r, err := p.parseRedirect()
			if err != nil {
				return nil, err
			}
			sc.Redirects = append(sc.Redirects, r)
		case p.current.Type == TokenWord:
			if len(sc.Args) == 0 {
				a, err := p.parseAssignment()
				if err != nil {
					return nil, err
				}
				if a != nil {
					sc.Assigns = append(sc.Assigns, a)
					continue
				}
			}
			sc.Args = append(sc.Args, p.current.Word)
			if err := p.advance(); err != nil {
				return nil, err
			}
		case p.current.Type == TokenLParen && len(sc.Args) == 1 && len(sc.Assigns) == 0 && len(sc.Redirects) == 0:
			name, ok := sc.Args[0].Lit()
			if !ok || !isFuncName(name) {
				return nil, p.unexpected()
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.current.Type != TokenRParen {
				return nil, p.expected(")")
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			return p.parseFunctionBody(name, start.Pos)
		default:
			if len(sc.Args) == 0 && len(sc.Assigns) == 0 && len(sc.Redirects) == 0 {
				return nil, p.unexpected()
			}
			return &ast.Command{Type: ast.CommandSimple, Simple: sc, Pos: start.Pos}, nil
		}
	}
}

// parseAssignment consumes the current word if it is an assignment. A
// value-less assignment directly followed by '(' starts an array list.
func (p *Parser) parseAssignment() (*ast.Assign, error) {
	tok := p.current
	a := splitAssign(tok.Word)
	if a == nil {
		return nil, nil
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if len(a.Value.Parts) > 0 || p.current.Type != TokenLParen || p.current.Offset != tok.End {
		return a, nil
	}

	a.IsList = true
	if err := p.advance(); err != nil {
		return nil, err
	}
	for {
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.current.Type != TokenWord {
			break
		}
		a.Array = append(a.Array, p.current.Word)
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if p.current.Type != TokenRParen {
		return nil, p.expected(")")
	}
	return a, p.advance()
}

// splitAssign recognizes NAME=, NAME+= and NAME[index]= prefixes.
func splitAssign(w *ast.Word) *ast.Assign {
	if len(w.Parts) == 0 || w.Parts[0].Type != ast.PartLiteral {
		return nil
	}
	first := w.Parts[0].Value
	n := 0
	for n < len(first) && (isNameStart(first[n]) || (n > 0 && isDigit(first[n]))) {
		n++
	}
	if n == 0 {
		return nil
	}

	a := &ast.Assign{Name: first[:n]}
	rest := first[n:]
	tail := w.Parts[1:]

	if strings.HasPrefix(rest, "[") {
		if k := strings.IndexByte(rest, ']'); k >= 0 {
			a.Index = ast.NewLiteral(rest[1:k])
			rest = rest[k+1:]
		} else {
			var index []*ast.WordPart
			if rest[1:] != "" {
				index = append(index, &ast.WordPart{Type: ast.PartLiteral, Value: rest[1:]})
			}
			found := -1
			for i, part := range tail {
				if part.Type == ast.PartLiteral {
					if k := strings.IndexByte(part.Value, ']'); k >= 0 {
						if k > 0 {
							index = append(index, &ast.WordPart{Type: ast.PartLiteral, Value: part.Value[:k]})
						}
						rest = part.Value[k+1:]
						found = i
						break
					}
				}
				index = append(index, part)
			}
			if found < 0 {
				return nil
			}
			tail = tail[found+1:]
			a.Index = &ast.Word{Parts: index, Pos: w.Pos}
		}
	}

	switch {
	case strings.HasPrefix(rest, "+="):
		a.Append = true
		rest = rest[2:]
	case strings.HasPrefix(rest, "="):
		rest = rest[1:]
	default:
		return nil
	}

	var value []*ast.WordPart
	if rest != "" {
		value = append(value, &ast.WordPart{Type: ast.PartLiteral, Value: rest})
	}
	a.Value = &ast.Word{Parts: append(value, tail...), Pos: w.Pos}
	return a
}

func (p *Parser) parseRedirect() (*ast.Redirect, error) {
	src := -1
	if p.current.Type == TokenIONumber {
		src, _ = strconv.Atoi(p.current.Value)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if !p.current.IsRedirect() {
			return nil, p.unexpected()
		}
	}

	op := p.current
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.current.Type != TokenWord {
		return nil, &SyntaxError{Expected: "word after " + op.String(), Found: p.current.String(), Pos: p.current.Pos}
	}

	r := p.current.HereDoc
	if r == nil {
		r = &ast.Redirect{Type: redirectTypes[op.Type], Target: p.current.Word}
	}
	r.Source = src
	r.Pos = op.Pos
	return r, p.advance()
}

func (p *Parser) parseArithCommand() (*ast.Command, error) {
	open := p.current
	end, found, eof := p.lexer.scanArith(open.End + 1)
	if eof {
		return nil, &IncompleteError{Kind: UnterminatedBlock, Pos: open.Pos}
	}
	if !found {
		return p.parseSubshell()
	}
	expr, err := p.lexer.quotedWord(open.End+1, end)
	if err != nil {
		return nil, err
	}
	p.lexer.pos = end + 2
	p.current.End = end + 2
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &ast.Command{Type: ast.CommandArith, Arith: &ast.ArithCommand{Expr: expr}}, nil
}

func (p *Parser) parseSubshell() (*ast.Command, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	script, err := p.parseScript()
	if err != nil {
		return nil, err
	}
	if len(script.Statements) == 0 {
		return nil, p.expected("command")
	}
	if p.current.Type != TokenRParen {
		return nil, p.expected(")")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &ast.Command{Type: ast.CommandSubshell, Subshell: &ast.SubshellCommand{Script: script}}, nil
}

func (p *Parser) parseGroup() (*ast.Command, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	script, err := p.parseBlock("}")
	if err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &ast.Command{Type: ast.CommandGroup, Group: &ast.GroupCommand{Script: script}}, nil
}

func (p *Parser) parseIf() (*ast.Command, error) {
	ic := &ast.IfCommand{}
	for {
		if err := p.advance(); err != nil {
			return nil, err
		}
		cond, err := p.parseBlock("then")
		if err != nil {
			return nil, err
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		body, err := p.parseBlock("elif", "else", "fi")
		if err != nil {
			return nil, err
		}
		ic.Clauses = append(ic.Clauses, &ast.IfClause{Condition: cond, Body: body})
		if !p.current.reserved("elif") {
			break
		}
	}

	if p.current.reserved("else") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		body, err := p.parseBlock("fi")
		if err != nil {
			return nil, err
		}
		ic.Else = body
	}
	if err := p.expect("fi"); err != nil {
		return nil, err
	}
	return &ast.Command{Type: ast.CommandIf, If: ic}, nil
}

func (p *Parser) parseWhile() (*ast.Command, error) {
	wc := &ast.WhileCommand{Until: p.current.reserved("until")}
	if err := p.advance(); err != nil {
		return nil, err
	}
	cond, err := p.parseBlock("do")
	if err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	body, err := p.parseBlock("done")
	if err != nil {
		return nil, err
	}
	wc.Condition, wc.Body = cond, body
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &ast.Command{Type: ast.CommandWhile, While: wc}, nil
}

func (p *Parser) parseFor() (*ast.Command, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	name, ok := "", false
	if p.current.Type == TokenWord {
		name, ok = p.current.Word.Lit()
	}
	if !ok || !isName(name) {
		return nil, p.expected("variable name")
	}
	fc := &ast.ForCommand{Variable: name}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}

	switch {
	case p.current.reserved("in"):
		fc.InPresent = true
		if err := p.advance(); err != nil {
			return nil, err
		}
		for p.current.Type == TokenWord {
			fc.Values = append(fc.Values, p.current.Word)
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if p.current.Type != TokenSemicolon && p.current.Type != TokenNewline {
			return nil, p.expected("';' or newline")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	case p.current.Type == TokenSemicolon:
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	if err := p.expect("do"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock("done")
	if err != nil {
		return nil, err
	}
	fc.Body = body
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &ast.Command{Type: ast.CommandFor, For: fc}, nil
}

func (p *Parser) parseCase() (*ast.Command, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.current.Type != TokenWord {
		return nil, p.expected("word")
	}
	cc := &ast.CaseCommand{Word: p.current.Word}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	if err := p.expect("in"); err != nil {
		return nil, err
	}

	for {
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		if p.current.reserved("esac") {
			break
		}
		if p.current.Type == TokenLParen {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}

		item := &ast.CaseItem{}
		for {
			if p.current.Type != TokenWord {
				return nil, p.expected("pattern")
			}
			item.Patterns = append(item.Patterns, p.current.Word)
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.current.Type != TokenPipe {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if p.current.Type != TokenRParen {
			return nil, p.expected(")")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}

		body, err := p.parseScript()
		if err != nil {
			return nil, err
		}
		item.Body = body
		cc.Items = append(cc.Items, item)

		if p.current.Type == TokenCaseBreak {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if !p.current.reserved("esac") {
			return nil, p.expected("';;' or esac")
		}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &ast.Command{Type: ast.CommandCase, Case: cc}, nil
}

func (p *Parser) parseFunction() (*ast.Command, error) {
	pos := p.current.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	name, ok := "", false
	if p.current.Type == TokenWord {
		name, ok = p.current.Word.Lit()
	}
	if !ok || !isFuncName(name) {
		return nil, p.expected("function name")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.current.Type == TokenLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.current.Type != TokenRParen {
			return nil, p.expected(")")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return p.parseFunctionBody(name, pos)
}

func (p *Parser) parseFunctionBody(name string, pos ast.Pos) (*ast.Command, error) {
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	if p.current.Type == TokenEOF {
		return nil, &IncompleteError{Kind: UnterminatedBlock, Pos: pos}
	}
	body, err := p.parseCommand()
	if err != nil {
		return nil, err
	}
	switch body.Type {
	case ast.CommandSimple, ast.CommandPipeline, ast.CommandList, ast.CommandFunction:
		return nil, &SyntaxError{Expected: "compound command", Found: body.Type.String() + " command", Pos: body.Pos}
	}
	return &ast.Command{
		Type:     ast.CommandFunction,
		Function: &ast.FunctionCommand{Name: name, Body: body},
		Pos:      pos,
	}, nil
}

// isFuncName is looser than isName; function names may contain '-' and
// '.' and ':'.
func isFuncName(s string) bool {
	if s == "" || isDigit(s[0]) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isNameChar(s[i]) && strings.IndexByte("-.:", s[i]) < 0 {
			return false
		}
	}
	return true
}
