package parser

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cryptexctl/gosh/v2/internal/ast"
)

type lexMode int

const (
	// modeWord stops at blanks and operator characters.
	modeWord lexMode = iota
	// modeArg reads up to the limit with quoting active.
	modeArg
	// modeQuoted reads up to the limit treating only \ $ and ` as special,
	// the way here-document bodies and arithmetic text are read.
	modeQuoted
)

var operators = []struct {
	text string
	typ  TokenType
}{
	{"&>>", TokenAppendAll},
	{"<<<", TokenHereString},
	{"<<-", TokenHereDocStrip},
	{"&&", TokenAnd},
	{"||", TokenOr},
	{"|&", TokenPipeAll},
	{";;", TokenCaseBreak},
	{">>", TokenRedirectAppend},
	{">&", TokenDupOut},
	{">|", TokenRedirectClobber},
	{"<<", TokenHereDoc},
	{"<&", TokenDupIn},
	{"<>", TokenRedirectInOut},
	{"&>", TokenRedirectAll},
	{"|", TokenPipe},
	{"&", TokenBackground},
	{";", TokenSemicolon},
	{"(", TokenLParen},
	{")", TokenRParen},
	{"<", TokenRedirectIn},
	{">", TokenRedirectOut},
}

type Lexer struct {
	input string
	pos   int
	limit int

	// delim is the here-document waiting for its delimiter word.
	delim *ast.Redirect
	// pending here-documents have a delimiter but no body yet.
	pending []*ast.Redirect
	tokens  []Token
}

func NewLexer(input string) *Lexer {
	return &Lexer{
		input: input,
		limit: len(input),
	}
}

// Tokenize lexes the whole input. Command substitutions are parsed as they
// are met, so a Tokenize error may come from a nested command.
func (l *Lexer) Tokenize() ([]Token, error) {
	l.tokens = nil
	for {
		tok, err := l.Next()
		if err != nil {
			return l.tokens, err
		}
		l.tokens = append(l.tokens, tok)
		if tok.Type == TokenEOF {
			return l.tokens, nil
		}
	}
}

func (l *Lexer) Next() (Token, error) {
	delim := l.delim
	l.delim = nil

	for {
		l.skipWhitespace()
		if l.pos < l.limit && l.input[l.pos] == '#' {
			l.skipComment()
			continue
		}
		break
	}

	start := l.pos
	if l.pos >= l.limit {
		if len(l.pending) > 0 {
			return Token{}, &IncompleteError{Kind: UnterminatedHereDoc, Pos: l.pending[0].Pos}
		}
		return l.token(TokenEOF, start), nil
	}

	if l.input[l.pos] == '\n' {
		l.pos++
		tok := l.token(TokenNewline, start)
		if err := l.readHereDocs(); err != nil {
			return Token{}, err
		}
		return tok, nil
	}

	if typ, n := l.operator(); n > 0 {
		l.pos += n
		tok := l.token(typ, start)
		if typ == TokenHereDoc || typ == TokenHereDocStrip {
			l.delim = &ast.Redirect{
				Type:      ast.RedirectHereDoc,
				Source:    -1,
				StripTabs: typ == TokenHereDocStrip,
				Pos:       tok.Pos,
			}
		}
		return tok, nil
	}

	if n := l.ioNumber(); n > 0 {
		l.pos += n
		return l.token(TokenIONumber, start), nil
	}

	word, err := l.tokenizeWord(modeWord)
	if err != nil {
		return Token{}, err
	}
	tok := l.token(TokenWord, start)
	tok.Word = word
	if delim != nil {
		delim.Delimiter = delimiterText(word)
		delim.Quoted = word.Quoted()
		delim.Target = word
		l.pending = append(l.pending, delim)
		tok.HereDoc = delim
	}
	return tok, nil
}

func (l *Lexer) token(typ TokenType, start int) Token {
	return Token{
		Type:   typ,
		Value:  l.input[start:l.pos],
		Pos:    l.position(start),
		Offset: start,
		End:    l.pos,
	}
}

func (l *Lexer) position(off int) ast.Pos {
	if off > len(l.input) {
		off = len(l.input)
	}
	before := l.input[:off]
	return ast.Pos{
		Line: strings.Count(before, "\n") + 1,
		Col:  off - strings.LastIndexByte(before, '\n'),
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < l.limit {
		switch c := l.input[l.pos]; {
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '\\' && l.pos+1 < l.limit && l.input[l.pos+1] == '\n':
			l.pos += 2
		default:
			return
		}
	}
}

func (l *Lexer) skipComment() {
	for l.pos < l.limit && l.input[l.pos] != '\n' {
		l.pos++
	}
}

func (l *Lexer) operator() (TokenType, int) {
	rest := l.input[l.pos:l.limit]
	for _, op := range operators {
		if strings.HasPrefix(rest, op.text) {
			return op.typ, len(op.text)
		}
	}
	return TokenEOF, 0
}

// ioNumber returns the length of a descriptor number written directly
// before a redirection operator, as in 2>file.
func (l *Lexer) ioNumber() int {
	i := l.pos
	for i < l.limit && isDigit(l.input[i]) {
		i++
	}
	if i > l.pos && i < l.limit && (l.input[i] == '<' || l.input[i] == '>') {
		return i - l.pos
	}
	return 0
}

func (l *Lexer) tokenizeWord(mode lexMode) (*ast.Word, error) {
	start := l.pos
	parts, err := l.lexParts(mode)
	if err != nil {
		return nil, err
	}
	return &ast.Word{Parts: parts, Pos: l.position(start)}, nil
}

func (l *Lexer) lexParts(mode lexMode) ([]*ast.WordPart, error) {
	var parts []*ast.WordPart
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, &ast.WordPart{Type: ast.PartLiteral, Value: lit.String()})
			lit.Reset()
		}
	}

	for l.pos < l.limit {
		c := l.input[l.pos]
		if mode == modeWord && isBreak(c) {
			break
		}
		switch {
		case c == '\\':
			if l.pos+1 >= l.limit {
				if mode == modeWord && l.limit == len(l.input) {
					return nil, &IncompleteError{Kind: LineContinuation, Pos: l.position(l.pos)}
				}
				lit.WriteByte(c)
				l.pos++
				continue
			}
			if l.input[l.pos+1] == '\n' {
				l.pos += 2
				continue
			}
			lit.WriteString(l.input[l.pos : l.pos+2])
			l.pos += 2
		case c == '\'' && mode != modeQuoted:
			end := strings.IndexByte(l.input[l.pos+1:l.limit], '\'')
			if end < 0 {
				return nil, &IncompleteError{Kind: UnterminatedQuote, Pos: l.position(l.pos)}
			}
			flush()
			parts = append(parts, &ast.WordPart{
				Type:  ast.PartSingleQuoted,
				Value: l.input[l.pos+1 : l.pos+1+end],
			})
			l.pos += end + 2
		case c == '"' && mode != modeQuoted:
			part, err := l.lexDouble()
			if err != nil {
				return nil, err
			}
			flush()
			parts = append(parts, part)
		case c == '$' || c == '`':
			part, err := l.lexExpansion(mode != modeQuoted)
			if err != nil {
				return nil, err
			}
			if part == nil {
				lit.WriteByte(c)
				l.pos++
				continue
			}
			flush()
			parts = append(parts, part)
		default:
			lit.WriteByte(c)
			l.pos++
		}
	}
	flush()
	return parts, nil
}

func (l *Lexer) lexDouble() (*ast.WordPart, error) {
	start := l.pos
	l.pos++
	var parts []*ast.WordPart
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, &ast.WordPart{Type: ast.PartLiteral, Value: lit.String()})
			lit.Reset()
		}
	}

	for {
		if l.pos >= l.limit {
			return nil, &IncompleteError{Kind: UnterminatedQuote, Pos: l.position(start)}
		}
		c := l.input[l.pos]
		switch c {
		case '"':
			flush()
			l.pos++
			return &ast.WordPart{Type: ast.PartDoubleQuoted, Parts: parts}, nil
		case '\\':
			if l.pos+1 >= l.limit {
				return nil, &IncompleteError{Kind: UnterminatedQuote, Pos: l.position(start)}
			}
			if l.input[l.pos+1] == '\n' {
				l.pos += 2
				continue
			}
			lit.WriteString(l.input[l.pos : l.pos+2])
			l.pos += 2
		case '$', '`':
			part, err := l.lexExpansion(false)
			if err != nil {
				return nil, err
			}
			if part == nil {
				lit.WriteByte(c)
				l.pos++
				continue
			}
			flush()
			parts = append(parts, part)
		default:
			lit.WriteByte(c)
			l.pos++
		}
	}
}

// lexExpansion reads an expansion starting at $ or `. It returns nil for a
// dollar sign that does not start one.
func (l *Lexer) lexExpansion(ansi bool) (*ast.WordPart, error) {
	if l.input[l.pos] == '`' {
		return l.lexBackquote()
	}
	start := l.pos
	if l.pos+1 >= l.limit {
		return nil, nil
	}
	c := l.input[l.pos+1]
	switch {
	case c == '\'' && ansi:
		return l.lexAnsi()
	case c == '(':
		if l.pos+2 < l.limit && l.input[l.pos+2] == '(' {
			end, found, eof := l.scanArith(l.pos + 3)
			if eof {
				return nil, &IncompleteError{Kind: UnterminatedSubstitution, Pos: l.position(start)}
			}
			if found {
				expr, err := l.quotedWord(l.pos+3, end)
				if err != nil {
					return nil, err
				}
				l.pos = end + 2
				return &ast.WordPart{Type: ast.PartArith, Expr: expr, Raw: l.input[start:l.pos]}, nil
			}
		}
		script, end, err := parseNested(l.input, l.pos+2, l.limit)
		if err != nil {
			return nil, err
		}
		l.pos = end
		return &ast.WordPart{Type: ast.PartCommand, Script: script, Raw: l.input[start:l.pos]}, nil
	case c == '{':
		return l.lexBraceParam()
	case isNameStart(c):
		i := l.pos + 1
		for i < l.limit && isNameChar(l.input[i]) {
			i++
		}
		l.pos = i
		return &ast.WordPart{
			Type:  ast.PartParam,
			Param: &ast.ParamExp{Name: l.input[start+1 : i]},
			Raw:   l.input[start:i],
		}, nil
	case isDigit(c) || strings.IndexByte("?$!#@*-", c) >= 0:
		l.pos += 2
		return &ast.WordPart{
			Type:  ast.PartParam,
			Param: &ast.ParamExp{Name: string(c)},
			Raw:   l.input[start:l.pos],
		}, nil
	}
	return nil, nil
}

// scanArith finds the "))" closing an arithmetic expression whose text
// starts at from. found is false when a lone ')' closes the outer paren,
// which makes the construct a command substitution or subshell instead.
func (l *Lexer) scanArith(from int) (end int, found, eof bool) {
	depth := 0
	for i := from; i < l.limit; i++ {
		switch l.input[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
				continue
			}
			if i+1 >= l.limit {
				return i, false, true
			}
			return i, l.input[i+1] == ')', false
		}
	}
	return l.limit, false, true
}

func (l *Lexer) lexBackquote() (*ast.WordPart, error) {
	start := l.pos
	var body strings.Builder
	i := l.pos + 1
	for {
		if i >= l.limit {
			return nil, &IncompleteError{Kind: UnterminatedSubstitution, Pos: l.position(start)}
		}
		c := l.input[i]
		if c == '`' {
			break
		}
		if c == '\\' && i+1 < l.limit && strings.IndexByte("$`\\", l.input[i+1]) >= 0 {
			body.WriteByte(l.input[i+1])
			i += 2
			continue
		}
		body.WriteByte(c)
		i++
	}
	l.pos = i + 1

	script, err := New().Parse(body.String())
	if err != nil {
		if IsIncomplete(err) {
			return nil, &SyntaxError{Expected: "complete command", Found: "end of substitution", Pos: l.position(start)}
		}
		return nil, err
	}
	return &ast.WordPart{
		Type:      ast.PartCommand,
		Script:    script,
		Backquote: true,
		Raw:       l.input[start:l.pos],
	}, nil
}

func (l *Lexer) lexAnsi() (*ast.WordPart, error) {
	start := l.pos
	var sb strings.Builder
	i := l.pos + 2
	for {
		if i >= l.limit {
			return nil, &IncompleteError{Kind: UnterminatedQuote, Pos: l.position(start)}
		}
		c := l.input[i]
		if c == '\'' {
			break
		}
		if c == '\\' && i+1 < l.limit {
			s, n := decodeEscape(l.input[i+1 : l.limit])
			sb.WriteString(s)
			i += 1 + n
			continue
		}
		sb.WriteByte(c)
		i++
	}
	l.pos = i + 1
	return &ast.WordPart{
		Type:   ast.PartSingleQuoted,
		Dollar: true,
		Value:  sb.String(),
		Raw:    l.input[start:l.pos],
	}, nil
}

// decodeEscape decodes one $'...' escape; s starts after the backslash.
func decodeEscape(s string) (string, int) {
	simple := map[byte]string{
		'n': "\n", 't': "\t", 'r': "\r", 'a': "\a", 'b': "\b", 'f': "\f",
		'v': "\v", 'e': "\x1b", 'E': "\x1b", '\\': "\\", '\'': "'", '"': "\"", '?': "?",
	}
	c := s[0]
	if r, ok := simple[c]; ok {
		return r, 1
	}
	digits := func(from, max int, valid func(byte) bool) int {
		n := 0
		for from+n < len(s) && n < max && valid(s[from+n]) {
			n++
		}
		return n
	}
	switch c {
	case 'x':
		n := digits(1, 2, isHex)
		if n == 0 {
			return "\\x", 1
		}
		v, _ := strconv.ParseUint(s[1:1+n], 16, 8)
		return string([]byte{byte(v)}), 1 + n
	case 'u', 'U':
		max := 4
		if c == 'U' {
			max = 8
		}
		n := digits(1, max, isHex)
		if n == 0 {
			return "\\" + string(c), 1
		}
		v, _ := strconv.ParseUint(s[1:1+n], 16, 32)
		if !utf8.ValidRune(rune(v)) {
			return string(utf8.RuneError), 1 + n
		}
		return string(rune(v)), 1 + n
	case 'c':
		if len(s) > 1 {
			return string([]byte{s[1] & 0x1f}), 2
		}
	}
	if n := digits(0, 3, isOctal); n > 0 {
		v, _ := strconv.ParseUint(s[:n], 8, 16)
		return string([]byte{byte(v)}), n
	}
	return "\\" + string(c), 1
}

func (l *Lexer) lexBraceParam() (*ast.WordPart, error) {
	start := l.pos
	i := l.pos + 2
	pe := &ast.ParamExp{}
	incomplete := &IncompleteError{Kind: UnterminatedSubstitution, Pos: l.position(start)}
	bad := func() error {
		return &SyntaxError{Expected: "parameter", Found: "bad substitution", Pos: l.position(start)}
	}

	if i+1 < l.limit && l.input[i] == '#' && l.input[i+1] != '}' {
		pe.Length = true
		i++
	}
	j := i
	switch {
	case j >= l.limit:
		return nil, incomplete
	case isNameStart(l.input[j]):
		for j < l.limit && isNameChar(l.input[j]) {
			j++
		}
	case isDigit(l.input[j]):
		for j < l.limit && isDigit(l.input[j]) {
			j++
		}
	case strings.IndexByte("?$!#@*-", l.input[j]) >= 0:
		j++
	default:
		return nil, bad()
	}
	pe.Name = l.input[i:j]
	i = j

	if i < l.limit && l.input[i] == '[' {
		end, err := l.matchBracket(i)
		if err != nil {
			return nil, err
		}
		if pe.Index, err = l.quotedWord(i+1, end); err != nil {
			return nil, err
		}
		i = end + 1
	}
	if i >= l.limit {
		return nil, incomplete
	}
	if pe.Length {
		if l.input[i] != '}' {
			return nil, bad()
		}
		l.pos = i + 1
		return &ast.WordPart{Type: ast.PartParam, Param: pe, Raw: l.input[start:l.pos]}, nil
	}

	end, err := l.scanBraceEnd(i)
	if err != nil {
		return nil, err
	}
	switch c := l.input[i]; c {
	case '}':
	case ':':
		if i+1 < end && strings.IndexByte("-=+?", l.input[i+1]) >= 0 {
			pe.Colon = true
			pe.Op = defaultOps[l.input[i+1]]
			pe.Arg, err = l.argWord(i+2, end)
			break
		}
		pe.Op = ast.ParamSlice
		if k := l.scanTop(i+1, end, ':'); k < 0 {
			pe.Offset, err = l.quotedWord(i+1, end)
		} else {
			if pe.Offset, err = l.quotedWord(i+1, k); err == nil {
				pe.Count, err = l.quotedWord(k+1, end)
			}
		}
	case '-', '=', '+', '?':
		pe.Op = defaultOps[c]
		pe.Arg, err = l.argWord(i+1, end)
	case '#', '%', '^', ',':
		from := i + 1
		long := from < end && l.input[from] == c
		if long {
			from++
		}
		pe.Op = pairOps[c][boolIndex(long)]
		pe.Arg, err = l.argWord(from, end)
	case '/':
		from := i + 1
		pe.Op = ast.ParamReplace
		if from < end && l.input[from] == '/' {
			pe.Op = ast.ParamReplaceAll
			from++
		}
		if k := l.scanTop(from, end, '/'); k < 0 {
			pe.Arg, err = l.argWord(from, end)
		} else if pe.Arg, err = l.argWord(from, k); err == nil {
			pe.Repl, err = l.argWord(k+1, end)
		}
	default:
		return nil, bad()
	}
	if err != nil {
		return nil, err
	}
	l.pos = end + 1
	return &ast.WordPart{Type: ast.PartParam, Param: pe, Raw: l.input[start:l.pos]}, nil
}

var defaultOps = map[byte]ast.ParamOp{
	'-': ast.ParamDefault,
	'=': ast.ParamAssign,
	'+': ast.ParamAlternate,
	'?': ast.ParamError,
}

// pairOps maps an operator character to its short and doubled forms.
var pairOps = map[byte][2]ast.ParamOp{
	'#': {ast.ParamTrimPrefix, ast.ParamTrimLongPrefix},
	'%': {ast.ParamTrimSuffix, ast.ParamTrimLongSuffix},
	'^': {ast.ParamUpperFirst, ast.ParamUpper},
	',': {ast.ParamLowerFirst, ast.ParamLower},
}

func boolIndex(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanBraceEnd returns the index of the '}' closing a ${...} expansion,
// skipping quotes and nested expansions.
func (l *Lexer) scanBraceEnd(from int) (int, error) {
	if k := l.scanTop(from, l.limit, '}'); k >= 0 {
		return k, nil
	}
	return 0, &IncompleteError{Kind: UnterminatedSubstitution, Pos: l.position(from)}
}

// scanTop returns the index of the first stop byte in [from, to) that is
// outside quotes and nested ${...}, or -1.
func (l *Lexer) scanTop(from, to int, stop byte) int {
	depth := 0
	for i := from; i < to; i++ {
		c := l.input[i]
		if c == stop && depth == 0 {
			return i
		}
		switch c {
		case '\\':
			i++
		case '\'':
			k := strings.IndexByte(l.input[i+1:to], '\'')
			if k < 0 {
				return -1
			}
			i += k + 1
		case '"':
			for i++; i < to && l.input[i] != '"'; i++ {
				if l.input[i] == '\\' {
					i++
				}
			}
		case '$':
			if i+1 < to && l.input[i+1] == '{' {
				depth++
				i++
			}
		case '}':
			depth--
		}
	}
	return -1
}

func (l *Lexer) matchBracket(from int) (int, error) {
	depth := 0
	for i := from; i < l.limit; i++ {
		switch l.input[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, &IncompleteError{Kind: UnterminatedSubstitution, Pos: l.position(from)}
}

// sub returns a lexer over input[from:to] that shares positions with l.
func (l *Lexer) sub(from, to int) *Lexer {
	return &Lexer{input: l.input, pos: from, limit: to}
}

func (l *Lexer) argWord(from, to int) (*ast.Word, error) {
	return l.sub(from, to).tokenizeWord(modeArg)
}

// quotedWord lexes input[from:to] the way double-quoted text is read and
// wraps the result in a single double-quoted part.
func (l *Lexer) quotedWord(from, to int) (*ast.Word, error) {
	parts, err := l.sub(from, to).lexParts(modeQuoted)
	if err != nil {
		return nil, err
	}
	return &ast.Word{
		Parts: []*ast.WordPart{{Type: ast.PartDoubleQuoted, Parts: parts}},
		Pos:   l.position(from),
	}, nil
}

func (l *Lexer) readHereDocs() error {
	for len(l.pending) > 0 {
		r := l.pending[0]
		var body strings.Builder
		found := false
		for l.pos < l.limit {
			line := l.input[l.pos:l.limit]
			next := l.limit
			if end := strings.IndexByte(line, '\n'); end >= 0 {
				line = line[:end]
				next = l.pos + end + 1
			}
			l.pos = next
			if r.StripTabs {
				line = strings.TrimLeft(line, "\t")
			}
			if line == r.Delimiter {
				found = true
				break
			}
			body.WriteString(line)
			body.WriteByte('\n')
		}
		if !found {
			return &IncompleteError{Kind: UnterminatedHereDoc, Pos: r.Pos}
		}

		if r.Quoted {
			r.HereDoc = &ast.Word{Parts: []*ast.WordPart{{Type: ast.PartSingleQuoted, Value: body.String()}}}
		} else {
			word, err := ParseQuoted(body.String())
			if err != nil {
				return err
			}
			r.HereDoc = word
		}
		l.pending = l.pending[1:]
	}
	return nil
}

// ParseQuoted lexes s as the body of a double-quoted string. Here-document
// bodies and prompt strings are read this way.
func ParseQuoted(s string) (*ast.Word, error) {
	l := NewLexer(s)
	return l.quotedWord(0, len(s))
}

func delimiterText(w *ast.Word) string {
	var sb strings.Builder
	for _, p := range w.Parts {
		switch p.Type {
		case ast.PartLiteral:
			sb.WriteString(unescape(p.Value))
		case ast.PartSingleQuoted:
			sb.WriteString(p.Value)
		case ast.PartDoubleQuoted:
			for _, in := range p.Parts {
				sb.WriteString(in.String())
			}
		default:
			sb.WriteString(p.String())
		}
	}
	return sb.String()
}

func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func isBreak(c byte) bool {
	return strings.IndexByte(" \t\r\n|&;<>()", c) >= 0
}

func isDigit(c byte) bool     { return c >= '0' && c <= '9' }
func isOctal(c byte) bool     { return c >= '0' && c <= '7' }
func isHex(c byte) bool       { return isDigit(c) || (c|0x20 >= 'a' && c|0x20 <= 'f') }
func isNameStart(c byte) bool { return c == '_' || (c|0x20 >= 'a' && c|0x20 <= 'z') }
func isNameChar(c byte) bool  { return isNameStart(c) || isDigit(c) }

func isName(s string) bool {
	if s == "" || !isNameStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isNameChar(s[i]) {
			return false
		}
	}
	return true
}
