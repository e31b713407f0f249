package arith

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var arithLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Number", Pattern: `0[xX][0-9a-fA-F]+|[0-9]+#[0-9a-zA-Z@_]+|[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Op", Pattern: `<<=?|>>=?|\*\*|\+\+|--|&&|\|\||[-+*/%&^|<>=!]=?|[~?:(),]`},
})

var parser = participle.MustBuild[Comma](
	participle.Lexer(arithLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Comma is the top level: expressions separated by ',' evaluate left to
// right and yield the last value.
type Comma struct {
	Exprs []*Expr `parser:"@@ ( \",\" @@ )*"`
}

type Expr struct {
	Assign *Assignment `parser:"  @@"`
	Cond   *Ternary    `parser:"| @@"`
}

type Assignment struct {
	Name  string `parser:"@Ident"`
	Op    string `parser:"@( \"=\" | \"+=\" | \"-=\" | \"*=\" | \"/=\" | \"%=\" | \"<<=\" | \">>=\" | \"&=\" | \"^=\" | \"|=\" )"`
	Value *Expr  `parser:"@@"`
}

type Ternary struct {
	Cond *Binary `parser:"@@"`
	Then *Expr   `parser:"( \"?\" @@"`
	Else *Expr   `parser:"  \":\" @@ )?"`
}

// Binary is a flat operand list; precedence is applied when it is
// evaluated.
type Binary struct {
	Head *Unary     `parser:"@@"`
	Tail []*OpUnary `parser:"@@*"`
}

type OpUnary struct {
	Op      string `parser:"@( \"||\" | \"&&\" | \"|\" | \"^\" | \"&\" | \"==\" | \"!=\" | \"<=\" | \">=\" | \"<\" | \">\" | \"<<\" | \">>\" | \"+\" | \"-\" | \"**\" | \"*\" | \"/\" | \"%\" )"`
	Operand *Unary `parser:"@@"`
}

type Unary struct {
	PreIncr *Incr    `parser:"  @@"`
	Op      string   `parser:"| ( @( \"!\" | \"~\" | \"-\" | \"+\" )"`
	Operand *Unary   `parser:"    @@ )"`
	Postfix *Postfix `parser:"| @@"`
}

type Incr struct {
	Op   string `parser:"@( \"++\" | \"--\" )"`
	Name string `parser:"@Ident"`
}

type Postfix struct {
	Primary *Primary `parser:"@@"`
	Op      string   `parser:"@( \"++\" | \"--\" )?"`
}

type Primary struct {
	Number *string `parser:"  @Number"`
	Var    *string `parser:"| @Ident"`
	Sub    *Comma  `parser:"| \"(\" @@ \")\""`
}
