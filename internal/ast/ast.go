// Package ast defines the syntax tree produced by the parser and walked by
// the executor.
package ast

type CommandType int

const (
	CommandSimple CommandType = iota
	CommandPipeline
	CommandList
	CommandIf
	CommandFor
	CommandWhile
	CommandCase
	CommandFunction
	CommandSubshell
	CommandGroup
	CommandArith
)

func (t CommandType) String() string {
	switch t {
	case CommandSimple:
		return "simple"
	case CommandPipeline:
		return "pipeline"
	case CommandList:
		return "list"
	case CommandIf:
		return "if"
	case CommandFor:
		return "for"
	case CommandWhile:
		return "while"
	case CommandCase:
		return "case"
	case CommandFunction:
		return "function"
	case CommandSubshell:
		return "subshell"
	case CommandGroup:
		return "group"
	case CommandArith:
		return "arith"
	default:
		return "unknown"
	}
}

// Pos is a 1-based line and column in the parsed source.
type Pos struct {
	Line int
	Col  int
}

// Script is a sequence of statements separated by newlines, ';' or '&'.
type Script struct {
	Statements []*Statement
}

// Statement is one element of a Script. Background is set when the
// statement was terminated by '&'.
type Statement struct {
	Command    *Command
	Background bool
	Text       string
	Pos        Pos
}

// Command is a tagged union; exactly one of the pointer fields matching
// Type is set. Redirects apply to compound commands; simple commands carry
// their own.
type Command struct {
	Type      CommandType
	Simple    *SimpleCommand
	Pipeline  *Pipeline
	List      *List
	If        *IfCommand
	For       *ForCommand
	While     *WhileCommand
	Case      *CaseCommand
	Function  *FunctionCommand
	Subshell  *SubshellCommand
	Group     *GroupCommand
	Arith     *ArithCommand
	Redirects []*Redirect
	Pos       Pos
}

type SimpleCommand struct {
	Assigns   []*Assign
	Args      []*Word
	Redirects []*Redirect
}

// Assign is NAME=value, NAME+=value, NAME[i]=value or NAME=(a b c).
type Assign struct {
	Name   string
	Index  *Word
	Value  *Word
	Array  []*Word
	Append bool
	IsList bool
}

type Pipeline struct {
	Commands []*Command
	Negate   bool
	Text     string
}

type ListOp int

const (
	ListAnd ListOp = iota
	ListOr
)

func (op ListOp) String() string {
	if op == ListAnd {
		return "&&"
	}
	return "||"
}

// List is a left-associative chain of pipelines joined by && and ||.
// Operators[i] sits between Commands[i] and Commands[i+1].
type List struct {
	Commands  []*Command
	Operators []ListOp
}

type IfClause struct {
	Condition *Script
	Body      *Script
}

type IfCommand struct {
	Clauses []*IfClause
	Else    *Script
}

type ForCommand struct {
	Variable string
	Values   []*Word
	// InPresent is false for "for x; do", which iterates the positional
	// parameters.
	InPresent bool
	Body      *Script
}

type WhileCommand struct {
	Condition *Script
	Body      *Script
	Until     bool
}

type CaseCommand struct {
	Word  *Word
	Items []*CaseItem
}

type CaseItem struct {
	Patterns []*Word
	Body     *Script
}

type FunctionCommand struct {
	Name string
	Body *Command
}

type SubshellCommand struct {
	Script *Script
}

type GroupCommand struct {
	Script *Script
}

type ArithCommand struct {
	Expr *Word
}

type RedirectType int

const (
	RedirectInput RedirectType = iota
	RedirectOutput
	RedirectClobber
	RedirectAppend
	RedirectInputOutput
	RedirectDupInput
	RedirectDupOutput
	RedirectOutputAll
	RedirectAppendAll
	RedirectHereDoc
	RedirectHereString
)

// RedirectMode is the coarse access mode of a redirection.
type RedirectMode int

const (
	ModeRead RedirectMode = iota
	ModeWrite
	ModeAppend
	ModeReadWrite
	ModeDuplicate
)

func (t RedirectType) Mode() RedirectMode {
	switch t {
	case RedirectInput, RedirectHereDoc, RedirectHereString:
		return ModeRead
	case RedirectAppend, RedirectAppendAll:
		return ModeAppend
	case RedirectInputOutput:
		return ModeReadWrite
	case RedirectDupInput, RedirectDupOutput:
		return ModeDuplicate
	default:
		return ModeWrite
	}
}

// DefaultFd is the descriptor a redirection applies to when no explicit
// source is written.
func (t RedirectType) DefaultFd() int {
	switch t {
	case RedirectInput, RedirectInputOutput, RedirectDupInput, RedirectHereDoc, RedirectHereString:
		return 0
	default:
		return 1
	}
}

type Redirect struct {
	Type RedirectType
	// Source is the explicit descriptor, or -1 when none was written.
	Source int
	Target *Word
	// HereDoc holds the body of a here-document. Quoted delimiters produce
	// a single literal part.
	HereDoc   *Word
	Delimiter string
	StripTabs bool
	Quoted    bool
	Pos       Pos
}

// Fd returns the descriptor the redirection applies to.
func (r *Redirect) Fd() int {
	if r.Source >= 0 {
		return r.Source
	}
	return r.Type.DefaultFd()
}
