package parser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptexctl/gosh/v2/internal/ast"
)

func mustParse(t *testing.T, src string) *ast.Script {
	t.Helper()
	script, err := New().Parse(src)
	require.NoError(t, err)
	return script
}

func firstCommand(t *testing.T, src string) *ast.Command {
	t.Helper()
	script := mustParse(t, src)
	require.NotEmpty(t, script.Statements)
	return script.Statements[0].Command
}

func TestParseSimpleCommand(t *testing.T) {
	cmd := firstCommand(t, `FOO=bar echo "hello world" 'x' >out 2>&1`)
	require.Equal(t, ast.CommandSimple, cmd.Type)

	sc := cmd.Simple
	require.Len(t, sc.Assigns, 1)
	assert.Equal(t, "FOO", sc.Assigns[0].Name)
	assert.Equal(t, "bar", sc.Assigns[0].Value.String())

	assert.Equal(t, `echo "hello world" 'x'`, ast.Words(sc.Args))

	require.Len(t, sc.Redirects, 2)
	assert.Equal(t, ast.RedirectOutput, sc.Redirects[0].Type)
	assert.Equal(t, 1, sc.Redirects[0].Fd())
	assert.Equal(t, "out", sc.Redirects[0].Target.String())
	assert.Equal(t, ast.RedirectDupOutput, sc.Redirects[1].Type)
	assert.Equal(t, 2, sc.Redirects[1].Fd())
	assert.Equal(t, "1", sc.Redirects[1].Target.String())
}

func TestParseStatements(t *testing.T) {
	script := mustParse(t, "echo a; echo b &\necho c")
	require.Len(t, script.Statements, 3)
	assert.False(t, script.Statements[0].Background)
	assert.True(t, script.Statements[1].Background)
	assert.Equal(t, "echo b", script.Statements[1].Text)
	assert.Equal(t, ast.Pos{Line: 2, Col: 1}, script.Statements[2].Pos)
}

func TestParseAndOrPipeline(t *testing.T) {
	cmd := firstCommand(t, "! a | b && c || d |& e")
	require.Equal(t, ast.CommandList, cmd.Type)

	list := cmd.List
	require.Len(t, list.Commands, 3)
	assert.Equal(t, []ast.ListOp{ast.ListAnd, ast.ListOr}, list.Operators)

	first := list.Commands[0]
	require.Equal(t, ast.CommandPipeline, first.Type)
	assert.True(t, first.Pipeline.Negate)
	assert.Len(t, first.Pipeline.Commands, 2)
	assert.Equal(t, "! a | b", first.Pipeline.Text)

	last := list.Commands[2]
	require.Equal(t, ast.CommandPipeline, last.Type)
	d := last.Pipeline.Commands[0].Simple
	require.Len(t, d.Redirects, 1)
	assert.Equal(t, 2, d.Redirects[0].Fd())
}

func TestParseCompound(t *testing.T) {
	cases := []struct {
		src  string
		want ast.CommandType
	}{
		{"if a; then b; elif c; then d; else e; fi", ast.CommandIf},
		{"while a; do b; done", ast.CommandWhile},
		{"until a; do b; done", ast.CommandWhile},
		{"for x in 1 2 3; do echo $x; done", ast.CommandFor},
		{"for x; do echo; done", ast.CommandFor},
		{"case $x in a|b) echo ab;; *) echo other;; esac", ast.CommandCase},
		{"{ a; b; } >out", ast.CommandGroup},
		{"(cd /tmp; ls)", ast.CommandSubshell},
		{"((x = 1 + 2))", ast.CommandArith},
		{"f() { echo hi; }", ast.CommandFunction},
		{"function g { echo hi; }", ast.CommandFunction},
	}

	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			cmd := firstCommand(t, tc.src)
			assert.Equal(t, tc.want, cmd.Type)
		})
	}
}

func TestParseIfClauses(t *testing.T) {
	cmd := firstCommand(t, "if a\nthen b\nelif c; then d\nelse e\nfi")
	require.Equal(t, ast.CommandIf, cmd.Type)
	assert.Len(t, cmd.If.Clauses, 2)
	require.NotNil(t, cmd.If.Else)
	assert.Len(t, cmd.If.Else.Statements, 1)
}

func TestParseCaseItems(t *testing.T) {
	cmd := firstCommand(t, "case $1 in\n  (start) run ;;\n  stop|halt) halt\n    ;;\n  *) ;;\nesac")
	require.Equal(t, ast.CommandCase, cmd.Type)
	items := cmd.Case.Items
	require.Len(t, items, 3)
	assert.Equal(t, "start", ast.Words(items[0].Patterns))
	assert.Equal(t, "stop halt", ast.Words(items[1].Patterns))
	assert.Empty(t, items[2].Body.Statements)
}

func TestParseForValues(t *testing.T) {
	cmd := firstCommand(t, "for f in *.go \"a b\"; do echo $f; done")
	fc := cmd.For
	assert.Equal(t, "f", fc.Variable)
	assert.True(t, fc.InPresent)
	assert.Equal(t, `*.go "a b"`, ast.Words(fc.Values))
}

func TestParseAssignments(t *testing.T) {
	cases := []struct {
		src    string
		name   string
		index  string
		value  string
		append bool
		array  string
	}{
		{"A=1", "A", "", "1", false, ""},
		{"A+=x$y", "A", "", "x$y", true, ""},
		{"arr[3]=v", "arr", "3", "v", false, ""},
		{"arr[$i]=v", "arr", "$i", "v", false, ""},
		{"list=(a 'b c' $d)", "list", "", "", false, "a 'b c' $d"},
		{"E=", "E", "", "", false, ""},
	}

	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			cmd := firstCommand(t, tc.src)
			require.Equal(t, ast.CommandSimple, cmd.Type)
			require.Len(t, cmd.Simple.Assigns, 1)
			a := cmd.Simple.Assigns[0]
			assert.Equal(t, tc.name, a.Name)
			assert.Equal(t, tc.index, a.Index.String())
			assert.Equal(t, tc.value, a.Value.String())
			assert.Equal(t, tc.append, a.Append)
			assert.Equal(t, tc.array, ast.Words(a.Array))
			assert.Equal(t, tc.array != "", a.IsList)
		})
	}
}

func TestAssignmentOnlyInPrefix(t *testing.T) {
	cmd := firstCommand(t, "echo A=1")
	assert.Empty(t, cmd.Simple.Assigns)
	assert.Equal(t, "echo A=1", ast.Words(cmd.Simple.Args))
}

func TestReservedWordsOnlyInCommandPosition(t *testing.T) {
	cmd := firstCommand(t, "echo if then fi")
	require.Equal(t, ast.CommandSimple, cmd.Type)
	assert.Len(t, cmd.Simple.Args, 4)

	cmd = firstCommand(t, `"if" x`)
	assert.Equal(t, ast.CommandSimple, cmd.Type)
}

func TestParseWordParts(t *testing.T) {
	cmd := firstCommand(t, `echo pre"mid $HOME"'s'$(date)$((1+2))${x:-def}`+"`pwd`")
	word := cmd.Simple.Args[1]

	types := make([]ast.PartType, len(word.Parts))
	for i, p := range word.Parts {
		types[i] = p.Type
	}
	assert.Equal(t, []ast.PartType{
		ast.PartLiteral,
		ast.PartDoubleQuoted,
		ast.PartSingleQuoted,
		ast.PartCommand,
		ast.PartArith,
		ast.PartParam,
		ast.PartCommand,
	}, types)

	dq := word.Parts[1]
	require.Len(t, dq.Parts, 2)
	assert.Equal(t, "HOME", dq.Parts[1].Param.Name)

	assert.Equal(t, "date", word.Parts[3].Script.Statements[0].Text)
	assert.True(t, word.Parts[6].Backquote)

	param := word.Parts[5].Param
	assert.Equal(t, ast.ParamDefault, param.Op)
	assert.True(t, param.Colon)
	assert.Equal(t, "def", param.Arg.String())
}

func TestShortParams(t *testing.T) {
	cmd := firstCommand(t, `echo $name$? $1`)
	word := cmd.Simple.Args[1]
	require.Len(t, word.Parts, 2)
	assert.Equal(t, "name", word.Parts[0].Param.Name)
	assert.Equal(t, "$name", word.Parts[0].Raw)
	assert.Equal(t, "?", word.Parts[1].Param.Name)
	assert.Equal(t, "1", cmd.Simple.Args[2].Parts[0].Param.Name)
}

func TestWordRoundTrip(t *testing.T) {
	words := []string{
		`plain`,
		`'single $x'`,
		`"double $x ${y}"`,
		`a\ b`,
		`$'tab\there'`,
		`${v%%.*}`,
		`${#list[@]}`,
		`$(echo "nested $(inner)")`,
		`$((x * (y + 1)))`,
		`mix"ed"'quo'tes`,
	}

	for _, w := range words {
		t.Run(w, func(t *testing.T) {
			cmd := firstCommand(t, "echo "+w)
			require.Len(t, cmd.Simple.Args, 2)
			assert.Equal(t, w, cmd.Simple.Args[1].String())
		})
	}
}

func TestParamOperators(t *testing.T) {
	cases := []struct {
		src   string
		op    ast.ParamOp
		colon bool
		arg   string
		repl  string
	}{
		{"${x-a}", ast.ParamDefault, false, "a", ""},
		{"${x:=a}", ast.ParamAssign, true, "a", ""},
		{"${x:+a}", ast.ParamAlternate, true, "a", ""},
		{"${x:?msg here}", ast.ParamError, true, "msg here", ""},
		{"${x#*/}", ast.ParamTrimPrefix, false, "*/", ""},
		{"${x##*/}", ast.ParamTrimLongPrefix, false, "*/", ""},
		{"${x%.c}", ast.ParamTrimSuffix, false, ".c", ""},
		{"${x%%.*}", ast.ParamTrimLongSuffix, false, ".*", ""},
		{"${x/a/b}", ast.ParamReplace, false, "a", "b"},
		{"${x//a/b}", ast.ParamReplaceAll, false, "a", "b"},
		{"${x^^}", ast.ParamUpper, false, "", ""},
		{"${x,}", ast.ParamLowerFirst, false, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			cmd := firstCommand(t, "echo "+tc.src)
			part := cmd.Simple.Args[1].Parts[0]
			require.Equal(t, ast.PartParam, part.Type)
			pe := part.Param
			assert.Equal(t, "x", pe.Name)
			assert.Equal(t, tc.op, pe.Op)
			assert.Equal(t, tc.colon, pe.Colon)
			assert.Equal(t, tc.arg, pe.Arg.String())
			assert.Equal(t, tc.repl, pe.Repl.String())
		})
	}
}

func TestParamSlice(t *testing.T) {
	cmd := firstCommand(t, "echo ${s:1:2} ${#s}")
	slice := cmd.Simple.Args[1].Parts[0].Param
	assert.Equal(t, ast.ParamSlice, slice.Op)
	assert.Equal(t, `"1"`, slice.Offset.String())
	assert.Equal(t, `"2"`, slice.Count.String())

	length := cmd.Simple.Args[2].Parts[0].Param
	assert.True(t, length.Length)
	assert.Equal(t, "s", length.Name)
}

func TestAnsiQuote(t *testing.T) {
	cmd := firstCommand(t, `echo $'a\tb\x41\101\'\n'`)
	part := cmd.Simple.Args[1].Parts[0]
	assert.True(t, part.Dollar)
	assert.Equal(t, "a\tbAA'\n", part.Value)
}

func TestHereDoc(t *testing.T) {
	script := mustParse(t, "cat <<EOF; echo after\nhello $USER\n  world\nEOF\necho next")
	require.Len(t, script.Statements, 3)

	r := script.Statements[0].Command.Simple.Redirects[0]
	assert.Equal(t, ast.RedirectHereDoc, r.Type)
	assert.Equal(t, "EOF", r.Delimiter)
	assert.False(t, r.Quoted)
	require.NotNil(t, r.HereDoc)
	body := r.HereDoc.Parts[0]
	require.Equal(t, ast.PartDoubleQuoted, body.Type)
	assert.Equal(t, "hello $USER\n  world\n", body.String()[1:len(body.String())-1])

	assert.Equal(t, "echo next", script.Statements[2].Text)
}

func TestHereDocQuotedAndStripped(t *testing.T) {
	cmd := firstCommand(t, "cat <<-'END'\n\t$not expanded\n\tEND\n")
	r := cmd.Simple.Redirects[0]
	assert.True(t, r.Quoted)
	assert.True(t, r.StripTabs)
	assert.Equal(t, ast.PartSingleQuoted, r.HereDoc.Parts[0].Type)
	assert.Equal(t, "$not expanded\n", r.HereDoc.Parts[0].Value)
}

func TestHereString(t *testing.T) {
	cmd := firstCommand(t, `cat <<< "some $text"`)
	r := cmd.Simple.Redirects[0]
	assert.Equal(t, ast.RedirectHereString, r.Type)
	assert.Equal(t, `"some $text"`, r.Target.String())
}

func TestParseComments(t *testing.T) {
	script := mustParse(t, "# leading\necho a # trailing\n#only\necho b#not-a-comment")
	require.Len(t, script.Statements, 2)
	assert.Equal(t, "echo b#not-a-comment", ast.Words(script.Statements[1].Command.Simple.Args))
}

func TestLineContinuation(t *testing.T) {
	cmd := firstCommand(t, "echo a \\\n  b")
	assert.Equal(t, "echo a b", ast.Words(cmd.Simple.Args))
}

func TestIncomplete(t *testing.T) {
	cases := []struct {
		src  string
		kind IncompleteKind
	}{
		{`echo "abc`, UnterminatedQuote},
		{`echo 'abc`, UnterminatedQuote},
		{`echo $(ls`, UnterminatedSubstitution},
		{"echo `ls", UnterminatedSubstitution},
		{`echo ${x`, UnterminatedSubstitution},
		{"cat <<EOF\nline", UnterminatedHereDoc},
		{"if true; then", UnterminatedBlock},
		{"while true; do x", UnterminatedBlock},
		{"case x in", UnterminatedBlock},
		{"{ echo", UnterminatedBlock},
		{"echo a |", TrailingOperator},
		{"true &&", TrailingOperator},
		{"echo \\", LineContinuation},
		{"f() ", UnterminatedBlock},
	}

	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			_, err := New().Parse(tc.src)
			require.Error(t, err)
			var ie *IncompleteError
			require.True(t, errors.As(err, &ie), "got %v", err)
			assert.Equal(t, tc.kind, ie.Kind)
			assert.True(t, IsIncomplete(err))
		})
	}
}

func TestSyntaxErrors(t *testing.T) {
	cases := []string{
		"fi",
		"echo a; ;",
		"if then fi",
		"echo )",
		"| echo",
		"for 1x in a; do b; done",
		"a && ; b",
		"echo >",
		"f() echo hi",
		"echo ${x!}",
	}

	for _, src := range cases {
		t.Run(src, func(t *testing.T) {
			_, err := New().Parse(src)
			require.Error(t, err)
			var se *SyntaxError
			assert.True(t, errors.As(err, &se), "got %v", err)
			assert.False(t, IsIncomplete(err))
		})
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := New().Parse("echo ok\n  done")
	var se *SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ast.Pos{Line: 2, Col: 3}, se.Pos)
	assert.Equal(t, "done", se.Found)
}

func ExampleParser_Parse() {
	script, err := New().Parse("for i in 1 2; do echo $i; done | tac && echo ok")
	if err != nil {
		panic(err)
	}
	for _, stmt := range script.Statements {
		fmt.Println(stmt.Command.Type, stmt.Command.List.Commands[0].Type)
	}
	// Output: list pipeline
}
