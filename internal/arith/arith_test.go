package arith

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapVars map[string]string

func (m mapVars) Get(name string) string { return m[name] }

func (m mapVars) Set(name, value string) error {
	if name == "RO" {
		return errors.New("RO: readonly variable")
	}
	m[name] = value
	return nil
}

func TestEval(t *testing.T) {
	cases := []struct {
		expr string
		want int64
	}{
		{"", 0},
		{"  ", 0},
		{"2+3*4", 14},
		{"(2+3)*4", 20},
		{"10 - 4 - 3", 3},
		{"2 ** 3 ** 2", 512},
		{"-5 % 3", -2},
		{"7 / 2", 3},
		{"1 << 4 | 1", 17},
		{"6 & 3 ^ 1", 3},
		{"~0", -1},
		{"!0 + !5", 1},
		{"3 > 2 && 2 > 1", 1},
		{"0 || 0", 0},
		{"1 ? 10 : 20", 10},
		{"0 ? 10 : 0 ? 20 : 30", 30},
		{"0x1f", 31},
		{"010", 8},
		{"2#101", 5},
		{"16#ff", 255},
		{"36#z", 35},
		{"64#_", 63},
		{"1, 2, 3", 3},
		{"1 == 1 != 0", 1},
		{"-(-3)", 3},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := Eval(tc.expr, mapVars{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvalVariables(t *testing.T) {
	vars := mapVars{"x": "4", "y": " 3 ", "expr": "x * 2", "empty": ""}

	got, err := Eval("x * y + expr + empty + unset", vars)
	require.NoError(t, err)
	assert.Equal(t, int64(4*3+8), got)
}

func TestEvalAssignment(t *testing.T) {
	vars := mapVars{"n": "5"}

	for _, tc := range []struct {
		expr string
		want int64
		n    string
	}{
		{"n += 2", 7, "7"},
		{"n *= 3", 21, "21"},
		{"n = n % 4", 1, "1"},
		{"n++", 1, "2"},
		{"++n", 3, "3"},
		{"n--", 3, "2"},
		{"--n", 1, "1"},
		{"n <<= 3", 8, "8"},
		{"m = n = 2", 2, "2"},
	} {
		got, err := Eval(tc.expr, vars)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
		assert.Equal(t, tc.n, vars["n"], tc.expr)
	}
	assert.Equal(t, "2", vars["m"])
}

func TestEvalShortCircuit(t *testing.T) {
	vars := mapVars{}

	_, err := Eval("0 && (a = 1)", vars)
	require.NoError(t, err)
	_, err = Eval("1 || (b = 1)", vars)
	require.NoError(t, err)
	_, err = Eval("1 ? (c = 1) : (d = 1)", vars)
	require.NoError(t, err)

	assert.Equal(t, mapVars{"c": "1"}, vars)
}

func TestEvalErrors(t *testing.T) {
	cases := []string{
		"1 / 0",
		"5 % 0",
		"2 ** -1",
		"1 +",
		"08",
		"2#3",
		"(1",
		"5++",
		"RO = 1",
	}

	for _, expr := range cases {
		t.Run(expr, func(t *testing.T) {
			_, err := Eval(expr, mapVars{})
			require.Error(t, err)
			var ae *Error
			assert.True(t, errors.As(err, &ae))
		})
	}
}

func TestEvalRecursionLimit(t *testing.T) {
	_, err := Eval("a", mapVars{"a": "b", "b": "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recursion")
}

func ExampleEval() {
	vars := mapVars{"i": "1"}
	v, _ := Eval("i += 41", vars)
	fmt.Println(v, vars["i"])
	// Output: 42 42
}
