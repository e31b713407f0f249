package variables

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

type Variable struct {
	Name     string
	Value    string
	Exported bool
	ReadOnly bool
	Array    bool
	Values   []string

	// holes are indexes below len(Values) that were never set or were
	// unset. They read as unset and are left out of the element list.
	holes map[int]bool
}

func (v *Variable) clone() *Variable {
	c := *v
	c.Values = append([]string(nil), v.Values...)
	if v.holes != nil {
		c.holes = make(map[int]bool, len(v.holes))
		for i := range v.holes {
			c.holes[i] = true
		}
	}
	return &c
}

// Has reports whether array index i holds a value.
func (v *Variable) Has(i int) bool {
	return i >= 0 && i < len(v.Values) && !v.holes[i]
}

// Sparse reports whether some index below the highest one is unset.
func (v *Variable) Sparse() bool {
	return len(v.holes) > 0
}

// elements returns the set values in index order.
func (v *Variable) elements() []string {
	out := make([]string, 0, len(v.Values)-len(v.holes))
	for i, s := range v.Values {
		if !v.holes[i] {
			out = append(out, s)
		}
	}
	return out
}

func (v *Variable) resetArray(values []string) {
	v.Array = true
	v.Value = ""
	v.Values = values
	v.holes = nil
}

// Scalar returns the variable as a single string. Arrays yield their first
// element.
func (v *Variable) Scalar() string {
	if v.Array {
		if !v.Has(0) {
			return ""
		}
		return v.Values[0]
	}
	return v.Value
}

type ReadOnlyError struct {
	Name string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("%s: readonly variable", e.Name)
}

type scope struct {
	vars map[string]*Variable
	args []string
}

// Manager is the variable store: a global scope plus one scope per active
// function call. Lookups walk from the innermost scope outward. A Manager
// is owned by one executor; forked executors work on a Clone.
type Manager struct {
	scopes []*scope

	// Special parameters.
	Status         int
	PID            int
	LastBackground int
	Arg0           string
	Flags          string
}

func New() *Manager {
	return NewFromEnviron(os.Environ())
}

// NewFromEnviron creates a store whose globals are the exported KEY=VALUE
// pairs of env.
func NewFromEnviron(env []string) *Manager {
	m := &Manager{
		scopes: []*scope{{vars: make(map[string]*Variable)}},
		PID:    os.Getpid(),
		Arg0:   "gosh",
	}
	m.loadEnvironment(env)
	return m
}

func (m *Manager) loadEnvironment(env []string) {
	global := m.scopes[0].vars
	for _, kv := range env {
		name, value, _ := strings.Cut(kv, "=")
		if !ValidName(name) {
			continue
		}
		global[name] = &Variable{Name: name, Value: value, Exported: true}
	}
}

// Clone returns an independent deep copy, used by subshells and command
// substitution.
func (m *Manager) Clone() *Manager {
	c := *m
	c.scopes = make([]*scope, len(m.scopes))
	for i, s := range m.scopes {
		ns := &scope{vars: make(map[string]*Variable, len(s.vars)), args: append([]string(nil), s.args...)}
		for k, v := range s.vars {
			ns.vars[k] = v.clone()
		}
		c.scopes[i] = ns
	}
	return &c
}

func (m *Manager) inner() *scope {
	return m.scopes[len(m.scopes)-1]
}

// Depth is the number of active function scopes.
func (m *Manager) Depth() int {
	return len(m.scopes) - 1
}

func (m *Manager) PushScope(args []string) {
	m.scopes = append(m.scopes, &scope{
		vars: make(map[string]*Variable),
		args: append([]string(nil), args...),
	})
}

func (m *Manager) PopScope() {
	if len(m.scopes) > 1 {
		m.scopes = m.scopes[:len(m.scopes)-1]
	}
}

func (m *Manager) Lookup(name string) (*Variable, bool) {
	for i := len(m.scopes) - 1; i >= 0; i-- {
		if v, ok := m.scopes[i].vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// IsSet reports whether name is a set variable or special parameter.
func (m *Manager) IsSet(name string) bool {
	if _, ok := m.Special(name); ok {
		if n, err := strconv.Atoi(name); err == nil {
			return n == 0 || n <= len(m.Args())
		}
		return true
	}
	_, ok := m.Lookup(name)
	return ok
}

// Get returns the scalar value of name, including special parameters.
// Unset names read as "".
func (m *Manager) Get(name string) string {
	if s, ok := m.Special(name); ok {
		return s
	}
	if v, ok := m.Lookup(name); ok {
		return v.Scalar()
	}
	return ""
}

// Special resolves $? $$ $! $# $- $0 and positional parameters. $@ and $*
// read here as the space-joined arguments; the expander handles their
// field semantics.
func (m *Manager) Special(name string) (string, bool) {
	switch name {
	case "?":
		return strconv.Itoa(m.Status), true
	case "$":
		return strconv.Itoa(m.PID), true
	case "!":
		if m.LastBackground == 0 {
			return "", true
		}
		return strconv.Itoa(m.LastBackground), true
	case "#":
		return strconv.Itoa(len(m.Args())), true
	case "-":
		return m.Flags, true
	case "@", "*":
		return strings.Join(m.Args(), " "), true
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 0 {
		if n == 0 {
			return m.Arg0, true
		}
		args := m.Args()
		if n <= len(args) {
			return args[n-1], true
		}
		return "", true
	}
	return "", false
}

// find returns the nearest existing variable, or nil.
func (m *Manager) find(name string) *Variable {
	v, _ := m.Lookup(name)
	return v
}

// target returns the variable an assignment to name writes: the nearest
// existing one, or a new global.
func (m *Manager) target(name string) (*Variable, error) {
	if v := m.find(name); v != nil {
		if v.ReadOnly {
			return nil, &ReadOnlyError{Name: name}
		}
		return v, nil
	}
	v := &Variable{Name: name}
	m.scopes[0].vars[name] = v
	return v, nil
}

// Set assigns a scalar. Assigning to an array sets element 0.
func (m *Manager) Set(name, value string) error {
	if !ValidName(name) {
		return fmt.Errorf("%s: not a valid identifier", name)
	}
	v, err := m.target(name)
	if err != nil {
		return err
	}
	if v.Array {
		if len(v.Values) == 0 {
			v.Values = []string{""}
		}
		v.Values[0] = value
		delete(v.holes, 0)
		return nil
	}
	v.Value = value
	return nil
}

// Append implements name+=value for scalars and arrays.
func (m *Manager) Append(name string, values ...string) error {
	v, err := m.target(name)
	if err != nil {
		return err
	}
	if v.Array {
		v.Values = append(v.Values, values...)
		return nil
	}
	v.Value += strings.Join(values, " ")
	return nil
}

func (m *Manager) SetArray(name string, values []string) error {
	if !ValidName(name) {
		return fmt.Errorf("%s: not a valid identifier", name)
	}
	v, err := m.target(name)
	if err != nil {
		return err
	}
	v.resetArray(append([]string(nil), values...))
	return nil
}

// AppendArray implements name+=(values...). A scalar becomes element 0.
func (m *Manager) AppendArray(name string, values []string) error {
	v, err := m.target(name)
	if err != nil {
		return err
	}
	if !v.Array {
		v.toArray()
	}
	v.Values = append(v.Values, values...)
	return nil
}

func (m *Manager) SetElement(name string, index int, value string) error {
	if index < 0 {
		return fmt.Errorf("%s[%d]: bad array subscript", name, index)
	}
	v, err := m.target(name)
	if err != nil {
		return err
	}
	if !v.Array {
		v.toArray()
	}
	for len(v.Values) <= index {
		if len(v.Values) < index {
			v.hole(len(v.Values))
		}
		v.Values = append(v.Values, "")
	}
	v.Values[index] = value
	delete(v.holes, index)
	return nil
}

// toArray turns a scalar into an array; a non-empty value becomes
// element 0.
func (v *Variable) toArray() {
	var values []string
	if v.Value != "" {
		values = []string{v.Value}
	}
	v.resetArray(values)
}

func (v *Variable) hole(i int) {
	if v.holes == nil {
		v.holes = make(map[int]bool)
	}
	v.holes[i] = true
}

// GetArray returns the elements of name. Scalars are one-element arrays;
// unset names have none.
func (m *Manager) GetArray(name string) []string {
	v := m.find(name)
	switch {
	case v == nil:
		return nil
	case v.Array:
		return v.elements()
	default:
		return []string{v.Value}
	}
}

// Element returns element index of name. Negative indexes count from the
// end.
func (m *Manager) Element(name string, index int) (string, bool) {
	v := m.find(name)
	switch {
	case v == nil:
		return "", false
	case !v.Array:
		if index != 0 && index != -1 {
			return "", false
		}
		return v.Value, true
	}
	if index < 0 {
		index += len(v.Values)
	}
	if !v.Has(index) {
		return "", false
	}
	return v.Values[index], true
}

// Local declares name in the innermost function scope.
func (m *Manager) Local(name string, value *string) error {
	if len(m.scopes) == 1 {
		return fmt.Errorf("local: can only be used in a function")
	}
	if !ValidName(name) {
		return fmt.Errorf("%s: not a valid identifier", name)
	}
	s := m.inner()
	v, ok := s.vars[name]
	if !ok {
		v = &Variable{Name: name}
		if outer := m.find(name); outer != nil {
			v.Exported = outer.Exported
		}
		s.vars[name] = v
	}
	if v.ReadOnly {
		return &ReadOnlyError{Name: name}
	}
	if value != nil {
		v.Array, v.Values, v.holes, v.Value = false, nil, nil, *value
	}
	return nil
}

// Export marks name exported, assigning value first when given.
func (m *Manager) Export(name string, value *string) error {
	if !ValidName(name) {
		return fmt.Errorf("%s: not a valid identifier", name)
	}
	v := m.find(name)
	if value != nil {
		if err := m.Set(name, *value); err != nil {
			return err
		}
		v = m.find(name)
	}
	if v == nil {
		v = &Variable{Name: name}
		m.scopes[0].vars[name] = v
	}
	v.Exported = true
	return nil
}

func (m *Manager) SetReadOnly(name string, value *string) error {
	if value != nil {
		if err := m.Set(name, *value); err != nil {
			return err
		}
	}
	v := m.find(name)
	if v == nil {
		v = &Variable{Name: name}
		m.scopes[0].vars[name] = v
	}
	v.ReadOnly = true
	return nil
}

func (m *Manager) Unset(name string) error {
	for i := len(m.scopes) - 1; i >= 0; i-- {
		if v, ok := m.scopes[i].vars[name]; ok {
			if v.ReadOnly {
				return &ReadOnlyError{Name: name}
			}
			delete(m.scopes[i].vars, name)
			return nil
		}
	}
	return nil
}

func (m *Manager) UnsetElement(name string, index int) error {
	v := m.find(name)
	if v == nil {
		return nil
	}
	if v.ReadOnly {
		return &ReadOnlyError{Name: name}
	}
	if !v.Array || !v.Has(index) {
		return nil
	}
	v.Values[index] = ""
	v.hole(index)
	// Trailing holes are dropped so the highest index stays set.
	for n := len(v.Values); n > 0 && v.holes[n-1]; n-- {
		delete(v.holes, n-1)
		v.Values = v.Values[:n-1]
	}
	if len(v.holes) == 0 {
		v.holes = nil
	}
	return nil
}

func (m *Manager) IsExported(name string) bool {
	v := m.find(name)
	return v != nil && v.Exported
}

func (m *Manager) IsReadOnly(name string) bool {
	v := m.find(name)
	return v != nil && v.ReadOnly
}

// Args returns the positional parameters of the innermost scope that has
// them; function scopes always do.
func (m *Manager) Args() []string {
	return m.inner().args
}

func (m *Manager) SetArgs(args []string) {
	m.inner().args = append([]string(nil), args...)
}

func (m *Manager) Shift(n int) error {
	s := m.inner()
	if n < 0 || n > len(s.args) {
		return fmt.Errorf("shift count out of range")
	}
	s.args = s.args[n:]
	return nil
}

// All returns the visible variables, inner scopes shadowing outer ones,
// sorted by name.
func (m *Manager) All() []*Variable {
	visible := make(map[string]*Variable)
	for _, s := range m.scopes {
		for k, v := range s.vars {
			visible[k] = v
		}
	}
	result := make([]*Variable, 0, len(visible))
	for _, v := range visible {
		result = append(result, v.clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Environ flattens the exported scalars of every scope into KEY=VALUE
// pairs for a child process. It is a snapshot taken at spawn time.
func (m *Manager) Environ() []string {
	var env []string
	for _, v := range m.All() {
		if v.Exported && !v.Array {
			env = append(env, v.Name+"="+v.Value)
		}
	}
	return env
}

// ValidName reports whether s is a variable name.
func ValidName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
