// Package history keeps the lines accepted during one session. Nothing is
// written to disk.
package history

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cryptexctl/gosh/v2/internal/builtin"
)

type Manager struct {
	entries []string
	maxSize int
	// base is the number of the oldest kept entry.
	base int
}

func New(maxSize int) *Manager {
	return &Manager{maxSize: maxSize, base: 1}
}

// Add records a line. Blank lines and repeats of the previous line are
// skipped.
func (m *Manager) Add(line string) {
	line = strings.TrimRight(line, "\n")
	if strings.TrimSpace(line) == "" || m.maxSize == 0 {
		return
	}
	if n := len(m.entries); n > 0 && m.entries[n-1] == line {
		return
	}
	m.entries = append(m.entries, line)
	m.trim()
}

func (m *Manager) trim() {
	if over := len(m.entries) - m.maxSize; m.maxSize > 0 && over > 0 {
		m.entries = m.entries[over:]
		m.base += over
	}
}

// Get returns entry number n, counting from 1 over the whole session.
func (m *Manager) Get(n int) (string, bool) {
	i := n - m.base
	if i < 0 || i >= len(m.entries) {
		return "", false
	}
	return m.entries[i], true
}

func (m *Manager) All() []string {
	return append([]string(nil), m.entries...)
}

// First is the number of the oldest kept entry.
func (m *Manager) First() int {
	return m.base
}

func (m *Manager) Size() int {
	return len(m.entries)
}

func (m *Manager) Clear() {
	m.base += len(m.entries)
	m.entries = nil
}

func (m *Manager) SetMaxSize(size int) {
	m.maxSize = size
	m.trim()
}

// Search returns the kept entries containing query, oldest first.
func (m *Manager) Search(query string) []string {
	var results []string
	for _, entry := range m.entries {
		if strings.Contains(entry, query) {
			results = append(results, entry)
		}
	}
	return results
}

// EventError is a history reference that matches no entry.
type EventError struct {
	Event string
}

func (e *EventError) Error() string {
	return fmt.Sprintf("%s: event not found", e.Event)
}

// Expand replaces history references in line: !! is the previous line, !n
// entry n, !-n the nth previous line and !prefix the latest line starting
// with prefix. Nothing inside single quotes or after a backslash is
// touched, and a ! followed by a blank, '=' or '(' stays as it is.
// changed reports whether anything was replaced.
func (m *Manager) Expand(line string) (expanded string, changed bool, err error) {
	if !strings.Contains(line, "!") {
		return line, false, nil
	}
	var sb strings.Builder
	quoted := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '\'':
			quoted = !quoted
		case quoted:
		case c == '\\' && i+1 < len(line):
			sb.WriteByte(c)
			i++
			c = line[i]
		case c == '!' && i+1 < len(line):
			event, n := m.event(line[i+1:])
			if n == 0 {
				break
			}
			if event == nil {
				return "", false, &EventError{Event: line[i : i+1+n]}
			}
			sb.WriteString(*event)
			changed = true
			i += n
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String(), changed, nil
}

// event resolves the reference at the start of s, which follows a '!'. n
// is how many bytes of s it used; 0 means s starts no reference.
func (m *Manager) event(s string) (event *string, n int) {
	lookup := func(number int) *string {
		if e, ok := m.Get(number); ok {
			return &e
		}
		return nil
	}
	last := m.base + len(m.entries) - 1

	switch c := s[0]; {
	case c == '!':
		return lookup(last), 1
	case c == ' ' || c == '\t' || c == '=' || c == '(' || c == '"':
		return nil, 0
	case c == '-' || c >= '0' && c <= '9':
		end := 1
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		number, err := strconv.Atoi(s[:end])
		if err != nil {
			return nil, 0
		}
		if number < 0 {
			number = last + 1 + number
		}
		return lookup(number), end
	}

	end := strings.IndexAny(s, " \t;|&<>()'\"")
	if end < 0 {
		end = len(s)
	}
	prefix := s[:end]
	for i := len(m.entries) - 1; i >= 0; i-- {
		if strings.HasPrefix(m.entries[i], prefix) {
			return &m.entries[i], end
		}
	}
	return nil, end
}

// Builtin is the history command for this session's lines.
func (m *Manager) Builtin() builtin.Builtin {
	return builtin.Builtin{
		Name:  "history",
		Use:   "history [-c] [n]",
		Short: "Display or clear the command history.",
		Run:   m.run,
	}
}

func (m *Manager) run(c *builtin.Context, args []string) int {
	cmd := &builtin.Command{Use: "history [-c] [n]"}
	wipe := cmd.Flags().Bool('c', "clear the history")

	return cmd.Run(c, args, func(operands []string) int {
		if *wipe {
			m.Clear()
			return 0
		}
		entries := m.entries
		if len(operands) > 0 {
			n, err := strconv.Atoi(operands[0])
			if err != nil || n < 0 {
				fmt.Fprintf(c.Stderr, "history: %s: numeric argument required\n", operands[0])
				return 1
			}
			if n < len(entries) {
				entries = entries[len(entries)-n:]
			}
		}
		first := m.base + len(m.entries) - len(entries)
		for i, entry := range entries {
			fmt.Fprintf(c.Stdout, "%5d  %s\n", first+i, entry)
		}
		return 0
	})
}
