// Package prompt renders PS1 and PS2.
package prompt

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cryptexctl/gosh/v2/internal/variables"
)

const (
	DefaultPS1 = `\u@\h:\w\$ `
	DefaultPS2 = "> "
)

// Info is what a prompt template can show.
type Info struct {
	User   string
	Host   string
	Home   string
	Dir    string
	Root   bool
	Jobs   int
	Status int
	Now    time.Time
}

// Expand replaces the backslash escapes in template:
//
//	\u user         \h host up to the first dot   \H full host
//	\w directory    \W its last element           \$ # for root, else $
//	\j job count    \? last status                \s shell name
//	\t HH:MM:SS     \A HH:MM                      \d "Mon Jan 02"
//	\n newline      \e escape                     \\ backslash
//
// \[ and \] are dropped. Unknown escapes are kept as written.
func Expand(template string, info Info) string {
	var sb strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '\\' || i == len(template)-1 {
			sb.WriteByte(c)
			continue
		}
		i++
		switch template[i] {
		case 'u':
			sb.WriteString(info.User)
		case 'h':
			host, _, _ := strings.Cut(info.Host, ".")
			sb.WriteString(host)
		case 'H':
			sb.WriteString(info.Host)
		case 'w':
			sb.WriteString(tilde(info.Dir, info.Home))
		case 'W':
			dir := tilde(info.Dir, info.Home)
			if dir != "~" && dir != "/" {
				dir = filepath.Base(dir)
			}
			sb.WriteString(dir)
		case '$':
			if info.Root {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('$')
			}
		case 'j':
			sb.WriteString(strconv.Itoa(info.Jobs))
		case '?':
			sb.WriteString(strconv.Itoa(info.Status))
		case 's':
			sb.WriteString("gosh")
		case 't':
			sb.WriteString(info.Now.Format("15:04:05"))
		case 'A':
			sb.WriteString(info.Now.Format("15:04"))
		case 'd':
			sb.WriteString(info.Now.Format("Mon Jan 02"))
		case 'n':
			sb.WriteByte('\n')
		case 'e':
			sb.WriteByte(0x1b)
		case '\\':
			sb.WriteByte('\\')
		case '[', ']':
		default:
			sb.WriteByte('\\')
			sb.WriteByte(template[i])
		}
	}
	return sb.String()
}

func tilde(dir, home string) string {
	switch {
	case home == "" || home == "/":
		return dir
	case dir == home:
		return "~"
	case strings.HasPrefix(dir, home+"/"):
		return "~" + dir[len(home):]
	}
	return dir
}

// Manager renders prompts from the shell's variables and state.
type Manager struct {
	vars *variables.Manager
	dir  func() string
	jobs func() int

	user string
	root bool
	host string
}

func New(vars *variables.Manager, dir func() string, jobs func() int) *Manager {
	m := &Manager{vars: vars, dir: dir, jobs: jobs}
	if u, err := user.Current(); err == nil {
		m.user = u.Username
		m.root = u.Uid == "0"
	}
	m.host, _ = os.Hostname()
	return m
}

func (m *Manager) info() Info {
	info := Info{
		User:   m.user,
		Host:   m.host,
		Home:   m.vars.Get("HOME"),
		Dir:    m.dir(),
		Root:   m.root,
		Status: m.vars.Status,
		Now:    time.Now(),
	}
	if u := m.vars.Get("USER"); u != "" {
		info.User = u
	}
	if m.jobs != nil {
		info.Jobs = m.jobs()
	}
	return info
}

func (m *Manager) template(name, fallback string) string {
	if v, ok := m.vars.Lookup(name); ok {
		return v.Scalar()
	}
	return fallback
}

// PS1 is the primary prompt.
func (m *Manager) PS1() string {
	return Expand(m.template("PS1", DefaultPS1), m.info())
}

// PS2 is shown while a statement needs more input.
func (m *Manager) PS2() string {
	return Expand(m.template("PS2", DefaultPS2), m.info())
}
