package executor

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// keywords are reported by type; they never reach command resolution.
var keywords = map[string]bool{
	"if": true, "then": true, "elif": true, "else": true, "fi": true,
	"while": true, "until": true, "for": true, "in": true, "do": true, "done": true,
	"case": true, "esac": true, "function": true, "{": true, "}": true, "!": true,
}

func (e *Executor) searchPath() []string {
	path, ok := e.vars.Lookup("PATH")
	value := e.Path
	if ok {
		value = path.Scalar()
	}
	dirs := strings.Split(value, ":")
	for i, dir := range dirs {
		// An empty entry means the current directory.
		if dir == "" {
			dir = "."
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(e.dir, dir)
		}
		dirs[i] = dir
	}
	return dirs
}

// lookPath finds the executable for name. Names containing a slash are
// taken relative to the working directory; others are searched for in
// $PATH.
func (e *Executor) lookPath(name string) (string, error) {
	if strings.Contains(name, "/") {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(e.dir, path)
		}
		info, err := os.Stat(path)
		switch {
		case err != nil:
			return "", &ResolutionError{Name: name, Err: errNoSuchFile}
		case info.IsDir():
			return "", &ResolutionError{Name: name, Err: errIsDir}
		case info.Mode()&0o111 == 0:
			return "", &ResolutionError{Name: name, Err: os.ErrPermission}
		}
		return path, nil
	}

	denied := ""
	for _, dir := range e.searchPath() {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode()&0o111 != 0 {
			return path, nil
		}
		if denied == "" {
			denied = path
		}
	}
	if denied != "" {
		return "", &ResolutionError{Name: denied, Err: os.ErrPermission}
	}
	return "", &ResolutionError{Name: name, Suggestion: e.suggest(name), Err: errNotFound}
}

// suggest returns the known command closest to name, if any is within two
// edits.
func (e *Executor) suggest(name string) string {
	candidates := e.builtins.List()
	for fn := range e.funcs {
		candidates = append(candidates, fn)
	}
	for _, dir := range e.searchPath() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			candidates = append(candidates, entry.Name())
		}
	}
	sort.Strings(candidates)

	best, bestDist := "", 3
	for _, c := range candidates {
		if c == name {
			continue
		}
		if d := fuzzy.LevenshteinDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// LookupCommand reports how name would run.
func (e *Executor) LookupCommand(name string) (kind, path string) {
	switch {
	case keywords[name]:
		return "keyword", ""
	case e.funcs[name] != nil:
		return "function", ""
	case e.builtins.Exists(name):
		return "builtin", ""
	}
	if path, err := e.lookPath(name); err == nil {
		return "file", path
	}
	return "", ""
}
