package expand

import (
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

type globEntry struct {
	show string // path as it is printed
	full string // path on the filesystem
}

// glob returns the sorted paths matching pat. Components without
// metacharacters are checked for existence, the others are matched against
// directory listings. Names starting with a dot only match a component that
// starts with one.
func (e *Expander) glob(pat string) ([]string, error) {
	dirOnly := strings.HasSuffix(pat, "/")
	var current []globEntry
	if strings.HasPrefix(pat, "/") {
		current = []globEntry{{show: "/", full: "/"}}
	} else {
		current = []globEntry{{show: "", full: e.dir()}}
	}

	var comps []string
	for _, c := range strings.Split(pat, "/") {
		if c != "" {
			comps = append(comps, c)
		}
	}

	for i, comp := range comps {
		last := i == len(comps)-1
		var next []globEntry
		for _, entry := range current {
			matches, err := e.globComponent(entry, comp, last && !dirOnly)
			if err != nil {
				return nil, err
			}
			next = append(next, matches...)
		}
		current = next
		if len(current) == 0 {
			return nil, nil
		}
	}

	out := make([]string, 0, len(current))
	for _, entry := range current {
		if dirOnly {
			entry.show += "/"
		}
		out = append(out, entry.show)
	}
	sort.Strings(out)
	return out, nil
}

func (e *Expander) globComponent(dir globEntry, comp string, final bool) ([]globEntry, error) {
	if !hasMeta(comp) {
		name := unescapeMeta(comp)
		child := dir.child(name)
		info, err := e.FS.Stat(child.full)
		if err != nil || !final && !info.IsDir() {
			return nil, nil
		}
		return []globEntry{child}, nil
	}

	infos, err := afero.ReadDir(e.FS, dir.full)
	if err != nil {
		// Unreadable directories simply contribute no matches.
		return nil, nil
	}
	var out []globEntry
	for _, info := range infos {
		name := info.Name()
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(comp, ".") {
			continue
		}
		if !matchName(comp, name) {
			continue
		}
		child := dir.child(name)
		if !final && !e.isDir(info, child.full) {
			continue
		}
		out = append(out, child)
	}
	return out, nil
}

func (e *Expander) isDir(info os.FileInfo, full string) bool {
	if info.IsDir() {
		return true
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return false
	}
	target, err := e.FS.Stat(full)
	return err == nil && target.IsDir()
}

func (g globEntry) child(name string) globEntry {
	show := name
	if g.show != "" {
		show = path.Join(g.show, name)
	}
	return globEntry{show: show, full: path.Join(g.full, name)}
}
