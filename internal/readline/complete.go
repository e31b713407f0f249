package readline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/anmitsu/go-shlex"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Completer offers command names for the first word of a line and file
// names for the others.
type Completer struct {
	// Commands lists builtins and functions.
	Commands func() []string
	// Dir is the directory relative names are completed in.
	Dir func() string
	// Path is the command search path, colon separated.
	Path func() string
}

// Do implements readline.AutoCompleter. It returns the text each candidate
// would add after the cursor and the length of the word being completed.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	head := string(line[:pos])
	word, first := currentWord(head)

	var candidates []string
	if first && !strings.Contains(word, "/") {
		candidates = c.commands(word)
	} else {
		candidates = c.files(word)
	}

	out := make([][]rune, len(candidates))
	for i, cand := range candidates {
		out[i] = []rune(strings.TrimPrefix(cand, word))
	}
	return out, len([]rune(word))
}

// currentWord returns the text of the word before the cursor and whether
// it is the command name.
func currentWord(head string) (string, bool) {
	if i := strings.LastIndexAny(head, ";|&("); i >= 0 {
		head = head[i+1:]
	}
	// shlex counts quoted words; the raw field is what completion extends.
	words, err := shlex.Split(head, true)
	if err != nil {
		words = strings.Fields(head)
	}
	if strings.TrimSpace(head) == "" || strings.HasSuffix(head, " ") || strings.HasSuffix(head, "\t") {
		return "", len(words) == 0
	}
	fields := strings.Fields(head)
	return fields[len(fields)-1], len(words) <= 1
}

func (c *Completer) commands(prefix string) []string {
	seen := map[string]bool{}
	var names []string
	add := func(name string) {
		if strings.HasPrefix(name, prefix) && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if c.Commands != nil {
		for _, name := range c.Commands() {
			add(name)
		}
	}
	if c.Path != nil {
		for _, dir := range filepath.SplitList(c.Path()) {
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, entry := range entries {
				if info, err := entry.Info(); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
					add(entry.Name())
				}
			}
		}
	}
	names = rank(prefix, names)
	for i := range names {
		names[i] += " "
	}
	return names
}

func (c *Completer) files(word string) []string {
	dir, base := filepath.Split(word)
	search := dir
	if !filepath.IsAbs(search) && c.Dir != nil {
		search = filepath.Join(c.Dir(), search)
	}
	if search == "" {
		search = "."
	}
	entries, err := os.ReadDir(search)
	if err != nil {
		return nil
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, base) || strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		names = append(names, name)
	}
	names = rank(base, names)

	out := make([]string, len(names))
	for i, name := range names {
		suffix := " "
		if info, err := os.Stat(filepath.Join(search, name)); err == nil && info.IsDir() {
			suffix = "/"
		}
		out[i] = dir + name + suffix
	}
	return out
}

// rank orders prefix matches by how little they add, then by name.
func rank(prefix string, names []string) []string {
	sort.Strings(names)
	ranks := fuzzy.RankFindFold(prefix, names)
	sort.Stable(ranks)
	ordered := make([]string, 0, len(ranks))
	for _, r := range ranks {
		ordered = append(ordered, r.Target)
	}
	return ordered
}
