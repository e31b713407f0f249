package expand

import (
	"strings"
)

// fragment is a run of expanded text. Quoted fragments are never split and
// match themselves during pathname expansion.
type fragment struct {
	text   string
	quoted bool
}

type field []fragment

func (f field) text() string {
	var sb strings.Builder
	for _, fr := range f {
		sb.WriteString(fr.text)
	}
	return sb.String()
}

// keep reports whether the field survives expansion: empty unquoted
// results vanish.
func (f field) keep() bool {
	for _, fr := range f {
		if fr.quoted || fr.text != "" {
			return true
		}
	}
	return false
}

func (f field) hasMeta() bool {
	for _, fr := range f {
		if !fr.quoted && hasMeta(fr.text) {
			return true
		}
	}
	return false
}

func (f field) pattern() string {
	var sb strings.Builder
	for _, fr := range f {
		if fr.quoted {
			sb.WriteString(quoteMeta(fr.text))
		} else {
			sb.WriteString(fr.text)
		}
	}
	return sb.String()
}

// builder accumulates the fields of one word. With split unset every
// result stays in the current field.
type builder struct {
	fields []field
	cur    field
	split  bool
	ifs    string
}

func (b *builder) add(text string, quoted bool) {
	b.cur = append(b.cur, fragment{text: text, quoted: quoted})
}

func (b *builder) flush() {
	if b.cur.keep() {
		b.fields = append(b.fields, b.cur)
	}
	b.cur = nil
}

func (b *builder) finish() []field {
	b.flush()
	return b.fields
}

// value adds the result of a substitution, splitting it on IFS when it is
// unquoted.
func (b *builder) value(s string, quoted bool) {
	if quoted || !b.split || b.ifs == "" {
		b.add(s, quoted)
		return
	}
	words, lead, trail := splitIFS(s, b.ifs)
	if lead {
		b.flush()
	}
	for i, w := range words {
		if i > 0 {
			b.flush()
		}
		b.add(w, w == "")
	}
	if trail {
		b.flush()
	}
}

func (b *builder) result(r paramResult, quoted bool) {
	if !r.list {
		b.value(r.values[0], quoted)
		return
	}
	if quoted && r.star || !b.split {
		sep := " "
		if r.star {
			sep = ""
			if b.ifs != "" {
				sep = b.ifs[:1]
			}
		}
		b.add(strings.Join(r.values, sep), quoted)
		return
	}
	for i, v := range r.values {
		if i > 0 {
			b.flush()
		}
		b.value(v, quoted)
	}
}

// splitIFS splits s into fields. Runs of IFS whitespace separate fields and
// are trimmed at both ends; each other IFS character delimits exactly one
// field, so adjacent ones produce empty fields. lead and trail report
// separators at the ends of s.
func splitIFS(s, ifs string) (fields []string, lead, trail bool) {
	isSep := func(c rune) bool { return strings.ContainsRune(ifs, c) }
	isSpace := func(c rune) bool { return isSep(c) && (c == ' ' || c == '\t' || c == '\n') }

	r := []rune(s)
	i := 0
	for i < len(r) && isSpace(r[i]) {
		i++
	}
	lead = i > 0
	if i == len(r) {
		return nil, lead, lead
	}
	for i < len(r) {
		start := i
		for i < len(r) && !isSep(r[i]) {
			i++
		}
		fields = append(fields, string(r[start:i]))
		if i == len(r) {
			return fields, lead, false
		}
		for i < len(r) && isSpace(r[i]) {
			i++
		}
		if i < len(r) && isSep(r[i]) && !isSpace(r[i]) {
			i++
			for i < len(r) && isSpace(r[i]) {
				i++
			}
		}
	}
	return fields, lead, true
}
