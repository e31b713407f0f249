package prompt

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cryptexctl/gosh/v2/internal/variables"
)

func ExampleExpand() {
	info := Info{User: "ada", Host: "box.example.org", Home: "/home/ada", Dir: "/home/ada/src/gosh", Jobs: 2, Status: 1}
	fmt.Println(Expand(`\u@\h:\w\$`, info))
	fmt.Println(Expand(`[\j:\?] \W>`, info))
	// Output:
	// ada@box:~/src/gosh$
	// [2:1] gosh>
}

func TestExpand(t *testing.T) {
	now := time.Date(2024, 3, 4, 15, 6, 7, 0, time.UTC)
	info := Info{User: "root", Host: "h", Home: "/root", Dir: "/root", Root: true, Now: now}
	cases := map[string]string{
		`\w \W \$`:  "~ ~ #",
		`\t \A \d`:  "15:06:07 15:06 Mon Mar 04",
		`a\nb`:      "a\nb",
		`\\u`:       `\u`,
		`\[x\]`:     "x",
		`\q`:        `\q`,
		`trailing\`: `trailing\`,
		`\s-\H`:     "gosh-h",
		"\\e[0m":    "\x1b[0m",
	}
	for template, want := range cases {
		assert.Equal(t, want, Expand(template, info), template)
	}

	info.Dir = "/"
	assert.Equal(t, "/ /", Expand(`\w \W`, info))
	info.Dir = "/rootless"
	assert.Equal(t, "/rootless", Expand(`\w`, info))
}

func TestManager(t *testing.T) {
	vars := variables.NewFromEnviron([]string{"HOME=/home/u", "USER=u"})
	m := New(vars, func() string { return "/home/u/work" }, func() int { return 3 })

	vars.Status = 2
	assert.NoError(t, vars.Set("PS1", `\u \w \j \? `))
	assert.Equal(t, "u ~/work 3 2 ", m.PS1())
	assert.Equal(t, DefaultPS2, m.PS2())

	assert.NoError(t, vars.Unset("PS1"))
	assert.Contains(t, m.PS1(), "u@")
}
