package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/cryptexctl/gosh/v2/internal/ast"
)

// maxFds bounds descriptor numbers when RLIMIT_NOFILE is unlimited.
const maxFds = 1 << 20

// fdLimit is the first descriptor number the process can never hold.
func fdLimit() int {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil || rl.Cur > maxFds {
		return maxFds
	}
	return int(rl.Cur)
}

func checkFd(fd int) error {
	if fd < 0 || fd >= fdLimit() {
		return fmt.Errorf("%d: bad file descriptor", fd)
	}
	return nil
}

// fdTable maps descriptor numbers to open files. A nil entry is a closed
// descriptor.
type fdTable map[int]*os.File

func (t fdTable) clone() fdTable {
	c := make(fdTable, len(t))
	for fd, f := range t {
		c[fd] = f
	}
	return c
}

// extra returns descriptors above 2 in the layout exec.Cmd.ExtraFiles
// expects.
func (t fdTable) extra() []*os.File {
	top := 2
	for fd, f := range t {
		if f != nil && fd > top {
			top = fd
		}
	}
	if top == 2 {
		return nil
	}
	files := make([]*os.File, top-2)
	for fd := 3; fd <= top; fd++ {
		files[fd-3] = t[fd]
	}
	return files
}

// opened collects the files a set of redirections opened so they can be
// closed when the command is done.
type opened []io.Closer

func (o opened) Close() {
	for _, c := range o {
		_ = c.Close()
	}
}

// redirect applies rs, in order, to a copy of fds.
func (e *Executor) redirect(ctx context.Context, rs []*ast.Redirect, fds fdTable) (fdTable, opened, error) {
	if len(rs) == 0 {
		return fds, nil, nil
	}
	fds = fds.clone()
	var files opened
	for _, r := range rs {
		if err := e.apply(ctx, r, fds, &files); err != nil {
			files.Close()
			return nil, nil, err
		}
	}
	return fds, files, nil
}

func (e *Executor) apply(ctx context.Context, r *ast.Redirect, fds fdTable, files *opened) error {
	fd := r.Fd()
	if err := checkFd(fd); err != nil {
		return err
	}
	switch r.Type {
	case ast.RedirectHereDoc, ast.RedirectHereString:
		body, err := e.hereBody(ctx, r)
		if err != nil {
			return err
		}
		f, err := e.feed(body)
		if err != nil {
			return err
		}
		*files = append(*files, f)
		fds[fd] = f
		return nil
	}

	target, err := e.expander.Literal(ctx, r.Target)
	if err != nil {
		return err
	}

	switch r.Type {
	case ast.RedirectDupInput, ast.RedirectDupOutput:
		if target == "-" {
			fds[fd] = nil
			return nil
		}
		n, err := strconv.Atoi(target)
		if err != nil {
			if r.Type == ast.RedirectDupOutput && r.Source < 0 {
				// >&word is &>word.
				return e.openAll(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fds, files)
			}
			return fmt.Errorf("%s: ambiguous redirect", target)
		}
		src, ok := fds[n]
		if !ok || src == nil || checkFd(n) != nil {
			return fmt.Errorf("%d: bad file descriptor", n)
		}
		fds[fd] = src
		return nil
	case ast.RedirectOutputAll:
		return e.openAll(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fds, files)
	case ast.RedirectAppendAll:
		return e.openAll(target, os.O_WRONLY|os.O_CREATE|os.O_APPEND, fds, files)
	}

	var flag int
	switch r.Type.Mode() {
	case ast.ModeRead:
		flag = os.O_RDONLY
	case ast.ModeAppend:
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case ast.ModeReadWrite:
		flag = os.O_RDWR | os.O_CREATE
	default:
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := e.open(target, flag)
	if err != nil {
		return err
	}
	*files = append(*files, f)
	fds[fd] = f
	return nil
}

func (e *Executor) open(name string, flag int) (*os.File, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.dir, path)
	}
	f, err := os.OpenFile(path, flag, 0o666)
	if err != nil {
		if pe, ok := err.(*os.PathError); ok {
			err = pe.Err
		}
		return nil, &SpawnError{Op: name, Err: err}
	}
	return f, nil
}

func (e *Executor) openAll(name string, flag int, fds fdTable, files *opened) error {
	f, err := e.open(name, flag)
	if err != nil {
		return err
	}
	*files = append(*files, f)
	fds[1], fds[2] = f, f
	return nil
}

func (e *Executor) hereBody(ctx context.Context, r *ast.Redirect) (string, error) {
	if r.Type == ast.RedirectHereString {
		s, err := e.expander.Literal(ctx, r.Target)
		return s + "\n", err
	}
	// A quoted delimiter leaves a single-quoted body, which expands to
	// itself.
	return e.expander.Literal(ctx, r.HereDoc)
}

// feed returns the read end of a pipe that yields body. The writer runs
// on its own goroutine and gives up once the reader is closed.
func (e *Executor) feed(body string) (*os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Op: "here-document", Err: err}
	}
	go func() {
		if _, err := io.WriteString(w, body); err != nil {
			e.Log.Printf("here-document: %v", err)
		}
		w.Close()
	}()
	return r, nil
}

// String formats the table for debug logs.
func (t fdTable) String() string {
	fds := make([]int, 0, len(t))
	for fd := range t {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	s := ""
	for _, fd := range fds {
		name := "closed"
		if f := t[fd]; f != nil {
			name = f.Name()
		}
		s += fmt.Sprintf(" %d=%s", fd, name)
	}
	return s
}
