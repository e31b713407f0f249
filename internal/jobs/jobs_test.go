package jobs

import (
	"context"
	"fmt"
	"syscall"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func init() {
	color.NoColor = true
}

func exited(code int) unix.WaitStatus        { return unix.WaitStatus(code << 8) }
func killed(sig syscall.Signal) unix.WaitStatus { return unix.WaitStatus(sig) }
func stopped(sig syscall.Signal) unix.WaitStatus {
	return unix.WaitStatus(int(sig)<<8 | 0x7f)
}

const continued = unix.WaitStatus(0xffff)

// fakeSystem replays scripted wait results per pid. A pid with nothing
// queued reports no change to WNOHANG waits.
type fakeSystem struct {
	waits map[int][]unix.WaitStatus
	kills []string
}

func newFakeSystem() *fakeSystem {
	return &fakeSystem{waits: map[int][]unix.WaitStatus{}}
}

func (f *fakeSystem) push(pid int, ws ...unix.WaitStatus) {
	f.waits[pid] = append(f.waits[pid], ws...)
}

func (f *fakeSystem) Wait(pid int, options int) (int, unix.WaitStatus, error) {
	queue := f.waits[pid]
	if len(queue) == 0 {
		if options&unix.WNOHANG != 0 {
			return 0, 0, nil
		}
		return 0, 0, unix.ECHILD
	}
	f.waits[pid] = queue[1:]
	return pid, queue[0], nil
}

func (f *fakeSystem) Kill(pid int, sig syscall.Signal) error {
	f.kills = append(f.kills, fmt.Sprintf("%d %s", pid, SignalName(sig)))
	if pid == 999 {
		return unix.ESRCH
	}
	return nil
}

type fakeTerminal struct {
	fg       int
	history  []int
	restored int
}

func (t *fakeTerminal) SetForeground(pgid int) error {
	t.fg = pgid
	t.history = append(t.history, pgid)
	return nil
}

func (t *fakeTerminal) Foreground() (int, error) { return t.fg, nil }
func (t *fakeTerminal) Save() error              { return nil }
func (t *fakeTerminal) Restore() error           { t.restored++; return nil }

func pipelineJob(fg bool, pids ...int) *Job {
	j := NewJob("a | b", fg, nil)
	for _, pid := range pids {
		j.AddProcess(pid, fmt.Sprint("cmd", pid))
	}
	return j
}

func TestForegroundCompletes(t *testing.T) {
	sys := newFakeSystem()
	tty := &fakeTerminal{}
	m := New(sys)
	m.TTY, m.ShellPgid = tty, 1

	sys.push(100, exited(0))
	sys.push(101, exited(3))
	j := pipelineJob(true, 100, 101)

	status, err := m.Wait(context.Background(), j, true)
	require.NoError(t, err)
	assert.Equal(t, 3, status)
	assert.Equal(t, Done, j.State)
	assert.Equal(t, 100, j.Pgid)
	assert.Equal(t, []int{100, 1}, tty.history)
	assert.Equal(t, 1, tty.restored)
	assert.Zero(t, m.Count())
}

func TestStopThenForeground(t *testing.T) {
	sys := newFakeSystem()
	tty := &fakeTerminal{}
	m := New(sys)
	m.TTY, m.ShellPgid = tty, 1

	sys.push(200, stopped(unix.SIGSTOP))
	j := pipelineJob(true, 200)

	status, err := m.Wait(context.Background(), j, true)
	require.NoError(t, err)
	assert.Equal(t, 128+int(unix.SIGSTOP), status)
	assert.Equal(t, Stopped, j.State)
	assert.Equal(t, 1, j.ID)
	assert.Same(t, j, m.Current())
	assert.Equal(t, 1, tty.fg)

	sys.push(200, exited(3))
	status, err = m.Continue(context.Background(), j, true)
	require.NoError(t, err)
	assert.Equal(t, 3, status)
	assert.Equal(t, Done, j.State)
	assert.Equal(t, []string{"-200 CONT"}, sys.kills)
	assert.Zero(t, m.Count())
	assert.Equal(t, []int{200, 1, 200, 1}, tty.history)
}

func TestBackgroundReaping(t *testing.T) {
	sys := newFakeSystem()
	m := New(sys)

	j := pipelineJob(false, 300)
	m.Add(j)

	assert.Empty(t, m.Reap())
	assert.Equal(t, Running, j.State)

	sys.push(300, stopped(unix.SIGTTIN))
	changed := m.Reap()
	require.Len(t, changed, 1)
	assert.Equal(t, Stopped, j.State)
	assert.Equal(t, "[1]+  Stopped (TTIN)          a | b", m.Line(j, false))

	sys.push(300, continued)
	require.Len(t, m.Reap(), 1)
	assert.Equal(t, Running, j.State)

	sys.push(300, killed(unix.SIGTERM))
	changed = m.Reap()
	require.Len(t, changed, 1)
	assert.Equal(t, Done, j.State)
	assert.Equal(t, 128+int(unix.SIGTERM), j.Status())
	assert.Equal(t, "[1]   Terminated              a | b", m.Line(j, false))
	assert.Zero(t, m.Count())

	status, ok := m.Reaped(300)
	assert.True(t, ok)
	assert.Equal(t, 128+int(unix.SIGTERM), status)
	_, ok = m.Reaped(301)
	assert.False(t, ok)
}

func TestReapedStatusesAreBounded(t *testing.T) {
	sys := newFakeSystem()
	m := New(sys)
	for pid := 1; pid <= maxReaped+10; pid++ {
		m.Add(pipelineJob(false, pid))
		sys.push(pid, exited(pid%256))
		m.Reap()
	}
	assert.Zero(t, m.Count())
	_, ok := m.Reaped(1)
	assert.False(t, ok)
	status, ok := m.Reaped(maxReaped + 10)
	assert.True(t, ok)
	assert.Equal(t, (maxReaped+10)%256, status)
	assert.Len(t, m.reaped, maxReaped)
}

func TestEventsWaitForReap(t *testing.T) {
	sys := newFakeSystem()
	m := New(sys)
	j := pipelineJob(false, 400)
	m.Add(j)

	sys.push(400, exited(0))
	m.Poll()
	assert.Equal(t, Running, j.State, "polling must not touch the table")

	m.Reap()
	assert.Equal(t, Done, j.State)
}

func TestInternalStages(t *testing.T) {
	sys := newFakeSystem()
	m := New(sys)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := NewJob("f | cat", false, cancel)
	task := j.AddTask("f")
	j.AddProcess(500, "cat")
	m.Add(j)

	sys.push(500, exited(0))
	m.Reap()
	assert.Equal(t, Running, j.State)

	task.Finish(7)
	m.Reap()
	assert.Equal(t, Done, j.State)
	assert.Equal(t, 0, j.Status())
	assert.NoError(t, ctx.Err())
}

func TestWaitCancelsInternalStages(t *testing.T) {
	m := New(newFakeSystem())
	ctx, cancel := context.WithCancel(context.Background())

	taskCtx, stop := context.WithCancel(context.Background())
	j := NewJob("loop", true, stop)
	task := j.AddTask("loop")
	go func() {
		<-taskCtx.Done()
		task.Finish(130)
	}()

	cancel()
	status, err := m.Wait(ctx, j, true)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 130, status)
}

func TestJobIDsAndSpecs(t *testing.T) {
	m := New(newFakeSystem())
	a := NewJob("sleep 10", false, nil)
	b := NewJob("vim notes", false, nil)
	c := NewJob("sleep 20", false, nil)
	m.Add(a)
	m.Add(b)
	m.Add(c)
	assert.Equal(t, []int{1, 2, 3}, []int{a.ID, b.ID, c.ID})

	for _, tc := range []struct {
		spec string
		want *Job
	}{
		{"", c},
		{"%+", c},
		{"%%", c},
		{"%-", b},
		{"%1", a},
		{"2", b},
		{"%vim", b},
		{"%?notes", b},
	} {
		got, err := m.Find(tc.spec)
		require.NoError(t, err, tc.spec)
		assert.Same(t, tc.want, got, tc.spec)
	}

	_, err := m.Find("%sleep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
	_, err = m.Find("%9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such job")

	m.Remove(b)
	d := NewJob("top", false, nil)
	m.Add(d)
	assert.Equal(t, 4, d.ID)

	m.Remove(c)
	m.Remove(d)
	e := NewJob("ls", false, nil)
	m.Add(e)
	assert.Equal(t, 2, e.ID)
}

func TestSignalDelivery(t *testing.T) {
	sys := newFakeSystem()
	m := New(sys)

	j := pipelineJob(false, 600, 601)
	require.NoError(t, m.Signal(j, unix.SIGTERM))
	assert.Equal(t, []string{"600 TERM", "601 TERM"}, sys.kills)

	m.TTY = &fakeTerminal{}
	sys.kills = nil
	require.NoError(t, m.Signal(j, unix.SIGINT))
	assert.Equal(t, []string{"-600 INT"}, sys.kills)

	bad := pipelineJob(false, 999)
	m.TTY = nil
	err := m.Signal(bad, unix.SIGKILL)
	var serr *SignalError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 999, serr.Pid)
}

func TestParseSignal(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want syscall.Signal
	}{
		{"TERM", unix.SIGTERM},
		{"SIGKILL", unix.SIGKILL},
		{"int", unix.SIGINT},
		{"9", unix.SIGKILL},
		{"0", 0},
	} {
		got, err := ParseSignal(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
	_, err := ParseSignal("NOPE")
	assert.Error(t, err)
}

func TestLongLine(t *testing.T) {
	m := New(newFakeSystem())
	j := pipelineJob(false, 700, 701)
	m.Add(j)

	assert.Equal(t,
		"[1]+    700 Running                 cmd700\n"+
			"        701 Running                 cmd701",
		m.Line(j, true))
	assert.Equal(t, "[1]+  Running                 a | b &", m.Line(j, false))
}

func TestForkedManagerWaitsThroughStops(t *testing.T) {
	sys := newFakeSystem()
	m := New(sys)
	m.TTY = &fakeTerminal{}
	m.ShellPgid = 1

	nested := m.Fork()
	assert.False(t, nested.Interactive())

	j := pipelineJob(true, 10)
	sys.push(10, stopped(unix.SIGTSTP), continued, exited(4))
	status, err := nested.Wait(context.Background(), j, true)
	require.NoError(t, err)
	assert.Equal(t, 4, status)
	assert.Equal(t, Done, j.State)
	assert.Empty(t, nested.List())
	assert.Empty(t, m.List())
}
