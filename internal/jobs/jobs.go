// Package jobs tracks the process groups launched by the shell. Child
// status changes are collected into a queue and applied to the table only
// when the owner asks, so state never changes underneath a running
// statement.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sys/unix"
)

type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Process is one member of a job. Stages run inside the shell have no pid
// and report through Finish.
type Process struct {
	Pid  int
	Argv string

	State  State
	Status int
	// Signal is the signal that stopped or killed the process.
	Signal syscall.Signal

	done chan int
}

func (p *Process) internal() bool {
	return p.done != nil
}

// Finish records the exit status of an in-shell stage.
func (p *Process) Finish(status int) {
	p.done <- status
}

func (p *Process) update(ws unix.WaitStatus) {
	switch {
	case ws.Exited():
		p.State, p.Status, p.Signal = Done, ws.ExitStatus(), 0
	case ws.Signaled():
		p.State, p.Signal = Done, ws.Signal()
		p.Status = 128 + int(p.Signal)
	case ws.Stopped():
		p.State, p.Signal = Stopped, ws.StopSignal()
		p.Status = 128 + int(p.Signal)
	case ws.Continued():
		p.State, p.Signal = Running, 0
	}
}

type Job struct {
	// ID is 0 until the job enters the table.
	ID   int
	Pgid int
	// Processes are in pipeline order; the job's status is the last one's.
	Processes  []*Process
	State      State
	Foreground bool
	Command    string
	Started    time.Time

	cancel  context.CancelFunc
	changed bool
}

// NewJob returns a running job for command. cancel, when set, stops the
// job's in-shell stages.
func NewJob(command string, foreground bool, cancel context.CancelFunc) *Job {
	return &Job{
		Command:    command,
		Foreground: foreground,
		Started:    time.Now(),
		cancel:     cancel,
	}
}

// AddProcess records a started child. The first child leads the group.
func (j *Job) AddProcess(pid int, argv string) *Process {
	p := &Process{Pid: pid, Argv: argv}
	if j.Pgid == 0 {
		j.Pgid = pid
	}
	j.Processes = append(j.Processes, p)
	return p
}

// AddTask records a stage that runs inside the shell.
func (j *Job) AddTask(argv string) *Process {
	p := &Process{Argv: argv, done: make(chan int, 1)}
	j.Processes = append(j.Processes, p)
	return p
}

// Status is the exit status of the job's last process.
func (j *Job) Status() int {
	if len(j.Processes) == 0 {
		return 0
	}
	return j.Processes[len(j.Processes)-1].Status
}

func (j *Job) Pids() []int {
	var pids []int
	for _, p := range j.Processes {
		if p.Pid > 0 {
			pids = append(pids, p.Pid)
		}
	}
	return pids
}

// refresh derives the job state from its processes.
func (j *Job) refresh() {
	prev := j.State
	running, stopped := false, false
	for _, p := range j.Processes {
		switch p.State {
		case Running:
			running = true
		case Stopped:
			stopped = true
		}
	}
	switch {
	case stopped:
		j.State = Stopped
	case running:
		j.State = Running
	default:
		j.State = Done
	}
	if j.State != prev {
		j.changed = true
	}
}

// event is one status change waiting to be applied.
type event struct {
	proc   *Process
	ws     unix.WaitStatus
	status int
}

// Manager is the job table. It is owned by one executor; forked executors
// get their own, without a terminal.
type Manager struct {
	sys System
	// TTY is nil when job control is off.
	TTY       Terminal
	ShellPgid int
	Log       *log.Logger
	// Nested managers belong to forked execution contexts. They keep
	// waiting through stops, which the enclosing job reports.
	Nested bool

	jobs     []*Job
	current  *Job
	previous *Job
	queue    []event

	// reaped keeps the status of jobs that left the table so wait can
	// still report them by pid; order bounds it to maxReaped pids.
	reaped map[int]int
	order  []int
}

const maxReaped = 1024

func New(sys System) *Manager {
	if sys == nil {
		sys = OS()
	}
	return &Manager{
		sys: sys,
		Log: log.New(io.Discard, "", 0),
	}
}

// Fork returns an empty manager for a forked execution context. It shares
// the process interface but never the terminal.
func (m *Manager) Fork() *Manager {
	return &Manager{
		sys:    m.sys,
		Log:    m.Log,
		Nested: true,
	}
}

// Interactive reports whether jobs get their own process groups and the
// terminal.
func (m *Manager) Interactive() bool {
	return m.TTY != nil
}

// Add enters j into the table with the smallest id above every live job,
// and makes it the current job.
func (m *Manager) Add(j *Job) {
	if j.ID != 0 {
		m.setCurrent(j)
		return
	}
	j.ID = 1
	for _, other := range m.jobs {
		if other.ID >= j.ID {
			j.ID = other.ID + 1
		}
	}
	m.jobs = append(m.jobs, j)
	m.setCurrent(j)
}

func (m *Manager) setCurrent(j *Job) {
	if m.current == j {
		return
	}
	m.previous = m.current
	m.current = j
}

func (m *Manager) Remove(j *Job) {
	for i, other := range m.jobs {
		if other == j {
			m.jobs = append(m.jobs[:i], m.jobs[i+1:]...)
			break
		}
	}
	if m.previous == j {
		m.previous = nil
	}
	if m.current == j {
		m.current, m.previous = m.previous, nil
	}
	if m.current == nil {
		m.current = m.latest(nil)
	}
	if m.previous == nil {
		m.previous = m.latest(m.current)
	}
}

// latest returns the most recent job other than skip, preferring stopped
// ones.
func (m *Manager) latest(skip *Job) *Job {
	var best *Job
	for _, j := range m.jobs {
		if j == skip {
			continue
		}
		if best == nil || j.State == Stopped && best.State != Stopped ||
			(j.State == Stopped) == (best.State == Stopped) && j.ID > best.ID {
			best = j
		}
	}
	return best
}

func (m *Manager) Get(id int) *Job {
	for _, j := range m.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// GetByPID finds the job a process belongs to.
func (m *Manager) GetByPID(pid int) *Job {
	for _, j := range m.jobs {
		for _, p := range j.Processes {
			if p.Pid == pid {
				return j
			}
		}
	}
	return nil
}

// List returns the jobs ordered by id.
func (m *Manager) List() []*Job {
	jobs := append([]*Job(nil), m.jobs...)
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].ID < jobs[b].ID })
	return jobs
}

func (m *Manager) Current() *Job {
	return m.current
}

func (m *Manager) Count() int {
	return len(m.jobs)
}

// Find resolves a job spec: %n, %+, %%, %-, %prefix, %?substring. A bare
// number is taken as a job id.
func (m *Manager) Find(spec string) (*Job, error) {
	if spec == "" || spec == "%" || spec == "%+" || spec == "%%" {
		if m.current == nil {
			return nil, fmt.Errorf("%s: no current job", specName(spec))
		}
		return m.current, nil
	}
	if spec == "%-" {
		if m.previous == nil {
			return nil, fmt.Errorf("%s: no such job", spec)
		}
		return m.previous, nil
	}
	body := strings.TrimPrefix(spec, "%")
	if id, err := strconv.Atoi(body); err == nil {
		if j := m.Get(id); j != nil {
			return j, nil
		}
		return nil, fmt.Errorf("%s: no such job", spec)
	}
	if !strings.HasPrefix(spec, "%") {
		return nil, fmt.Errorf("%s: no such job", spec)
	}
	match := strings.HasPrefix
	if strings.HasPrefix(body, "?") {
		body = body[1:]
		match = strings.Contains
	}
	var found *Job
	for _, j := range m.List() {
		if match(j.Command, body) {
			if found != nil {
				return nil, fmt.Errorf("%s: ambiguous job spec", spec)
			}
			found = j
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%s: no such job", spec)
	}
	return found, nil
}

func specName(spec string) string {
	if spec == "" {
		return "current"
	}
	return spec
}

// Poll collects pending status changes of every live job without
// blocking. Nothing is applied until Reap.
func (m *Manager) Poll() {
	for _, j := range m.jobs {
		for _, p := range j.Processes {
			if p.State == Done {
				continue
			}
			if p.internal() {
				select {
				case status := <-p.done:
					m.queue = append(m.queue, event{proc: p, status: status})
				default:
				}
				continue
			}
			wpid, ws, err := m.sys.Wait(p.Pid, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED)
			switch {
			case errors.Is(err, unix.ECHILD):
				m.queue = append(m.queue, event{proc: p, status: -1})
			case err != nil:
				m.Log.Printf("wait %d: %v", p.Pid, err)
			case wpid == p.Pid:
				m.queue = append(m.queue, event{proc: p, ws: ws})
			}
		}
	}
}

// Reap polls, applies the queued events and returns the jobs whose state
// changed since they were last reported. Finished jobs leave the table once
// returned here.
func (m *Manager) Reap() []*Job {
	m.Poll()
	m.drain()

	var changed []*Job
	for _, j := range m.List() {
		if !j.changed {
			continue
		}
		j.changed = false
		changed = append(changed, j)
		if j.State == Done {
			m.remember(j)
			m.Remove(j)
		}
	}
	return changed
}

func (m *Manager) remember(j *Job) {
	if m.reaped == nil {
		m.reaped = make(map[int]int)
	}
	for _, pid := range j.Pids() {
		if _, ok := m.reaped[pid]; !ok {
			m.order = append(m.order, pid)
		}
		m.reaped[pid] = j.Status()
	}
	for len(m.order) > maxReaped {
		delete(m.reaped, m.order[0])
		m.order = m.order[1:]
	}
}

// Reaped returns the status of the reaped job pid belonged to.
func (m *Manager) Reaped(pid int) (int, bool) {
	status, ok := m.reaped[pid]
	return status, ok
}

func (m *Manager) drain() {
	queue := m.queue
	m.queue = nil
	touched := map[*Job]bool{}
	for _, ev := range queue {
		p := ev.proc
		switch {
		case p.internal() || ev.status < 0:
			p.State = Done
			if ev.status >= 0 {
				p.Status = ev.status
			}
		default:
			p.update(ev.ws)
			m.Log.Printf("process %d: %s status %d", p.Pid, p.State, p.Status)
		}
		if j := m.owner(p); j != nil {
			touched[j] = true
		}
	}
	for j := range touched {
		j.refresh()
		if j.State == Stopped {
			m.setCurrent(j)
		}
	}
}

func (m *Manager) owner(p *Process) *Job {
	for _, j := range m.jobs {
		for _, other := range j.Processes {
			if other == p {
				return j
			}
		}
	}
	return nil
}

// Wait blocks until every process of j has finished or until one of them
// stops. With fg set the job holds the terminal while it runs and the shell
// takes it back afterwards. The result is the job's exit status, or 128
// plus the stop signal.
func (m *Manager) Wait(ctx context.Context, j *Job, fg bool) (int, error) {
	j.Foreground = fg
	if fg && m.give(j) {
		defer m.Reclaim()
	}
	return m.wait(ctx, j)
}

func (m *Manager) wait(ctx context.Context, j *Job) (int, error) {
	for _, p := range j.Processes {
		if p.internal() {
			continue
		}
		for p.State == Running || m.Nested && p.State == Stopped {
			wpid, ws, err := m.sys.Wait(p.Pid, unix.WUNTRACED)
			if err != nil {
				// Already reaped elsewhere: nothing more to learn.
				p.State = Done
				break
			}
			if wpid == p.Pid {
				p.update(ws)
			}
		}
	}
	j.refresh()
	if j.State == Stopped {
		j.Foreground = false
		j.changed = false
		m.Add(j)
		for _, p := range j.Processes {
			if p.State == Stopped {
				return p.Status, nil
			}
		}
	}

	for _, p := range j.Processes {
		if !p.internal() || p.State == Done {
			continue
		}
		select {
		case status := <-p.done:
			p.State, p.Status = Done, status
		case <-ctx.Done():
			if j.cancel != nil {
				j.cancel()
			}
			p.State, p.Status = Done, <-p.done
		}
	}
	j.refresh()
	j.changed = false
	if j.ID != 0 {
		m.Remove(j)
	}
	return j.Status(), ctx.Err()
}

// give hands the terminal to j's process group.
func (m *Manager) give(j *Job) bool {
	if m.TTY == nil || j.Pgid <= 0 {
		return false
	}
	if err := m.TTY.SetForeground(j.Pgid); err != nil {
		m.Log.Printf("tcsetpgrp %d: %v", j.Pgid, err)
	}
	return true
}

// Reclaim returns the terminal to the shell and restores its modes.
func (m *Manager) Reclaim() {
	if m.TTY == nil {
		return
	}
	if err := m.TTY.SetForeground(m.ShellPgid); err != nil {
		m.Log.Printf("reclaim terminal: %v", err)
	}
	if err := m.TTY.Restore(); err != nil {
		m.Log.Printf("restore terminal modes: %v", err)
	}
}

// Continue resumes a stopped job with SIGCONT. fg then waits for it in the
// foreground; otherwise it keeps running in the background.
func (m *Manager) Continue(ctx context.Context, j *Job, fg bool) (int, error) {
	if j.State == Done {
		return j.Status(), fmt.Errorf("job %d has terminated", j.ID)
	}
	// The job must own the terminal before it wakes up.
	if fg && m.give(j) {
		defer m.Reclaim()
	}
	if j.State == Stopped {
		if err := m.Signal(j, unix.SIGCONT); err != nil {
			return 1, err
		}
		for _, p := range j.Processes {
			if p.State == Stopped {
				p.State, p.Signal = Running, 0
			}
		}
		j.refresh()
		j.changed = false
	}
	if !fg {
		j.Foreground = false
		m.setCurrent(j)
		return 0, nil
	}
	j.Foreground = true
	return m.wait(ctx, j)
}

// Signal delivers sig to the job's process group, or to each of its
// processes when it has no group of its own. In-shell stages are cancelled
// on terminating signals.
func (m *Manager) Signal(j *Job, sig syscall.Signal) error {
	var errs []error
	send := func(pid int) {
		if err := m.sys.Kill(pid, sig); err != nil {
			serr := &SignalError{Pid: pid, Signal: sig, Err: err}
			m.Log.Print(serr)
			errs = append(errs, serr)
		}
	}
	if m.Interactive() && j.Pgid > 0 {
		send(-j.Pgid)
	} else {
		for _, pid := range j.Pids() {
			send(pid)
		}
	}
	if j.cancel != nil && sig != unix.SIGCONT && sig != unix.SIGSTOP && sig != unix.SIGTSTP && sig != 0 {
		j.cancel()
	}
	return errors.Join(errs...)
}

// HangUp sends SIGHUP to every job, continuing stopped ones so they see
// it. Used when the shell exits.
func (m *Manager) HangUp() {
	for _, j := range m.jobs {
		_ = m.Signal(j, unix.SIGHUP)
		if j.State == Stopped {
			_ = m.Signal(j, unix.SIGCONT)
		}
	}
}

// Line formats j the way the jobs builtin prints it.
func (m *Manager) Line(j *Job, long bool) string {
	mark := ' '
	switch j {
	case m.current:
		mark = '+'
	case m.previous:
		mark = '-'
	}
	state := describe(j)
	padded := fmt.Sprintf("%-24s", state)
	padded = paint(j).Sprint(state) + padded[len(state):]

	cmd := j.Command
	if j.State == Running && !j.Foreground {
		cmd += " &"
	}
	if !long {
		return fmt.Sprintf("[%d]%c  %s%s", j.ID, mark, padded, cmd)
	}
	var sb strings.Builder
	for i, p := range j.Processes {
		prefix := fmt.Sprintf("[%d]%c", j.ID, mark)
		if i > 0 {
			prefix = strings.Repeat(" ", len(prefix))
		}
		pid := "-"
		if p.Pid > 0 {
			pid = strconv.Itoa(p.Pid)
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s %6s %s%s", prefix, pid, padded, p.Argv)
	}
	return sb.String()
}

func describe(j *Job) string {
	switch j.State {
	case Stopped:
		for _, p := range j.Processes {
			if p.State == Stopped && p.Signal != unix.SIGTSTP {
				return fmt.Sprintf("Stopped (%s)", SignalName(p.Signal))
			}
		}
		return "Stopped"
	case Done:
		if len(j.Processes) == 0 {
			return "Done"
		}
		last := j.Processes[len(j.Processes)-1]
		switch {
		case last.Signal != 0:
			return signalText(last.Signal)
		case last.Status != 0:
			return fmt.Sprintf("Exit %d", last.Status)
		}
		return "Done"
	}
	return "Running"
}

func signalText(sig syscall.Signal) string {
	s := sig.String()
	if s == "" {
		return SignalName(sig)
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func paint(j *Job) *color.Color {
	switch {
	case j.State == Running:
		return color.New(color.FgGreen)
	case j.State == Stopped:
		return color.New(color.FgYellow)
	case j.Status() != 0:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgBlue)
	}
}
