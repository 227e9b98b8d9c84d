package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/fivegmag/rt-5gms-application-server/internal/common"
)

const (
	// rapidStartWindow is the sliding window over which recent child starts
	// are counted for the rapid-restart guard.
	rapidStartWindow = 10 * time.Second

	// stopKillTimeout bounds how long Stop waits after the termination
	// signal before the child is killed outright.
	stopKillTimeout = 10 * time.Second
)

var ErrNotStarted = errors.New("no child process has been started")

// ExitStatus is the terminal state of a supervised child process.
type ExitStatus struct {
	Code   int
	Stdout string
	Stderr string
}

// Supervisor owns the handle of a single child process: it spawns the
// process with captured output, waits for it to exit, forwards signals, and
// tracks recent start timestamps for the rapid-restart guard. Waits are
// cancellable without killing the child.
type Supervisor struct {
	logger hclog.Logger

	mutex   sync.Mutex
	cmd     *exec.Cmd
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	done    chan struct{}
	exit    *ExitStatus
	running bool
	starts  []time.Time

	now func() time.Time
}

func New(logger hclog.Logger) *Supervisor {
	return &Supervisor{
		logger: logger,
		now:    time.Now,
	}
}

// Start spawns the child described by argv. The child inherits no stdin and
// its stdout/stderr are captured. Starting while a child is already running
// is an error.
func (s *Supervisor) Start(argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty child command line")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return errors.New("child process is already running")
	}

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = nil
	cmd.Stdout = common.SynchronizeWriter(stdout)
	cmd.Stderr = common.SynchronizeWriter(stderr)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting child process: %w", err)
	}

	s.trimStartsLocked()
	s.starts = append(s.starts, s.now())

	s.cmd = cmd
	s.stdout = stdout
	s.stderr = stderr
	s.running = true
	done := make(chan struct{})
	s.done = done

	s.logger.Info("started child process", "pid", cmd.Process.Pid, "command", argv[0])

	go func() {
		err := cmd.Wait()
		code := 0
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		} else if err != nil {
			code = -1
		}

		s.mutex.Lock()
		s.exit = &ExitStatus{
			Code:   code,
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
		s.running = false
		s.mutex.Unlock()
		close(done)
	}()

	return nil
}

// Running reports whether the child process is currently alive.
func (s *Supervisor) Running() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.running
}

// Wait blocks until the child exits, returning its exit status and captured
// output. Cancelling the context abandons the wait without touching the
// child.
func (s *Supervisor) Wait(ctx context.Context) (*ExitStatus, error) {
	s.mutex.Lock()
	done := s.done
	s.mutex.Unlock()

	if done == nil {
		return nil, ErrNotStarted
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mutex.Lock()
	exit := s.exit
	s.mutex.Unlock()
	return exit, nil
}

// Signal forwards a POSIX signal to the child. It reports false without
// error when no child is running.
func (s *Supervisor) Signal(sig os.Signal) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running || s.cmd == nil || s.cmd.Process == nil {
		return false
	}
	if err := s.cmd.Process.Signal(sig); err != nil {
		s.logger.Warn("error signalling child process", "signal", sig, "error", err)
		return false
	}
	return true
}

// Stop sends the termination signal and waits for the child to exit,
// escalating to SIGKILL if it lingers.
func (s *Supervisor) Stop() error {
	s.mutex.Lock()
	done := s.done
	running := s.running
	s.mutex.Unlock()

	if !running || done == nil {
		return nil
	}

	if !s.Signal(syscall.SIGTERM) {
		// lost the race with an exit, nothing left to stop
		return nil
	}

	select {
	case <-done:
		return nil
	case <-time.After(stopKillTimeout):
	}

	s.logger.Warn("child process did not exit after termination signal, killing")
	s.Signal(syscall.SIGKILL)
	<-done
	return nil
}

// RapidStartCount returns the number of child starts within the last
// rapid-restart window.
func (s *Supervisor) RapidStartCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.trimStartsLocked()
	return len(s.starts)
}

// trimStartsLocked drops start timestamps older than the window. Callers
// must hold the mutex.
func (s *Supervisor) trimStartsLocked() {
	cutoff := s.now().Add(-rapidStartWindow)
	trimmed := s.starts[:0]
	for _, start := range s.starts {
		if start.After(cutoff) {
			trimmed = append(trimmed, start)
		}
	}
	s.starts = trimmed
}
