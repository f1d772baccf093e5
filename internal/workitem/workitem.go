//
// Copyright © 2017 Ikey Doherty <ikey@solus-project.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package workitem implements the per-job execution unit: one child
// OS process, its log file, and its walltime enforcement.
package workitem

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/brakedust/lqts/internal/core"
)

// Version is embedded in the log header written at job start.
const Version = "1.0.0"

// backgroundNiceness is the POSIX niceness applied to child processes so
// an interactive host stays responsive. 10 is the conventional
// "background batch job" value.
const backgroundNiceness = 10

// readerStartupDelay avoids tight loops on very short-lived jobs.
const readerStartupDelay = 25 * time.Millisecond

// WorkItem owns exactly one scheduled-but-not-yet-reaped child process.
type WorkItem struct {
	mu sync.Mutex

	job   *core.Job
	cores []int
	log   *log.Entry

	cmd      *exec.Cmd
	logFile  *os.File
	started  bool
	finished atomic.Bool

	killOnce sync.Once
	streamWG sync.WaitGroup
}

// New constructs a WorkItem for the given job and its already-reserved
// cores. Start() must be called to actually spawn the child.
func New(job *core.Job, cores []int, logger *log.Entry) *WorkItem {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &WorkItem{
		job:   job,
		cores: cores,
		log:   logger.WithField("job_id", job.JobID.String()),
	}
}

// Job returns the job this WorkItem is executing.
func (w *WorkItem) Job() *core.Job {
	return w.job
}

// Start spawns the child process: opens the log file and writes its
// header, tokenizes and execs the command with no shell, lowers its CPU
// scheduling priority (its I/O priority is left unchanged), pins it to
// the reserved cores, and starts
// a background reader that streams stdout (then, on exit, stderr) into
// the log.
func (w *WorkItem) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.job.Started = &now
	w.job.Cores = append([]int(nil), w.cores...)

	args := tokenize(w.job.Spec.Command)
	if len(args) == 0 {
		return w.failLocked(fmt.Errorf("empty command"))
	}

	if err := w.openLogLocked(now); err != nil {
		w.log.WithError(err).Error("failed to open job log file")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = w.job.Spec.WorkingDir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return w.failLocked(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return w.failLocked(err)
	}
	// New process group so kill() can terminate the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		w.log.WithError(err).Error("spawn failed")
		return w.failLocked(err)
	}

	w.cmd = cmd
	w.started = true

	if err := w.applyAffinityAndPriority(cmd.Process.Pid); err != nil {
		w.log.WithError(err).Warn("failed to apply affinity/priority, continuing anyway")
	}

	w.streamWG.Add(1)
	go w.streamOutput(stdout, stderr)

	w.log.WithFields(log.Fields{"command": w.job.Spec.Command, "cores": w.job.Cores}).Info("job started")
	return nil
}

// failLocked records a spawn failure: writes an error marker to the
// log, sets the job to Error with a completion time, and returns the
// triggering error to the caller. It never panics or propagates the
// error as an exception beyond this return value.
func (w *WorkItem) failLocked(cause error) error {
	w.job.Status = core.StatusError
	now := time.Now()
	w.job.Completed = &now
	w.finished.Store(true)
	if w.logFile != nil {
		fmt.Fprintf(w.logFile, "\n*** failed to start job: %v ***\n", cause)
	}
	return cause
}

func (w *WorkItem) openLogLocked(start time.Time) error {
	if w.job.Spec.LogFile == "" {
		return nil
	}
	f, err := os.OpenFile(w.job.Spec.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	w.logFile = f
	header := fmt.Sprintf(`Executed with LQTS (the Lightweight Queueing and Task Scheduler)
LQTS Version %s
-----------------------------------------------
Job ID:  %s
WorkDir: %s
Command: %s
Started: %s
-----------------------------------------------

-----------------------------------------------
STDOUT
-----------------------------------------------
`, Version, w.job.JobID.String(), w.job.Spec.WorkingDir, w.job.Spec.Command, start.Format(time.RFC3339))
	fmt.Fprint(f, header)
	return nil
}

// streamOutput copies stdout into the log as it arrives, then (once
// stdout closes, meaning the child has exited) appends stderr in full.
func (w *WorkItem) streamOutput(stdout, stderr io.Reader) {
	defer w.streamWG.Done()
	time.Sleep(readerStartupDelay)

	w.mu.Lock()
	out := w.logFile
	w.mu.Unlock()

	var dest io.Writer = io.Discard
	if out != nil {
		dest = out
	}

	reader := bufio.NewReaderSize(stdout, 64*1024)
	if _, err := io.Copy(dest, reader); err != nil {
		w.log.WithError(err).Debug("stdout copy ended with error")
	}

	stderrBuf := new(strings.Builder)
	io.Copy(stderrBuf, stderr)
	if out != nil {
		fmt.Fprint(out, "\n-----------------------------------------------\nSTDERR\n-----------------------------------------------\n")
		fmt.Fprint(out, stderrBuf.String())
	}
}

// GetStatus resolves the job's current status. Terminal statuses are
// returned as-is. Otherwise the child is polled: if it has exited, the
// job is Completed (LQTS never interprets exit codes); if walltime is
// set and exceeded, the job becomes WalltimeExceeded and the child is
// killed.
func (w *WorkItem) GetStatus() core.JobStatus {
	w.mu.Lock()
	status := w.job.Status
	started := w.started
	w.mu.Unlock()

	if status.IsTerminal() {
		return status
	}
	if !started {
		return status
	}

	if w.finished.Load() {
		w.mu.Lock()
		if !w.job.Status.IsTerminal() {
			w.job.Status = core.StatusCompleted
		}
		status = w.job.Status
		w.mu.Unlock()
	} else {
		status = core.StatusRunning
	}

	if wt := w.job.Spec.Walltime; wt > 0 && w.job.Walltime().Seconds() >= wt {
		w.Kill(core.StatusWalltimeExceeded)
		return core.StatusWalltimeExceeded
	}

	return status
}

// IsRunning reports whether GetStatus currently resolves to Running.
func (w *WorkItem) IsRunning() bool {
	return w.GetStatus() == core.StatusRunning
}

// markExited is called by Wait once the child process has exited, so
// GetStatus/IsRunning stop polling.
func (w *WorkItem) markExited() {
	w.finished.Store(true)
}

// Wait blocks until the child exits and marks the WorkItem finished.
// Intended to be run in its own goroutine by the owning pool so it does
// not block the management loop.
func (w *WorkItem) Wait() {
	w.mu.Lock()
	cmd := w.cmd
	w.mu.Unlock()
	if cmd == nil {
		w.markExited()
		return
	}
	// cmd.Wait closes the stdout/stderr pipes, so let the output reader
	// drain them into the log first.
	w.streamWG.Wait()
	_ = cmd.Wait()
	w.markExited()
}

// CleanUp sets the job's completion time (if not already set), flushes
// and closes the log file with a footer, and is idempotent.
func (w *WorkItem) CleanUp() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.job.Completed == nil {
		now := time.Now()
		w.job.Completed = &now
	}
	if w.logFile == nil {
		return
	}

	started := w.job.Started
	ended := w.job.Completed
	var elapsed time.Duration
	var startStr, endStr string
	if started != nil {
		startStr = started.Format(time.RFC3339)
	}
	if ended != nil {
		endStr = ended.Format(time.RFC3339)
	}
	if started != nil && ended != nil {
		elapsed = ended.Sub(*started)
	}
	footer := fmt.Sprintf(`
-----------------------------------------------
Job Performance
-----------------------------------------------
Started: %s
Ended:   %s
Elapsed: %s
-----------------------------------------------
`, startStr, endStr, elapsed)
	fmt.Fprint(w.logFile, footer)
	w.logFile.Close()
	w.logFile = nil
}

// Kill terminates the child process tree and sets the job's status.
// Tolerates "already gone" errors.
func (w *WorkItem) Kill(newStatus core.JobStatus) {
	w.killOnce.Do(func() {
		w.mu.Lock()
		cmd := w.cmd
		w.job.Status = newStatus
		w.mu.Unlock()

		if cmd == nil || cmd.Process == nil {
			return
		}
		// Negative pid targets the whole process group we created with
		// Setpgid, killing children the job itself spawned too.
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
			w.log.WithError(err).Warn("failed to kill job process group")
		}
		w.finished.Store(true)
	})
}

// applyAffinityAndPriority pins the child to the reserved cores and
// lowers its scheduling priority so an interactive host stays
// responsive. Errors are non-fatal: a job that can't be pinned still
// runs, just without the isolation.
func (w *WorkItem) applyAffinityAndPriority(pid int) error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, pid, backgroundNiceness); err != nil {
		return fmt.Errorf("setpriority: %w", err)
	}

	var set unix.CPUSet
	set.Zero()
	for _, core := range w.cores {
		set.Set(core)
	}
	if err := unix.SchedSetaffinity(pid, &set); err != nil {
		return fmt.Errorf("sched_setaffinity: %w", err)
	}
	return nil
}

// tokenize splits a command line without invoking a shell. It uses
// strings.Fields rather than a shlex-style tokenizer, so it does not
// honor quoted arguments containing spaces; acceptable because JobSpec
// promises an already-tokenized command line, not a shell one-liner.
func tokenize(command string) []string {
	fields := strings.Fields(command)
	return fields
}
