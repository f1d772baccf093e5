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

package workitem

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brakedust/lqts/internal/core"
)

func newTestJob(t *testing.T, command string) *core.Job {
	t.Helper()
	dir := t.TempDir()
	return &core.Job{
		JobID: core.JobID{Group: 1, Index: 0},
		Spec: core.JobSpec{
			Command:    command,
			WorkingDir: dir,
			LogFile:    filepath.Join(dir, "job.log"),
			Priority:   core.DefaultPriority,
			Cores:      1,
		},
		Status: core.StatusQueued,
	}
}

func TestStartRunsToCompletion(t *testing.T) {
	job := newTestJob(t, "/bin/echo hello")
	w := New(job, []int{0}, nil)

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	w.Wait()
	w.CleanUp()

	if status := w.GetStatus(); status != core.StatusCompleted {
		t.Fatalf("expected completed, got %v", status)
	}

	data, err := os.ReadFile(job.Spec.LogFile)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	contents := string(data)
	if !strings.Contains(contents, "hello") {
		t.Errorf("expected log to contain stdout, got: %s", contents)
	}
	if !strings.Contains(contents, "Job Performance") {
		t.Errorf("expected log footer to be written, got: %s", contents)
	}
}

func TestStartUnknownCommandFails(t *testing.T) {
	job := newTestJob(t, "/no/such/binary-lqts-test")
	w := New(job, []int{0}, nil)

	if err := w.Start(); err == nil {
		t.Fatalf("expected spawn error for missing binary")
	}
	if job.Status != core.StatusError {
		t.Fatalf("expected job status Error, got %v", job.Status)
	}
	if job.Completed == nil {
		t.Fatalf("expected completion time to be set on spawn failure")
	}
}

func TestKillStopsLongRunningJob(t *testing.T) {
	job := newTestJob(t, "/bin/sleep 30")
	w := New(job, []int{0}, nil)

	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()

	w.Kill(core.StatusDeleted)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("killed job did not exit in time")
	}

	if job.Status != core.StatusDeleted {
		t.Fatalf("expected status Deleted after kill, got %v", job.Status)
	}
}

func TestWalltimeExceededKillsJob(t *testing.T) {
	job := newTestJob(t, "/bin/sleep 30")
	job.Spec.Walltime = 0.05

	w := New(job, []int{0}, nil)
	if err := w.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if status := w.GetStatus(); status != core.StatusWalltimeExceeded {
		t.Fatalf("expected WalltimeExceeded, got %v", status)
	}
}
