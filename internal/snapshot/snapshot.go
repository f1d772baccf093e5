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

// Package snapshot persists a JobQueue to the line-oriented,
// human-readable queue file described for LQTS_QUEUE_FILE: sections
// [running_jobs], [queued_jobs], and [completed_jobs], each holding
// "jobid: <job-json>" lines. This is a best-effort feature — the
// format is plain text by requirement, not a binary encoding a library
// would give us, so it is hand-rolled against encoding/json rather
// than reached for one of the pack's embedded-database drivers.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/brakedust/lqts/internal/core"
)

const (
	sectionRunning   = "[running_jobs]"
	sectionQueued    = "[queued_jobs]"
	sectionCompleted = "[completed_jobs]"
)

// Write renders a queue snapshot to path in the queue-file format.
func Write(path string, snap core.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeSection(w, sectionRunning, snap.Running); err != nil {
		return err
	}
	if err := writeSection(w, sectionQueued, snap.Queued); err != nil {
		return err
	}
	if err := writeSection(w, sectionCompleted, snap.Completed); err != nil {
		return err
	}
	return w.Flush()
}

func writeSection(w *bufio.Writer, header string, jobs []*core.Job) error {
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	for _, job := range jobs {
		blob, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("snapshot: marshal job %s: %w", job.JobID, err)
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", job.JobID.String(), blob); err != nil {
			return err
		}
	}
	return nil
}

// Loaded holds the jobs read back from a queue file, still grouped by
// the section they were found in.
type Loaded struct {
	Running   []*core.Job
	Queued    []*core.Job
	Completed []*core.Job
}

// Read parses a queue file written by Write. A missing file is not an
// error — it just means there's nothing to resume from.
func Read(path string) (Loaded, error) {
	var out Loaded

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	section := ""
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		switch line {
		case sectionRunning, sectionQueued, sectionCompleted:
			section = line
			continue
		}

		idx := strings.Index(line, ": ")
		if idx < 0 {
			return out, fmt.Errorf("snapshot: malformed line %q", line)
		}
		var job core.Job
		if err := json.Unmarshal([]byte(line[idx+2:]), &job); err != nil {
			return out, fmt.Errorf("snapshot: unmarshal line %q: %w", line, err)
		}

		switch section {
		case sectionRunning:
			out.Running = append(out.Running, &job)
		case sectionQueued:
			out.Queued = append(out.Queued, &job)
		case sectionCompleted:
			out.Completed = append(out.Completed, &job)
		default:
			return out, fmt.Errorf("snapshot: job line %q outside any section", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("snapshot: scan %s: %w", path, err)
	}
	return out, nil
}

// Resume rebuilds a fresh JobQueue from a Loaded snapshot: jobs that
// were running are requeued (RESUME_ON_START_UP's "previously-running
// jobs return to Queued"), completed jobs are restored as-is, and
// originally-queued jobs stay queued. The queue's own group numbering
// is bypassed: job IDs are carried over verbatim so dependency links
// that reference them keep working.
func Resume(q *core.JobQueue, loaded Loaded) {
	for _, job := range loaded.Running {
		job.Status = core.StatusQueued
		job.Started = nil
		job.Cores = nil
		q.Restore(job)
	}
	for _, job := range loaded.Queued {
		q.Restore(job)
	}
	for _, job := range loaded.Completed {
		q.RestoreCompleted(job)
	}
}
