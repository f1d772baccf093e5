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

package snapshot

import (
	"path/filepath"
	"testing"

	"github.com/brakedust/lqts/internal/core"
)

func TestWriteReadRoundTrip(t *testing.T) {
	q := core.NewJobQueue(0, nil)
	ids, _ := q.Submit([]core.JobSpec{{Command: "a"}, {Command: "b"}})

	running, err := q.FindJob(ids[0])
	if err != nil {
		t.Fatalf("find job: %v", err)
	}
	q.OnJobStarted(running)

	snap := q.Snapshot(true, true, true)
	path := filepath.Join(t.TempDir(), "queue.txt")
	if err := Write(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(loaded.Running) != 1 {
		t.Fatalf("expected 1 running job, got %d", len(loaded.Running))
	}
	if len(loaded.Queued) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(loaded.Queued))
	}

	q2 := core.NewJobQueue(0, nil)
	Resume(q2, loaded)

	resumed, err := q2.FindJob(ids[0])
	if err != nil {
		t.Fatalf("expected previously-running job to resume as queued: %v", err)
	}
	if resumed.Status != core.StatusQueued {
		t.Fatalf("expected status Queued after resume, got %v", resumed.Status)
	}

	stillQueued, err := q2.FindJob(ids[1])
	if err != nil {
		t.Fatalf("expected originally-queued job to survive resume: %v", err)
	}
	if stillQueued.Status != core.StatusQueued {
		t.Fatalf("expected status Queued, got %v", stillQueued.Status)
	}
}

func TestReadMissingFileIsNotAnError(t *testing.T) {
	loaded, err := Read(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if len(loaded.Running) != 0 || len(loaded.Queued) != 0 || len(loaded.Completed) != 0 {
		t.Fatalf("expected empty Loaded, got %+v", loaded)
	}
}
