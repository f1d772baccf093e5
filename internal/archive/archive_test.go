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

package archive

import (
	"path/filepath"
	"testing"

	"github.com/brakedust/lqts/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	job := &core.Job{
		JobID:  core.JobID{Group: 3, Index: 2},
		Spec:   core.JobSpec{Command: "echo hi", Priority: 10, Cores: 1},
		Status: core.StatusCompleted,
	}

	if err := s.Put(job); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(job.JobID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Spec.Command != job.Spec.Command {
		t.Errorf("expected command %q, got %q", job.Spec.Command, got.Spec.Command)
	}
	if got.Status != core.StatusCompleted {
		t.Errorf("expected status Completed, got %v", got.Status)
	}
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get("99.000"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListReturnsAllArchivedJobs(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		job := &core.Job{
			JobID:  core.JobID{Group: 1, Index: uint(i)},
			Spec:   core.JobSpec{Command: "x"},
			Status: core.StatusCompleted,
		}
		if err := s.Put(job); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	jobs, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected count 3, got %d", n)
	}
}

func TestOnEvictedWiresIntoQueue(t *testing.T) {
	s := openTestStore(t)
	q := core.NewJobQueue(1, nil)
	q.OnEvicted(s.OnEvicted)

	var ids []core.JobID
	for i := 0; i < 3; i++ {
		newIDs, _ := q.Submit([]core.JobSpec{{Command: "x"}})
		ids = append(ids, newIDs[0])
	}
	for _, id := range ids {
		job, err := q.FindJob(id)
		if err != nil {
			t.Fatalf("find job: %v", err)
		}
		q.OnJobStarted(job)
		job.Status = core.StatusCompleted
		q.OnJobFinished(job)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 jobs archived on eviction (completed_limit=1), got %d", n)
	}
}
