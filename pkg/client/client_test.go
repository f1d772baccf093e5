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

package client

import (
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/brakedust/lqts/internal/api"
	"github.com/brakedust/lqts/internal/archive"
	"github.com/brakedust/lqts/internal/core"
	"github.com/brakedust/lqts/internal/cpuset"
	"github.com/brakedust/lqts/internal/pool"
)

func newTestServer(t *testing.T) (*Client, func()) {
	t.Helper()
	q := core.NewJobQueue(0, nil)
	p := pool.New(q, cpuset.New(2), nil)
	srv := httptest.NewServer(api.New(q, p, nil, nil))

	addr := strings.TrimPrefix(srv.URL, "http://")
	c := New(addr)
	return c, srv.Close
}

func TestQsubAndQstatRoundTrip(t *testing.T) {
	c, closeFn := newTestServer(t)
	defer closeFn()

	ids, err := c.Qsub([]core.JobSpec{{Command: "a", WorkingDir: "/tmp"}})
	if err != nil {
		t.Fatalf("qsub: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 id, got %d", len(ids))
	}

	jobs, err := c.Qstat(QstatOptions{})
	if err != nil {
		t.Fatalf("qstat: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].JobID != ids[0] {
		t.Fatalf("expected job id %v, got %v", ids[0], jobs[0].JobID)
	}
}

func TestQsummary(t *testing.T) {
	c, closeFn := newTestServer(t)
	defer closeFn()

	c.Qsub([]core.JobSpec{{Command: "a", WorkingDir: "/tmp"}})
	running, queued, err := c.Qsummary()
	if err != nil {
		t.Fatalf("qsummary: %v", err)
	}
	if running != 0 || queued != 1 {
		t.Fatalf("expected running=0 queued=1, got running=%d queued=%d", running, queued)
	}
}

func TestWorkersGetSet(t *testing.T) {
	c, closeFn := newTestServer(t)
	defer closeFn()

	n, err := c.GetWorkers()
	if err != nil {
		t.Fatalf("get workers: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 workers, got %d", n)
	}

	n, err = c.SetWorkers(7)
	if err != nil {
		t.Fatalf("set workers: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7 workers, got %d", n)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	q := core.NewJobQueue(1, nil)
	store, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer store.Close()
	q.OnEvicted(store.OnEvicted)

	p := pool.New(q, cpuset.New(2), nil)
	srv := httptest.NewServer(api.New(q, p, store, nil))
	defer srv.Close()

	c := New(strings.TrimPrefix(srv.URL, "http://"))

	firstIDs, _ := c.Qsub([]core.JobSpec{{Command: "a", WorkingDir: "/tmp"}})
	c.Qdel(firstIDs)
	secondIDs, _ := c.Qsub([]core.JobSpec{{Command: "b", WorkingDir: "/tmp"}})
	c.Qdel(secondIDs)

	job, err := c.Archive(firstIDs[0].String())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if job.JobID != firstIDs[0] {
		t.Fatalf("expected archived job %s, got %s", firstIDs[0], job.JobID)
	}

	jobs, err := c.ArchiveList()
	if err != nil {
		t.Fatalf("archive list: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 archived job, got %d", len(jobs))
	}
}

func TestQdelWholeGroup(t *testing.T) {
	c, closeFn := newTestServer(t)
	defer closeFn()

	ids, _ := c.Qsub([]core.JobSpec{{Command: "a", WorkingDir: "/tmp"}, {Command: "b", WorkingDir: "/tmp"}})

	groupRef, err := core.ParseJobID(strconv.FormatUint(uint64(ids[0].Group), 10))
	if err != nil {
		t.Fatalf("parse group id: %v", err)
	}

	deleted, err := c.Qdel([]core.JobID{groupRef})
	if err != nil {
		t.Fatalf("qdel: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("expected 2 jobs deleted, got %d", len(deleted))
	}
}
