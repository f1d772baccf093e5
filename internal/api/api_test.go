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

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/brakedust/lqts/internal/archive"
	"github.com/brakedust/lqts/internal/core"
	"github.com/brakedust/lqts/internal/cpuset"
	"github.com/brakedust/lqts/internal/pool"
)

func newTestServer() *Server {
	q := core.NewJobQueue(0, nil)
	p := pool.New(q, cpuset.New(2), nil)
	return New(q, p, nil, nil)
}

func newTestServerWithArchive(t *testing.T) *Server {
	t.Helper()
	store, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	q := core.NewJobQueue(1, nil)
	q.OnEvicted(store.OnEvicted)
	p := pool.New(q, cpuset.New(2), nil)
	return New(q, p, store, nil)
}

func doJSON(t *testing.T, s *Server, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(blob)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestQsubReturnsJobIDs(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodPost, "/api_v1/qsub", []core.JobSpec{
		{Command: "a", WorkingDir: "/tmp"},
		{Command: "b", WorkingDir: "/tmp"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var ids []core.JobID
	if err := json.Unmarshal(rec.Body.Bytes(), &ids); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
}

func TestQstatDefaultsToRunningAndQueued(t *testing.T) {
	s := newTestServer()
	doJSON(t, s, http.MethodPost, "/api_v1/qsub", []core.JobSpec{{Command: "a", WorkingDir: "/tmp"}})

	rec := doJSON(t, s, http.MethodGet, "/api_v1/qstat", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var jobs []core.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 queued job by default, got %d", len(jobs))
	}
}

func TestQsummaryReportsCounts(t *testing.T) {
	s := newTestServer()
	doJSON(t, s, http.MethodPost, "/api_v1/qsub", []core.JobSpec{{Command: "a", WorkingDir: "/tmp"}})

	rec := doJSON(t, s, http.MethodGet, "/api_v1/qsummary", nil)
	var summary map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary["Queued"] != 1 || summary["Running"] != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestWorkersGetAndSet(t *testing.T) {
	s := newTestServer()

	rec := doJSON(t, s, http.MethodGet, "/api_v1/workers", nil)
	var n int
	json.Unmarshal(rec.Body.Bytes(), &n)
	if n != 2 {
		t.Fatalf("expected initial worker count 2, got %d", n)
	}

	rec = doJSON(t, s, http.MethodPost, "/api_v1/workers?count=5", nil)
	json.Unmarshal(rec.Body.Bytes(), &n)
	if n != 5 {
		t.Fatalf("expected resized worker count 5, got %d", n)
	}
}

func TestQdelWholeGroupViaNullIndex(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodPost, "/api_v1/qsub", []core.JobSpec{
		{Command: "a", WorkingDir: "/tmp"},
		{Command: "b", WorkingDir: "/tmp"},
	})
	var ids []core.JobID
	json.Unmarshal(rec.Body.Bytes(), &ids)

	body := []map[string]interface{}{{"group": ids[0].Group, "index": nil}}
	rec = doJSON(t, s, http.MethodPost, "/api_v1/qdel", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result map[string][]core.JobID
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result["Deleted jobs"]) != 2 {
		t.Fatalf("expected 2 deleted jobs, got %d", len(result["Deleted jobs"]))
	}
}

func TestArchiveAnswersEvictedJob(t *testing.T) {
	s := newTestServerWithArchive(t)

	// completedLimit is 1, so submitting and completing two jobs via
	// qdel evicts the first one straight to the archive.
	rec := doJSON(t, s, http.MethodPost, "/api_v1/qsub", []core.JobSpec{{Command: "a", WorkingDir: "/tmp"}})
	var firstIDs []core.JobID
	json.Unmarshal(rec.Body.Bytes(), &firstIDs)
	doJSON(t, s, http.MethodPost, "/api_v1/qdel", []map[string]interface{}{{"group": firstIDs[0].Group, "index": firstIDs[0].Index}})

	rec = doJSON(t, s, http.MethodPost, "/api_v1/qsub", []core.JobSpec{{Command: "b", WorkingDir: "/tmp"}})
	var secondIDs []core.JobID
	json.Unmarshal(rec.Body.Bytes(), &secondIDs)
	doJSON(t, s, http.MethodPost, "/api_v1/qdel", []map[string]interface{}{{"group": secondIDs[0].Group, "index": secondIDs[0].Index}})

	rec = doJSON(t, s, http.MethodGet, "/api_v1/archive?job_id="+firstIDs[0].String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var job core.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.JobID != firstIDs[0] {
		t.Fatalf("expected archived job %s, got %s", firstIDs[0], job.JobID)
	}
}

func TestArchiveUnknownJobIDReturns404(t *testing.T) {
	s := newTestServerWithArchive(t)
	rec := doJSON(t, s, http.MethodGet, "/api_v1/archive?job_id=99.000", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestQclearRequiresConfirmation(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s, http.MethodPost, "/api_v1/qclear", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without ?really=true, got %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodPost, "/api_v1/qclear?really=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with confirmation, got %d: %s", rec.Code, rec.Body.String())
	}
}
