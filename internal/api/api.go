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

// Package api implements the JSON-over-HTTP surface under /api_v1/:
// job submission, status queries, pool control, and the
// deletion/priority/resume operations.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"

	"github.com/brakedust/lqts/internal/archive"
	"github.com/brakedust/lqts/internal/core"
	"github.com/brakedust/lqts/internal/pool"
)

// Server binds a queue and pool to the /api_v1/ route table.
type Server struct {
	queue   *core.JobQueue
	pool    *pool.Pool
	archive *archive.Store
	router  *httprouter.Router
	log     *log.Entry

	// onQdel is called with the ids qdel deleted; see OnQdel.
	onQdel func([]core.JobID)
}

// New wires up the router and returns a Server ready to be used as an
// http.Handler. archiveStore may be nil, in which case GET /archive
// always reports an empty result.
func New(queue *core.JobQueue, p *pool.Pool, archiveStore *archive.Store, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	s := &Server{
		queue:   queue,
		pool:    p,
		archive: archiveStore,
		router:  httprouter.New(),
		log:     logger,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler by delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// OnQdel registers a callback invoked with the IDs qdel actually
// deleted, so the pool (or caller) can kill any that were running. The
// queue itself only updates bookkeeping; killing child processes is the
// pool's job.
func (s *Server) OnQdel(fn func([]core.JobID)) {
	s.onQdel = fn
}

func (s *Server) routes() {
	s.router.POST("/api_v1/qsub", s.handleQsub)
	s.router.GET("/api_v1/qstat", s.handleQstat)
	s.router.GET("/api_v1/qsummary", s.handleQsummary)
	s.router.GET("/api_v1/workers", s.handleGetWorkers)
	s.router.POST("/api_v1/workers", s.handleSetWorkers)
	s.router.GET("/api_v1/jobgroup", s.handleJobGroup)
	s.router.POST("/api_v1/qdel", s.handleQdel)
	s.router.POST("/api_v1/qpriority", s.handleQpriority)
	s.router.POST("/api_v1/qclear", s.handleQclear)
	s.router.POST("/api_v1/clear_completed", s.handleClearCompleted)
	s.router.POST("/api_v1/resume", s.handleResume)
	s.router.GET("/api_v1/archive", s.handleArchive)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.log.WithError(err).Warn("bad request")
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// handleQsub: POST /qsub, body list<JobSpec>, response list<JobID>.
func (s *Server) handleQsub(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var specs []core.JobSpec
	if err := json.NewDecoder(r.Body).Decode(&specs); err != nil {
		s.badRequest(w, err)
		return
	}
	ids, err := s.queue.Submit(specs)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// handleQstat: GET /qstat, optional running/queued/completed query
// booleans, response list<Job-as-JSON> (flattened across requested
// buckets, running+queued+completed ordered that way).
func (s *Server) handleQstat(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	running := queryBoolDefault(r, "running", true)
	queued := queryBoolDefault(r, "queued", true)
	completed := queryBoolDefault(r, "completed", false)

	snap := s.queue.Snapshot(queued, running, completed)

	jobs := make([]*core.Job, 0, len(snap.Running)+len(snap.Queued)+len(snap.Completed))
	jobs = append(jobs, snap.Running...)
	jobs = append(jobs, snap.Queued...)
	jobs = append(jobs, snap.Completed...)
	writeJSON(w, http.StatusOK, jobs)
}

func queryBoolDefault(r *http.Request, key string, def bool) bool {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

// handleQsummary: GET /qsummary, response {Running, Queued}.
func (s *Server) handleQsummary(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	running, queued := s.queue.Summary()
	writeJSON(w, http.StatusOK, map[string]int{"Running": running, "Queued": queued})
}

// handleGetWorkers: GET /workers, response current max_workers.
func (s *Server) handleGetWorkers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, s.pool.CoreCount())
}

// handleSetWorkers: POST /workers?count=N, response new max_workers.
func (s *Server) handleSetWorkers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	raw := r.URL.Query().Get("count")
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		s.badRequest(w, errInvalidWorkerCount)
		return
	}
	s.pool.Resize(n)
	writeJSON(w, http.StatusOK, s.pool.CoreCount())
}

// handleJobGroup: GET /jobgroup?group_number=G, response list<JobID>.
func (s *Server) handleJobGroup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	raw := r.URL.Query().Get("group_number")
	group, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.badRequest(w, errInvalidGroupNumber)
		return
	}
	jobs := s.queue.GetJobGroup(uint(group))
	ids := make([]core.JobID, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.JobID)
	}
	writeJSON(w, http.StatusOK, ids)
}

// jobIDRef is the wire shape of a JobID in request bodies, where a null
// index means "the whole group".
type jobIDRef struct {
	Group uint  `json:"group"`
	Index *uint `json:"index"`
}

func (ref jobIDRef) toJobID() core.JobID {
	if ref.Index == nil {
		id, _ := core.ParseJobID(strconv.FormatUint(uint64(ref.Group), 10))
		return id
	}
	return core.NewJobID(ref.Group, *ref.Index)
}

// handleQdel: POST /qdel, body list<JobID>, response {"Deleted jobs": list<JobID>}.
func (s *Server) handleQdel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var refs []jobIDRef
	if err := json.NewDecoder(r.Body).Decode(&refs); err != nil {
		s.badRequest(w, err)
		return
	}
	ids := make([]core.JobID, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.toJobID())
	}

	deleted := s.queue.Qdel(ids)
	if s.onQdel != nil {
		s.onQdel(deleted)
	}
	writeJSON(w, http.StatusOK, map[string][]core.JobID{"Deleted jobs": deleted})
}

// handleQpriority: POST /qpriority?priority=P, body list<JobID>.
func (s *Server) handleQpriority(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	raw := r.URL.Query().Get("priority")
	priority, err := strconv.Atoi(raw)
	if err != nil {
		s.badRequest(w, errInvalidPriority)
		return
	}
	var refs []jobIDRef
	if err := json.NewDecoder(r.Body).Decode(&refs); err != nil {
		s.badRequest(w, err)
		return
	}
	ids := make([]core.JobID, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.toJobID())
	}
	s.queue.SetPriority(ids, priority)
	w.WriteHeader(http.StatusNoContent)
}

// handleQclear: POST /qclear?really=true. Requires the confirmation
// query flag so a client fat-finger doesn't nuke the queue.
func (s *Server) handleQclear(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !queryBoolDefault(r, "really", false) {
		s.badRequest(w, errConfirmationRequired)
		return
	}
	s.pool.KillAll()
	s.queue.Clear()
	writeJSON(w, http.StatusOK, "queue cleared")
}

// handleClearCompleted: POST /clear_completed?really=true.
func (s *Server) handleClearCompleted(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !queryBoolDefault(r, "really", false) {
		s.badRequest(w, errConfirmationRequired)
		return
	}
	s.queue.ClearCompleted()
	writeJSON(w, http.StatusOK, "completed jobs cleared")
}

// handleResume: POST /resume, body list<JobID>, response list<JobID> resumed.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var refs []jobIDRef
	if err := json.NewDecoder(r.Body).Decode(&refs); err != nil {
		s.badRequest(w, err)
		return
	}
	ids := make([]core.JobID, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.toJobID())
	}
	writeJSON(w, http.StatusOK, s.queue.Resume(ids))
}

// handleArchive: GET /archive?job_id=G.I, response the archived Job; or
// GET /archive with no job_id, response list<Job> of everything archived.
// Answers what happened to a job long after the in-memory completed map
// evicted it.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.archive == nil {
		writeJSON(w, http.StatusOK, []*core.Job{})
		return
	}

	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		jobs, err := s.archive.List()
		if err != nil {
			s.badRequest(w, err)
			return
		}
		writeJSON(w, http.StatusOK, jobs)
		return
	}

	job, err := s.archive.Get(jobID)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		s.badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
