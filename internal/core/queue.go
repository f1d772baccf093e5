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

package core

import (
	"errors"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Sentinel errors returned by JobQueue's public operations. Declared at
// package scope so callers can branch on them, matching the
// package-level sentinel error convention used elsewhere in this repo.
var (
	// ErrNoSpecs is returned by Submit when given an empty spec list.
	ErrNoSpecs = errors.New("core: submit requires at least one job spec")

	// ErrJobNotFound is returned by FindJob when no queued or running
	// job matches the given id.
	ErrJobNotFound = errors.New("core: job not found")
)

// DefaultCompletedLimit is the bound on retained completed jobs,
// "completed_limit" in the daemon config, default 1000.
const DefaultCompletedLimit = 1000

// JobGroup is the set of jobs produced by a single Submit call.
type JobGroup struct {
	GroupNumber uint
	Jobs        map[JobID]*Job
}

// evictedFunc is called with a job just evicted from the completed map
// due to completed_limit pressure, in FIFO order. It lets callers (the
// archive) persist jobs before they vanish from memory; see
// DESIGN.md's internal/archive entry.
type evictedFunc func(*Job)

// JobQueue holds all jobs by state and implements the scheduling and
// dependency-gating rules.
type JobQueue struct {
	mu sync.Mutex

	completedLimit int

	queued    map[JobID]*Job
	running   map[JobID]*Job
	completed map[JobID]*Job
	// completedOrder tracks insertion order into completed, for FIFO
	// eviction.
	completedOrder []JobID

	groups           map[uint]*JobGroup
	nextGroupNumber  uint
	onEvicted        evictedFunc
	log              *log.Entry
}

// NewJobQueue constructs an empty queue with the given completed-job
// retention bound. A bound of 0 uses DefaultCompletedLimit.
func NewJobQueue(completedLimit int, logger *log.Entry) *JobQueue {
	if completedLimit <= 0 {
		completedLimit = DefaultCompletedLimit
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &JobQueue{
		completedLimit: completedLimit,
		queued:         make(map[JobID]*Job),
		running:        make(map[JobID]*Job),
		completed:      make(map[JobID]*Job),
		groups:         make(map[uint]*JobGroup),
		nextGroupNumber: 1,
		log:            logger,
	}
}

// OnEvicted registers a callback invoked (under the queue lock) whenever
// prune() drops a completed job for exceeding completedLimit.
func (q *JobQueue) OnEvicted(fn evictedFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onEvicted = fn
}

// Submit allocates a new group and inserts every spec as a Queued job in
// order, returning the assigned JobIDs. Atomic: either all specs are
// inserted, or (on an empty list) none are and ErrNoSpecs is returned.
func (q *JobQueue) Submit(specs []JobSpec) ([]JobID, error) {
	if len(specs) == 0 {
		return nil, ErrNoSpecs
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	group := q.nextGroupNumber
	q.nextGroupNumber++

	now := time.Now()
	ids := make([]JobID, 0, len(specs))
	jg := &JobGroup{GroupNumber: group, Jobs: make(map[JobID]*Job, len(specs))}

	for i, spec := range specs {
		spec.Normalize()
		id := JobID{Group: group, Index: uint(i)}
		submitted := now
		job := &Job{
			JobID:     id,
			Spec:      spec,
			Status:    StatusQueued,
			Submitted: &submitted,
		}
		q.queued[id] = job
		jg.Jobs[id] = job
		ids = append(ids, id)
	}
	q.groups[group] = jg

	q.log.WithFields(log.Fields{"group": group, "count": len(specs)}).Info("submitted job group")
	return ids, nil
}

// isSatisfied reports whether a dependency id is satisfied: absent from
// both queued and running counts as satisfied — a dependency evicted
// from completed, or never submitted, is treated as done.
func (q *JobQueue) isSatisfied(dep JobID) bool {
	if _, ok := q.queued[dep]; ok {
		return false
	}
	if _, ok := q.running[dep]; ok {
		return false
	}
	return true
}

func (q *JobQueue) runnable(job *Job) bool {
	for _, dep := range job.Spec.Depends {
		if !q.isSatisfied(dep) {
			return false
		}
	}
	return true
}

// NextJob returns the highest-priority runnable queued job, or nil if
// none is runnable right now. It does not mutate the queue; callers
// must call OnJobStarted explicitly once resources are reserved.
func (q *JobQueue) NextJob() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	candidates := make([]*Job, 0, len(q.queued))
	for _, job := range q.queued {
		candidates = append(candidates, job)
	}
	// Sort by (-priority, group, index): higher priority first, earlier
	// submission (group, then index) breaks ties.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Spec.Priority != b.Spec.Priority {
			return a.Spec.Priority > b.Spec.Priority
		}
		return a.JobID.Less(b.JobID)
	})

	for _, job := range candidates {
		if q.runnable(job) {
			return job
		}
	}
	return nil
}

// OnJobStarted moves a job from queued to running.
func (q *JobQueue) OnJobStarted(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	job.Status = StatusRunning
	job.Started = &now
	delete(q.queued, job.JobID)
	q.running[job.JobID] = job
	q.log.WithFields(log.Fields{"job_id": job.JobID.String()}).Info("job started")
}

// OnJobFinished moves a job from running to completed, copying the
// caller-supplied final status and completion time, then prunes the
// completed set down to completedLimit.
func (q *JobQueue) OnJobFinished(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.running, job.JobID)
	q.insertCompletedLocked(job)
	q.log.WithFields(log.Fields{"job_id": job.JobID.String(), "status": job.Status}).Info("job finished")
}

// OnSpawnFailed moves a job straight from queued to completed, for the
// case where a WorkItem never successfully started: the job never
// reached running, so OnJobFinished's delete(q.running, ...) would be a
// no-op and the job would be left in both queued and completed.
func (q *JobQueue) OnSpawnFailed(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.queued, job.JobID)
	q.insertCompletedLocked(job)
	q.log.WithFields(log.Fields{"job_id": job.JobID.String(), "status": job.Status}).Warn("job failed to spawn")
}

func (q *JobQueue) insertCompletedLocked(job *Job) {
	q.completed[job.JobID] = job
	q.completedOrder = append(q.completedOrder, job.JobID)
	q.pruneLocked()
}

// pruneLocked evicts the oldest completed jobs until len(completed) <=
// completedLimit.
func (q *JobQueue) pruneLocked() {
	for len(q.completed) > q.completedLimit && len(q.completedOrder) > 0 {
		oldest := q.completedOrder[0]
		q.completedOrder = q.completedOrder[1:]
		evicted, ok := q.completed[oldest]
		if !ok {
			continue
		}
		delete(q.completed, oldest)
		if q.onEvicted != nil {
			q.onEvicted(evicted)
		}
	}
}

// Prune runs pruneLocked under the lock; exposed for callers (e.g. a
// periodic maintenance tick) that want to force eviction without
// waiting for the next completion.
func (q *JobQueue) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneLocked()
}

// expandGroupLocked turns a whole-group JobID into every JobID currently
// queued or running within that group. Must be called under the lock.
func (q *JobQueue) expandGroupLocked(id JobID) []JobID {
	if !id.IsWholeGroup() {
		return []JobID{id}
	}
	var out []JobID
	for jid := range q.queued {
		if jid.Group == id.Group {
			out = append(out, jid)
		}
	}
	for jid := range q.running {
		if jid.Group == id.Group {
			out = append(out, jid)
		}
	}
	return out
}

// Qdel deletes the given ids (expanding any whole-group id to every job
// currently queued/running in that group), moving each to completed
// with status Deleted. It does not kill any running child process —
// the pool must do that separately. Returns the ids actually deleted.
func (q *JobQueue) Qdel(ids []JobID) []JobID {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expanded []JobID
	for _, id := range ids {
		expanded = append(expanded, q.expandGroupLocked(id)...)
	}

	now := time.Now()
	var deleted []JobID
	for _, id := range expanded {
		var job *Job
		if j, ok := q.queued[id]; ok {
			job = j
			delete(q.queued, id)
		} else if j, ok := q.running[id]; ok {
			job = j
			delete(q.running, id)
		} else {
			continue
		}
		job.Status = StatusDeleted
		job.Completed = &now
		q.insertCompletedLocked(job)
		deleted = append(deleted, id)
	}
	if len(deleted) > 0 {
		q.log.WithFields(log.Fields{"count": len(deleted)}).Info("jobs deleted")
	}
	return deleted
}

// FindJob does a linear search across queued and running (not
// completed — qstat exposes completed jobs directly). Returns
// ErrJobNotFound if absent.
func (q *JobQueue) FindJob(id JobID) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job, ok := q.queued[id]; ok {
		return job, nil
	}
	if job, ok := q.running[id]; ok {
		return job, nil
	}
	return nil, ErrJobNotFound
}

// IsCompleted reports whether id is already in the completed set. Used
// by the pool to recognize a job qdel (or clear) already finished
// before the pool itself gets around to reaping it, so it doesn't feed
// the same job into OnJobFinished a second time.
func (q *JobQueue) IsCompleted(id JobID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.completed[id]
	return ok
}

// FindCompleted looks a job up in the completed map only.
func (q *JobQueue) FindCompleted(id JobID) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job, ok := q.completed[id]; ok {
		return job, nil
	}
	return nil, ErrJobNotFound
}

// GetJobGroup returns every queued or running job whose id matches the
// given group number.
func (q *JobQueue) GetJobGroup(group uint) []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*Job
	for id, job := range q.queued {
		if id.Group == group {
			out = append(out, job)
		}
	}
	for id, job := range q.running {
		if id.Group == group {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID.Less(out[j].JobID) })
	return out
}

// Snapshot is a point-in-time, lock-safe copy of queue contents for a
// qstat-style read. Booleans select which buckets to include.
type Snapshot struct {
	Queued    []*Job
	Running   []*Job
	Completed []*Job
}

// Snapshot copies the requested buckets under the lock so callers can
// iterate without racing queue mutations.
func (q *JobQueue) Snapshot(includeQueued, includeRunning, includeCompleted bool) Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	var snap Snapshot
	if includeQueued {
		snap.Queued = copyJobsLocked(q.queued)
	}
	if includeRunning {
		snap.Running = copyJobsLocked(q.running)
	}
	if includeCompleted {
		snap.Completed = copyJobsLocked(q.completed)
	}
	return snap
}

func copyJobsLocked(m map[JobID]*Job) []*Job {
	out := make([]*Job, 0, len(m))
	for _, j := range m {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID.Less(out[j].JobID) })
	return out
}

// Summary reports the running and queued counts.
func (q *JobQueue) Summary() (running, queued int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running), len(q.queued)
}

// SetPriority updates the priority of a queued job. Running and
// completed jobs are silently ignored — matching the original
// qpriority.py's tolerance for stale ids.
func (q *JobQueue) SetPriority(ids []JobID, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		if job, ok := q.queued[id]; ok {
			job.Spec.Priority = priority
		}
	}
}

// Resume transitions listed jobs from Paused back to Queued, expanding
// any whole-group id to every job of that group. Paused is otherwise
// unreachable from normal scheduling.
func (q *JobQueue) Resume(ids []JobID) []JobID {
	q.mu.Lock()
	defer q.mu.Unlock()

	var expanded []JobID
	for _, id := range ids {
		expanded = append(expanded, q.expandGroupLocked(id)...)
	}

	var resumed []JobID
	for _, id := range expanded {
		if job, ok := q.queued[id]; ok && job.Status == StatusPaused {
			job.Status = StatusQueued
			resumed = append(resumed, id)
		}
	}
	return resumed
}

// Clear moves every running and queued job to completed with status
// Deleted. It does not kill any child processes; the pool must do that
// separately.
func (q *JobQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for id, job := range q.queued {
		job.Status = StatusDeleted
		job.Completed = &now
		q.insertCompletedLocked(job)
		delete(q.queued, id)
	}
	for id, job := range q.running {
		job.Status = StatusDeleted
		job.Completed = &now
		q.insertCompletedLocked(job)
		delete(q.running, id)
	}
}

// ClearCompleted empties the completed map without archiving (used by
// the /clear_completed endpoint; distinct from prune()'s FIFO eviction,
// which does archive via onEvicted).
func (q *JobQueue) ClearCompleted() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = make(map[JobID]*Job)
	q.completedOrder = nil
}

// RunningCount returns the current number of running jobs.
func (q *JobQueue) RunningCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}

// Restore re-inserts a job (with its original JobID) into the queued
// set, for rebuilding a queue from a persisted snapshot on daemon
// startup. It keeps nextGroupNumber ahead of the restored ID so future
// Submit calls never collide with it.
func (q *JobQueue) Restore(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.Status = StatusQueued
	q.queued[job.JobID] = job
	q.trackGroupLocked(job)
}

// RestoreCompleted re-inserts a job directly into the completed set
// (and its FIFO eviction order), for replaying the [completed_jobs]
// section of a persisted snapshot.
func (q *JobQueue) RestoreCompleted(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.insertCompletedLocked(job)
	q.trackGroupLocked(job)
}

// trackGroupLocked records a restored job under its group (creating the
// group if this is the first job seen from it) and bumps
// nextGroupNumber past it.
func (q *JobQueue) trackGroupLocked(job *Job) {
	group := job.JobID.Group
	jg, ok := q.groups[group]
	if !ok {
		jg = &JobGroup{GroupNumber: group, Jobs: make(map[JobID]*Job)}
		q.groups[group] = jg
	}
	jg.Jobs[job.JobID] = job
	if group >= q.nextGroupNumber {
		q.nextGroupNumber = group + 1
	}
}
