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

// Package pool implements the DynamicProcessPool: the management loop
// that feeds runnable jobs from a queue onto reserved cores, reaps
// finished ones, and can be resized, paused, or drained live.
package pool

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/brakedust/lqts/internal/core"
	"github.com/brakedust/lqts/internal/cpuset"
	"github.com/brakedust/lqts/internal/workitem"
)

// managerTick is how often the run loop checks for completions and
// feeds the queue ("manager_delay" in the original).
const managerTick = 1 * time.Second

// feedDelay is the pause between back-to-back spawns ("feed_delay" in
// the original). At 0, feedQueue starts jobs without pausing.
const feedDelay = 0

// reapAfterTicks is how many consecutive "not running" observations a
// work item needs before it is cleaned up and its cores freed. A single
// observation can race a process between fork and exec, so the pool
// waits one extra tick, matching the original's two-cycle mark scheme.
const reapAfterTicks = 2

// tracked pairs a running WorkItem with the number of consecutive ticks
// its process has been observed as not-running.
type tracked struct {
	item *workitem.WorkItem
	mark int
}

// Pool is the DynamicProcessPool: it owns no state the queue doesn't
// already have, beyond which jobs are currently spawned as OS
// processes and on which cores.
type Pool struct {
	queue *core.JobQueue
	cpus  *cpuset.Manager
	log   *log.Entry

	mu      sync.Mutex
	items   map[core.JobID]*tracked
	paused  bool
	exiting bool

	stop   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// New builds a Pool bound to the given queue and CPU manager. Call
// Start to launch the background management loop.
func New(queue *core.JobQueue, cpus *cpuset.Manager, logger *log.Entry) *Pool {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Pool{
		queue: queue,
		cpus:  cpus,
		log:   logger,
		items: make(map[core.JobID]*tracked),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the management loop in the background.
func (p *Pool) Start() {
	p.wg.Add(1)
	go p.runLoop()
}

func (p *Pool) runLoop() {
	defer p.wg.Done()
	defer close(p.done)

	ticker := time.NewTicker(managerTick)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			p.processCompletions()
			if p.activeCount() == 0 {
				return
			}
			// Keep reaping until everything still in flight exits, but
			// stop admitting new work.
			ticker.Reset(managerTick)
			continue
		case <-ticker.C:
			p.processCompletions()

			p.mu.Lock()
			exiting := p.exiting
			paused := p.paused
			p.mu.Unlock()

			if exiting {
				if p.activeCount() == 0 {
					return
				}
				continue
			}
			if paused {
				continue
			}
			p.feedQueue()
		}
	}
}

func (p *Pool) activeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// processCompletions scans running work items for ones whose process
// has exited, waits out the reap delay, frees their cores, and notifies
// the queue.
func (p *Pool) processCompletions() {
	p.mu.Lock()
	snapshot := make([]core.JobID, 0, len(p.items))
	for id := range p.items {
		snapshot = append(snapshot, id)
	}
	p.mu.Unlock()

	for _, id := range snapshot {
		p.mu.Lock()
		t, ok := p.items[id]
		p.mu.Unlock()
		if !ok {
			continue
		}

		if t.item.IsRunning() {
			t.mark = 0
			continue
		}

		t.mark++
		if t.mark < reapAfterTicks {
			continue
		}

		t.item.CleanUp()
		job := t.item.Job()
		p.cpus.Free(job.Cores)
		p.queue.OnJobFinished(job)

		p.mu.Lock()
		delete(p.items, id)
		p.mu.Unlock()

		p.log.WithFields(log.Fields{"job_id": id.String(), "status": job.Status}).Info("job finished")
	}
}

// feedQueue starts runnable jobs as long as cores are free.
func (p *Pool) feedQueue() {
	for {
		job := p.queue.NextJob()
		if job == nil {
			return
		}

		ok, cores := p.cpus.Reserve(job.Spec.Cores)
		if !ok {
			return
		}

		item := workitem.New(job, cores, p.log)
		if err := item.Start(); err != nil {
			// Spawn failure already marked the job Error. The job was
			// never admitted to running, so it must come out of queued
			// directly or it would be left in both queued and completed
			// and NextJob would keep handing it back forever.
			p.cpus.Free(cores)
			p.queue.OnSpawnFailed(job)
			p.log.WithError(err).WithField("job_id", job.JobID.String()).Warn("job failed to spawn")
			continue
		}

		p.queue.OnJobStarted(job)
		go item.Wait()

		p.mu.Lock()
		p.items[job.JobID] = &tracked{item: item}
		p.mu.Unlock()

		if feedDelay > 0 {
			time.Sleep(feedDelay)
		}
	}
}

// Resize changes how many cores the pool may use. Growing the pool
// immediately tries to feed the queue with the new capacity.
func (p *Pool) Resize(newCount int) {
	grew := newCount > p.cpus.Total()
	p.cpus.Resize(newCount)
	if grew {
		p.feedQueue()
	}
}

// Pause stops the loop from starting new jobs; running jobs continue.
func (p *Pool) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Unpause resumes feeding the queue.
func (p *Pool) Unpause() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
}

// KillJob terminates the running job with the given ID, frees its
// cores, and reports it to the queue as finished. Returns false if the
// job isn't currently running in this pool.
func (p *Pool) KillJob(id core.JobID) bool {
	p.mu.Lock()
	t, ok := p.items[id]
	if ok {
		delete(p.items, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}

	t.item.Kill(core.StatusDeleted)
	job := t.item.Job()
	t.item.CleanUp()
	p.cpus.Free(job.Cores)
	// A caller-initiated qdel/clear may have already moved this job to
	// completed directly on the queue before asking the pool to kill its
	// process; don't run it through OnJobFinished a second time, or it
	// gets double-booked into completedOrder.
	if !p.queue.IsCompleted(id) {
		p.queue.OnJobFinished(job)
	}
	p.log.WithField("job_id", id.String()).Info("job killed")
	return true
}

// KillAll terminates every currently running job ("kill_job(kill_all=True)" in the original).
func (p *Pool) KillAll() int {
	p.mu.Lock()
	ids := make([]core.JobID, 0, len(p.items))
	for id := range p.items {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	n := 0
	for _, id := range ids {
		if p.KillJob(id) {
			n++
		}
	}
	return n
}

// Shutdown stops the pool. If wait is true, running jobs are allowed to
// finish and the loop exits once they have all been reaped; otherwise
// every running job is killed immediately.
func (p *Pool) Shutdown(wait bool) {
	p.mu.Lock()
	p.exiting = true
	p.mu.Unlock()

	if !wait {
		p.KillAll()
	}

	p.once.Do(func() { close(p.stop) })
	<-p.done
}

// CoreCount returns the pool's current configured core capacity
// ("max_workers" in the API).
func (p *Pool) CoreCount() int {
	return p.cpus.Total()
}

// RunningJobs returns the IDs currently owned by this pool.
func (p *Pool) RunningJobs() []core.JobID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]core.JobID, 0, len(p.items))
	for id := range p.items {
		ids = append(ids, id)
	}
	return ids
}
