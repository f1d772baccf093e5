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
	"encoding/json"
	"time"
)

// JobStatus is the single-letter lifecycle status of a Job.
type JobStatus string

const (
	StatusInitialized      JobStatus = "I"
	StatusQueued           JobStatus = "Q"
	StatusRunning          JobStatus = "R"
	StatusCompleted        JobStatus = "C"
	StatusDeleted          JobStatus = "D"
	StatusError            JobStatus = "E"
	StatusPaused           JobStatus = "P"
	StatusWalltimeExceeded JobStatus = "X"
)

// IsTerminal reports whether a status is one of the terminal states
// (Completed, Deleted, Error, WalltimeExceeded).
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusDeleted, StatusError, StatusWalltimeExceeded:
		return true
	default:
		return false
	}
}

// DefaultPriority is applied to a JobSpec that doesn't set one.
const DefaultPriority = 10

// JobSpec is the immutable user request describing what to run.
type JobSpec struct {
	Command         string  `json:"command"`
	WorkingDir      string  `json:"working_dir"`
	LogFile         string  `json:"log_file,omitempty"`
	Priority        int     `json:"priority"`
	Cores           int     `json:"cores"`
	Depends         []JobID `json:"depends,omitempty"`
	Walltime        float64 `json:"walltime,omitempty"`
	AlternateRunner bool    `json:"alternate_runner,omitempty"`
}

// Normalize fills in defaults the way the original qsub CLI did:
// priority defaults to 10, cores defaults to 1.
func (s *JobSpec) Normalize() {
	if s.Priority == 0 {
		s.Priority = DefaultPriority
	}
	if s.Cores <= 0 {
		s.Cores = 1
	}
}

// Job is the scheduling record that wraps a JobSpec with lifecycle state.
type Job struct {
	JobID JobID
	Spec  JobSpec

	Status JobStatus

	Submitted *time.Time
	Started   *time.Time
	Completed *time.Time

	// Cores holds the specific core indices reserved while running; nil
	// otherwise.
	Cores []int
}

// Walltime returns completed-started if the job is done, now-started if
// it is running, and zero otherwise.
func (j *Job) Walltime() time.Duration {
	switch {
	case j.Completed != nil && j.Started != nil:
		return j.Completed.Sub(*j.Started)
	case j.Started != nil:
		return time.Since(*j.Started)
	default:
		return 0
	}
}

// Clone returns a copy of the job safe to read outside the queue lock.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Cores != nil {
		cp.Cores = append([]int(nil), j.Cores...)
	}
	return &cp
}

// jobWire is the flattened wire representation of a Job: all JobSpec
// fields plus job_id, status, and submitted/started/completed times.
// JobSpec's own "cores" (the requested count) and the Job's reserved
// core list would otherwise collide under one key, so the requested
// count keeps the "cores" name (it is present for the whole job
// lifetime) and the reservation is exposed separately as
// "reserved_cores".
type jobWire struct {
	Command         string     `json:"command"`
	WorkingDir      string     `json:"working_dir"`
	LogFile         string     `json:"log_file,omitempty"`
	Priority        int        `json:"priority"`
	Cores           int        `json:"cores"`
	Depends         []JobID    `json:"depends,omitempty"`
	Walltime        float64    `json:"walltime,omitempty"`
	AlternateRunner bool       `json:"alternate_runner,omitempty"`
	JobID           JobID      `json:"job_id"`
	Status          JobStatus  `json:"status"`
	Submitted       *time.Time `json:"submitted,omitempty"`
	Started         *time.Time `json:"started,omitempty"`
	Completed       *time.Time `json:"completed,omitempty"`
	ReservedCores   []int      `json:"reserved_cores,omitempty"`
	WalltimeElapsed float64    `json:"walltime_elapsed"`
}

// MarshalJSON flattens JobSpec and scheduling metadata into a single
// object.
func (j Job) MarshalJSON() ([]byte, error) {
	w := jobWire{
		Command:         j.Spec.Command,
		WorkingDir:      j.Spec.WorkingDir,
		LogFile:         j.Spec.LogFile,
		Priority:        j.Spec.Priority,
		Cores:           j.Spec.Cores,
		Depends:         j.Spec.Depends,
		Walltime:        j.Spec.Walltime,
		AlternateRunner: j.Spec.AlternateRunner,
		JobID:           j.JobID,
		Status:          j.Status,
		Submitted:       j.Submitted,
		Started:         j.Started,
		Completed:       j.Completed,
		ReservedCores:   j.Cores,
		WalltimeElapsed: j.Walltime().Seconds(),
	}
	return json.Marshal(w)
}

// UnmarshalJSON reconstructs a Job from the flattened wire shape.
func (j *Job) UnmarshalJSON(data []byte) error {
	var w jobWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	j.Spec = JobSpec{
		Command:         w.Command,
		WorkingDir:      w.WorkingDir,
		LogFile:         w.LogFile,
		Priority:        w.Priority,
		Cores:           w.Cores,
		Depends:         w.Depends,
		Walltime:        w.Walltime,
		AlternateRunner: w.AlternateRunner,
	}
	j.JobID = w.JobID
	j.Status = w.Status
	j.Submitted = w.Submitted
	j.Started = w.Started
	j.Completed = w.Completed
	j.Cores = w.ReservedCores
	return nil
}
