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

// Package archive gives completed jobs a durable home once the queue's
// bounded in-memory history evicts them ("completed_limit" in the
// config). Without it, a long-running daemon with a small
// completed_limit would silently lose the record of every job older
// than the most recent N.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/boltdb/bolt"

	"github.com/brakedust/lqts/internal/core"
)

// bucketCompletedJobs holds one entry per evicted completed job, keyed
// by its string job ID.
var bucketCompletedJobs = []byte("CompletedJobs")

// ErrNotFound is returned when a requested job ID isn't archived.
var ErrNotFound = errors.New("archive: job not found")

// Store is a durable, append-mostly record of jobs the in-memory queue
// has evicted. It is intentionally dumb: the queue is the source of
// truth while a job is live, the archive only remembers what happened.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bolt-backed archive at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.setup(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) setup() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCompletedJobs)
		return err
	})
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// OnEvicted is a core.JobQueue eviction callback: wire it with
// queue.OnEvicted(store.OnEvicted) so every job the queue's bounded
// history drops gets written here first.
func (s *Store) OnEvicted(job *core.Job) {
	_ = s.Put(job)
}

// Put upserts a job's record, keyed by its string job ID.
func (s *Store) Put(job *core.Job) error {
	blob, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("archive: marshal job %s: %w", job.JobID, err)
	}
	key := []byte(job.JobID.String())
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCompletedJobs).Put(key, blob)
	})
}

// Get looks up a single archived job by its string ID.
func (s *Store) Get(jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(bucketCompletedJobs).Get([]byte(jobID))
		if value == nil {
			return ErrNotFound
		}
		return json.Unmarshal(value, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns every archived job in key order. For a daemon with a
// bounded completed_limit this is expected to grow without limit over
// the life of the process; callers that expose this over HTTP should
// paginate.
func (s *Store) List() ([]*core.Job, error) {
	var jobs []*core.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketCompletedJobs).Cursor()
		for key, value := cursor.First(); key != nil; key, value = cursor.Next() {
			var job core.Job
			if err := json.Unmarshal(value, &job); err != nil {
				return fmt.Errorf("archive: unmarshal %s: %w", key, err)
			}
			jobs = append(jobs, &job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Count returns the number of archived jobs.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketCompletedJobs).Stats().KeyN
		return nil
	})
	return n, err
}
