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

// Package client is the Go HTTP client library for talking to a
// running lqtsd daemon, used by the qsub/qstat/qdel/... CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brakedust/lqts/internal/core"
)

// Client talks to one lqtsd daemon over HTTP.
type Client struct {
	http    *http.Client
	baseURL string
}

// New returns a Client that talks to the daemon at addr, a "host:port"
// pair.
func New(addr string) *Client {
	return &Client{
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: fmt.Sprintf("http://%s/api_v1", addr),
	}
}

// Close releases any idle connections held open by the client.
func (c *Client) Close() {
	if t, ok := c.http.Transport.(*http.Transport); ok && t != nil {
		t.CloseIdleConnections()
	}
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + path
	if query != nil {
		u += "?" + query.Encode()
	}
	return u
}

var errAPI = errors.New("client: daemon returned an error")

func apiError(body []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("%w: %s", errAPI, e.Error)
	}
	return fmt.Errorf("%w: %s", errAPI, string(body))
}

func (c *Client) doJSON(method, uri string, reqBody, respBody interface{}) error {
	var reader *bytes.Reader
	if reqBody != nil {
		blob, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(blob)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, uri, reader)
	if err != nil {
		return err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		return apiError(buf.Bytes())
	}
	if respBody == nil || resp.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(respBody)
}

// Qsub submits one or more job specs, returning the assigned JobIDs.
func (c *Client) Qsub(specs []core.JobSpec) ([]core.JobID, error) {
	var ids []core.JobID
	err := c.doJSON(http.MethodPost, c.url("/qsub", nil), specs, &ids)
	return ids, err
}

// QstatOptions selects which buckets Qstat returns.
type QstatOptions struct {
	Running   *bool
	Queued    *bool
	Completed *bool
}

// Qstat fetches jobs from the requested buckets (defaults: running and
// queued, not completed).
func (c *Client) Qstat(opts QstatOptions) ([]core.Job, error) {
	q := url.Values{}
	if opts.Running != nil {
		q.Set("running", strconv.FormatBool(*opts.Running))
	}
	if opts.Queued != nil {
		q.Set("queued", strconv.FormatBool(*opts.Queued))
	}
	if opts.Completed != nil {
		q.Set("completed", strconv.FormatBool(*opts.Completed))
	}
	var jobs []core.Job
	err := c.doJSON(http.MethodGet, c.url("/qstat", q), nil, &jobs)
	return jobs, err
}

// Qsummary returns the current running and queued counts.
func (c *Client) Qsummary() (running, queued int, err error) {
	var summary map[string]int
	if err = c.doJSON(http.MethodGet, c.url("/qsummary", nil), nil, &summary); err != nil {
		return 0, 0, err
	}
	return summary["Running"], summary["Queued"], nil
}

// GetWorkers returns the daemon's current max_workers.
func (c *Client) GetWorkers() (int, error) {
	var n int
	err := c.doJSON(http.MethodGet, c.url("/workers", nil), nil, &n)
	return n, err
}

// SetWorkers resizes the pool and returns the new max_workers.
func (c *Client) SetWorkers(count int) (int, error) {
	q := url.Values{"count": {strconv.Itoa(count)}}
	var n int
	err := c.doJSON(http.MethodPost, c.url("/workers", q), nil, &n)
	return n, err
}

// JobGroup lists every JobID belonging to group.
func (c *Client) JobGroup(group uint) ([]core.JobID, error) {
	q := url.Values{"group_number": {strconv.FormatUint(uint64(group), 10)}}
	var ids []core.JobID
	err := c.doJSON(http.MethodGet, c.url("/jobgroup", q), nil, &ids)
	return ids, err
}

// jobIDRef is the wire shape expected by qdel/qpriority/resume: a null
// index means "the whole group".
type jobIDRef struct {
	Group uint  `json:"group"`
	Index *uint `json:"index"`
}

func toRefs(ids []core.JobID) []jobIDRef {
	refs := make([]jobIDRef, 0, len(ids))
	for _, id := range ids {
		if id.IsWholeGroup() {
			refs = append(refs, jobIDRef{Group: id.Group})
			continue
		}
		idx := id.Index
		refs = append(refs, jobIDRef{Group: id.Group, Index: &idx})
	}
	return refs
}

// Qdel deletes the given job IDs (whole-group IDs included), returning
// the ones actually deleted.
func (c *Client) Qdel(ids []core.JobID) ([]core.JobID, error) {
	var result struct {
		Deleted []core.JobID `json:"Deleted jobs"`
	}
	err := c.doJSON(http.MethodPost, c.url("/qdel", nil), toRefs(ids), &result)
	return result.Deleted, err
}

// Qpriority sets the priority of the given (queued) job IDs.
func (c *Client) Qpriority(ids []core.JobID, priority int) error {
	q := url.Values{"priority": {strconv.Itoa(priority)}}
	return c.doJSON(http.MethodPost, c.url("/qpriority", q), toRefs(ids), nil)
}

// Qclear kills every running job and clears the queue. really must be
// true or the daemon refuses the request.
func (c *Client) Qclear(really bool) (string, error) {
	q := url.Values{"really": {strconv.FormatBool(really)}}
	var status string
	err := c.doJSON(http.MethodPost, c.url("/qclear", q), nil, &status)
	return status, err
}

// ClearCompleted empties the completed-jobs history. really must be
// true or the daemon refuses the request.
func (c *Client) ClearCompleted(really bool) (string, error) {
	q := url.Values{"really": {strconv.FormatBool(really)}}
	var status string
	err := c.doJSON(http.MethodPost, c.url("/clear_completed", q), nil, &status)
	return status, err
}

// Resume transitions the given Paused job IDs back to Queued.
func (c *Client) Resume(ids []core.JobID) ([]core.JobID, error) {
	var resumed []core.JobID
	err := c.doJSON(http.MethodPost, c.url("/resume", nil), toRefs(ids), &resumed)
	return resumed, err
}

// Archive looks up a single job by its string ID ("G.III") in the
// daemon's durable evicted-job archive, answering what happened to a
// job long after completed_limit evicted it from memory.
func (c *Client) Archive(jobID string) (core.Job, error) {
	q := url.Values{"job_id": {jobID}}
	var job core.Job
	err := c.doJSON(http.MethodGet, c.url("/archive", q), nil, &job)
	return job, err
}

// ArchiveList returns every job in the daemon's durable archive.
func (c *Client) ArchiveList() ([]core.Job, error) {
	var jobs []core.Job
	err := c.doJSON(http.MethodGet, c.url("/archive", nil), nil, &jobs)
	return jobs, err
}

// NewUnix returns a Client that dials a unix socket instead of TCP.
func NewUnix(socketPath string) *Client {
	c := New("unix")
	c.http.Transport = &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return net.Dial("unix", socketPath)
		},
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	c.baseURL = "http://unix/api_v1"
	return c
}
