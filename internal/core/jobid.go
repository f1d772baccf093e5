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

// Package core implements the in-memory scheduling data model: job
// identities, specs, records and the priority/dependency queue that
// tracks them.
package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidJobID is returned when a JobID string cannot be parsed.
var ErrInvalidJobID = errors.New("invalid job id")

// JobID uniquely identifies a job within a submission group. Group
// identifies the batch a job was submitted with; index is its position
// within that batch.
type JobID struct {
	Group uint `json:"group"`
	Index uint `json:"index"`

	// whole is true when Index was parsed as absent/"*" (the id refers
	// to the entire group, not a single job within it).
	whole bool
}

// NewJobID returns a concrete (group, index) identity.
func NewJobID(group, index uint) JobID {
	return JobID{Group: group, Index: index}
}

// IsWholeGroup reports whether this id was parsed without an index
// component ("G" or "G.*"), meaning "every job in this group".
func (id JobID) IsWholeGroup() bool {
	return id.whole
}

// String renders the canonical "G.III" form.
func (id JobID) String() string {
	return fmt.Sprintf("%d.%03d", id.Group, id.Index)
}

// Less orders JobIDs by group then index, matching JobQueue's tiebreak.
func (id JobID) Less(other JobID) bool {
	if id.Group != other.Group {
		return id.Group < other.Group
	}
	return id.Index < other.Index
}

// ParseJobID parses "G", "G.*" or "G.I" into a JobID. "G" and "G.*" set
// IsWholeGroup.
func ParseJobID(s string) (JobID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return JobID{}, ErrInvalidJobID
	}
	parts := strings.SplitN(s, ".", 2)
	group, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return JobID{}, fmt.Errorf("%w: %s", ErrInvalidJobID, s)
	}
	if len(parts) == 1 || parts[1] == "*" || parts[1] == "" {
		return JobID{Group: uint(group), whole: true}, nil
	}
	index, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return JobID{}, fmt.Errorf("%w: %s", ErrInvalidJobID, s)
	}
	return JobID{Group: uint(group), Index: uint(index)}, nil
}

