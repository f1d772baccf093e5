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

// Package cpuset implements the CPUResourceManager: a small set of
// logical core indices that jobs reserve and release for the duration
// of their run.
package cpuset

import (
	"runtime"
	"sort"
	"sync"
)

// state is whether a single core index is free for reservation.
type state int

const (
	idle state = iota
	busy
)

// Manager models N logical cores as idle/busy and hands out disjoint
// reservations by lowest-index-first.
type Manager struct {
	mu    sync.Mutex
	cores map[int]state
}

// defaultCoreCount returns system_cpu_count-2 clamped to at least 1,
// matching lqts/resources.py's SYSTEM_CPU_COUNT-2.
func defaultCoreCount() int {
	n := runtime.NumCPU() - 2
	if n < 1 {
		n = 1
	}
	return n
}

// New constructs a Manager with the given number of cores. A count <= 0
// uses defaultCoreCount().
func New(count int) *Manager {
	if count <= 0 {
		count = defaultCoreCount()
	}
	m := &Manager{cores: make(map[int]state, count)}
	for i := 0; i < count; i++ {
		m.cores[i] = idle
	}
	return m
}

// AvailableCount returns the number of idle cores.
func (m *Manager) AvailableCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.availableCountLocked()
}

func (m *Manager) availableCountLocked() int {
	n := 0
	for _, s := range m.cores {
		if s == idle {
			n++
		}
	}
	return n
}

// Total returns the number of cores currently configured (idle + busy).
func (m *Manager) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cores)
}

// Reserve atomically picks the count lowest-numbered idle cores, marks
// them busy, and returns their indices. If fewer than count are idle,
// it mutates nothing and reports failure.
func (m *Manager) Reserve(count int) (ok bool, cores []int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.availableCountLocked() < count {
		return false, nil
	}

	var idleCores []int
	for idx, s := range m.cores {
		if s == idle {
			idleCores = append(idleCores, idx)
		}
	}
	sort.Ints(idleCores)

	picked := append([]int(nil), idleCores[:count]...)
	for _, idx := range picked {
		m.cores[idx] = busy
	}
	return true, picked
}

// Free marks each listed core idle. Indices outside the currently
// configured range (dropped by a prior Resize) are silently ignored.
func (m *Manager) Free(cores []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, idx := range cores {
		if _, ok := m.cores[idx]; ok {
			m.cores[idx] = idle
		}
	}
}

// Resize grows or shrinks the configured core set. Growing adds new
// idle cores; shrinking drops the highest-numbered cores — if any of
// those were busy, a later Free() call naming them is a silent no-op.
// Resizing to the current count is a no-op.
func (m *Manager) Resize(newCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := len(m.cores)
	switch {
	case newCount == current:
		return
	case newCount > current:
		for i := current; i < newCount; i++ {
			m.cores[i] = idle
		}
	default:
		for i := current - 1; i >= newCount; i-- {
			delete(m.cores, i)
		}
	}
}
