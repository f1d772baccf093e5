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

package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestEnvWatcherReportsResizeOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lqts.env")
	if err := os.WriteFile(path, []byte("LQTS_NWORKERS=2\n"), 0644); err != nil {
		t.Fatalf("write initial env: %v", err)
	}

	var mu sync.Mutex
	var got int
	w, err := NewEnvWatcher(path, 2, func(n int) {
		mu.Lock()
		got = n
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	w.Start()
	defer w.Stop()

	if err := os.WriteFile(path, []byte("LQTS_NWORKERS=6\n"), 0644); err != nil {
		t.Fatalf("rewrite env: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := got
		mu.Unlock()
		if n == 6 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected onResize(6) to be called, last seen %d", got)
}

func TestEnvWatcherIgnoresUnchangedValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lqts.env")
	if err := os.WriteFile(path, []byte("LQTS_NWORKERS=3\n"), 0644); err != nil {
		t.Fatalf("write initial env: %v", err)
	}

	calls := 0
	w, err := NewEnvWatcher(path, 3, func(int) { calls++ }, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	w.Start()
	defer w.Stop()

	// Rewrite with the identical value; touching an unrelated comment
	// line still triggers the fs event, but onResize must stay silent.
	if err := os.WriteFile(path, []byte("LQTS_NWORKERS=3\n# touched\n"), 0644); err != nil {
		t.Fatalf("rewrite env: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	if calls != 0 {
		t.Fatalf("expected no resize callback for unchanged value, got %d calls", calls)
	}
}
