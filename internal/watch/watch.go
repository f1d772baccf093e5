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

// Package watch reloads LQTS_NWORKERS from the .env file while the
// daemon runs, so an operator can edit it and have the pool resize
// without a restart.
package watch

import (
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// EnvWatcher watches a single .env file for writes and, on each one,
// re-reads LQTS_NWORKERS and invokes onResize if it changed.
type EnvWatcher struct {
	path     string
	onResize func(int)
	log      *log.Entry

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu   sync.Mutex
	last int
}

// NewEnvWatcher constructs a watcher for path, reporting resizes via
// onResize. last is the worker count currently in effect, used to
// suppress a callback when NWORKERS is unchanged or absent.
func NewEnvWatcher(path string, last int, onResize func(int), logger *log.Entry) (*EnvWatcher, error) {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}
	return &EnvWatcher{
		path:     path,
		onResize: onResize,
		log:      logger,
		watcher:  w,
		done:     make(chan struct{}),
		last:     last,
	}, nil
}

// Start launches the watch loop in the background.
func (w *EnvWatcher) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *EnvWatcher) run() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("env watcher error")
		case <-w.done:
			return
		}
	}
}

func (w *EnvWatcher) reload() {
	vars, err := godotenv.Read(w.path)
	if err != nil {
		w.log.WithError(err).Warn("failed to re-read env file")
		return
	}
	raw, ok := vars["LQTS_NWORKERS"]
	if !ok {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		w.log.WithField("value", raw).Warn("ignoring invalid LQTS_NWORKERS")
		return
	}

	w.mu.Lock()
	changed := n != w.last
	w.last = n
	w.mu.Unlock()

	if changed {
		w.log.WithField("nworkers", n).Info("reloaded worker count from env file")
		w.onResize(n)
	}
}

// Stop ends the watch loop and releases the underlying inotify handle.
func (w *EnvWatcher) Stop() {
	close(w.done)
	w.watcher.Close()
	w.wg.Wait()
}
