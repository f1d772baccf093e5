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

// Command lqtsd is the daemon: it owns the job queue, the CPU
// resource manager and process pool, and serves the /api_v1/ HTTP
// surface that qsub/qstat/qdel and friends talk to.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/activation"
	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/brakedust/lqts/internal/api"
	"github.com/brakedust/lqts/internal/archive"
	"github.com/brakedust/lqts/internal/config"
	"github.com/brakedust/lqts/internal/core"
	"github.com/brakedust/lqts/internal/cpuset"
	"github.com/brakedust/lqts/internal/pool"
	"github.com/brakedust/lqts/internal/snapshot"
	"github.com/brakedust/lqts/internal/watch"
)

var (
	envFile     = ".env"
	archivePath = "lqts-archive.db"
)

func mainLoop() int {
	pflag.StringVarP(&envFile, "env-file", "e", ".env", "Path to a .env file of LQTS_* settings")
	pflag.StringVarP(&archivePath, "archive", "a", "lqts-archive.db", "Path to the durable archive of evicted completed jobs")
	pflag.Parse()

	form := &log.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"}
	log.SetFormatter(form)

	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", cfg.LogFile, err)
			return 1
		}
		defer f.Close()
		log.SetOutput(f)
	}

	logEntry := log.WithField("component", "lqtsd")
	logEntry.WithField("addr", cfg.Addr()).Info("starting lqtsd")

	store, err := archive.Open(archivePath)
	if err != nil {
		logEntry.WithError(err).Error("failed to open archive")
		return 1
	}
	defer store.Close()

	queue := core.NewJobQueue(cfg.CompletedLimit, logEntry.WithField("component", "queue"))
	queue.OnEvicted(store.OnEvicted)

	if cfg.ResumeOnStart && cfg.QueueFile != "" {
		loaded, err := snapshot.Read(cfg.QueueFile)
		if err != nil {
			logEntry.WithError(err).Warn("failed to read queue snapshot, starting empty")
		} else {
			snapshot.Resume(queue, loaded)
			logEntry.WithFields(log.Fields{
				"running":   len(loaded.Running),
				"queued":    len(loaded.Queued),
				"completed": len(loaded.Completed),
			}).Info("resumed queue from snapshot")
		}
	}

	cpus := cpuset.New(cfg.NWorkers)
	procPool := pool.New(queue, cpus, logEntry.WithField("component", "pool"))
	procPool.Start()
	defer procPool.Shutdown(true)

	apiServer := api.New(queue, procPool, store, logEntry.WithField("component", "api"))
	apiServer.OnQdel(func(ids []core.JobID) {
		for _, id := range ids {
			procPool.KillJob(id)
		}
	})

	var envWatcher *watch.EnvWatcher
	if cfg.EnvFile != "" {
		envWatcher, err = watch.NewEnvWatcher(cfg.EnvFile, cfg.NWorkers, procPool.Resize, logEntry.WithField("component", "watch"))
		if err != nil {
			logEntry.WithError(err).Warn("failed to start .env watcher, live resize disabled")
		} else {
			envWatcher.Start()
			defer envWatcher.Stop()
		}
	}

	listener, systemdEnabled, err := bind(cfg.Addr())
	if err != nil {
		logEntry.WithError(err).Error("failed to bind listener")
		return 1
	}

	srv := &http.Server{Handler: apiServer}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdown
		logEntry.Warn("lqtsd shutting down")
		if cfg.QueueFile != "" {
			snap := queue.Snapshot(true, true, true)
			if err := snapshot.Write(cfg.QueueFile, snap); err != nil {
				logEntry.WithError(err).Error("failed to write queue snapshot")
			}
		}
		srv.Close()
	}()

	if systemdEnabled {
		daemon.SdNotify(false, "READY=1")
	}

	if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		logEntry.WithError(err).Error("server exited with error")
		return 1
	}
	return 0
}

// bind prefers a systemd socket-activated listener, falling back to a
// plain TCP listener on addr ("IP_ADDRESS"/"PORT" in the config).
func bind(addr string) (net.Listener, bool, error) {
	if _, ok := os.LookupEnv("LISTEN_FDS"); ok {
		listeners, err := activation.Listeners(true)
		if err != nil {
			return nil, false, err
		}
		if len(listeners) != 1 {
			return nil, false, fmt.Errorf("expected exactly one socket-activated listener, got %d", len(listeners))
		}
		return listeners[0], true, nil
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, false, err
	}
	return l, false, nil
}

func main() {
	os.Exit(mainLoop())
}
