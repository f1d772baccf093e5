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

// Package config resolves the daemon's settings from an optional .env
// file and the process environment, both under the LQTS_ prefix.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

const envPrefix = "LQTS_"

// Config holds every daemon-tunable setting.
type Config struct {
	IPAddress      string
	Port           int
	NWorkers       int
	LogFile        string
	QueueFile      string
	CompletedLimit int
	ResumeOnStart  bool
	SSLCert        string

	// EnvFile is the .env path that was (or would be) watched for
	// NWORKERS hot-reload; empty if none was found.
	EnvFile string
}

func defaultNWorkers() int {
	n := runtime.NumCPU() - 2
	if n < 1 {
		n = 1
	}
	return n
}

// Defaults returns the built-in fallback values, used before any .env
// file or environment variable is consulted.
func Defaults() Config {
	return Config{
		IPAddress:      "127.0.0.1",
		Port:           9200,
		NWorkers:       defaultNWorkers(),
		CompletedLimit: 1000,
		ResumeOnStart:  false,
	}
}

// Load builds a Config starting from Defaults(), then overlaying
// whatever LQTS_*-prefixed KEY=VALUE lines are found in envFile (if it
// exists — a missing .env is not an error), then the process
// environment, which always wins.
func Load(envFile string) (Config, error) {
	cfg := Defaults()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			vars, err := godotenv.Read(envFile)
			if err != nil {
				return cfg, fmt.Errorf("config: read %s: %w", envFile, err)
			}
			cfg.applyMap(vars)
			cfg.EnvFile = envFile
		}
	}

	cfg.applyMap(environMap())
	return cfg, nil
}

func environMap() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}

func (c *Config) applyMap(vars map[string]string) {
	get := func(key string) (string, bool) {
		v, ok := vars[envPrefix+key]
		return v, ok
	}

	if v, ok := get("IP_ADDRESS"); ok {
		c.IPAddress = v
	}
	if v, ok := get("PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v, ok := get("NWORKERS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.NWorkers = n
		}
	}
	if v, ok := get("LOG_FILE"); ok {
		c.LogFile = v
	}
	if v, ok := get("QUEUE_FILE"); ok {
		c.QueueFile = v
	}
	if v, ok := get("COMPLETED_LIMIT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.CompletedLimit = n
		}
	}
	if v, ok := get("RESUME_ON_START_UP"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ResumeOnStart = b
		}
	}
	if v, ok := get("SSL_CERT"); ok {
		c.SSLCert = v
	}
}

// Addr is the host:port the HTTP API should bind to.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.IPAddress, c.Port)
}
