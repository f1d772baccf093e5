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

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/brakedust/lqts/internal/core"
	"github.com/brakedust/lqts/pkg/client"
)

var qwaitPoll time.Duration

var qwaitCmd = &cobra.Command{
	Use:   "qwait <job-id>...",
	Short: "block until the given jobs have left the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQwait,
}

func init() {
	qwaitCmd.Flags().DurationVar(&qwaitPoll, "poll", 2*time.Second, "how often to poll the daemon")
	RootCmd.AddCommand(qwaitCmd)
}

func runQwait(cmd *cobra.Command, args []string) error {
	ids, err := parseJobIDArgs(args)
	if err != nil {
		return err
	}

	pending := make(map[core.JobID]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}

	c := newClient()
	running, queued := true, true
	opts := client.QstatOptions{Running: &running, Queued: &queued}

	for len(pending) > 0 {
		jobs, err := c.Qstat(opts)
		if err != nil {
			return err
		}

		inFlight := make(map[core.JobID]bool, len(jobs))
		for _, j := range jobs {
			inFlight[j.JobID] = true
		}

		for id := range pending {
			if !jobStillPending(id, inFlight) {
				fmt.Printf("%s finished\n", id)
				delete(pending, id)
			}
		}

		if len(pending) > 0 {
			time.Sleep(qwaitPoll)
		}
	}

	return nil
}

// jobStillPending reports whether id (which may name a whole group) has
// at least one running/queued job left in inFlight.
func jobStillPending(id core.JobID, inFlight map[core.JobID]bool) bool {
	if !id.IsWholeGroup() {
		return inFlight[id]
	}
	for seen := range inFlight {
		if seen.Group == id.Group {
			return true
		}
	}
	return false
}
