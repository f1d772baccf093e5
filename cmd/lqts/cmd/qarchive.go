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
	"github.com/spf13/cobra"

	"github.com/brakedust/lqts/internal/core"
)

var qarchiveCmd = &cobra.Command{
	Use:   "qarchive [job-id]",
	Short: "look up what happened to a job after it was evicted from completed history",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runQarchive,
}

func init() {
	RootCmd.AddCommand(qarchiveCmd)
}

func runQarchive(cmd *cobra.Command, args []string) error {
	c := newClient()

	if len(args) == 0 {
		jobs, err := c.ArchiveList()
		if err != nil {
			return err
		}
		printJobTable(jobs)
		return nil
	}

	job, err := c.Archive(args[0])
	if err != nil {
		return err
	}
	printJobTable([]core.Job{job})
	return nil
}
