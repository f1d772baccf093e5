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
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/brakedust/lqts/internal/core"
	"github.com/brakedust/lqts/pkg/client"
)

var (
	qstatShowCompleted bool
	qstatHideRunning   bool
	qstatHideQueued    bool
)

var qstatCmd = &cobra.Command{
	Use:   "qstat",
	Short: "show queued, running, and (optionally) completed jobs",
	Args:  cobra.NoArgs,
	RunE:  runQstat,
}

func init() {
	qstatCmd.Flags().BoolVar(&qstatShowCompleted, "completed", false, "include completed jobs")
	qstatCmd.Flags().BoolVar(&qstatHideRunning, "no-running", false, "exclude running jobs")
	qstatCmd.Flags().BoolVar(&qstatHideQueued, "no-queued", false, "exclude queued jobs")
	RootCmd.AddCommand(qstatCmd)
}

func runQstat(cmd *cobra.Command, args []string) error {
	running := !qstatHideRunning
	queued := !qstatHideQueued
	opts := client.QstatOptions{
		Running:   &running,
		Queued:    &queued,
		Completed: &qstatShowCompleted,
	}

	jobs, err := newClient().Qstat(opts)
	if err != nil {
		return err
	}
	printJobTable(jobs)
	return nil
}

func printJobTable(jobs []core.Job) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Job ID", "Status", "Priority", "Cores", "Walltime", "Command"})
	table.SetBorder(false)

	for _, j := range jobs {
		table.Append([]string{
			j.JobID.String(),
			string(j.Status),
			fmt.Sprintf("%d", j.Spec.Priority),
			fmt.Sprintf("%d", j.Spec.Cores),
			j.Walltime().String(),
			j.Spec.Command,
		})
	}
	table.Render()
}
