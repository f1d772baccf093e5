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
	"strings"

	"github.com/spf13/cobra"

	"github.com/brakedust/lqts/internal/core"
)

var (
	qsubPriority int
	qsubLogFile  string
	qsubCores    int
	qsubDepends  []string
	qsubWalltime float64
)

var qsubCmd = &cobra.Command{
	Use:   "qsub <command> [args...]",
	Short: "submit a job to the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQsub,
}

func init() {
	qsubCmd.Flags().IntVar(&qsubPriority, "priority", core.DefaultPriority, "job priority, higher runs first")
	qsubCmd.Flags().StringVar(&qsubLogFile, "logfile", "", "path to write the job's stdout/stderr log")
	qsubCmd.Flags().IntVar(&qsubCores, "cores", 1, "number of cores to reserve")
	qsubCmd.Flags().StringSliceVarP(&qsubDepends, "depend-on", "d", nil, "job ids this job depends on")
	qsubCmd.Flags().Float64Var(&qsubWalltime, "walltime", 0, "kill the job after this many seconds")
	RootCmd.AddCommand(qsubCmd)
}

func runQsub(cmd *cobra.Command, args []string) error {
	command := strings.Join(args, " ")

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	depends := make([]core.JobID, 0, len(qsubDepends))
	for _, raw := range qsubDepends {
		id, err := core.ParseJobID(raw)
		if err != nil {
			return fmt.Errorf("invalid --depend-on %q: %w", raw, err)
		}
		depends = append(depends, id)
	}

	spec := core.JobSpec{
		Command:    command,
		WorkingDir: workDir,
		LogFile:    qsubLogFile,
		Priority:   qsubPriority,
		Cores:      qsubCores,
		Depends:    depends,
		Walltime:   qsubWalltime,
	}

	ids, err := newClient().Qsub([]core.JobSpec{spec})
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id.String())
	}
	return nil
}
