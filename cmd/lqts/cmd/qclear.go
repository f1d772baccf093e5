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

	"github.com/spf13/cobra"
)

var (
	qclearReally        bool
	qclearCompletedOnly bool
)

var qclearCmd = &cobra.Command{
	Use:   "qclear",
	Short: "kill every running job and empty the queue",
	Args:  cobra.NoArgs,
	RunE:  runQclear,
}

func init() {
	qclearCmd.Flags().BoolVar(&qclearReally, "really", false, "confirm the destructive operation")
	qclearCmd.Flags().BoolVar(&qclearCompletedOnly, "completed-only", false, "only clear completed-job history, leave running/queued jobs alone")
	RootCmd.AddCommand(qclearCmd)
}

func runQclear(cmd *cobra.Command, args []string) error {
	if !qclearReally {
		return fmt.Errorf("refusing to clear the queue without --really")
	}

	c := newClient()
	var (
		status string
		err    error
	)
	if qclearCompletedOnly {
		status, err = c.ClearCompleted(true)
	} else {
		status, err = c.Qclear(true)
	}
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}
