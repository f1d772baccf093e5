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

var qpriorityValue int

var qpriorityCmd = &cobra.Command{
	Use:   "qpriority <job-id>...",
	Short: "change the priority of one or more queued jobs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQpriority,
}

func init() {
	qpriorityCmd.Flags().IntVarP(&qpriorityValue, "priority", "p", 0, "new priority value")
	RootCmd.AddCommand(qpriorityCmd)
}

func runQpriority(cmd *cobra.Command, args []string) error {
	ids, err := parseJobIDArgs(args)
	if err != nil {
		return err
	}
	if err := newClient().Qpriority(ids, qpriorityValue); err != nil {
		return err
	}
	fmt.Println("priority updated")
	return nil
}
