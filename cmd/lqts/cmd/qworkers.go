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

var qworkersCmd = &cobra.Command{
	Use:   "qworkers [count]",
	Short: "show or change the number of worker cores the daemon uses",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runQworkers,
}

func init() {
	RootCmd.AddCommand(qworkersCmd)
}

func runQworkers(cmd *cobra.Command, args []string) error {
	c := newClient()

	if len(args) == 0 {
		n, err := c.GetWorkers()
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	}

	var count int
	if _, err := fmt.Sscanf(args[0], "%d", &count); err != nil {
		return fmt.Errorf("invalid worker count %q: %w", args[0], err)
	}

	n, err := c.SetWorkers(count)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}
