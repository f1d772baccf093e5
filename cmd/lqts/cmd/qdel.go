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

	"github.com/brakedust/lqts/internal/core"
)

var qdelCmd = &cobra.Command{
	Use:   "qdel <job-id>...",
	Short: "delete one or more jobs, or whole groups (e.g. \"3\" or \"3.*\")",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQdel,
}

func init() {
	RootCmd.AddCommand(qdelCmd)
}

func parseJobIDArgs(args []string) ([]core.JobID, error) {
	ids := make([]core.JobID, 0, len(args))
	for _, raw := range args {
		id, err := core.ParseJobID(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid job id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runQdel(cmd *cobra.Command, args []string) error {
	ids, err := parseJobIDArgs(args)
	if err != nil {
		return err
	}
	deleted, err := newClient().Qdel(ids)
	if err != nil {
		return err
	}
	for _, id := range deleted {
		fmt.Println(id.String())
	}
	return nil
}
