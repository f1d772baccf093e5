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

	"github.com/brakedust/lqts/pkg/client"
)

// RootCmd is the main entry point into lqts.
var RootCmd = &cobra.Command{
	Use:   "lqts",
	Short: "lqts talks to a running lqtsd job scheduler",
}

var daemonAddr string

func init() {
	RootCmd.PersistentFlags().StringVarP(&daemonAddr, "addr", "a", "127.0.0.1:9200", "Address of the lqtsd daemon")
}

func newClient() *client.Client {
	return client.New(daemonAddr)
}
