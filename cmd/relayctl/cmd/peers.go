/*
Copyright (c) The JunctionRelay Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/junctionrelay/relaycore/internal/peer"
)

func init() {
	RootCmd.AddCommand(peersCmd)
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List the node's ESPNow-style peer table",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()

		var peers []peer.Peer
		if err := getJSON("/api/espnow/peers", &peers); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetColWidth(20)
		table.SetHeader([]string{"mac", "display name", "active", "rssi", "last seen"})
		for _, p := range peers {
			table.Append([]string{
				p.MAC.String(),
				p.DisplayName,
				fmt.Sprintf("%v", p.Active),
				fmt.Sprintf("%d", p.RSSI),
				p.LastSeen.Format("15:04:05"),
			})
		}
		table.Render()
	},
}
