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

	"github.com/junctionrelay/relaycore/internal/status"
)

func init() {
	RootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the node's connection status",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()

		var snap status.Snapshot
		if err := getJSON("/api/connection/status", &snap); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetColWidth(20)
		table.SetHeader([]string{"field", "value"})
		table.Append([]string{"wifi", fmt.Sprintf("%v", snap.WifiConnected)})
		table.Append([]string{"ethernet", fmt.Sprintf("%v", snap.EthernetConnected)})
		table.Append([]string{"peer radio", fmt.Sprintf("%v", snap.PeerRadioActive)})
		table.Append([]string{"broker", fmt.Sprintf("%v", snap.BrokerConnected)})
		table.Append([]string{"uplink", fmt.Sprintf("%v", snap.UplinkConnected)})
		table.Append([]string{"active network", snap.ActiveNetworkType})
		table.Append([]string{"ip", snap.IP})
		table.Append([]string{"mac", snap.MAC})
		table.Append([]string{"backend", snap.BackendServerIP})
		table.Render()
	},
}
