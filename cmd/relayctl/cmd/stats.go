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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// queueStats mirrors the wire shape of internal/admin's (unexported)
// queueStats type.
type queueStats struct {
	Depth    int   `json:"depth"`
	Capacity int   `json:"capacity"`
	Dropped  int64 `json:"dropped"`
}

// systemStats mirrors the wire shape of internal/admin's (unexported)
// systemStats type.
type systemStats struct {
	UptimeMs        int64      `json:"uptimeMs"`
	SensorQueue     queueStats `json:"sensorQueue"`
	ConfigQueue     queueStats `json:"configQueue"`
	ConfigReceived  bool       `json:"hasReceivedConfig"`
	ConfigCount     int64      `json:"configCount"`
	BrokerConnected bool       `json:"brokerConnected"`
	PrimaryProtocol string     `json:"primaryProtocol"`
}

func init() {
	RootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVarP(&statsLiteFlag, "lite", "l", false, "poll the lightweight stats endpoint")
}

var statsLiteFlag bool

func printStats(st systemStats) error {
	toPrint, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(toPrint))
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print node system stats in JSON format",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()

		path := "/api/system/stats"
		if statsLiteFlag {
			path = "/api/system/statslite"
		}

		var st systemStats
		if err := getJSON(path, &st); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		if err := printStats(st); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}
