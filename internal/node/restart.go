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

package node

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// ProcessRestarter schedules a restart by exiting the process after a
// delay, relying on an external supervisor (systemd, a container
// orchestrator) to restart it rather than self-forking.
type ProcessRestarter struct{}

// ScheduleRestart exits the process after the given delay.
func (ProcessRestarter) ScheduleRestart(after time.Duration) {
	log.Warnf("node: restart scheduled in %s", after)
	time.AfterFunc(after, func() {
		log.Warn("node: restarting now")
		os.Exit(0)
	})
}
