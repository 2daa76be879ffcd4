// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package audit

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// 🎨 Display configuration
const (
	actionWidth = 8  // width for the action column
	nameWidth   = 35 // base width for resource names
)

// 🖥️ Echo mirrors audit events to a console for interactive runs
type Echo struct {
	mu      sync.Mutex
	console io.Writer
}

// 🏭 NewEcho creates a console echo writing to console
func NewEcho(console io.Writer) *Echo {
	return &Echo{console: console}
}

// 🖨️ Print writes one formatted line for the event. Like the sink itself, it
// swallows write failures.
func (e *Echo) Print(event Event) {
	name := event.ResourceName
	if name == "" {
		name = event.ResourceID
	}
	if len(name) > nameWidth {
		name = name[:nameWidth-3] + "..."
	}

	statusText := color.GreenString("✓ %s", event.Status)
	if event.Status == StatusFailed {
		statusText = color.RedString("✗ %s", event.Status)
		if event.Error != "" {
			statusText += color.RedString(" (%s)", event.Error)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.console, "  %-*s %-*s %s\n", actionWidth, event.Action, nameWidth, name, statusText)
}
