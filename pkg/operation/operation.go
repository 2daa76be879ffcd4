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

package operation

import "time"

// 🏷️ Type is the kind of long-running operation
type Type string

const (
	// TypeCopy is currently the only asynchronous operation kind
	TypeCopy Type = "copy"
)

// 📊 Status is the lifecycle state of an operation. Transitions are
// monotonic: pending → running → {completed, failed}, never backward.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// rank orders statuses for monotonicity checks
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// 🏁 Terminal reports whether no further transition can occur
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ✅ Result is the opaque success payload of a completed operation
type Result struct {
	ResourceID string `json:"resourceId"`
	Name       string `json:"name,omitempty"`
}

// 📦 Operation is the durable unit of async work. Its id is the only
// externally addressable handle.
type Operation struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Provider  string            `json:"provider"`
	Status    Status            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Result    *Result           `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// 🏷️ Well-known metadata keys written at creation and by the monitor
const (
	MetaSourceID       = "source_id"
	MetaTargetFolderID = "target_folder_id"
	MetaNewName        = "new_name"
	MetaMonitorURL     = "monitor_url"
	MetaUserID         = "user_id"
	MetaProgress       = "progress"
)

// clone returns a deep copy so callers can never mutate the stored record
func (op *Operation) clone() Operation {
	out := *op
	if op.Metadata != nil {
		out.Metadata = make(map[string]string, len(op.Metadata))
		for k, v := range op.Metadata {
			out.Metadata[k] = v
		}
	}
	if op.Result != nil {
		r := *op.Result
		out.Result = &r
	}
	return out
}
