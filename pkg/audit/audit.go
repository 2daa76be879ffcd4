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
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// 🏷️ Terminal statuses an audit record may carry
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// 🏷️ Action kinds recorded for mutating file operations. Reads are not
// audited, so there are no list or folder actions.
const (
	ActionRename = "RENAME"
	ActionMove   = "MOVE"
	ActionUpload = "UPLOAD"
	ActionCopy   = "COPY"
	ActionDelete = "DELETE"
)

// 📋 Event is one terminal action outcome. It never carries credentials or
// raw upstream payloads.
type Event struct {
	UserID       string `json:"userId"`
	Action       string `json:"action"`
	Provider     string `json:"provider"`
	ResourceID   string `json:"resourceId,omitempty"`
	ResourceName string `json:"resourceName,omitempty"`
	OperationID  string `json:"operationId,omitempty"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// record is the persisted line shape: an event plus its write timestamp
type record struct {
	Timestamp time.Time `json:"timestamp"`
	Event
}

// 🔌 Sink is an append-only, best-effort recorder. Log never fails into the
// caller: a sink that cannot write swallows the event.
type Sink interface {
	Log(event Event)
}

// 💾 FileSink appends one JSON line per event to a shared writer. Writes are
// serialized; append order is call order.
type FileSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	echo   *Echo
	diag   zerolog.Logger
}

// 🏭 NewFileSink opens (or creates) the audit log at path in append mode
func NewFileSink(path string, diag zerolog.Logger) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{w: f, closer: f, diag: diag}, nil
}

// 🏭 NewWriterSink wraps an arbitrary writer (used by tests)
func NewWriterSink(w io.Writer, diag zerolog.Logger) *FileSink {
	return &FileSink{w: w, diag: diag}
}

// 🖥️ WithEcho mirrors every event to a console echo
func (s *FileSink) WithEcho(echo *Echo) *FileSink {
	s.echo = echo
	return s
}

// 📝 Log appends the event. Failures are reported only on the diagnostic
// channel and must never reach the caller.
func (s *FileSink) Log(event Event) {
	if event.UserID == "" {
		event.UserID = "unknown"
	}

	line, err := json.Marshal(record{Timestamp: time.Now().UTC(), Event: event})
	if err != nil {
		s.diag.Debug().Err(err).Str("action", event.Action).Msg("dropping unmarshalable audit event")
		return
	}

	s.mu.Lock()
	_, err = s.w.Write(append(line, '\n'))
	s.mu.Unlock()
	if err != nil {
		s.diag.Debug().Err(err).Str("action", event.Action).Msg("dropping audit event after write failure")
		return
	}

	if s.echo != nil {
		s.echo.Print(event)
	}
}

// 🚪 Close releases the underlying file, if any
func (s *FileSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// 🙈 Nop is a sink that drops everything (tests, disabled auditing)
type Nop struct{}

func (Nop) Log(Event) {}
