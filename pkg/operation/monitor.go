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

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/driveproxy/pkg/audit"
	"github.com/walteh/driveproxy/pkg/provider"
)

// ⏱️ Default poll cadence and hard deadline for one copy operation
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxWait      = time.Minute
)

// 🔭 Poller is the one remote capability the monitor needs
type Poller interface {
	PollCopy(ctx context.Context, monitorURL string) (provider.CopyProgress, error)
}

// 🛰️ Monitor drives one operation from pending to a terminal state by
// polling its monitor URL on a fixed cadence, under a hard deadline.
type Monitor struct {
	Store    *Store
	Sink     audit.Sink
	Poller   Poller
	Interval time.Duration
	MaxWait  time.Duration
}

// 🏭 NewMonitor creates a monitor with defaulted cadence and deadline
func NewMonitor(store *Store, sink audit.Sink, poller Poller) *Monitor {
	return &Monitor{
		Store:    store,
		Sink:     sink,
		Poller:   poller,
		Interval: DefaultPollInterval,
		MaxWait:  DefaultMaxWait,
	}
}

// 👀 Watch runs the poll loop for one operation. It is meant to be spawned as
// a detached goroutine: it never returns an error, never panics outward, and
// every exit path writes exactly one terminal state and one audit record.
// If the record vanishes mid-poll (TTL eviction) the store writes become
// no-ops but the loop still runs to its own completion or deadline.
func (m *Monitor) Watch(ctx context.Context, op Operation, job provider.CopyJob) {
	logger := zerolog.Ctx(ctx).With().Str("operation_id", op.ID).Logger()

	interval := m.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	maxWait := m.MaxWait
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	running := StatusRunning
	m.Store.Update(op.ID, Update{Status: &running})

	start := time.Now()
	for {
		// The deadline is checked on loop re-entry, before the next network
		// call. An in-flight poll can delay enforcement by one iteration but
		// never bypass it.
		if time.Since(start) > maxWait {
			m.fail(op, job, fmt.Sprintf("copy operation timed out after %s", maxWait), &logger)
			return
		}

		progress, err := m.Poller.PollCopy(ctx, job.MonitorURL)
		if err != nil {
			// A single transport hiccup is fatal to the operation rather than
			// retried: the deadline bounds total duration, and a copy has no
			// partial success.
			perr := provider.Wrap(err, "pollCopy", provider.CodeMonitorError)
			m.fail(op, job, perr.Message, &logger)
			return
		}

		switch progress.State {
		case provider.CopyCompleted:
			result := &Result{ResourceID: progress.ResourceID, Name: job.NewName}
			completed := StatusCompleted
			m.Store.Update(op.ID, Update{Status: &completed, Result: result})
			logger.Debug().Str("resource_id", progress.ResourceID).Msg("copy completed")
			m.logTerminal(op, job, audit.StatusSuccess, "", progress.ResourceID)
			return

		case provider.CopyFailed:
			msg := progress.Message
			if msg == "" {
				msg = "copy failed"
			}
			m.fail(op, job, msg, &logger)
			return

		default:
			if progress.Percent != nil {
				m.Store.Update(op.ID, Update{
					Metadata: map[string]string{
						MetaProgress: strconv.FormatFloat(*progress.Percent, 'f', -1, 64),
					},
				})
			}
		}

		select {
		case <-ctx.Done():
			m.fail(op, job, "copy monitoring aborted: "+ctx.Err().Error(), &logger)
			return
		case <-time.After(interval):
		}
	}
}

// ❌ fail writes the terminal failed state and its audit record
func (m *Monitor) fail(op Operation, job provider.CopyJob, msg string, logger *zerolog.Logger) {
	failed := StatusFailed
	m.Store.Update(op.ID, Update{Status: &failed, Error: &msg})
	logger.Debug().Str("error", msg).Msg("copy failed")
	m.logTerminal(op, job, audit.StatusFailed, msg, "")
}

// 📋 logTerminal emits the single audit record for a terminal outcome. The
// resource id prefers the completion-supplied id over the requested source.
func (m *Monitor) logTerminal(op Operation, job provider.CopyJob, status, errMsg, resourceID string) {
	if resourceID == "" {
		resourceID = job.SourceID
	}
	userID := op.Metadata[MetaUserID]
	if userID == "" {
		userID = "unknown"
	}
	m.Sink.Log(audit.Event{
		UserID:       userID,
		Action:       audit.ActionCopy,
		Provider:     op.Provider,
		ResourceID:   resourceID,
		ResourceName: job.NewName,
		OperationID:  op.ID,
		Status:       status,
		Error:        errMsg,
	})
}
