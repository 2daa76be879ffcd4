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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ⏱️ Default retention for operation records and the sweep cadence
const (
	DefaultTTL           = time.Hour
	DefaultSweepInterval = time.Minute
)

// 🗄️ Store is the in-memory registry of operation records. It is the single
// piece of shared mutable state touched by monitors and status reads, so
// every access holds the one mutex: updates are partial merges that must not
// interleave.
type Store struct {
	mu  sync.Mutex
	ops map[string]*Operation

	// now is swappable for TTL tests
	now func() time.Time
}

// 🏭 NewStore creates an empty operation store
func NewStore() *Store {
	return &Store{
		ops: make(map[string]*Operation),
		now: time.Now,
	}
}

// 📦 Create registers a fresh pending operation and returns a copy of it
func (s *Store) Create(typ Type, providerName string, metadata map[string]string) Operation {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	op := &Operation{
		ID:        uuid.NewString(),
		Type:      typ,
		Provider:  providerName,
		Status:    StatusPending,
		Metadata:  make(map[string]string, len(metadata)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for k, v := range metadata {
		op.Metadata[k] = v
	}

	s.ops[op.ID] = op
	return op.clone()
}

// 🔍 Get returns a copy of the operation, or false if it is absent
// (never existed or already swept).
func (s *Store) Get(id string) (Operation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return Operation{}, false
	}
	return op.clone(), true
}

// 📝 Update is a partial merge carrier. Nil fields are left untouched;
// Metadata is layered over the existing keys, never replacing them wholesale.
type Update struct {
	Status   *Status
	Metadata map[string]string
	Result   *Result
	Error    *string
}

// 🔄 Update merges upd into the record. An absent id is a silent no-op:
// callers must tolerate a record that vanished to the TTL sweep. A terminal
// record is immutable except for TTL deletion, and a status may never move
// backward.
func (s *Store) Update(id string, upd Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok {
		return
	}
	if op.Status.Terminal() {
		return
	}

	if upd.Status != nil && upd.Status.rank() >= op.Status.rank() {
		op.Status = *upd.Status
	}
	if upd.Metadata != nil {
		for k, v := range upd.Metadata {
			op.Metadata[k] = v
		}
	}
	if upd.Result != nil {
		r := *upd.Result
		op.Result = &r
	}
	if upd.Error != nil {
		op.Error = *upd.Error
	}
	op.UpdatedAt = s.now()
}

// 🧹 Sweep deletes every record whose last update is older than ttl,
// regardless of status — even a stuck pending record is reclaimed. Returns
// the number of records deleted.
func (s *Store) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	deleted := 0
	for id, op := range s.ops {
		if now.Sub(op.UpdatedAt) > ttl {
			delete(s.ops, id)
			deleted++
		}
	}
	return deleted
}

// 🧮 Len returns the number of live records
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// ⏲️ RunSweeper sweeps on a fixed period until ctx is done. This is the only
// background task not tied to a specific operation.
func (s *Store) RunSweeper(ctx context.Context, period, ttl time.Duration) {
	logger := zerolog.Ctx(ctx)
	if period <= 0 {
		period = DefaultSweepInterval
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(ttl); n > 0 {
				logger.Debug().Int("deleted", n).Msg("swept expired operations")
			}
		}
	}
}
