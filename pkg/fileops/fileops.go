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

package fileops

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/driveproxy/pkg/audit"
	"github.com/walteh/driveproxy/pkg/operation"
	"github.com/walteh/driveproxy/pkg/provider"
	"gitlab.com/tozd/go/errors"
)

// ⚙️ Options wires a Service together
type Options struct {
	Provider     provider.Provider
	Store        *operation.Store
	Sink         audit.Sink
	PollInterval time.Duration
	MaxWait      time.Duration
}

// 🎯 Service is the file-operation façade: synchronous CRUD pass-through
// plus the asynchronous copy entry points. Every mutating call produces
// exactly one audit record — synchronously for sync ops, via the monitor for
// the copy.
type Service struct {
	provider provider.Provider
	store    *operation.Store
	sink     audit.Sink
	monitor  *operation.Monitor
}

// 🏭 New creates a Service
func New(opts Options) *Service {
	monitor := operation.NewMonitor(opts.Store, opts.Sink, opts.Provider)
	if opts.PollInterval > 0 {
		monitor.Interval = opts.PollInterval
	}
	if opts.MaxWait > 0 {
		monitor.MaxWait = opts.MaxWait
	}
	return &Service{
		provider: opts.Provider,
		store:    opts.Store,
		sink:     opts.Sink,
		monitor:  monitor,
	}
}

// 📂 List returns the children of parentID (reads are not audited)
func (s *Service) List(ctx context.Context, parentID string, cred provider.Credential) ([]provider.Item, error) {
	items, err := s.provider.List(ctx, parentID, cred)
	if err != nil {
		return nil, provider.Wrap(err, "list", "")
	}
	return items, nil
}

// 🌳 GetAllFolders returns the flattened folder tree
func (s *Service) GetAllFolders(ctx context.Context, cred provider.Credential) ([]provider.Folder, error) {
	folders, err := s.provider.GetAllFolders(ctx, cred)
	if err != nil {
		return nil, provider.Wrap(err, "getAllFolders", "")
	}
	return folders, nil
}

// ✏️ Rename renames an item and audits the outcome
func (s *Service) Rename(ctx context.Context, id, newName string, cred provider.Credential) (provider.Item, error) {
	item, err := s.provider.Rename(ctx, id, newName, cred)
	s.logSync(cred, audit.ActionRename, id, newName, err)
	if err != nil {
		return provider.Item{}, provider.Wrap(err, "rename", "")
	}
	return item, nil
}

// 🚚 Move moves an item and audits the outcome
func (s *Service) Move(ctx context.Context, id, targetFolderID string, cred provider.Credential) (provider.Item, error) {
	item, err := s.provider.Move(ctx, id, targetFolderID, cred)
	s.logSync(cred, audit.ActionMove, id, item.Name, err)
	if err != nil {
		return provider.Item{}, provider.Wrap(err, "move", "")
	}
	return item, nil
}

// 📤 Upload creates a file and audits the outcome
func (s *Service) Upload(ctx context.Context, name string, content []byte, targetFolderID string, cred provider.Credential) (provider.Item, error) {
	item, err := s.provider.Upload(ctx, name, content, targetFolderID, cred)
	s.logSync(cred, audit.ActionUpload, item.ID, name, err)
	if err != nil {
		return provider.Item{}, provider.Wrap(err, "upload", "")
	}
	return item, nil
}

// 🗑️ Delete removes an item and audits the outcome
func (s *Service) Delete(ctx context.Context, id string, cred provider.Credential) (provider.Item, error) {
	item, err := s.provider.Delete(ctx, id, cred)
	s.logSync(cred, audit.ActionDelete, id, "", err)
	if err != nil {
		return provider.Item{}, provider.Wrap(err, "delete", "")
	}
	return item, nil
}

// 🚀 StartedCopy is what the caller gets back immediately from StartCopy
type StartedCopy struct {
	OperationID string `json:"operationId"`
	Name        string `json:"name"`
}

// 🚀 StartCopy begins the async copy: starts the remote job, registers the
// operation record, detaches the monitor, and returns without waiting. A
// start that fails before a record exists is audited synchronously.
func (s *Service) StartCopy(ctx context.Context, id, targetFolderID string, cred provider.Credential) (StartedCopy, error) {
	logger := zerolog.Ctx(ctx)

	job, err := s.provider.StartCopy(ctx, id, targetFolderID, cred)
	if err != nil {
		s.logSync(cred, audit.ActionCopy, id, "", err)
		return StartedCopy{}, provider.Wrap(err, "startCopy", "")
	}

	op := s.store.Create(operation.TypeCopy, s.provider.Name(), map[string]string{
		operation.MetaSourceID:       id,
		operation.MetaTargetFolderID: targetFolderID,
		operation.MetaNewName:        job.NewName,
		operation.MetaMonitorURL:     job.MonitorURL,
		operation.MetaUserID:         cred.UserID,
	})

	// Fire and forget: the monitor outlives this request. It gets a fresh
	// context carrying only the logger so a finished request cannot cancel
	// the poll loop.
	watchCtx := logger.WithContext(context.Background())
	go s.monitor.Watch(watchCtx, op, job)

	logger.Debug().Str("operation_id", op.ID).Str("new_name", job.NewName).Msg("copy started")
	return StartedCopy{OperationID: op.ID, Name: job.NewName}, nil
}

// 🔍 GetCopyStatus reads an operation record. An id that never existed and
// one the TTL sweep already reclaimed are indistinguishable: both are
// OPERATION_NOT_FOUND.
func (s *Service) GetCopyStatus(ctx context.Context, operationID string) (operation.Operation, error) {
	op, ok := s.store.Get(operationID)
	if !ok {
		return operation.Operation{}, errors.WithStack(
			provider.NewError(provider.CodeOperationNotFound, "operation not found: "+operationID))
	}
	return op, nil
}

// 📋 logSync emits the one synchronous audit record for a mutating call
func (s *Service) logSync(cred provider.Credential, action, resourceID, resourceName string, err error) {
	status := audit.StatusSuccess
	errMsg := ""
	if err != nil {
		status = audit.StatusFailed
		errMsg = provider.Wrap(err, action, "").Message
	}
	s.sink.Log(audit.Event{
		UserID:       cred.UserID,
		Action:       action,
		Provider:     s.provider.Name(),
		ResourceID:   resourceID,
		ResourceName: resourceName,
		Status:       status,
		Error:        errMsg,
	})
}
