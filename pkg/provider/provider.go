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

package provider

import (
	"context"
	"time"

	"github.com/walteh/driveproxy/pkg/config"
)

// 📄 Item is the normalized shape of a drive item, independent of the backend
type Item struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"` // "file" or "folder"
	ParentID   string    `json:"parentId,omitempty"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Source     string    `json:"source"`
}

// 📁 Folder is a flattened folder-tree entry, used as a move/copy target
type Folder struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// 🔑 Credential carries the caller's opaque access token and identity
type Credential struct {
	AccessToken string
	UserID      string
}

// 🎫 CopyJob is the tracking handle returned by StartCopy. The monitor URL is
// self-authorizing: polling it needs no credential.
type CopyJob struct {
	SourceID   string
	MonitorURL string
	NewName    string
}

// 📈 CopyState is the normalized progress state of an async copy
type CopyState string

const (
	CopyInProgress CopyState = "in-progress"
	CopyCompleted  CopyState = "completed"
	CopyFailed     CopyState = "failed"
)

// 📊 CopyProgress is the normalized result of one poll of a copy job
type CopyProgress struct {
	State      CopyState
	Percent    *float64 // only meaningful while in-progress
	ResourceID string   // only set on completed
	Message    string   // only set on failed
}

// 🔌 Provider is the capability contract every document-storage backend must
// satisfy. Callers depend only on this interface.
type Provider interface {
	// 🏷️ Name returns the provider name used in audit records
	Name() string

	// 📂 List returns the children of parentID, or the drive root if empty
	List(ctx context.Context, parentID string, cred Credential) ([]Item, error)

	// 🌳 GetAllFolders returns every folder in the drive, flattened depth-first
	GetAllFolders(ctx context.Context, cred Credential) ([]Folder, error)

	// ✏️ Rename renames an item
	Rename(ctx context.Context, id, newName string, cred Credential) (Item, error)

	// 🚚 Move moves an item into targetFolderID, or the drive root if empty
	Move(ctx context.Context, id, targetFolderID string, cred Credential) (Item, error)

	// 📤 Upload creates a file from content under targetFolderID
	Upload(ctx context.Context, name string, content []byte, targetFolderID string, cred Credential) (Item, error)

	// 🗑️ Delete removes an item
	Delete(ctx context.Context, id string, cred Credential) (Item, error)

	// 🚀 StartCopy begins a server-side copy and returns its tracking handle
	StartCopy(ctx context.Context, id, targetFolderID string, cred Credential) (CopyJob, error)

	// 🔭 PollCopy polls a copy job's monitor URL and normalizes the outcome
	PollCopy(ctx context.Context, monitorURL string) (CopyProgress, error)
}

// 🏭 Factory creates a new provider from the loaded configuration
type Factory func(ctx context.Context, cfg *config.Config) (Provider, error)

var (
	// 🗺️ providers is a map of provider names to factories
	providers = make(map[string]Factory)
)

// 📝 Register registers a provider factory
func Register(name string, factory Factory) {
	providers[name] = factory
}

// 🎯 Get returns a provider factory by name
func Get(name string) Factory {
	return providers[name]
}
