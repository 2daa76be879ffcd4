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

package sharepoint

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/driveproxy/pkg/config"
	"github.com/walteh/driveproxy/pkg/provider"
)

var testCred = provider.Credential{AccessToken: "token-1", UserID: "user-1"}

// newTestProvider wires a provider against an httptest Graph stub
func newTestProvider(t *testing.T, handler http.Handler) (*Provider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewWithOptions(context.Background(), Options{
		Domain:  "contoso",
		Site:    "TeamDocs",
		BaseURL: srv.URL,
	})
	require.NoError(t, err)
	return p, srv
}

// siteStub answers the site-resolution call and counts hits
func siteStub(mux *http.ServeMux, hits *atomic.Int32) {
	mux.HandleFunc("/sites/contoso.sharepoint.com:/sites/TeamDocs:", func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		fmt.Fprint(w, `{"id": "site-1"}`)
	})
}

func TestDeriveCopyName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "with_extension", in: "Report.docx", want: "Report_copy.docx"},
		{name: "no_extension", in: "README", want: "README_copy"},
		{name: "multiple_dots", in: "archive.tar.gz", want: "archive.tar_copy.gz"},
		{name: "leading_dot_is_not_extension", in: ".gitignore", want: ".gitignore_copy"},
		{name: "trailing_dot", in: "weird.", want: "weird_copy."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveCopyName(tt.in))
		})
	}
}

func TestSiteIDCaching(t *testing.T) {
	var siteHits atomic.Int32
	mux := http.NewServeMux()
	siteStub(mux, &siteHits)
	mux.HandleFunc("/sites/site-1/drive/root/children", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": [{"id": "item-1", "name": "Docs", "folder": {}}]}`)
	})
	p, _ := newTestProvider(t, mux)

	for i := 0; i < 3; i++ {
		_, err := p.List(context.Background(), "", testCred)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), siteHits.Load(), "site id is resolved once and cached")
}

func TestSiteIDInvalidatedOnAuthError(t *testing.T) {
	var siteHits atomic.Int32
	var fail atomic.Bool
	mux := http.NewServeMux()
	siteStub(mux, &siteHits)
	mux.HandleFunc("/sites/site-1/drive/root/children", func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error": {"code": "InvalidAuthenticationToken", "message": "token expired"}}`)
			return
		}
		fmt.Fprint(w, `{"value": []}`)
	})
	p, _ := newTestProvider(t, mux)

	_, err := p.List(context.Background(), "", testCred)
	require.NoError(t, err)

	fail.Store(true)
	_, err = p.List(context.Background(), "", testCred)
	require.Error(t, err)
	assert.Equal(t, provider.CodeAuthenticationFailed, provider.CodeOf(err))

	fail.Store(false)
	_, err = p.List(context.Background(), "", testCred)
	require.NoError(t, err)
	assert.Equal(t, int32(2), siteHits.Load(), "auth failure forces re-resolution on next use")
}

func TestListNormalizesItems(t *testing.T) {
	mux := http.NewServeMux()
	siteStub(mux, nil)
	mux.HandleFunc("/sites/site-1/drive/items/folder-1/children", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"value": [
			{"id": "item-1", "name": "Report.docx", "size": 1234, "lastModifiedDateTime": "2024-05-01T10:00:00Z"},
			{"id": "item-2", "name": "Archive", "folder": {"childCount": 3}}
		]}`)
	})
	p, _ := newTestProvider(t, mux)

	items, err := p.List(context.Background(), "folder-1", testCred)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "file", items[0].Type)
	assert.Equal(t, int64(1234), items[0].Size)
	assert.Equal(t, "folder-1", items[0].ParentID)
	assert.Equal(t, "sharepoint", items[0].Source)
	assert.Equal(t, "folder", items[1].Type)
}

func TestGetAllFoldersFlattensTree(t *testing.T) {
	mux := http.NewServeMux()
	siteStub(mux, nil)
	mux.HandleFunc("/sites/site-1/drive/root/children", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": [
			{"id": "f-1", "name": "Projects", "folder": {}},
			{"id": "i-1", "name": "notes.txt"}
		]}`)
	})
	mux.HandleFunc("/sites/site-1/drive/items/f-1/children", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": [{"id": "f-2", "name": "Alpha", "folder": {}}]}`)
	})
	mux.HandleFunc("/sites/site-1/drive/items/f-2/children", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value": []}`)
	})
	p, _ := newTestProvider(t, mux)

	folders, err := p.GetAllFolders(context.Background(), testCred)
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, provider.Folder{ID: "f-1", Name: "Projects", Level: 0}, folders[0])
	assert.Equal(t, provider.Folder{ID: "f-2", Name: "Alpha", Level: 1}, folders[1])
}

func TestRename(t *testing.T) {
	mux := http.NewServeMux()
	siteStub(mux, nil)
	mux.HandleFunc("/sites/site-1/drive/items/item-1", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		fmt.Fprint(w, `{"id": "item-1", "name": "Renamed.docx"}`)
	})
	p, _ := newTestProvider(t, mux)

	item, err := p.Rename(context.Background(), "item-1", "Renamed.docx", testCred)
	require.NoError(t, err)
	assert.Equal(t, "Renamed.docx", item.Name)
}

func TestDeleteNotFound(t *testing.T) {
	mux := http.NewServeMux()
	siteStub(mux, nil)
	mux.HandleFunc("/sites/site-1/drive/items/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"code": "itemNotFound", "message": "The resource could not be found."}}`)
	})
	p, _ := newTestProvider(t, mux)

	_, err := p.Delete(context.Background(), "gone", testCred)
	require.Error(t, err)

	perr, ok := provider.AsError(err)
	require.True(t, ok)
	assert.Equal(t, provider.CodeItemNotFound, perr.Code)
	assert.Equal(t, "The resource could not be found.", perr.Message, "graph message is preserved")
	assert.Equal(t, http.StatusNotFound, perr.StatusCode)
}

func TestStartCopy(t *testing.T) {
	tests := []struct {
		name        string
		respond     func(w http.ResponseWriter)
		wantErrCode string
		wantMonitor string
		wantName    string
	}{
		{
			name: "accepted_with_location",
			respond: func(w http.ResponseWriter) {
				w.Header().Set("Location", "https://monitor.example/jobs/j-1")
				w.WriteHeader(http.StatusAccepted)
			},
			wantMonitor: "https://monitor.example/jobs/j-1",
			wantName:    "Report_copy.docx",
		},
		{
			name: "ok_instead_of_accepted",
			respond: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusOK)
			},
			wantErrCode: provider.CodeInvalidResponse,
		},
		{
			name: "accepted_without_location",
			respond: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusAccepted)
			},
			wantErrCode: provider.CodeInvalidResponse,
		},
		{
			name: "conflict",
			respond: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusConflict)
				fmt.Fprint(w, `{"error": {"code": "nameAlreadyExists", "message": "An item with this name already exists."}}`)
			},
			wantErrCode: provider.CodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			siteStub(mux, nil)
			mux.HandleFunc("/sites/site-1/drive/items/item-1", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"id": "item-1", "name": "Report.docx"}`)
			})
			mux.HandleFunc("/sites/site-1/drive/items/item-1/copy", func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "respond-async", r.Header.Get("Prefer"))
				tt.respond(w)
			})
			p, _ := newTestProvider(t, mux)

			job, err := p.StartCopy(context.Background(), "item-1", "folder-1", testCred)
			if tt.wantErrCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrCode, provider.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMonitor, job.MonitorURL)
			assert.Equal(t, tt.wantName, job.NewName)
			assert.Equal(t, "item-1", job.SourceID)
		})
	}
}

func TestPollCopy(t *testing.T) {
	tests := []struct {
		name        string
		respond     func(w http.ResponseWriter)
		wantState   provider.CopyState
		wantPct     float64
		wantID      string
		wantMessage string
		wantErr     bool
	}{
		{
			name: "in_progress_with_percentage",
			respond: func(w http.ResponseWriter) {
				fmt.Fprint(w, `{"status": "inProgress", "percentageComplete": 55}`)
			},
			wantState: provider.CopyInProgress,
			wantPct:   55,
		},
		{
			name: "not_started_counts_as_in_progress",
			respond: func(w http.ResponseWriter) {
				fmt.Fprint(w, `{"status": "notStarted", "percentageComplete": 0}`)
			},
			wantState: provider.CopyInProgress,
		},
		{
			name: "completed_with_resource_id",
			respond: func(w http.ResponseWriter) {
				fmt.Fprint(w, `{"status": "completed", "percentageComplete": 100, "resourceId": "R1"}`)
			},
			wantState: provider.CopyCompleted,
			wantID:    "R1",
		},
		{
			name: "see_other_redirect_carries_resource",
			respond: func(w http.ResponseWriter) {
				w.Header().Set("Location", "https://graph.example/v1.0/sites/site-1/drive/items/R2?select=id")
				w.WriteHeader(http.StatusSeeOther)
			},
			wantState: provider.CopyCompleted,
			wantID:    "R2",
		},
		{
			name: "failed_with_error_message",
			respond: func(w http.ResponseWriter) {
				fmt.Fprint(w, `{"status": "failed", "error": {"message": "quota exceeded"}}`)
			},
			wantState:   provider.CopyFailed,
			wantMessage: "quota exceeded",
		},
		{
			name: "failed_without_message_gets_default",
			respond: func(w http.ResponseWriter) {
				fmt.Fprint(w, `{"status": "deleteFailed"}`)
			},
			wantState:   provider.CopyFailed,
			wantMessage: "remote copy job failed",
		},
		{
			name: "unexpected_status_normalizes_to_failed",
			respond: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantState:   provider.CopyFailed,
			wantMessage: "monitor returned unexpected status 502",
		},
		{
			name: "garbage_body_is_an_error",
			respond: func(w http.ResponseWriter) {
				fmt.Fprint(w, `not json`)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sawAuth atomic.Bool
			monitor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "" {
					sawAuth.Store(true)
				}
				tt.respond(w)
			}))
			defer monitor.Close()

			p, err := NewWithOptions(context.Background(), Options{Domain: "contoso", Site: "TeamDocs"})
			require.NoError(t, err)

			progress, err := p.PollCopy(context.Background(), monitor.URL+"/jobs/j-1")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.False(t, sawAuth.Load(), "monitor polling must not attach credentials")
			assert.Equal(t, tt.wantState, progress.State)
			if tt.wantState == provider.CopyInProgress {
				require.NotNil(t, progress.Percent)
				assert.Equal(t, tt.wantPct, *progress.Percent)
			}
			assert.Equal(t, tt.wantID, progress.ResourceID)
			assert.Equal(t, tt.wantMessage, progress.Message)
		})
	}
}

func TestResourceIDFromLocation(t *testing.T) {
	assert.Equal(t, "R1", resourceIDFromLocation("https://x/drive/items/R1"))
	assert.Equal(t, "R1", resourceIDFromLocation("https://x/drive/items/R1?select=id"))
	assert.Equal(t, "R1", resourceIDFromLocation("https://x/drive/items/R1/children"))
	assert.Equal(t, "", resourceIDFromLocation("https://x/drive/root"))
	assert.Equal(t, "", resourceIDFromLocation(""))
}

func TestRegistryFactory(t *testing.T) {
	factory := provider.Get("sharepoint")
	require.NotNil(t, factory, "init must register the sharepoint factory")

	cfg := &config.Config{SharePoint: config.SharePointArgs{Domain: "contoso", Site: "TeamDocs"}}
	p, err := factory(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "sharepoint", p.Name())

	_, err = factory(context.Background(), &config.Config{})
	require.Error(t, err, "a config without domain and site cannot build a provider")

	assert.Nil(t, provider.Get("gdrive"), "unregistered names resolve to nil")
}
