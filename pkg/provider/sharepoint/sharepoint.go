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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/driveproxy/pkg/config"
	"github.com/walteh/driveproxy/pkg/provider"
	"gitlab.com/tozd/go/errors"
)

func init() {
	provider.Register("sharepoint", New)
}

const (
	// 🌐 defaultBaseURL is the Microsoft Graph endpoint
	defaultBaseURL = "https://graph.microsoft.com/v1.0"

	// ⏱️ defaultSiteCacheTTL bounds how long a resolved site id is reused
	defaultSiteCacheTTL = 4 * time.Hour
)

// ⚙️ Options configures the SharePoint provider
type Options struct {
	Domain       string        // tenant domain, e.g. "contoso"
	Site         string        // site name, e.g. "TeamDocs"
	BaseURL      string        // override for tests
	SiteCacheTTL time.Duration // how long a resolved site id is trusted
	HTTPClient   *http.Client
}

// 🎯 Provider implements the provider interface for SharePoint drives via
// Microsoft Graph
type Provider struct {
	opts   Options
	client *http.Client

	// Resolved site id cache. Shared mutable state: guarded by mu.
	mu         sync.Mutex
	siteID     string
	siteExpiry time.Time
}

// 🏭 New creates a SharePoint provider from the loaded configuration
// (registry factory)
func New(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	p, err := NewWithOptions(ctx, Options{
		Domain:       cfg.SharePoint.Domain,
		Site:         cfg.SharePoint.Site,
		SiteCacheTTL: cfg.SiteCacheTTL(),
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// 🏭 NewWithOptions creates a SharePoint provider from explicit options
func NewWithOptions(ctx context.Context, opts Options) (*Provider, error) {
	if opts.Domain == "" || opts.Site == "" {
		return nil, errors.New("sharepoint domain and site are required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.SiteCacheTTL <= 0 {
		opts.SiteCacheTTL = defaultSiteCacheTTL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Provider{opts: opts, client: opts.HTTPClient}, nil
}

// 🏷️ Name returns the provider name used in audit records
func (p *Provider) Name() string {
	return "sharepoint"
}

// 📄 driveItem is the Graph wire shape we care about
type driveItem struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Size                 int64           `json:"size"`
	LastModifiedDateTime time.Time       `json:"lastModifiedDateTime"`
	Folder               json.RawMessage `json:"folder,omitempty"`
	ParentReference      *struct {
		ID string `json:"id"`
	} `json:"parentReference,omitempty"`
}

// itemValue is the Graph collection envelope
type itemValue struct {
	Value []driveItem `json:"value"`
}

// graphError is the Graph error envelope
type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// normalize maps a Graph item to the provider shape
func (p *Provider) normalize(it driveItem, parentID string) provider.Item {
	typ := "file"
	if it.Folder != nil {
		typ = "folder"
	}
	out := provider.Item{
		ID:         it.ID,
		Name:       it.Name,
		Type:       typ,
		ParentID:   parentID,
		Size:       it.Size,
		ModifiedAt: it.LastModifiedDateTime,
		Source:     "sharepoint",
	}
	if out.ParentID == "" && it.ParentReference != nil {
		out.ParentID = it.ParentReference.ID
	}
	return out
}

// 🔍 resolveSiteID resolves (and caches) the drive's site id. Resolution is
// one extra round-trip per call without the cache, so the id is trusted for
// hours and dropped whenever an auth or not-found class error shows up
// anywhere, forcing re-resolution on next use.
func (p *Provider) resolveSiteID(ctx context.Context, cred provider.Credential) (string, error) {
	p.mu.Lock()
	if p.siteID != "" && time.Now().Before(p.siteExpiry) {
		id := p.siteID
		p.mu.Unlock()
		return id, nil
	}
	p.mu.Unlock()

	logger := zerolog.Ctx(ctx)
	url := fmt.Sprintf("%s/sites/%s.sharepoint.com:/sites/%s:", p.opts.BaseURL, p.opts.Domain, p.opts.Site)

	var site struct {
		ID string `json:"id"`
	}
	if err := p.getJSON(ctx, url, cred, &site); err != nil {
		return "", errors.Errorf("resolving site id: %w", err)
	}
	if site.ID == "" {
		return "", provider.NewError(provider.CodeInvalidResponse, "site resolution returned no id")
	}

	p.mu.Lock()
	p.siteID = site.ID
	p.siteExpiry = time.Now().Add(p.opts.SiteCacheTTL)
	p.mu.Unlock()

	logger.Debug().Str("site_id", site.ID).Msg("resolved sharepoint site id")
	return site.ID, nil
}

// 💥 observe drops the cached site id when an error suggests it went stale
func (p *Provider) observe(err error) {
	if err == nil {
		return
	}
	switch provider.CodeOf(err) {
	case provider.CodeAuthenticationFailed, provider.CodePermissionDenied, provider.CodeItemNotFound:
		p.mu.Lock()
		p.siteID = ""
		p.siteExpiry = time.Time{}
		p.mu.Unlock()
	}
}

// 🌐 do issues one authorized Graph call and normalizes failure statuses
func (p *Provider) do(ctx context.Context, method, url string, body io.Reader, contentType string, cred provider.Credential) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Errorf("calling graph: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		perr := p.wrapResponse(resp, method+" "+url)
		p.observe(perr)
		return nil, perr
	}
	return resp, nil
}

// wrapResponse turns a failure response into a normalized error, preferring
// the Graph error message over a generic one
func (p *Provider) wrapResponse(resp *http.Response, op string) *provider.Error {
	var gerr graphError
	message := ""
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); err == nil {
		if json.Unmarshal(data, &gerr) == nil {
			message = gerr.Error.Message
		}
	}
	return provider.WrapStatus(resp.StatusCode, message, op)
}

// getJSON is a GET + decode helper
func (p *Provider) getJSON(ctx context.Context, url string, cred provider.Credential, out any) error {
	resp, err := p.do(ctx, http.MethodGet, url, nil, "", cred)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Errorf("decoding response: %w", err)
	}
	return nil
}

// patchJSON is a PATCH + decode helper
func (p *Provider) patchJSON(ctx context.Context, url string, payload, out any, cred provider.Credential) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Errorf("encoding request: %w", err)
	}
	resp, err := p.do(ctx, http.MethodPatch, url, bytes.NewReader(data), "application/json", cred)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Errorf("decoding response: %w", err)
	}
	return nil
}

// 📂 List returns the children of parentID, or the drive root if empty
func (p *Provider) List(ctx context.Context, parentID string, cred provider.Credential) ([]provider.Item, error) {
	siteID, err := p.resolveSiteID(ctx, cred)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/sites/%s/drive/root/children", p.opts.BaseURL, siteID)
	if parentID != "" {
		url = fmt.Sprintf("%s/sites/%s/drive/items/%s/children", p.opts.BaseURL, siteID, parentID)
	}

	var items itemValue
	if err := p.getJSON(ctx, url, cred, &items); err != nil {
		return nil, errors.Errorf("listing items: %w", err)
	}

	out := make([]provider.Item, 0, len(items.Value))
	for _, it := range items.Value {
		out = append(out, p.normalize(it, parentID))
	}
	return out, nil
}

// 🌳 GetAllFolders walks the folder tree depth-first and flattens it with
// nesting levels, for use as a move/copy target picker
func (p *Provider) GetAllFolders(ctx context.Context, cred provider.Credential) ([]provider.Folder, error) {
	var all []provider.Folder

	var walk func(parentID string, level int) error
	walk = func(parentID string, level int) error {
		items, err := p.List(ctx, parentID, cred)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.Type != "folder" {
				continue
			}
			all = append(all, provider.Folder{ID: item.ID, Name: item.Name, Level: level})
			if err := walk(item.ID, level+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk("", 0); err != nil {
		return nil, errors.Errorf("walking folder tree: %w", err)
	}
	return all, nil
}

// ✏️ Rename renames an item
func (p *Provider) Rename(ctx context.Context, id, newName string, cred provider.Credential) (provider.Item, error) {
	siteID, err := p.resolveSiteID(ctx, cred)
	if err != nil {
		return provider.Item{}, err
	}

	url := fmt.Sprintf("%s/sites/%s/drive/items/%s", p.opts.BaseURL, siteID, id)
	var updated driveItem
	if err := p.patchJSON(ctx, url, map[string]string{"name": newName}, &updated, cred); err != nil {
		return provider.Item{}, errors.Errorf("renaming item: %w", err)
	}
	return p.normalize(updated, ""), nil
}

// 🚚 Move moves an item into targetFolderID, or the drive root if empty
func (p *Provider) Move(ctx context.Context, id, targetFolderID string, cred provider.Credential) (provider.Item, error) {
	siteID, err := p.resolveSiteID(ctx, cred)
	if err != nil {
		return provider.Item{}, err
	}

	parent := map[string]string{"id": targetFolderID}
	if targetFolderID == "" {
		parent["id"] = "root"
	}

	url := fmt.Sprintf("%s/sites/%s/drive/items/%s", p.opts.BaseURL, siteID, id)
	var updated driveItem
	payload := map[string]any{"parentReference": parent}
	if err := p.patchJSON(ctx, url, payload, &updated, cred); err != nil {
		return provider.Item{}, errors.Errorf("moving item: %w", err)
	}
	return p.normalize(updated, targetFolderID), nil
}

// 📤 Upload creates a file from content under targetFolderID (simple small
// file upload; Graph caps this path at 4MB)
func (p *Provider) Upload(ctx context.Context, name string, content []byte, targetFolderID string, cred provider.Credential) (provider.Item, error) {
	siteID, err := p.resolveSiteID(ctx, cred)
	if err != nil {
		return provider.Item{}, err
	}

	url := fmt.Sprintf("%s/sites/%s/drive/root:/%s:/content", p.opts.BaseURL, siteID, name)
	if targetFolderID != "" {
		url = fmt.Sprintf("%s/sites/%s/drive/items/%s:/%s:/content", p.opts.BaseURL, siteID, targetFolderID, name)
	}

	resp, err := p.do(ctx, http.MethodPut, url, bytes.NewReader(content), "application/octet-stream", cred)
	if err != nil {
		return provider.Item{}, errors.Errorf("uploading item: %w", err)
	}
	defer resp.Body.Close()

	var created driveItem
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return provider.Item{}, errors.Errorf("decoding upload response: %w", err)
	}
	return p.normalize(created, targetFolderID), nil
}

// 🗑️ Delete removes an item
func (p *Provider) Delete(ctx context.Context, id string, cred provider.Credential) (provider.Item, error) {
	siteID, err := p.resolveSiteID(ctx, cred)
	if err != nil {
		return provider.Item{}, err
	}

	url := fmt.Sprintf("%s/sites/%s/drive/items/%s", p.opts.BaseURL, siteID, id)
	resp, err := p.do(ctx, http.MethodDelete, url, nil, "", cred)
	if err != nil {
		return provider.Item{}, errors.Errorf("deleting item: %w", err)
	}
	resp.Body.Close()

	return provider.Item{ID: id, Source: "sharepoint"}, nil
}

// getItem fetches a single item's metadata
func (p *Provider) getItem(ctx context.Context, siteID, id string, cred provider.Credential) (driveItem, error) {
	url := fmt.Sprintf("%s/sites/%s/drive/items/%s", p.opts.BaseURL, siteID, id)
	var item driveItem
	if err := p.getJSON(ctx, url, cred, &item); err != nil {
		return driveItem{}, errors.Errorf("fetching item: %w", err)
	}
	return item, nil
}
