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
	"strings"

	"github.com/rs/zerolog"
	"github.com/walteh/driveproxy/pkg/provider"
	"gitlab.com/tozd/go/errors"
)

// 🔀 DeriveCopyName inserts the copy suffix before the last extension
// segment, or appends it when the name has none. A leading dot is not an
// extension separator.
func DeriveCopyName(name string) string {
	if dot := strings.LastIndex(name, "."); dot > 0 {
		return name[:dot] + "_copy" + name[dot:]
	}
	return name + "_copy"
}

// asyncJobStatus is the Graph monitor-URL body shape
type asyncJobStatus struct {
	Status             string  `json:"status"`
	PercentageComplete float64 `json:"percentageComplete"`
	ResourceID         string  `json:"resourceId"`
	StatusDescription  string  `json:"statusDescription"`
	Error              *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// 🚀 StartCopy issues the async server-side copy. The Graph accepts it with
// 202 and hands back a monitor URL in the Location header; anything else is a
// normalization failure.
func (p *Provider) StartCopy(ctx context.Context, id, targetFolderID string, cred provider.Credential) (provider.CopyJob, error) {
	logger := zerolog.Ctx(ctx)

	siteID, err := p.resolveSiteID(ctx, cred)
	if err != nil {
		return provider.CopyJob{}, err
	}

	// The copy name derives from the source item's current name
	item, err := p.getItem(ctx, siteID, id, cred)
	if err != nil {
		return provider.CopyJob{}, err
	}
	newName := DeriveCopyName(item.Name)

	payload := map[string]any{"name": newName}
	if targetFolderID != "" {
		payload["parentReference"] = map[string]string{"id": targetFolderID}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return provider.CopyJob{}, errors.Errorf("encoding copy request: %w", err)
	}

	url := fmt.Sprintf("%s/sites/%s/drive/items/%s/copy", p.opts.BaseURL, siteID, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return provider.CopyJob{}, errors.Errorf("creating copy request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "respond-async")

	resp, err := p.client.Do(req)
	if err != nil {
		return provider.CopyJob{}, errors.Errorf("calling graph: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		perr := p.wrapResponse(resp, "copy")
		p.observe(perr)
		return provider.CopyJob{}, perr
	}
	if resp.StatusCode != http.StatusAccepted {
		return provider.CopyJob{}, provider.NewError(provider.CodeInvalidResponse,
			fmt.Sprintf("copy request returned status %d, expected 202", resp.StatusCode))
	}

	monitorURL := resp.Header.Get("Location")
	if monitorURL == "" {
		return provider.CopyJob{}, provider.NewError(provider.CodeInvalidResponse,
			"copy response carried no monitor location")
	}

	logger.Debug().Str("item_id", id).Str("new_name", newName).Msg("started async copy")
	return provider.CopyJob{SourceID: id, MonitorURL: monitorURL, NewName: newName}, nil
}

// 🔭 PollCopy polls the self-authorizing monitor URL and normalizes whatever
// comes back. Redirects are not followed: a 303 Location is itself the
// completion signal. Unknown transport statuses normalize to failed rather
// than erroring.
func (p *Provider) PollCopy(ctx context.Context, monitorURL string) (provider.CopyProgress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, monitorURL, nil)
	if err != nil {
		return provider.CopyProgress{}, errors.Errorf("creating monitor request: %w", err)
	}

	// The monitor URL is pre-authorized; no credential is attached.
	client := &http.Client{
		Transport: p.client.Transport,
		Timeout:   p.client.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return provider.CopyProgress{}, errors.Errorf("polling monitor url: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		return p.parseJobStatus(resp)
	case http.StatusSeeOther:
		// Finished: the redirect points at the created resource
		id := resourceIDFromLocation(resp.Header.Get("Location"))
		if id == "" {
			return provider.CopyProgress{
				State:   provider.CopyFailed,
				Message: "copy finished but the resource location was unreadable",
			}, nil
		}
		return provider.CopyProgress{State: provider.CopyCompleted, ResourceID: id}, nil
	default:
		return provider.CopyProgress{
			State:   provider.CopyFailed,
			Message: fmt.Sprintf("monitor returned unexpected status %d", resp.StatusCode),
		}, nil
	}
}

// parseJobStatus maps the Graph async status body to normalized progress
func (p *Provider) parseJobStatus(resp *http.Response) (provider.CopyProgress, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return provider.CopyProgress{}, errors.Errorf("reading monitor response: %w", err)
	}

	var status asyncJobStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return provider.CopyProgress{}, errors.Errorf("monitor status not JSON: %w", err)
	}

	switch status.Status {
	case "completed":
		id := status.ResourceID
		if id == "" {
			id = resourceIDFromLocation(resp.Header.Get("Location"))
		}
		return provider.CopyProgress{State: provider.CopyCompleted, ResourceID: id}, nil
	case "failed", "deleteFailed":
		msg := status.StatusDescription
		if status.Error != nil && status.Error.Message != "" {
			msg = status.Error.Message
		}
		if msg == "" {
			msg = "remote copy job failed"
		}
		return provider.CopyProgress{State: provider.CopyFailed, Message: msg}, nil
	default:
		// notStarted, inProgress, waiting — all still in flight
		percent := status.PercentageComplete
		return provider.CopyProgress{State: provider.CopyInProgress, Percent: &percent}, nil
	}
}

// resourceIDFromLocation pulls the item id out of a resource URL of the form
// .../items/{id} or .../items/{id}?query
func resourceIDFromLocation(location string) string {
	if location == "" {
		return ""
	}
	const marker = "/items/"
	idx := strings.LastIndex(location, marker)
	if idx < 0 {
		return ""
	}
	id := location[idx+len(marker):]
	if cut := strings.IndexAny(id, "/?"); cut >= 0 {
		id = id[:cut]
	}
	return id
}
