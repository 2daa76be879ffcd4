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

package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/walteh/driveproxy/pkg/provider"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultAuthority = "https://login.microsoftonline.com"
	defaultScope     = "https://graph.microsoft.com/.default"

	// refreshBuffer renews tokens a minute before they actually expire
	refreshBuffer = time.Minute
)

// ⚙️ Options configures a token source
type Options struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Authority    string // override for tests
	Scope        string
	HTTPClient   *http.Client
}

// 🔑 TokenSource produces valid Graph access tokens through the
// client-credentials grant. It hosts an oauth2 reuse source: a cached token
// is served while it has more than the refresh buffer left, after which the
// grant runs again.
type TokenSource struct {
	src oauth2.TokenSource
}

// 🏭 New creates a token source
func New(opts Options) (*TokenSource, error) {
	if opts.TenantID == "" || opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, errors.New("tenant id, client id and client secret are required")
	}
	if opts.Authority == "" {
		opts.Authority = defaultAuthority
	}
	if opts.Scope == "" {
		opts.Scope = defaultScope
	}

	conf := &clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.Authority + "/" + opts.TenantID + "/oauth2/v2.0/token",
		Scopes:       []string{opts.Scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	// The grant runs on its own context: token refresh is not tied to the
	// lifetime of whichever request happens to trigger it.
	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}

	src := oauth2.ReuseTokenSourceWithExpiry(nil, conf.TokenSource(ctx), refreshBuffer)
	return &TokenSource{src: src}, nil
}

// 🎫 Token returns a valid access token, refreshing if necessary. Identity
// endpoint rejections are normalized into the shared error taxonomy.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	tok, err := ts.src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return "", errors.WithStack(
				provider.WrapStatus(rerr.Response.StatusCode, "token request rejected", "token"))
		}
		return "", errors.Errorf("fetching token: %w", err)
	}
	return tok.AccessToken, nil
}
