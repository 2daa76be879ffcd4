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

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/driveproxy/pkg/config"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
listen: ":8080"
sharepoint:
  domain: contoso
  site: records
  tenant_id: t1
  client_id: c1
  client_secret: s1
copy:
  poll_interval: 500ms
  max_wait: 30s
operations:
  ttl: 2h
audit:
  path: /var/log/driveproxy/audit.log
  echo: true
`)

	cfg, err := config.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "sharepoint", cfg.Provider, "provider should default")
	assert.Equal(t, "contoso", cfg.SharePoint.Domain)
	assert.Equal(t, "records", cfg.SharePoint.Site)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 30*time.Second, cfg.MaxWait())
	assert.Equal(t, 2*time.Hour, cfg.OperationTTL())
	assert.Equal(t, time.Minute, cfg.SweepInterval(), "sweep interval should default")
	assert.Equal(t, "/var/log/driveproxy/audit.log", cfg.Audit.Path)
	assert.True(t, cfg.Audit.Echo)
}

func TestLoadHCL(t *testing.T) {
	path := writeConfig(t, "config.hcl", `
listen = ":9090"

sharepoint {
	domain         = "contoso"
	site           = "records"
	site_cache_ttl = "1h"
}

copy {
	max_wait = "90s"
}
`)

	cfg, err := config.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "contoso", cfg.SharePoint.Domain)
	assert.Equal(t, time.Hour, cfg.SiteCacheTTL())
	assert.Equal(t, 90*time.Second, cfg.MaxWait())
	assert.Equal(t, 2*time.Second, cfg.PollInterval(), "poll interval should default")
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		wantErr  string
	}{
		{
			name:     "missing_domain",
			filename: "config.yaml",
			content:  "sharepoint:\n  site: records\n",
			wantErr:  "sharepoint.domain is required",
		},
		{
			name:     "missing_site",
			filename: "config.yaml",
			content:  "sharepoint:\n  domain: contoso\n",
			wantErr:  "sharepoint.site is required",
		},
		{
			name:     "bad_duration",
			filename: "config.yaml",
			content:  "sharepoint:\n  domain: contoso\n  site: records\ncopy:\n  max_wait: soon\n",
			wantErr:  "invalid duration",
		},
		{
			name:     "unknown_field",
			filename: "config.yaml",
			content:  "sharepoint:\n  domain: contoso\n  site: records\nmystery: true\n",
			wantErr:  "parsing",
		},
		{
			name:     "unsupported_extension",
			filename: "config.toml",
			content:  "listen = ':3000'\n",
			wantErr:  "no parser found",
		},
		{
			name:     "malformed_hcl",
			filename: "config.hcl",
			content:  "sharepoint {\n",
			wantErr:  "parsing HCL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.filename, tt.content)
			_, err := config.Load(context.Background(), path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", "sharepoint:\n  domain: contoso\n  site: records\n")

	cfg, err := config.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Listen)
	assert.Equal(t, "sharepoint", cfg.Provider)
	assert.Equal(t, "audit.log", cfg.Audit.Path)
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, time.Minute, cfg.MaxWait())
	assert.Equal(t, time.Hour, cfg.OperationTTL())
	assert.Equal(t, 4*time.Hour, cfg.SiteCacheTTL())
}
