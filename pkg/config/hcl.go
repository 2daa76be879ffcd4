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

package config

import (
	"context"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

func init() {
	Register(&HCLParser{})
}

// 🔧 HCLParser implements the Parser interface for HCL files
type HCLParser struct{}

// 🔍 CanParse checks if this parser can handle the given file
func (p *HCLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".hcl")
}

// 📝 Parse parses the config from HCL
func (p *HCLParser) Parse(ctx context.Context, data []byte) (*Config, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, "config.hcl")
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	// Create evaluation context
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	// Define HCL schema
	type hclConfig struct {
		Listen     string `hcl:"listen,optional"`
		Provider   string `hcl:"provider,optional"`
		SharePoint struct {
			Domain       string `hcl:"domain"`
			Site         string `hcl:"site"`
			TenantID     string `hcl:"tenant_id,optional"`
			ClientID     string `hcl:"client_id,optional"`
			ClientSecret string `hcl:"client_secret,optional"`
			SiteCacheTTL string `hcl:"site_cache_ttl,optional"`
		} `hcl:"sharepoint,block"`
		Copy *struct {
			PollInterval string `hcl:"poll_interval,optional"`
			MaxWait      string `hcl:"max_wait,optional"`
		} `hcl:"copy,block"`
		Operations *struct {
			TTL           string `hcl:"ttl,optional"`
			SweepInterval string `hcl:"sweep_interval,optional"`
		} `hcl:"operations,block"`
		Audit *struct {
			Path string `hcl:"path,optional"`
			Echo bool   `hcl:"echo,optional"`
		} `hcl:"audit,block"`
	}

	var raw hclConfig
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &raw)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	cfg := &Config{
		Listen:   raw.Listen,
		Provider: raw.Provider,
		SharePoint: SharePointArgs{
			Domain:       raw.SharePoint.Domain,
			Site:         raw.SharePoint.Site,
			TenantID:     raw.SharePoint.TenantID,
			ClientID:     raw.SharePoint.ClientID,
			ClientSecret: raw.SharePoint.ClientSecret,
			SiteCacheTTL: raw.SharePoint.SiteCacheTTL,
		},
	}
	if raw.Copy != nil {
		cfg.Copy = CopyArgs{PollInterval: raw.Copy.PollInterval, MaxWait: raw.Copy.MaxWait}
	}
	if raw.Operations != nil {
		cfg.Operations = OperationArgs{TTL: raw.Operations.TTL, SweepInterval: raw.Operations.SweepInterval}
	}
	if raw.Audit != nil {
		cfg.Audit = AuditArgs{Path: raw.Audit.Path, Echo: raw.Audit.Echo}
	}
	return cfg, nil
}
