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
	"os"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 📦 SharePointArgs configures the SharePoint provider and its credentials
type SharePointArgs struct {
	Domain       string `json:"domain" yaml:"domain"`
	Site         string `json:"site" yaml:"site"`
	TenantID     string `json:"tenant_id" yaml:"tenant_id"`
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	SiteCacheTTL string `json:"site_cache_ttl,omitempty" yaml:"site_cache_ttl,omitempty"`
}

// 🔧 CopyArgs configures the async copy monitor
type CopyArgs struct {
	PollInterval string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	MaxWait      string `json:"max_wait,omitempty" yaml:"max_wait,omitempty"`
}

// 🗄️ OperationArgs configures operation retention
type OperationArgs struct {
	TTL           string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	SweepInterval string `json:"sweep_interval,omitempty" yaml:"sweep_interval,omitempty"`
}

// 📋 AuditArgs configures the audit sink
type AuditArgs struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	Echo bool   `json:"echo,omitempty" yaml:"echo,omitempty"`
}

// 📚 Config represents the complete configuration
type Config struct {
	Listen     string         `json:"listen,omitempty" yaml:"listen,omitempty"`
	Provider   string         `json:"provider,omitempty" yaml:"provider,omitempty"`
	SharePoint SharePointArgs `json:"sharepoint" yaml:"sharepoint"`
	Copy       CopyArgs       `json:"copy,omitempty" yaml:"copy,omitempty"`
	Operations OperationArgs  `json:"operations,omitempty" yaml:"operations,omitempty"`
	Audit      AuditArgs      `json:"audit,omitempty" yaml:"audit,omitempty"`
}

// 🎯 Load loads the configuration from a file
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	// Read config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	// Get parser
	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	// Parse config
	cfg, err := p.Parse(ctx, data)
	if err != nil {
		return nil, errors.Errorf("parsing config: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// ✅ Validate checks required fields and fills defaults
func (c *Config) Validate() error {
	if c.Listen == "" {
		c.Listen = ":3000"
	}
	if c.Provider == "" {
		c.Provider = "sharepoint"
	}
	if c.Audit.Path == "" {
		c.Audit.Path = "audit.log"
	}
	if c.Provider == "sharepoint" {
		if c.SharePoint.Domain == "" {
			return errors.New("sharepoint.domain is required")
		}
		if c.SharePoint.Site == "" {
			return errors.New("sharepoint.site is required")
		}
	}

	// Every duration must at least parse
	for _, d := range []string{
		c.Copy.PollInterval, c.Copy.MaxWait,
		c.Operations.TTL, c.Operations.SweepInterval,
		c.SharePoint.SiteCacheTTL,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return errors.Errorf("invalid duration %q: %w", d, err)
		}
	}
	return nil
}

// duration parses a validated duration string, falling back to def
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// ⏱️ PollInterval returns the copy poll cadence (default 2s)
func (c *Config) PollInterval() time.Duration {
	return duration(c.Copy.PollInterval, 2*time.Second)
}

// ⏱️ MaxWait returns the copy deadline (default 60s)
func (c *Config) MaxWait() time.Duration {
	return duration(c.Copy.MaxWait, time.Minute)
}

// ⏱️ OperationTTL returns the record retention window (default 1h)
func (c *Config) OperationTTL() time.Duration {
	return duration(c.Operations.TTL, time.Hour)
}

// ⏱️ SweepInterval returns the sweep cadence (default 60s)
func (c *Config) SweepInterval() time.Duration {
	return duration(c.Operations.SweepInterval, time.Minute)
}

// ⏱️ SiteCacheTTL returns how long a resolved site id is trusted (default 4h)
func (c *Config) SiteCacheTTL() time.Duration {
	return duration(c.SharePoint.SiteCacheTTL, 4*time.Hour)
}
