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

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/driveproxy/pkg/audit"
	"github.com/walteh/driveproxy/pkg/auth"
	"github.com/walteh/driveproxy/pkg/config"
	"github.com/walteh/driveproxy/pkg/fileops"
	"github.com/walteh/driveproxy/pkg/operation"
	"github.com/walteh/driveproxy/pkg/provider"
	_ "github.com/walteh/driveproxy/pkg/provider/sharepoint" // registers the sharepoint factory
	"github.com/walteh/driveproxy/pkg/server"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the file-operation HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		l := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger = &l
		ctx = logger.WithContext(ctx)
	}

	// Load config
	cfg, err := config.Load(ctx, configFile)
	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}

	// Create provider through the registry
	factory := provider.Get(cfg.Provider)
	if factory == nil {
		return errors.Errorf("unknown provider: %s", cfg.Provider)
	}
	prov, err := factory(ctx, cfg)
	if err != nil {
		return errors.Errorf("creating provider: %w", err)
	}

	// Application credential, used when the caller sends no bearer token
	var tokens server.TokenSource
	if cfg.SharePoint.ClientID != "" {
		ts, err := auth.New(auth.Options{
			TenantID:     cfg.SharePoint.TenantID,
			ClientID:     cfg.SharePoint.ClientID,
			ClientSecret: cfg.SharePoint.ClientSecret,
		})
		if err != nil {
			return errors.Errorf("creating token source: %w", err)
		}
		tokens = ts
	}

	// Create audit sink
	sink, err := audit.NewFileSink(cfg.Audit.Path, *logger)
	if err != nil {
		return errors.Errorf("creating audit sink: %w", err)
	}
	defer sink.Close()
	if cfg.Audit.Echo {
		sink = sink.WithEcho(audit.NewEcho(os.Stdout))
	}

	// Operation store and façade
	store := operation.NewStore()
	svc := fileops.New(fileops.Options{
		Provider:     prov,
		Store:        store,
		Sink:         sink,
		PollInterval: cfg.PollInterval(),
		MaxWait:      cfg.MaxWait(),
	})

	srv := server.New(server.Options{
		Service: svc,
		Tokens:  tokens,
		Logger:  *logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("listen", cfg.Listen).Msg("server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Errorf("serving HTTP: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		store.RunSweeper(gctx, cfg.SweepInterval(), cfg.OperationTTL())
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return errors.Errorf("running server: %w", err)
	}
	return nil
}
