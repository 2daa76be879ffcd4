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

// Package server exposes the file-operation façade over HTTP. Handlers
// translate requests into façade calls and normalized errors into the
// {"error":{code,message}} envelope; they hold no business logic of their own.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/walteh/driveproxy/pkg/fileops"
	"github.com/walteh/driveproxy/pkg/provider"
)

// uploads larger than this are rejected before reaching the provider
const maxUploadBytes = 64 << 20

// 🔑 TokenSource supplies an application credential when the caller
// did not send one
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ⚙️ Options wires a Server together
type Options struct {
	Service *fileops.Service
	Tokens  TokenSource // optional fallback credential
	Logger  zerolog.Logger
}

// 🌐 Server is the HTTP surface over the file-operation façade
type Server struct {
	svc    *fileops.Service
	tokens TokenSource
	logger zerolog.Logger
}

// 🏭 New creates a Server
func New(opts Options) *Server {
	return &Server{
		svc:    opts.Service,
		tokens: opts.Tokens,
		logger: opts.Logger,
	}
}

// 🗺️ Router builds the route tree
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/files", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/folders/all", s.handleGetAllFolders)
		r.Post("/rename", s.handleRename)
		r.Post("/move", s.handleMove)
		r.Post("/upload", s.handleUpload)
		r.Post("/copy", s.handleCopy)
		r.Get("/operations/{id}", s.handleCopyStatus)
		r.Post("/delete", s.handleDelete)
	})
	return r
}

// 📝 requestLogger injects the logger into the request context and logs
// one line per request
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := s.logger.With().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

		logger.Info().
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// 🔑 credential extracts the caller's token from the Authorization header,
// falling back to the application token source
func (s *Server) credential(r *http.Request) (provider.Credential, error) {
	cred := provider.Credential{UserID: r.Header.Get("X-User-Id")}

	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		cred.AccessToken = token
		return cred, nil
	}

	if s.tokens == nil {
		return provider.Credential{}, provider.NewError(
			provider.CodeAuthenticationFailed, "missing bearer token")
	}
	token, err := s.tokens.Token(r.Context())
	if err != nil {
		return provider.Credential{}, err
	}
	cred.AccessToken = token
	return cred, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	cred, err := s.credential(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	items, err := s.svc.List(r.Context(), r.URL.Query().Get("parentId"), cred)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGetAllFolders(w http.ResponseWriter, r *http.Request) {
	cred, err := s.credential(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	folders, err := s.svc.GetAllFolders(r.Context(), cred)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderJSON(w, r, http.StatusOK, map[string]any{"folders": folders})
}

type renameRequest struct {
	ItemID  string `json:"itemId"`
	NewName string `json:"newName"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeBody(r, &req); err != nil {
		s.renderError(w, r, err)
		return
	}
	if req.ItemID == "" || req.NewName == "" {
		s.renderError(w, r, provider.NewError(provider.CodeBadRequest, "itemId and newName are required"))
		return
	}
	cred, err := s.credential(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	item, err := s.svc.Rename(r.Context(), req.ItemID, req.NewName, cred)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderJSON(w, r, http.StatusOK, item)
}

type moveRequest struct {
	ItemID         string `json:"itemId"`
	TargetFolderID string `json:"targetFolderId"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeBody(r, &req); err != nil {
		s.renderError(w, r, err)
		return
	}
	if req.ItemID == "" {
		s.renderError(w, r, provider.NewError(provider.CodeBadRequest, "itemId is required"))
		return
	}
	cred, err := s.credential(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	item, err := s.svc.Move(r.Context(), req.ItemID, req.TargetFolderID, cred)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderJSON(w, r, http.StatusOK, item)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.renderError(w, r, provider.NewError(provider.CodePayloadTooLarge, "upload too large or malformed"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.renderError(w, r, provider.NewError(provider.CodeBadRequest, "file field is required"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.renderError(w, r, provider.NewError(provider.CodeBadRequest, "reading upload"))
		return
	}

	cred, err := s.credential(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	item, err := s.svc.Upload(r.Context(), header.Filename, content, r.FormValue("targetFolderId"), cred)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderJSON(w, r, http.StatusCreated, item)
}

type copyRequest struct {
	ItemID         string `json:"itemId"`
	TargetFolderID string `json:"targetFolderId"`
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req copyRequest
	if err := decodeBody(r, &req); err != nil {
		s.renderError(w, r, err)
		return
	}
	if req.ItemID == "" {
		s.renderError(w, r, provider.NewError(provider.CodeBadRequest, "itemId is required"))
		return
	}
	cred, err := s.credential(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	started, err := s.svc.StartCopy(r.Context(), req.ItemID, req.TargetFolderID, cred)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderJSON(w, r, http.StatusAccepted, started)
}

func (s *Server) handleCopyStatus(w http.ResponseWriter, r *http.Request) {
	op, err := s.svc.GetCopyStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderJSON(w, r, http.StatusOK, op)
}

type deleteRequest struct {
	ItemID string `json:"itemId"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeBody(r, &req); err != nil {
		s.renderError(w, r, err)
		return
	}
	if req.ItemID == "" {
		s.renderError(w, r, provider.NewError(provider.CodeBadRequest, "itemId is required"))
		return
	}
	cred, err := s.credential(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	item, err := s.svc.Delete(r.Context(), req.ItemID, cred)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	s.renderJSON(w, r, http.StatusOK, map[string]any{"deleted": true, "item": item})
}

// 📥 decodeBody parses a JSON request body
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return provider.NewError(provider.CodeBadRequest, "invalid request body")
	}
	return nil
}

// 📤 renderJSON writes a JSON response
func (s *Server) renderJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("encoding response")
	}
}

// ⚠️ renderError writes the normalized error envelope. The envelope carries
// only the code and message, never upstream payloads or tokens.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	perr := provider.Wrap(err, r.URL.Path, "")
	status := provider.HTTPStatus(perr)

	logger := zerolog.Ctx(r.Context())
	logger.Warn().Str("code", perr.Code).Int("status", status).Msg(perr.Message)

	s.renderJSON(w, r, status, map[string]any{
		"error": map[string]string{
			"code":    perr.Code,
			"message": perr.Message,
		},
	})
}
