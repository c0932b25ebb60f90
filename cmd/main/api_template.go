package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/Nepenthes/pkg/ejs"
	"github.com/CTAG07/Nepenthes/pkg/store"
)

// TemplateAPI holds the dependencies for the template API handlers.
type TemplateAPI struct {
	store  *store.Store
	cache  *ejs.Cache
	logger *slog.Logger
}

// NewTemplateAPI creates a new instance of the TemplateAPI.
func NewTemplateAPI(st *store.Store, cache *ejs.Cache, logger *slog.Logger) *TemplateAPI {
	return &TemplateAPI{
		store:  st,
		cache:  cache,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/templates endpoints.
func (t *TemplateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/templates", t.handleList)
	mux.HandleFunc("/api/templates/export", t.handleExport)
	mux.HandleFunc("/api/templates/import", t.handleImport)
	mux.HandleFunc("/api/templates/", t.handleTemplate)
}

// storeTemplate checks that src compiles, stores it as the current revision
// of name and evicts the cached revisions of name.
func storeTemplate(ctx context.Context, st *store.Store, cache *ejs.Cache, name, src string) (store.TemplateInfo, error) {
	if err := store.ValidateName(name); err != nil {
		return store.TemplateInfo{}, err
	}
	if _, err := ejs.Compile(src, ejs.Options{Filename: name}); err != nil {
		return store.TemplateInfo{}, err
	}
	info, err := st.Put(ctx, name, src)
	if err != nil {
		return store.TemplateInfo{}, err
	}
	cache.DeletePrefix(cacheKeyPrefix(name))
	return info, nil
}

func cacheKeyPrefix(name string) string {
	return name + "@"
}

func cacheKey(name, revision string) string {
	return cacheKeyPrefix(name) + revision
}

// handleList returns every stored template without its source.
func (t *TemplateAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, scopeTemplatesRead) {
		respondForbidden(w, scopeTemplatesRead)
		return
	}
	infos, err := t.store.List(r.Context())
	if err != nil {
		t.logger.Error("Failed to list templates", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	if infos == nil {
		infos = []store.TemplateInfo{}
	}
	respondWithJSON(w, http.StatusOK, infos)
}

// handleTemplate serves /api/templates/{name} and /api/templates/{name}/history.
func (t *TemplateAPI) handleTemplate(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	if rest, ok := strings.CutSuffix(name, "/history"); ok {
		t.handleHistory(w, r, rest)
		return
	}
	if err := store.ValidateName(name); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid template name")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !hasScope(r, scopeTemplatesRead) {
			respondForbidden(w, scopeTemplatesRead)
			return
		}
		tmpl, err := t.store.Get(r.Context(), name)
		if err != nil {
			t.respondStoreError(w, name, err)
			return
		}
		respondWithJSON(w, http.StatusOK, tmpl)

	case http.MethodPut:
		if !hasScope(r, scopeTemplatesWrite) {
			respondForbidden(w, scopeTemplatesWrite)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
			return
		}
		info, err := storeTemplate(r.Context(), t.store, t.cache, name, string(body))
		if err != nil {
			if status := renderStatus(err); status == http.StatusBadRequest {
				respondWithError(w, status, fmt.Sprintf("Template rejected: %v", err))
				return
			}
			t.respondStoreError(w, name, err)
			return
		}
		t.logger.Info("Template stored via API", "name", name, "revision", info.Revision)
		respondWithJSON(w, http.StatusOK, info)

	case http.MethodDelete:
		if !hasScope(r, scopeTemplatesWrite) {
			respondForbidden(w, scopeTemplatesWrite)
			return
		}
		if err := t.store.Delete(r.Context(), name); err != nil {
			t.respondStoreError(w, name, err)
			return
		}
		t.cache.DeletePrefix(cacheKeyPrefix(name))
		t.logger.Info("Template deleted via API", "name", name)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (t *TemplateAPI) handleHistory(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, scopeTemplatesRead) {
		respondForbidden(w, scopeTemplatesRead)
		return
	}
	revisions, err := t.store.History(r.Context(), name)
	if err != nil {
		t.respondStoreError(w, name, err)
		return
	}
	respondWithJSON(w, http.StatusOK, revisions)
}

// handleExport streams every template as a JSON array.
func (t *TemplateAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, scopeTemplatesRead) {
		respondForbidden(w, scopeTemplatesRead)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="templates.json"`)
	if err := t.store.Export(r.Context(), w); err != nil {
		t.logger.Error("Template export failed", "error", err)
	}
}

// handleImport stores every template of an exported JSON array.
func (t *TemplateAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, scopeTemplatesWrite) {
		respondForbidden(w, scopeTemplatesWrite)
		return
	}
	n, err := t.store.Import(r.Context(), r.Body)
	if err != nil {
		t.logger.Error("Template import failed", "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	if n > 0 {
		t.cache.Clear()
	}
	t.logger.Info("Templates imported via API", "changed", n)
	respondWithJSON(w, http.StatusOK, map[string]int{"changed": n})
}

func (t *TemplateAPI) respondStoreError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Template '%s' not found", name))
	case errors.Is(err, store.ErrInvalidName):
		respondWithError(w, http.StatusBadRequest, "Invalid template name")
	default:
		t.logger.Error("Template store operation failed", "name", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Template store operation failed")
	}
}
