package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CTAG07/Nepenthes/pkg/ejs"
	"github.com/CTAG07/Nepenthes/pkg/script"
	"github.com/CTAG07/Nepenthes/pkg/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName    = "github.com/CTAG07/Nepenthes/cmd/main"
	adhocTemplate = "adhoc"
)

// RenderAPI holds the dependencies for the render and cache handlers.
type RenderAPI struct {
	store    *store.Store
	renderer *ejs.Renderer
	metrics  *Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// AdhocRenderRequest is the JSON body of POST /api/render.
type AdhocRenderRequest struct {
	Template string         `json:"template"`
	Locals   map[string]any `json:"locals"`
	Debug    bool           `json:"debug"`
}

// NewRenderAPI creates a new instance of the RenderAPI.
func NewRenderAPI(st *store.Store, renderer *ejs.Renderer, metrics *Metrics, logger *slog.Logger) *RenderAPI {
	return &RenderAPI{
		store:    st,
		renderer: renderer,
		metrics:  metrics,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
	}
}

// RegisterRoutes sets up the routing for the render, parse and cache endpoints.
func (a *RenderAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/render", a.handleRenderAdhoc)
	mux.HandleFunc("/api/render/", a.handleRenderStored)
	mux.HandleFunc("/api/parse", a.handleParse)
	mux.HandleFunc("/api/cache", a.handleCache)
	mux.HandleFunc("/api/cache/clear", a.handleCacheClear)
}

// renderStatus maps template errors to HTTP status codes: malformed templates
// and options are client errors, failures while running tag code are
// unprocessable.
func renderStatus(err error) int {
	var (
		parseErr   *ejs.ParseError
		syntaxErr  *script.SyntaxError
		runtimeErr *script.RuntimeError
	)
	switch {
	case errors.Is(err, ejs.ErrCacheRequiresFilename),
		errors.As(err, &parseErr),
		errors.As(err, &syntaxErr),
		errors.Is(err, store.ErrInvalidName):
		return http.StatusBadRequest
	case errors.As(err, &runtimeErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decodeLocals reads an optional JSON object from body.
func decodeLocals(body io.Reader) (map[string]any, error) {
	var locals map[string]any
	if err := json.NewDecoder(body).Decode(&locals); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return locals, nil
}

func isDebug(r *http.Request) bool {
	debug, _ := strconv.ParseBool(r.URL.Query().Get("debug"))
	return debug
}

// handleRenderStored renders the current revision of a stored template. The
// request body is the JSON object of locals.
func (a *RenderAPI) handleRenderStored(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, scopeRender) {
		respondForbidden(w, scopeRender)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/render/")

	ctx, span := a.tracer.Start(r.Context(), "ejs.render",
		trace.WithAttributes(attribute.String("template.name", name)))
	defer span.End()

	locals, err := decodeLocals(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON locals")
		return
	}

	tmpl, err := a.store.Get(ctx, name)
	if err != nil {
		a.fail(w, span, name, err)
		return
	}
	span.SetAttributes(attribute.String("template.revision", tmpl.Revision))

	start := time.Now()
	out, err := a.renderer.Render(tmpl.Source, ejs.Options{
		Locals:   locals,
		Cache:    true,
		Filename: cacheKey(name, tmpl.Revision),
		Debug:    isDebug(r),
	})
	took := time.Since(start)
	a.metrics.ObserveRender(name, took, err)
	if recErr := a.store.RecordRender(ctx, name, took, err != nil); recErr != nil {
		a.logger.Warn("Failed to record render statistics", "template", name, "error", recErr)
	}
	if err != nil {
		a.fail(w, span, name, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	writeHTML(w, out)
}

// handleRenderAdhoc renders a template supplied in the request without
// caching it.
func (a *RenderAPI) handleRenderAdhoc(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, scopeRender) {
		respondForbidden(w, scopeRender)
		return
	}

	_, span := a.tracer.Start(r.Context(), "ejs.render",
		trace.WithAttributes(attribute.String("template.name", adhocTemplate)))
	defer span.End()

	var req AdhocRenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	start := time.Now()
	out, err := a.renderer.Render(req.Template, ejs.Options{Locals: req.Locals, Debug: req.Debug})
	a.metrics.ObserveRender(adhocTemplate, time.Since(start), err)
	if err != nil {
		a.fail(w, span, adhocTemplate, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	writeHTML(w, out)
}

// handleParse returns the program generated for the template in the body.
func (a *RenderAPI) handleParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, scopeTemplatesRead) {
		respondForbidden(w, scopeTemplatesRead)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}
	code, err := ejs.Parse(string(body))
	if err != nil {
		respondWithError(w, renderStatus(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"code": code})
}

// handleCache lists the cached template keys.
func (a *RenderAPI) handleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, scopeCacheManage) {
		respondForbidden(w, scopeCacheManage)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"keys": a.renderer.Cache().Keys()})
}

func (a *RenderAPI) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, scopeCacheManage) {
		respondForbidden(w, scopeCacheManage)
		return
	}
	n := a.renderer.Cache().Len()
	a.renderer.ClearCache()
	a.logger.Info("Template cache cleared via API", "evicted", n)
	respondWithJSON(w, http.StatusOK, map[string]int{"evicted": n})
}

func (a *RenderAPI) fail(w http.ResponseWriter, span trace.Span, name string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	status := renderStatus(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("Render failed", "template", name, "error", err)
		respondWithError(w, status, "Render failed")
		return
	}
	a.logger.Debug("Render rejected", "template", name, "status", status, "error", err)
	respondWithError(w, status, err.Error())
}

func writeHTML(w http.ResponseWriter, out string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out)
}
