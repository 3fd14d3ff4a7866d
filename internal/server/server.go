package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/CompanyPulse/internal/database"
	"github.com/TobiSchelling/CompanyPulse/internal/llm"
	"github.com/TobiSchelling/CompanyPulse/internal/logger"
	"github.com/TobiSchelling/CompanyPulse/internal/pipeline"
	"github.com/TobiSchelling/CompanyPulse/internal/sentiment"
	"github.com/TobiSchelling/CompanyPulse/internal/speech"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

const historyLimit = 50

// Analyzer runs one analysis. *pipeline.Pipeline implements it.
type Analyzer interface {
	Run(ctx context.Context, company string, backend llm.Backend) (*pipeline.Result, error)
}

// BackendFunc resolves a canonical provider name to a backend.
type BackendFunc func(provider string) (llm.Backend, error)

// Options configures a Server. DB and Store may be nil, which disables the
// history pages and audio files respectively.
type Options struct {
	Analyzer        Analyzer
	Backends        BackendFunc
	DB              *database.DB
	Store           *speech.Store
	DefaultProvider string
}

// Server is the HTTP server for running and browsing analyses.
type Server struct {
	opts  Options
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server.
func New(opts Options) (*Server, error) {
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = llm.ProviderOllama
	}

	funcMap := template.FuncMap{
		"markdown":  renderMarkdown,
		"uniqueKey": sentiment.UniqueKey,
		"inc":       func(i int) int { return i + 1 },
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so {{define "content"}} does not clash.
	pageNames := []string{"index.html", "analysis.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{opts: opts, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /home", s.handleHome)
	s.mux.HandleFunc("GET /api/analyses", s.handleListAnalyses)
	s.mux.HandleFunc("GET /api/analyses/{id}", s.handleGetAnalysis)
	s.mux.HandleFunc("GET "+database.AudioURLPrefix+"{file}", s.handleAudio)

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /analyze", s.handleAnalyzeForm)
	s.mux.HandleFunc("GET /analysis/{id}", s.handleAnalysisPage)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHome runs an analysis and returns it as JSON.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	company := strings.TrimSpace(r.URL.Query().Get("company_name"))
	if company == "" {
		writeError(w, http.StatusBadRequest, "company_name is required")
		return
	}

	analysis, status, err := s.analyze(r.Context(), company, r.URL.Query().Get("model_provider"))
	if err != nil {
		var be *llm.BackendError
		if errors.As(err, &be) {
			writeJSON(w, status, map[string]string{"error": err.Error(), "stage": be.Stage})
			return
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// analyze resolves the backend and runs the pipeline. The returned status is
// the HTTP code for err.
func (s *Server) analyze(ctx context.Context, company, provider string) (*database.Analysis, int, error) {
	name, err := llm.NormalizeProvider(provider, s.opts.DefaultProvider)
	if err != nil {
		return nil, http.StatusBadRequest, fmt.Errorf("%w: %s (expected one of %s)",
			err, provider, strings.Join(llm.ProviderNames(), ", "))
	}

	backend, err := s.opts.Backends(name)
	if err != nil {
		logger.Log.Warnf("Backend %s unavailable: %v", name, err)
		return nil, http.StatusServiceUnavailable, fmt.Errorf("%s backend unavailable: %w", name, err)
	}

	res, err := s.opts.Analyzer.Run(ctx, company, backend)
	switch {
	case err == nil:
		return res.Analysis, http.StatusOK, nil
	case errors.Is(err, pipeline.ErrNoSources):
		// Not a server failure: the client shows the message as the result.
		return nil, http.StatusOK, err
	case errors.Is(err, pipeline.ErrEmptyCompany):
		return nil, http.StatusBadRequest, err
	}
	var be *llm.BackendError
	if errors.As(err, &be) {
		return nil, http.StatusBadGateway, err
	}
	return nil, http.StatusInternalServerError, err
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.opts.DB == nil {
		writeJSON(w, http.StatusOK, []database.AnalysisSummary{})
		return
	}
	list, err := s.opts.DB.ListAnalyses(r.URL.Query().Get("company"), historyLimit)
	if err != nil {
		logger.Log.Errorf("Error listing analyses: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if list == nil {
		list = []database.AnalysisSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.lookup(r.PathValue("id"))
	if err != nil {
		logger.Log.Errorf("Error loading analysis: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) lookup(id string) (*database.Analysis, error) {
	if s.opts.DB == nil || id == "" {
		return nil, nil
	}
	return s.opts.DB.GetAnalysis(id)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		http.NotFound(w, r)
		return
	}
	path, err := s.opts.Store.Path(r.PathValue("file"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, path)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, r.URL.Query().Get("company"), "", http.StatusOK)
}

func (s *Server) renderIndex(w http.ResponseWriter, company, message string, status int) {
	var list []database.AnalysisSummary
	var topics []database.TopicCount
	if s.opts.DB != nil {
		var err error
		if list, err = s.opts.DB.ListAnalyses(company, historyLimit); err != nil {
			logger.Log.Errorf("Error listing analyses: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if topics, err = s.opts.DB.TopTopics(company, 10); err != nil {
			logger.Log.Warnf("Error loading top topics: %v", err)
		}
	}

	s.render(w, "index.html", status, map[string]any{
		"Analyses":  list,
		"Topics":    topics,
		"Company":   company,
		"Message":   message,
		"Providers": llm.ProviderNames(),
		"Default":   s.opts.DefaultProvider,
	})
}

func (s *Server) handleAnalyzeForm(w http.ResponseWriter, r *http.Request) {
	company := strings.TrimSpace(r.FormValue("company_name"))
	if company == "" {
		s.renderIndex(w, "", "Please enter a company name.", http.StatusBadRequest)
		return
	}

	analysis, status, err := s.analyze(r.Context(), company, r.FormValue("model_provider"))
	if err != nil {
		s.renderIndex(w, "", err.Error(), status)
		return
	}
	if s.opts.DB == nil {
		s.render(w, "analysis.html", http.StatusOK, map[string]any{"Analysis": analysis})
		return
	}
	http.Redirect(w, r, "/analysis/"+analysis.ID, http.StatusSeeOther)
}

func (s *Server) handleAnalysisPage(w http.ResponseWriter, r *http.Request) {
	a, err := s.lookup(r.PathValue("id"))
	if err != nil {
		logger.Log.Errorf("Error loading analysis: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if a == nil {
		http.NotFound(w, r)
		return
	}
	s.render(w, "analysis.html", http.StatusOK, map[string]any{"Analysis": a})
}

func (s *Server) render(w http.ResponseWriter, name string, status int, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		logger.Log.Errorf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		logger.Log.Errorf("Error rendering template %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Errorf("Error writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve starts the HTTP server on the given port and shuts it down when ctx
// is cancelled.
func Serve(ctx context.Context, s *Server, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Infof("Server listening on http://%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Log.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}
