// Package devserver is a local stand-in for the automation backend. It serves the
// REST endpoints and the push channel, and replays a scripted job on start.
package devserver

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tender-automation/dashboard/internal/models"
	"github.com/tender-automation/dashboard/internal/protocol"
	"github.com/tender-automation/dashboard/internal/results"
)

// Config describes the simulated backend.
type Config struct {
	Version   string
	Sources   []models.SourceOption
	Results   []models.ResultRow
	Script    Script
	StepDelay time.Duration // pause between scripted messages
	Binary    bool          // send msgpack frames instead of JSON text
	// FailStart makes /api/start report {"status":"error"} after a partial run.
	FailStart string
	// LegacySourceKey answers /api/sources with "banks" instead of "sources".
	LegacySourceKey bool
	RequestLogging  bool
}

// DefaultConfig returns a backend with two sources and three results.
func DefaultConfig() Config {
	return Config{
		Version: "dev",
		Sources: []models.SourceOption{
			{ID: "CANARA", DisplayName: "Canara Bank"},
			{ID: "SBI", DisplayName: "State Bank of India"},
		},
		Results: []models.ResultRow{
			{Title: "GEM-2025-B-1001", Description: "Supply of office furniture", Deadline: "2025-03-14", AttachmentCount: 3},
			{Title: "GEM-2025-B-1002", Description: "Annual maintenance of ATMs", Deadline: "2025-03-21", AttachmentCount: 5},
			{Title: "Branch/Renovation 7", Description: "Civil works at branch 7", Deadline: "Not found", AttachmentCount: 0},
		},
		Script:    DefaultScript,
		StepDelay: 300 * time.Millisecond,
	}
}

// Server is the development backend.
type Server struct {
	cfg    Config
	hub    *Hub
	echo   *echo.Echo
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	runs    int
}

// New builds the server and registers its routes.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Script == nil {
		cfg.Script = DefaultScript
	}
	for i := range cfg.Results {
		if cfg.Results[i].DownloadReference == "" {
			cfg.Results[i].DownloadReference = "/api/download/" + cfg.Results[i].Title
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler

	if cfg.RequestLogging {
		e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Skipper: func(c echo.Context) bool {
				return c.Request().URL.Path == "/api/health"
			},
		}))
	}
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	s := &Server{
		cfg:    cfg,
		hub:    NewHub(cfg.Binary, logger),
		echo:   e,
		logger: logger.With("component", "devserver"),
	}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Hub returns the push channel hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens on addr until the server is shut down.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:        addr,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s.echo.StartServer(srv)
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.DropAll()
	return s.echo.Shutdown(ctx)
}

// Runs returns how many runs have been started.
func (s *Server) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *Server) registerRoutes() {
	s.echo.GET("/ws", s.hub.HandleWebSocket)

	api := s.echo.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/sources", s.handleSources)
	api.POST("/start", s.handleStart)
	api.GET("/results", s.handleResults)
	api.GET("/download/*", s.handleDownload)
	api.POST("/dev/drop", s.handleDrop)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": s.cfg.Version,
		"clients": s.hub.Count(),
	})
}

func (s *Server) handleSources(c echo.Context) error {
	key := "sources"
	if s.cfg.LegacySourceKey {
		key = "banks"
	}
	sources := s.cfg.Sources
	if sources == nil {
		sources = []models.SourceOption{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{key: sources})
}

type startRequest struct {
	SourceID string `json:"source_id"`
}

// handleStart runs the script and answers once it is done, as the production backend does.
func (s *Server) handleStart(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return rejectCommand(http.StatusBadRequest, "invalid start request: %v", err)
	}
	source, ok := s.lookupSource(req.SourceID)
	if !ok {
		return rejectCommand(http.StatusNotFound, "unknown source %q", req.SourceID)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return rejectCommand(http.StatusConflict, "automation already running")
	}
	s.running = true
	s.runs++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("run started", "source", source.ID)
	msgs := s.cfg.Script(source, s.cfg.Results)
	if s.cfg.FailStart != "" {
		// Stop before completion and report the failure the way the backend does.
		if len(msgs) > 1 {
			msgs = msgs[:len(msgs)/2]
		}
		msgs = append(msgs, protocol.Log{Level: "error", Message: "Automation failed: " + s.cfg.FailStart})
	}

	ctx := c.Request().Context()
	for i, m := range msgs {
		if i > 0 && s.cfg.StepDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.StepDelay):
			}
		}
		if _, err := s.hub.Broadcast(m); err != nil {
			s.logger.Warn("encoding scripted message", "error", err)
		}
	}

	if s.cfg.FailStart != "" {
		return c.JSON(http.StatusOK, map[string]string{"status": "error", "message": s.cfg.FailStart})
	}
	s.logger.Info("run completed", "source", source.ID)
	return c.JSON(http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) lookupSource(id string) (models.SourceOption, bool) {
	for _, src := range s.cfg.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return models.SourceOption{}, false
}

func (s *Server) handleResults(c echo.Context) error {
	rows := s.cfg.Results
	if rows == nil {
		rows = []models.ResultRow{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"results": rows})
}

// handleDownload zips placeholder documents for a result row. Unknown rows get the
// backend's JSON error body with status 200.
func (s *Server) handleDownload(c echo.Context) error {
	name := c.Param("*")
	var row *models.ResultRow
	for i := range s.cfg.Results {
		if s.cfg.Results[i].Title == name {
			row = &s.cfg.Results[i]
			break
		}
	}
	if row == nil {
		return rejectQuery(http.StatusOK, "Tender not found")
	}

	data, err := buildArchive(*row)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", results.ArchiveName(row.Title)))
	return c.Blob(http.StatusOK, "application/zip", data)
}

func buildArchive(row models.ResultRow) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	files := map[string]string{"tender.pdf": row.Description}
	for i := 1; i <= row.AttachmentCount; i++ {
		files[fmt.Sprintf("DOCX/form_%d.docx", i)] = fmt.Sprintf("Form %d for %s", i, row.Title)
	}
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("adding %s: %w", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			return nil, fmt.Errorf("writing %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Server) handleDrop(c echo.Context) error {
	n := s.hub.DropAll()
	s.logger.Info("dropped connections", "count", n)
	return c.JSON(http.StatusOK, map[string]int{"dropped": n})
}

// Banner renders the startup box printed by the devserver command.
func Banner(version, listen string, cfg Config) string {
	frames := "json"
	if cfg.Binary {
		frames = "msgpack"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n")
	fmt.Fprintf(&b, "╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(&b, "║           Tender Automation Dev Backend                   ║\n")
	fmt.Fprintf(&b, "╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Fprintf(&b, "║  Version:    %-45s║\n", version)
	fmt.Fprintf(&b, "║  Frames:     %-45s║\n", frames)
	fmt.Fprintf(&b, "║  Sources:    %-45d║\n", len(cfg.Sources))
	fmt.Fprintf(&b, "╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Fprintf(&b, "║  REST:      http://%-38s║\n", listen)
	fmt.Fprintf(&b, "║  Push:      ws://%-40s║\n", listen+"/ws")
	fmt.Fprintf(&b, "╚═══════════════════════════════════════════════════════════╝\n")
	return b.String()
}
