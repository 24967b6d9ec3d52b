package http

import (
	_ "embed"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/codelive/internal/domain/buffer"
	"github.com/GriffinCanCode/codelive/internal/domain/playground"
	"github.com/GriffinCanCode/codelive/internal/domain/template"
	"github.com/GriffinCanCode/codelive/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/codelive/internal/relay"
	"github.com/GriffinCanCode/codelive/internal/sandbox"
	"github.com/GriffinCanCode/codelive/internal/shared/utils"
)

// Version is reported by the health endpoints
const Version = "1.0.0"

// PreviewCSP keeps the preview document in an opaque origin with scripts
// enabled, matching the host page's iframe sandbox
const PreviewCSP = "sandbox allow-scripts"

//go:embed static/index.html
var indexHTML []byte

// Handlers contains all HTTP handlers
type Handlers struct {
	pg      *playground.Playground
	metrics *monitoring.Metrics
	logger  *zap.Logger
	hasher  *utils.Hasher
	started time.Time
}

// NewHandlers creates a new handler set. metrics may be nil.
func NewHandlers(pg *playground.Playground, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		pg:      pg,
		metrics: metrics,
		logger:  logger,
		hasher:  utils.DefaultHasher(),
		started: time.Now(),
	}
}

// Register mounts every route on router
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	// Preview
	router.GET("/preview", h.Preview)
	router.GET("/preview/snapshot", h.Snapshot)

	api := router.Group("/api")
	{
		// Buffers
		api.GET("/buffers", h.GetBuffers)
		api.PUT("/buffers", h.PutBuffers)
		api.PATCH("/buffers/:pane", h.EditPane)

		// Rebuild control
		api.POST("/run", h.Run)
		api.PUT("/autorun", h.SetAutoRun)
		api.POST("/save", h.Save)
		api.POST("/clear", h.Clear)

		// Templates
		api.GET("/templates", h.ListTemplates)
		api.POST("/templates/:id/load", h.LoadTemplate)

		// Console
		api.GET("/console", h.GetConsole)
		api.DELETE("/console", h.ClearConsole)

		api.POST("/preview/dispatch", h.Dispatch)
	}
}

// Root serves the host page
func (h *Handlers) Root(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":     "healthy",
		"service":    "codelive",
		"version":    Version,
		"uptime":     time.Since(h.started).Round(time.Second).String(),
		"playground": h.pg.Status(),
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// GetBuffers returns the current buffer set
func (h *Handlers) GetBuffers(c *gin.Context) {
	c.JSON(http.StatusOK, h.pg.Buffers())
}

// PutBuffers replaces all three buffers; ?run=true rebuilds immediately
func (h *Handlers) PutBuffers(c *gin.Context) {
	var set buffer.Set
	if !h.bind(c, &set) {
		return
	}
	if err := utils.ValidateBuffers(set.Markup, set.Style, set.Script); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := queryBool(c, "run")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.pg.Replace(c.Request.Context(), set, run); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"buffers": set,
		"ran":     run,
	})
}

// EditRequest is the body of PATCH /api/buffers/:pane
type EditRequest struct {
	Text *string `json:"text"`
}

// EditPane replaces one pane's text
func (h *Handlers) EditPane(c *gin.Context) {
	pane, err := buffer.ParsePane(c.Param("pane"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req EditRequest
	if !h.bind(c, &req) {
		return
	}
	if req.Text == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	if err := utils.ValidateBuffer(*req.Text, string(pane)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.pg.Edit(pane, *req.Text); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pane":  pane,
		"state": h.pg.Status().State,
	})
}

// RunResponse summarizes one rebuild
type RunResponse struct {
	Instance   string             `json:"instance"`
	Scripts    int                `json:"scripts"`
	DurationMs int64              `json:"duration_ms"`
	Error      string             `json:"error,omitempty"`
	DOMChanges int                `json:"dom_changes"`
	Console    []sandbox.LogEntry `json:"console"`
}

func newRunResponse(r *sandbox.Result) RunResponse {
	resp := RunResponse{
		Instance:   r.Instance.String(),
		Scripts:    r.Scripts,
		DurationMs: r.Duration.Milliseconds(),
		DOMChanges: len(r.DOMChanges),
		Console:    r.Console,
	}
	if resp.Console == nil {
		resp.Console = []sandbox.LogEntry{}
	}
	if r.Error != nil {
		resp.Error = r.Error.Error()
	}
	return resp
}

// Run rebuilds the preview now
func (h *Handlers) Run(c *gin.Context) {
	result, err := h.pg.Run(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newRunResponse(result))
}

// AutoRunRequest is the body of PUT /api/autorun
type AutoRunRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetAutoRun toggles debounced rebuilds
func (h *Handlers) SetAutoRun(c *gin.Context) {
	var req AutoRunRequest
	if !h.bind(c, &req) {
		return
	}
	if req.Enabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
		return
	}
	if err := h.pg.SetAutoRun(c.Request.Context(), *req.Enabled); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auto_run": h.pg.AutoRun()})
}

// Save persists the current buffers
func (h *Handlers) Save(c *gin.Context) {
	rec, err := h.pg.Save(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timestamp": rec.Timestamp})
}

// Clear empties the buffers and the console
func (h *Handlers) Clear(c *gin.Context) {
	if err := h.pg.Clear(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TemplateSummary describes a gallery entry without its sources
type TemplateSummary struct {
	ID          template.ID `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
}

func summarize(t template.Template) TemplateSummary {
	return TemplateSummary{ID: t.ID, Name: t.Name, Description: t.Description}
}

// ListTemplates lists the starter gallery
func (h *Handlers) ListTemplates(c *gin.Context) {
	list := h.pg.Templates()
	out := make([]TemplateSummary, 0, len(list))
	for _, t := range list {
		out = append(out, summarize(t))
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

// LoadTemplate replaces the buffers with a template and rebuilds
func (h *Handlers) LoadTemplate(c *gin.Context) {
	tid, err := template.ParseID(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	t, err := h.pg.LoadTemplate(c.Request.Context(), tid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"template": summarize(t),
		"buffers":  h.pg.Buffers(),
	})
}

// GetConsole returns the console panel as JSON, or as an HTML fragment with
// ?format=html. ?since=N returns only lines after sequence N.
func (h *Handlers) GetConsole(c *gin.Context) {
	if c.Query("format") == "html" {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(h.pg.ConsoleHTML()))
		return
	}

	var lines []relay.Event
	if raw := c.Query("since"); raw != "" {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a sequence number"})
			return
		}
		lines = h.pg.ConsoleSince(seq)
	} else {
		lines = h.pg.Console()
	}
	if lines == nil {
		lines = []relay.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"lines": lines})
}

// ClearConsole empties the console panel
func (h *Handlers) ClearConsole(c *gin.Context) {
	h.pg.ClearConsole()
	c.Status(http.StatusNoContent)
}

// Preview serves the assembled document for the preview frame
func (h *Handlers) Preview(c *gin.Context) {
	doc := h.pg.Document().String()
	etag := h.hasher.ETag(doc)

	c.Header("Content-Security-Policy", PreviewCSP)
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Cache-Control", "no-cache")
	c.Header("ETag", etag)
	if utils.MatchesETag(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc))
}

// Snapshot serves the live preview's DOM after its scripts ran
func (h *Handlers) Snapshot(c *gin.Context) {
	html, err := h.pg.Snapshot(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Security-Policy", PreviewCSP)
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

// DispatchRequest is the body of POST /api/preview/dispatch
type DispatchRequest struct {
	Selector string `json:"selector"`
	Event    string `json:"event"`
}

// Dispatch fires a DOM event on the first element matching selector
func (h *Handlers) Dispatch(c *gin.Context) {
	var req DispatchRequest
	if !h.bind(c, &req) {
		return
	}
	if req.Event == "" {
		req.Event = "click"
	}
	if err := utils.ValidateSelector(req.Selector); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := utils.ValidateEventName(req.Event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.pg.Dispatch(c.Request.Context(), req.Selector, req.Event)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"selector": req.Selector,
		"event":    req.Event,
		"handlers": n,
	})
}

// bind decodes a size-limited JSON body, answering 400 on failure
func (h *Handlers) bind(c *gin.Context, v any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, utils.MaxJSONSize)
	if err := c.ShouldBindJSON(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

// fail maps domain errors onto HTTP status codes
func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, buffer.ErrUnknownPane):
		return http.StatusBadRequest
	case errors.Is(err, template.ErrTemplateNotFound), errors.Is(err, sandbox.ErrNoTarget):
		return http.StatusNotFound
	case errors.Is(err, sandbox.ErrNoInstance):
		return http.StatusConflict
	case errors.Is(err, playground.ErrClosed), errors.Is(err, sandbox.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(key + " must be true or false")
	}
	return v, nil
}
