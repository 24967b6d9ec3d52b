package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/codelive/internal/domain/buffer"
	"github.com/GriffinCanCode/codelive/internal/domain/playground"
	"github.com/GriffinCanCode/codelive/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/codelive/internal/relay"
	"github.com/GriffinCanCode/codelive/internal/shared/id"
	"github.com/GriffinCanCode/codelive/internal/shared/utils"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	runTimeout   = 30 * time.Second
	outboundSize = 256
)

// Message types
const (
	TypeSystem  = "system"
	TypeConsole = "console"
	TypeError   = "error"
	TypePong    = "pong"

	TypeEdit    = "edit"
	TypeReplace = "replace"
	TypeRun     = "run"
	TypeAutoRun = "auto_run"
	TypePing    = "ping"
)

// ClientMessage is one message from the host page
type ClientMessage struct {
	Type    string      `json:"type"`
	Pane    string      `json:"pane,omitempty"`
	Text    string      `json:"text,omitempty"`
	Buffers *buffer.Set `json:"buffers,omitempty"`
	Run     bool        `json:"run,omitempty"`
	Enabled *bool       `json:"enabled,omitempty"`
}

// Options configures a Handler
type Options struct {
	AllowOrigins []string
	Metrics      *monitoring.Metrics
	Logger       *zap.Logger
}

// Handler manages WebSocket connections
type Handler struct {
	pg       *playground.Playground
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(pg *playground.Playground, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Handler{
		pg:      pg,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(opts.AllowOrigins),
		},
	}
}

// checkOrigin accepts same-origin requests, requests without an Origin
// header and any origin in allowed. A lone "*" accepts everything.
func checkOrigin(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if strings.EqualFold(strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://"), r.Host) {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// client is one connection. Only the write pump writes to conn.
type client struct {
	id     id.ClientID
	conn   *websocket.Conn
	out    chan []byte
	logger *zap.Logger
}

// HandleConnection upgrades the request and streams console lines and
// playground events until the client disconnects
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	clientID := id.NewClientID()
	cl := &client{
		id:     clientID,
		conn:   conn,
		out:    make(chan []byte, outboundSize),
		logger: h.logger.With(zap.String("client", clientID.String())),
	}

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}
	cl.logger.Debug("WebSocket connected", zap.String("remote", c.ClientIP()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	console, stopConsole := h.pg.SubscribeConsole(outboundSize)
	defer stopConsole()
	events, stopEvents := h.pg.Subscribe(outboundSize)
	defer stopEvents()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(ctx, cl, console, events)
	}()

	h.send(cl, map[string]any{
		"type":      TypeSystem,
		"client_id": cl.id,
		"message":   "Connected to CodeLive",
		"status":    h.pg.Status(),
	})

	h.readPump(ctx, cl)

	cancel()
	<-done
	_ = conn.Close()
	cl.logger.Debug("WebSocket disconnected")
}

func (h *Handler) readPump(ctx context.Context, cl *client) {
	cl.conn.SetReadLimit(utils.MaxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cl.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.record("in", "invalid")
			h.sendError(cl, "invalid message")
			continue
		}
		h.record("in", inboundLabel(msg.Type))
		h.handle(ctx, cl, msg)
	}
}

func (h *Handler) handle(ctx context.Context, cl *client, msg ClientMessage) {
	switch msg.Type {
	case TypeEdit:
		pane, err := buffer.ParsePane(msg.Pane)
		if err != nil {
			h.sendError(cl, err.Error())
			return
		}
		if err := utils.ValidateBuffer(msg.Text, string(pane)); err != nil {
			h.sendError(cl, err.Error())
			return
		}
		if err := h.pg.Edit(pane, msg.Text); err != nil {
			h.sendError(cl, err.Error())
		}

	case TypeReplace:
		if msg.Buffers == nil {
			h.sendError(cl, "buffers are required")
			return
		}
		set := *msg.Buffers
		if err := utils.ValidateBuffers(set.Markup, set.Style, set.Script); err != nil {
			h.sendError(cl, err.Error())
			return
		}
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()
		if err := h.pg.Replace(runCtx, set, msg.Run); err != nil {
			h.sendError(cl, err.Error())
		}

	case TypeRun:
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()
		if _, err := h.pg.Run(runCtx); err != nil {
			h.sendError(cl, err.Error())
		}

	case TypeAutoRun:
		if msg.Enabled == nil {
			h.sendError(cl, "enabled is required")
			return
		}
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()
		if err := h.pg.SetAutoRun(runCtx, *msg.Enabled); err != nil {
			h.sendError(cl, err.Error())
		}

	case TypePing:
		h.send(cl, map[string]any{"type": TypePong, "timestamp": time.Now().Unix()})

	default:
		h.sendError(cl, "unknown message type")
	}
}

func (h *Handler) writePump(ctx context.Context, cl *client, console <-chan relay.Event, events <-chan playground.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	// Closing after a failed write unblocks readPump
	defer func() {
		if ctx.Err() == nil {
			_ = cl.conn.Close()
		}
	}()

	write := func(kind string, data []byte) bool {
		_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			cl.logger.Debug("WebSocket write failed", zap.Error(err))
			return false
		}
		h.record("out", kind)
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = cl.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return

		case data := <-cl.out:
			if !write("reply", data) {
				return
			}

		case e, ok := <-console:
			if !ok {
				console = nil
				continue
			}
			data, err := sonic.Marshal(map[string]any{"type": TypeConsole, "event": e})
			if err != nil {
				continue
			}
			if !write(TypeConsole, data) {
				return
			}

		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			data, err := sonic.Marshal(e)
			if err != nil {
				continue
			}
			if !write(string(e.Type), data) {
				return
			}

		case <-ticker.C:
			if err := cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// send queues a reply; replies are dropped when the client stops reading
func (h *Handler) send(cl *client, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		cl.logger.Error("Failed to encode message", zap.Error(err))
		return
	}
	select {
	case cl.out <- data:
	default:
		cl.logger.Warn("Outbound queue full, dropping reply")
	}
}

func (h *Handler) sendError(cl *client, msg string) {
	h.send(cl, map[string]any{
		"type":      TypeError,
		"message":   msg,
		"timestamp": time.Now().Unix(),
	})
}

// inboundLabel bounds the metric label set to the known client types
func inboundLabel(kind string) string {
	switch kind {
	case TypeEdit, TypeReplace, TypeRun, TypeAutoRun, TypePing:
		return kind
	}
	return "unknown"
}

func (h *Handler) record(direction, kind string) {
	if h.metrics != nil {
		h.metrics.RecordWSMessage(direction, kind)
	}
}
