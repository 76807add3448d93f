package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/sttray/internal/events"
	"github.com/loykin/sttray/internal/supervisor"
)

// Daemon is the subset of *supervisor.Supervisor the bridge invokes.
type Daemon interface {
	Start() (string, error)
	Stop() (string, error)
	Status() bool
	Info() supervisor.Info
}

// Router exposes the daemon commands to front-end windows.
// Endpoints:
//
//	POST {basePath}/invoke/start_stt_daemon
//	POST {basePath}/invoke/stop_stt_daemon
//	GET  {basePath}/invoke/get_stt_status
//	GET  {basePath}/info
//	GET  {basePath}/events     websocket stream of broadcast events
//	GET  {basePath}/metrics    only when a metrics handler is set
//	GET  /                     front-end page, with WithUI
//
// basePath may be empty or start with '/'; no trailing slash.
// Requests whose Host or Origin names a non-loopback host get 403, so web
// pages from other sites cannot drive the daemon.
// Invocations answer the caller directly and do not broadcast stt_status.
type Router struct {
	d        Daemon
	bus      *events.Bus
	basePath string
	metrics  http.Handler
	ui       bool
	log      *slog.Logger
}

// Option customizes a Router.
type Option func(*Router)

// WithMetrics mounts h under {basePath}/metrics.
func WithMetrics(h http.Handler) Option { return func(r *Router) { r.metrics = h } }

// WithLogger sets the logger used for websocket diagnostics.
func WithLogger(l *slog.Logger) Option { return func(r *Router) { r.log = l } }

// NewRouter constructs a new Router. bus may be nil, in which case /events is not mounted.
func NewRouter(d Daemon, bus *events.Bus, basePath string, opts ...Option) *Router {
	r := &Router{d: d, bus: bus, basePath: sanitizeBase(basePath), log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With("component", "bridge")
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), localOnly())
	if r.ui {
		g.GET("/", r.handleIndex)
	}
	group := g.Group(r.basePath)
	group.POST("/invoke/start_stt_daemon", r.handleStart)
	group.POST("/invoke/stop_stt_daemon", r.handleStop)
	group.GET("/invoke/get_stt_status", r.handleStatus)
	group.GET("/info", r.handleInfo)
	if r.bus != nil {
		group.GET("/events", r.handleEvents)
	}
	if r.metrics != nil {
		group.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer binds addr, which must be a loopback address, and serves h on it
// in the background. Bind errors are returned synchronously; Addr on the
// returned server holds the bound address.
func NewServer(addr string, h http.Handler) (*http.Server, error) {
	if err := requireLoopback(addr); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.Serve(ln) }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func (r *Router) handleStart(c *gin.Context) {
	msg, err := r.d.Start()
	if err != nil {
		writeJSON(c, errorCode(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true, Message: msg})
}

func (r *Router) handleStop(c *gin.Context) {
	msg, err := r.d.Stop()
	if err != nil {
		writeJSON(c, errorCode(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true, Message: msg})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.d.Status())
}

func (r *Router) handleInfo(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.d.Info())
}

// errorCode maps supervisor errors to HTTP status codes: state conflicts are
// 409, a shut down supervisor 503, OS failures 500.
func errorCode(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning), errors.Is(err, supervisor.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrShutDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
