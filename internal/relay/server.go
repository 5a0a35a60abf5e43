package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/taskbridge/internal/common"
	"github.com/loykin/taskbridge/internal/constants"
	"github.com/loykin/taskbridge/internal/exchange"
	"github.com/loykin/taskbridge/internal/metrics"
	"github.com/loykin/taskbridge/internal/reentry"
	"github.com/loykin/taskbridge/internal/signal"
	"github.com/loykin/taskbridge/internal/snapshot"
	"github.com/loykin/taskbridge/internal/util"
)

// maxTaskPayload bounds a published task list.
const maxTaskPayload = 4 << 20

// Bridge is the call surface the relay exposes to out-of-process callers.
type Bridge interface {
	Execute(ctx context.Context, req exchange.Request) exchange.Result
	// KVPut stores *value under key; nil removes it.
	KVPut(ctx context.Context, key string, value *string)
	KVGet(ctx context.Context, key, def string) string
	KVRemove(ctx context.Context, key string)
	KVClear(ctx context.Context)
	PublishTaskSnapshot(raw []byte) error
	PublishNotification(title, message string, progress int, actionable bool)
	ShowNotification(title, body string)
	ShowNotificationIfAppIsNotOpen(title, body string) bool
}

// ServerOptions wires the relay to the bridge's components. Snapshots and
// Hub are required; a nil Bridge omits the bridge routes and a nil JWT leaves
// the API open.
type ServerOptions struct {
	Addr      string
	Bridge    Bridge
	Snapshots *snapshot.Store
	Hub       *signal.Hub
	Mailbox   reentry.Mailbox
	Metrics   *metrics.Metrics
	JWT       *VerifyConfig

	WriteTimeout time.Duration
	PingInterval time.Duration
}

// Server serves the snapshot, the signal stream and the bridge surface to
// widget hosts and other processes.
type Server struct {
	opts   ServerOptions
	engine *gin.Engine
	srv    *http.Server
	logger *common.Logger
}

func NewServer(opts ServerOptions) *Server {
	opts.Addr = util.TrimWithDefault(opts.Addr, constants.DefaultRelayAddr)
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = constants.DefaultWSWriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = constants.DefaultWSPingInterval
	}
	s := &Server{opts: opts, logger: common.GetLogger().WithComponent("relay")}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.accessLog())

	engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	if s.opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))
	}

	v1 := engine.Group("/v1")
	if s.opts.JWT != nil {
		v1.Use(RequireJWT(*s.opts.JWT))
	}
	v1.GET("/snapshot", s.getSnapshot)
	v1.GET("/signals", s.streamSignals)
	if s.opts.Mailbox != nil {
		v1.POST("/reentry", s.postReentry)
		v1.POST("/reentry/take", s.takeReentry)
	}
	if s.opts.Bridge != nil {
		b := v1.Group("/bridge")
		b.POST("/execute", s.execute)
		b.POST("/kv/get", s.kvGet)
		b.POST("/kv/set", s.kvSet)
		b.POST("/kv/remove", s.kvRemove)
		b.POST("/kv/clear", s.kvClear)
		b.POST("/tasks", s.publishTasks)
		b.POST("/notification", s.publishNotification)
		b.POST("/alert", s.showAlert)
	}
	return engine
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("relay request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) getSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Snapshots.Current())
}

func (s *Server) postReentry(c *gin.Context) {
	var a reentry.Action
	if err := c.ShouldBindJSON(&a); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := s.opts.Mailbox.Post(c.Request.Context(), a); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reentry.ErrInvalidAction) {
			status = http.StatusBadRequest
		}
		c.JSON(status, errorBody(err.Error()))
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) takeReentry(c *gin.Context) {
	a, ok, err := s.opts.Mailbox.Take(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.JSON(http.StatusOK, TakeResponse{Action: a, Pending: ok})
}

func (s *Server) execute(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	// exchange failures are reported in the result, not as HTTP errors
	c.JSON(http.StatusOK, s.opts.Bridge.Execute(c.Request.Context(), req.exchange()))
}

func (s *Server) bindKV(c *gin.Context, needKey bool) (kvRequest, bool) {
	var req kvRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return req, false
	}
	if needKey && req.Key == "" {
		c.JSON(http.StatusBadRequest, errorBody("key is required"))
		return req, false
	}
	return req, true
}

func (s *Server) kvGet(c *gin.Context) {
	req, ok := s.bindKV(c, true)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, kvResponse{Value: s.opts.Bridge.KVGet(c.Request.Context(), req.Key, req.Default)})
}

func (s *Server) kvSet(c *gin.Context) {
	req, ok := s.bindKV(c, true)
	if !ok {
		return
	}
	// {"value": null} or a missing value deletes the key
	s.opts.Bridge.KVPut(c.Request.Context(), req.Key, req.Value)
	c.Status(http.StatusNoContent)
}

func (s *Server) kvRemove(c *gin.Context) {
	req, ok := s.bindKV(c, true)
	if !ok {
		return
	}
	s.opts.Bridge.KVRemove(c.Request.Context(), req.Key)
	c.Status(http.StatusNoContent)
}

func (s *Server) kvClear(c *gin.Context) {
	s.opts.Bridge.KVClear(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (s *Server) publishTasks(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTaskPayload))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := s.opts.Bridge.PublishTaskSnapshot(raw); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": s.opts.Snapshots.Current().Version})
}

func (s *Server) publishNotification(c *gin.Context) {
	var st struct {
		Title      string `json:"title"`
		Message    string `json:"message"`
		Progress   *int   `json:"progress"`
		Actionable bool   `json:"actionable"`
	}
	if err := c.ShouldBindJSON(&st); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	progress := -1
	if st.Progress != nil {
		progress = *st.Progress
	}
	s.opts.Bridge.PublishNotification(st.Title, st.Message, progress, st.Actionable)
	c.Status(http.StatusNoContent)
}

func (s *Server) showAlert(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if req.IfBackground {
		c.JSON(http.StatusOK, alertResponse{Shown: s.opts.Bridge.ShowNotificationIfAppIsNotOpen(req.Title, req.Body)})
		return
	}
	s.opts.Bridge.ShowNotification(req.Title, req.Body)
	c.JSON(http.StatusOK, alertResponse{Shown: true})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("relay listening", "addr", ln.Addr().String(), "auth", s.opts.JWT != nil)

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("relay stopped")
		return nil
	}
}
