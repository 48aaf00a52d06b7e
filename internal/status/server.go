package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"schedbot/internal/post"
	"schedbot/internal/runtime/supervisor"
	"schedbot/internal/scheduler"
	"schedbot/internal/storage"
	logx "schedbot/pkg/logx"

	"github.com/gin-gonic/gin"
)

// Sources feeds the handlers. Nil members are omitted from the output.
type Sources struct {
	Collector  *Collector
	Loop       func() scheduler.Stats
	Goroutines func() []supervisor.Stat
	Store      storage.Pinger
	History    post.History
}

type Server struct {
	srv *http.Server
	src Sources
	log logx.Logger

	pprof      bool
	pprofToken string
}

func init() { gin.SetMode(gin.ReleaseMode) }

func New(addr string, src Sources, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{src: src, log: log.With(logx.String("comp", "status"))}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", s.health)
	r.GET("/status", s.status)
	r.GET("/posts/:id/deliveries", s.deliveries)
	if s.pprof {
		s.mountPprof(r)
	}
	return r
}

// Start listens in the background. It returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.log.Info("status server listening", logx.String("addr", ln.Addr().String()))
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server stopped", logx.Err(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error { return s.srv.Shutdown(ctx) }

// stale reports a loop that has not ticked for a while.
func stale(st scheduler.Stats, now time.Time) bool {
	if st.LastTick.IsZero() {
		return false
	}
	limit := 10*st.Interval + time.Minute
	return now.Sub(st.LastTick) > limit
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.src.Store != nil {
		if err := s.src.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store_unreachable", "error": err.Error()})
			return
		}
	}
	if s.src.Loop != nil && stale(s.src.Loop(), time.Now()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "stalled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	out := gin.H{}
	if s.src.Collector != nil {
		out["uptime"] = s.src.Collector.Uptime().Round(time.Second).String()
		out["counters"] = s.src.Collector.Counters()
		out["recent"] = s.src.Collector.RecentEvents()
	}
	if s.src.Loop != nil {
		out["scheduler"] = s.src.Loop()
	}
	if s.src.Goroutines != nil {
		out["goroutines"] = s.src.Goroutines()
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deliveries(c *gin.Context) {
	if s.src.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history disabled"})
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	list, err := s.src.History.Deliveries(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []post.Delivery{}
	}
	c.JSON(http.StatusOK, gin.H{"post_id": c.Param("id"), "deliveries": list})
}
